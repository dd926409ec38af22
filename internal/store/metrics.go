package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Counter values wrap at 2^63 instead of overflowing bigint. The
// addition runs in numeric to stay exact at the boundary.
const incrMetricNodeSQL = `
	INSERT INTO metrics (uuid, name, secret_uuid, node_uuid, value)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (name, secret_uuid, node_uuid) WHERE node_uuid IS NOT NULL
	DO UPDATE SET value = ((metrics.value::numeric + $5) % 9223372036854775808)::bigint`

const incrMetricNoNodeSQL = `
	INSERT INTO metrics (uuid, name, secret_uuid, node_uuid, value)
	VALUES ($1, $2, $3, NULL, $4)
	ON CONFLICT (name, secret_uuid) WHERE node_uuid IS NULL
	DO UPDATE SET value = ((metrics.value::numeric + $4) % 9223372036854775808)::bigint`

// IncrMetric adds to a counter sample, creating it at the increment
// when missing. The node is optional.
func (s *Store) IncrMetric(ctx context.Context, name string, secretUUID uuid.UUID, nodeUUID *uuid.UUID, incr int64) error {
	var err error
	if nodeUUID != nil {
		_, err = s.db.ExecContext(ctx, incrMetricNodeSQL, uuid.New(), name, secretUUID, *nodeUUID, incr)
	} else {
		_, err = s.db.ExecContext(ctx, incrMetricNoNodeSQL, uuid.New(), name, secretUUID, incr)
	}
	if err != nil {
		return fmt.Errorf("incr metric %s: %w", name, err)
	}
	return nil
}

const setMetricNodeSQL = `
	INSERT INTO metrics (uuid, name, secret_uuid, node_uuid, value)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (name, secret_uuid, node_uuid) WHERE node_uuid IS NOT NULL
	DO UPDATE SET value = $5`

const setMetricNoNodeSQL = `
	INSERT INTO metrics (uuid, name, secret_uuid, node_uuid, value)
	VALUES ($1, $2, $3, NULL, $4)
	ON CONFLICT (name, secret_uuid) WHERE node_uuid IS NULL
	DO UPDATE SET value = $4`

// SetMetric writes a gauge sample absolutely.
func (s *Store) SetMetric(ctx context.Context, name string, secretUUID uuid.UUID, nodeUUID *uuid.UUID, value int64) error {
	var err error
	if nodeUUID != nil {
		_, err = s.db.ExecContext(ctx, setMetricNodeSQL, uuid.New(), name, secretUUID, *nodeUUID, value)
	} else {
		_, err = s.db.ExecContext(ctx, setMetricNoNodeSQL, uuid.New(), name, secretUUID, value)
	}
	if err != nil {
		return fmt.Errorf("set metric %s: %w", name, err)
	}
	return nil
}

// ZeroGaugesForSecretOnNode clears the gauge samples of one secret on
// one node. Counters keep their values.
func (s *Store) ZeroGaugesForSecretOnNode(ctx context.Context, secretUUID, nodeUUID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE metrics SET value = 0
		WHERE secret_uuid = $1 AND node_uuid = $2
		  AND name IN ('attendees', 'listeners', 'voices', 'videos', 'meetings')`, secretUUID, nodeUUID)
	if err != nil {
		return fmt.Errorf("zero gauges on node: %w", err)
	}
	return nil
}

// ListMetricsForSecret returns every sample attributed to one secret.
func (s *Store) ListMetricsForSecret(ctx context.Context, secretUUID uuid.UUID) ([]*Metric, error) {
	return s.listMetrics(ctx, `
		SELECT name, secret_uuid, node_uuid, value
		FROM metrics WHERE secret_uuid = $1
		ORDER BY name, node_uuid`, secretUUID)
}

// ListMetricsForTenant returns every sample across a tenant's secrets.
func (s *Store) ListMetricsForTenant(ctx context.Context, tenantUUID uuid.UUID) ([]*Metric, error) {
	return s.listMetrics(ctx, `
		SELECT m.name, m.secret_uuid, m.node_uuid, m.value
		FROM metrics m
		JOIN secrets s ON s.uuid = m.secret_uuid
		WHERE s.tenant_uuid = $1
		ORDER BY m.name, m.secret_uuid, m.node_uuid`, tenantUUID)
}

// ListMetrics returns every sample in the system.
func (s *Store) ListMetrics(ctx context.Context) ([]*Metric, error) {
	return s.listMetrics(ctx, `
		SELECT name, secret_uuid, node_uuid, value
		FROM metrics
		ORDER BY name, secret_uuid, node_uuid`)
}

func (s *Store) listMetrics(ctx context.Context, query string, args ...interface{}) ([]*Metric, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.Name, &m.SecretUUID, &m.NodeUUID, &m.Value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}
