package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const nodeColumns = `n.uuid, n.slug, n.domain, n.secret, n.cluster_uuid,
	       n.attendees, n.meetings, n.cpu_load, n.has_errors, n.maintenance,
	       c.uuid, c.name, c.load_a_factor, c.load_m_factor,
	       c.load_cpu_iterations, c.load_cpu_max, c.sha_function`

func scanNode(row interface{ Scan(...interface{}) error }) (*Node, error) {
	var n Node
	err := row.Scan(
		&n.UUID, &n.Slug, &n.Domain, &n.Secret, &n.ClusterUUID,
		&n.Attendees, &n.Meetings, &n.CPULoad, &n.HasErrors, &n.Maintenance,
		&n.Cluster.UUID, &n.Cluster.Name, &n.Cluster.LoadAFactor, &n.Cluster.LoadMFactor,
		&n.Cluster.LoadCPUIterations, &n.Cluster.LoadCPUMax, &n.Cluster.SHAFunction,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNode loads a node with its cluster parameters.
func (s *Store) GetNode(ctx context.Context, nodeUUID uuid.UUID) (*Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes n JOIN clusters c ON c.uuid = n.cluster_uuid
		WHERE n.uuid = $1`, nodeUUID)
	node, err := scanNode(row)
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", nodeUUID, err)
	}
	return node, nil
}

// ListNodes returns every node with its cluster parameters.
func (s *Store) ListNodes(ctx context.Context) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes n JOIN clusters c ON c.uuid = n.cluster_uuid
		ORDER BY n.slug`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// ListNodesInClusterGroup returns the nodes a tenant's traffic may land
// on.
func (s *Store) ListNodesInClusterGroup(ctx context.Context, clusterGroupUUID uuid.UUID) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes n
		JOIN clusters c ON c.uuid = n.cluster_uuid
		JOIN cluster_group_relations r ON r.cluster_uuid = c.uuid
		WHERE r.cluster_group_uuid = $1
		ORDER BY n.slug`, clusterGroupUUID)
	if err != nil {
		return nil, fmt.Errorf("list cluster group nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// UpdateNodeCPULoad persists a polled CPU load under a row lock so
// concurrent writers serialize.
func (s *Store) UpdateNodeCPULoad(ctx context.Context, nodeUUID uuid.UUID, cpuLoad int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		if err := tx.QueryRowContext(ctx,
			`SELECT cpu_load FROM nodes WHERE uuid = $1 FOR UPDATE`, nodeUUID).Scan(&current); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE nodes SET cpu_load = $2 WHERE uuid = $1`, nodeUUID, cpuLoad)
		return err
	})
}

// UpdateNodeCensus persists the outcome of one poll cycle.
func (s *Store) UpdateNodeCensus(ctx context.Context, nodeUUID uuid.UUID, hasErrors bool, attendees, meetings int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var dummy uuid.UUID
		if err := tx.QueryRowContext(ctx,
			`SELECT uuid FROM nodes WHERE uuid = $1 FOR UPDATE`, nodeUUID).Scan(&dummy); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE nodes SET has_errors = $2, attendees = $3, meetings = $4 WHERE uuid = $1`,
			nodeUUID, hasErrors, attendees, meetings)
		return err
	})
}

// MarkNodeErrored flags a node after a failed poll step.
func (s *Store) MarkNodeErrored(ctx context.Context, nodeUUID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE nodes SET has_errors = TRUE WHERE uuid = $1`, nodeUUID)
	if err != nil {
		return fmt.Errorf("mark node errored: %w", err)
	}
	return nil
}

// AddNodeCreatePenalty bumps the node's live counters after a create so
// the selector sees the new meeting before the next poll confirms it.
func (s *Store) AddNodeCreatePenalty(ctx context.Context, nodeUUID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET attendees = attendees + 1, meetings = meetings + 1 WHERE uuid = $1`, nodeUUID)
	if err != nil {
		return fmt.Errorf("add create penalty: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
