package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SetNodeMeetingList stores the raw getMeetings document of a node.
func (s *Store) SetNodeMeetingList(ctx context.Context, nodeUUID uuid.UUID, xml string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_meeting_lists (node_uuid, xml) VALUES ($1, $2)
		ON CONFLICT (node_uuid) DO UPDATE SET xml = $2`, nodeUUID, xml)
	if err != nil {
		return fmt.Errorf("set node meeting list: %w", err)
	}
	return nil
}

// GetNodeMeetingList returns a node's stored getMeetings document, or
// an empty string when none was captured yet.
func (s *Store) GetNodeMeetingList(ctx context.Context, nodeUUID uuid.UUID) (string, error) {
	var xml string
	err := s.db.QueryRowContext(ctx,
		`SELECT xml FROM node_meeting_lists WHERE node_uuid = $1`, nodeUUID).Scan(&xml)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get node meeting list: %w", err)
	}
	return xml, nil
}

// ListNodeMeetingLists returns every stored node document keyed by node.
func (s *Store) ListNodeMeetingLists(ctx context.Context) (map[uuid.UUID]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_uuid, xml FROM node_meeting_lists`)
	if err != nil {
		return nil, fmt.Errorf("list node meeting lists: %w", err)
	}
	defer rows.Close()

	lists := make(map[uuid.UUID]string)
	for rows.Next() {
		var nodeUUID uuid.UUID
		var xml string
		if err := rows.Scan(&nodeUUID, &xml); err != nil {
			return nil, fmt.Errorf("scan node meeting list: %w", err)
		}
		lists[nodeUUID] = xml
	}
	return lists, rows.Err()
}

// SetSecretMeetingList stores the merged getMeetings document served to
// one secret.
func (s *Store) SetSecretMeetingList(ctx context.Context, secretUUID uuid.UUID, xml string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secret_meeting_lists (secret_uuid, xml) VALUES ($1, $2)
		ON CONFLICT (secret_uuid) DO UPDATE SET xml = $2`, secretUUID, xml)
	if err != nil {
		return fmt.Errorf("set secret meeting list: %w", err)
	}
	return nil
}

// GetSecretMeetingList returns the merged document for a secret, or an
// empty string before the first aggregation run.
func (s *Store) GetSecretMeetingList(ctx context.Context, secretUUID uuid.UUID) (string, error) {
	var xml string
	err := s.db.QueryRowContext(ctx,
		`SELECT xml FROM secret_meeting_lists WHERE secret_uuid = $1`, secretUUID).Scan(&xml)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get secret meeting list: %w", err)
	}
	return xml, nil
}

// SetSecretMetricsList stores a rendered Prometheus document. A nil
// secret stores the global (all tenants) document.
func (s *Store) SetSecretMetricsList(ctx context.Context, secretUUID *uuid.UUID, metrics string) error {
	var err error
	if secretUUID != nil {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO secret_metrics_lists (secret_uuid, metrics) VALUES ($1, $2)
			ON CONFLICT (secret_uuid) DO UPDATE SET metrics = $2`, *secretUUID, metrics)
	} else {
		res, execErr := s.db.ExecContext(ctx,
			`UPDATE secret_metrics_lists SET metrics = $1 WHERE secret_uuid IS NULL`, metrics)
		err = execErr
		if err == nil {
			if n, _ := res.RowsAffected(); n == 0 {
				_, err = s.db.ExecContext(ctx,
					`INSERT INTO secret_metrics_lists (secret_uuid, metrics) VALUES (NULL, $1)`, metrics)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("set metrics list: %w", err)
	}
	return nil
}

// GetSecretMetricsList returns the rendered Prometheus document for a
// secret, or the global one when secretUUID is nil.
func (s *Store) GetSecretMetricsList(ctx context.Context, secretUUID *uuid.UUID) (string, error) {
	var (
		metrics string
		err     error
	)
	if secretUUID != nil {
		err = s.db.QueryRowContext(ctx,
			`SELECT metrics FROM secret_metrics_lists WHERE secret_uuid = $1`, *secretUUID).Scan(&metrics)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT metrics FROM secret_metrics_lists WHERE secret_uuid IS NULL`).Scan(&metrics)
	}
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metrics list: %w", err)
	}
	return metrics, nil
}
