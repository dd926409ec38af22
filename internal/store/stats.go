package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ReplaceStatsForTenant swaps a tenant's live aggregates in one
// transaction so readers never see a half-rebuilt table.
func (s *Store) ReplaceStatsForTenant(ctx context.Context, tenantUUID uuid.UUID, stats []*Stats) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM stats WHERE tenant_uuid = $1`, tenantUUID); err != nil {
			return fmt.Errorf("clear tenant stats: %w", err)
		}
		for _, st := range stats {
			if st.UUID == uuid.Nil {
				st.UUID = uuid.New()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stats (uuid, tenant_uuid, attendees, meetings,
				                   listener_count, voice_participant_count,
				                   moderator_count, video_count,
				                   bbb_origin, bbb_origin_server_name)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				st.UUID, tenantUUID, st.Attendees, st.Meetings,
				st.ListenerCount, st.VoiceParticipantCount,
				st.ModeratorCount, st.VideoCount,
				st.Origin, st.OriginServerName); err != nil {
				return fmt.Errorf("insert tenant stats: %w", err)
			}
		}
		return nil
	})
}

// ListStatsForTenant returns the live aggregates of one tenant.
func (s *Store) ListStatsForTenant(ctx context.Context, tenantUUID uuid.UUID) ([]*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, tenant_uuid, attendees, meetings,
		       listener_count, voice_participant_count,
		       moderator_count, video_count,
		       bbb_origin, bbb_origin_server_name
		FROM stats WHERE tenant_uuid = $1
		ORDER BY bbb_origin, bbb_origin_server_name`, tenantUUID)
	if err != nil {
		return nil, fmt.Errorf("list tenant stats: %w", err)
	}
	defer rows.Close()

	var stats []*Stats
	for rows.Next() {
		var st Stats
		if err := rows.Scan(&st.UUID, &st.TenantUUID, &st.Attendees, &st.Meetings,
			&st.ListenerCount, &st.VoiceParticipantCount,
			&st.ModeratorCount, &st.VideoCount,
			&st.Origin, &st.OriginServerName); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, &st)
	}
	return stats, rows.Err()
}

// GetTenantByStatsToken authorizes the statistics endpoint.
func (s *Store) GetTenantByStatsToken(ctx context.Context, token uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT uuid, slug, description, cluster_group_uuid,
		       attendee_limit, meeting_limit, recording_enabled, records_hold_time, stats_token
		FROM tenants WHERE stats_token = $1`, token).Scan(
		&t.UUID, &t.Slug, &t.Description, &t.ClusterGroupUUID,
		&t.AttendeeLimit, &t.MeetingLimit, &t.RecordingEnabled, &t.RecordsHoldTime, &t.StatsToken)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
