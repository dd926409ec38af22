package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/DE-IBH/b3lb/internal/bbb"
)

const meetingColumns = `id, secret_uuid, node_uuid, room_name, age,
	       attendees, listener_count, voice_participant_count, moderator_count, video_count,
	       bbb_origin, bbb_origin_server_name, end_callback_url, nonce`

func scanMeeting(row interface{ Scan(...interface{}) error }) (*Meeting, error) {
	var m Meeting
	err := row.Scan(
		&m.ID, &m.SecretUUID, &m.NodeUUID, &m.RoomName, &m.Age,
		&m.Attendees, &m.ListenerCount, &m.VoiceParticipantCount, &m.ModeratorCount, &m.VideoCount,
		&m.Origin, &m.OriginServerName, &m.EndCallbackURL, &m.Nonce,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMeeting looks up the routing record for (id, secret).
func (s *Store) GetMeeting(ctx context.Context, meetingID string, secretUUID uuid.UUID) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings WHERE id = $1 AND secret_uuid = $2`, meetingID, secretUUID)
	return scanMeeting(row)
}

// GetMeetingByNonce authenticates a node-side callback.
func (s *Store) GetMeetingByNonce(ctx context.Context, meetingID, nonce string) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings WHERE id = $1 AND nonce = $2`, meetingID, nonce)
	return scanMeeting(row)
}

// GetOrCreateMeeting binds a meeting id to a node. The returned created
// flag is false when a concurrent create or an earlier one already
// bound the id; the existing binding always wins.
func (s *Store) GetOrCreateMeeting(ctx context.Context, meetingID string, secretUUID, nodeUUID uuid.UUID, roomName, endCallbackURL string) (*Meeting, bool, error) {
	if roomName == "" {
		roomName = "Unknown"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO meetings (id, secret_uuid, node_uuid, room_name, end_callback_url, nonce)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id, secret_uuid) DO NOTHING
		RETURNING `+meetingColumns,
		meetingID, secretUUID, nodeUUID, roomName, endCallbackURL, bbb.Nonce())

	meeting, err := scanMeeting(row)
	if err == nil {
		return meeting, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("create meeting: %w", err)
	}

	meeting, err = s.GetMeeting(ctx, meetingID, secretUUID)
	if err != nil {
		return nil, false, fmt.Errorf("load existing meeting: %w", err)
	}
	return meeting, false, nil
}

// DeleteMeeting removes the routing record.
func (s *Store) DeleteMeeting(ctx context.Context, meetingID string, secretUUID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM meetings WHERE id = $1 AND secret_uuid = $2`, meetingID, secretUUID)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	return nil
}

// ListMeetingsOnNode returns every meeting bound to a node.
func (s *Store) ListMeetingsOnNode(ctx context.Context, nodeUUID uuid.UUID) ([]*Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings WHERE node_uuid = $1`, nodeUUID)
	if err != nil {
		return nil, fmt.Errorf("list node meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		meetings = append(meetings, meeting)
	}
	return meetings, rows.Err()
}

// ListMeetingsForTenant returns every meeting of a tenant across its
// secrets, with the node error flag for the statistics builder.
func (s *Store) ListMeetingsForTenant(ctx context.Context, tenantUUID uuid.UUID) ([]*Meeting, map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.secret_uuid, m.node_uuid, m.room_name, m.age,
		       m.attendees, m.listener_count, m.voice_participant_count, m.moderator_count, m.video_count,
		       m.bbb_origin, m.bbb_origin_server_name, m.end_callback_url, m.nonce,
		       n.has_errors
		FROM meetings m
		JOIN secrets s ON s.uuid = m.secret_uuid
		JOIN nodes n ON n.uuid = m.node_uuid
		WHERE s.tenant_uuid = $1`, tenantUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("list tenant meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*Meeting
	nodeErrors := make(map[string]bool)
	for rows.Next() {
		var m Meeting
		var hasErrors bool
		if err := rows.Scan(&m.ID, &m.SecretUUID, &m.NodeUUID, &m.RoomName, &m.Age,
			&m.Attendees, &m.ListenerCount, &m.VoiceParticipantCount, &m.ModeratorCount, &m.VideoCount,
			&m.Origin, &m.OriginServerName, &m.EndCallbackURL, &m.Nonce, &hasErrors); err != nil {
			return nil, nil, fmt.Errorf("scan meeting: %w", err)
		}
		meetings = append(meetings, &m)
		nodeErrors[m.NodeUUID.String()] = hasErrors
	}
	return meetings, nodeErrors, rows.Err()
}

// UpdateMeetingCounters copies the census counters and origin metadata
// onto the meeting row.
func (s *Store) UpdateMeetingCounters(ctx context.Context, m *Meeting, c bbb.MeetingCensus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE meetings
		SET attendees = $3, listener_count = $4, voice_participant_count = $5,
		    moderator_count = $6, video_count = $7, bbb_origin = $8, bbb_origin_server_name = $9
		WHERE id = $1 AND secret_uuid = $2`,
		m.ID, m.SecretUUID,
		c.ParticipantCount, c.ListenerCount, c.VoiceParticipantCount,
		c.ModeratorCount, c.VideoCount, c.Origin, c.OriginServerName)
	if err != nil {
		return fmt.Errorf("update meeting counters: %w", err)
	}
	return nil
}

// CountMeetingsForTenant counts live meetings across all of a tenant's
// secrets for the limit gate.
func (s *Store) CountMeetingsForTenant(ctx context.Context, tenantUUID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM meetings m
		JOIN secrets s ON s.uuid = m.secret_uuid
		WHERE s.tenant_uuid = $1`, tenantUUID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tenant meetings: %w", err)
	}
	return count, nil
}

// CountMeetingsForSecret counts live meetings on one secret.
func (s *Store) CountMeetingsForSecret(ctx context.Context, secretUUID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meetings WHERE secret_uuid = $1`, secretUUID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count secret meetings: %w", err)
	}
	return count, nil
}

// SumAttendeesForTenant sums polled attendee counts across a tenant.
func (s *Store) SumAttendeesForTenant(ctx context.Context, tenantUUID uuid.UUID) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(m.attendees), 0) FROM meetings m
		JOIN secrets s ON s.uuid = m.secret_uuid
		WHERE s.tenant_uuid = $1`, tenantUUID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum tenant attendees: %w", err)
	}
	return sum, nil
}

// SumAttendeesForSecret sums polled attendee counts on one secret.
func (s *Store) SumAttendeesForSecret(ctx context.Context, secretUUID uuid.UUID) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(attendees), 0) FROM meetings WHERE secret_uuid = $1`, secretUUID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum secret attendees: %w", err)
	}
	return sum, nil
}

// ListMeetingIDsOwnedBySecret returns the meeting ids the secret owns;
// the tenant-wide sub_id=0 secret owns the union of its tenant.
func (s *Store) ListMeetingIDsOwnedBySecret(ctx context.Context, secret *Secret) (map[string]bool, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if secret.SubID == 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT m.id FROM meetings m
			JOIN secrets s ON s.uuid = m.secret_uuid
			WHERE s.tenant_uuid = $1`, secret.Tenant.UUID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id FROM meetings WHERE secret_uuid = $1`, secret.UUID)
	}
	if err != nil {
		return nil, fmt.Errorf("list owned meeting ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan meeting id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
