package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/DE-IBH/b3lb/internal/bbb"
)

const recordSetColumns = `uuid, secret_uuid, meeting_id, recording_ready_origin_url, nonce,
	       status, file_path, raw_size,
	       meta_meeting_id, meta_meeting_name, meta_end_callback_url,
	       meta_bbb_origin, meta_bbb_origin_version, meta_bbb_origin_server_name,
	       meta_is_breakout, meta_gl_listed, meta_start_time, meta_end_time,
	       meta_participants, created_at`

func scanRecordSet(row interface{ Scan(...interface{}) error }) (*RecordSet, error) {
	var rs RecordSet
	err := row.Scan(
		&rs.UUID, &rs.SecretUUID, &rs.MeetingID, &rs.RecordingReadyOriginURL, &rs.Nonce,
		&rs.Status, &rs.FilePath, &rs.RawSize,
		&rs.MetaMeetingID, &rs.MetaMeetingName, &rs.MetaEndCallbackURL,
		&rs.MetaOrigin, &rs.MetaOriginVersion, &rs.MetaOriginServerName,
		&rs.MetaIsBreakout, &rs.MetaGLListed, &rs.MetaStartTime, &rs.MetaEndTime,
		&rs.MetaParticipants, &rs.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

// CreateRecordSet opens the recording lifecycle for a meeting.
func (s *Store) CreateRecordSet(ctx context.Context, rs *RecordSet) error {
	if rs.UUID == uuid.Nil {
		rs.UUID = uuid.New()
	}
	if rs.Nonce == "" {
		rs.Nonce = bbb.Nonce()
	}
	if rs.Status == "" {
		rs.Status = RecordSetUnknown
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_sets (uuid, secret_uuid, meeting_id, recording_ready_origin_url,
		                         nonce, status, file_path, meta_meeting_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rs.UUID, rs.SecretUUID, rs.MeetingID, rs.RecordingReadyOriginURL,
		rs.Nonce, rs.Status, rs.FilePath, rs.MetaMeetingID)
	if err != nil {
		return fmt.Errorf("create record set: %w", err)
	}
	return nil
}

// GetRecordSetByNonce authenticates a node's raw recording upload.
func (s *Store) GetRecordSetByNonce(ctx context.Context, nonce string) (*RecordSet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordSetColumns+`
		FROM record_sets WHERE nonce = $1`, nonce)
	return scanRecordSet(row)
}

// GetRecordSet loads one record set.
func (s *Store) GetRecordSet(ctx context.Context, setUUID uuid.UUID) (*RecordSet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordSetColumns+`
		FROM record_sets WHERE uuid = $1`, setUUID)
	return scanRecordSet(row)
}

// UpdateRecordSetUpload persists the upload metadata and moves the set
// to UPLOADED.
func (s *Store) UpdateRecordSetUpload(ctx context.Context, rs *RecordSet) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE record_sets
		SET status = $2, raw_size = $3,
		    meta_meeting_name = $4, meta_end_callback_url = $5,
		    meta_bbb_origin = $6, meta_bbb_origin_version = $7, meta_bbb_origin_server_name = $8,
		    meta_is_breakout = $9, meta_gl_listed = $10,
		    meta_start_time = $11, meta_end_time = $12, meta_participants = $13
		WHERE uuid = $1`,
		rs.UUID, RecordSetUploaded, rs.RawSize,
		rs.MetaMeetingName, rs.MetaEndCallbackURL,
		rs.MetaOrigin, rs.MetaOriginVersion, rs.MetaOriginServerName,
		rs.MetaIsBreakout, rs.MetaGLListed,
		rs.MetaStartTime, rs.MetaEndTime, rs.MetaParticipants)
	if err != nil {
		return fmt.Errorf("update record set upload: %w", err)
	}
	return nil
}

// SetRecordSetStatus moves a record set along its lifecycle.
func (s *Store) SetRecordSetStatus(ctx context.Context, setUUID uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE record_sets SET status = $2 WHERE uuid = $1`, setUUID, status)
	if err != nil {
		return fmt.Errorf("set record set status: %w", err)
	}
	return nil
}

// ListRecordSetsByStatus returns the sets waiting in one state, oldest
// first. A limit of 0 returns all of them.
func (s *Store) ListRecordSetsByStatus(ctx context.Context, status string, limit int) ([]*RecordSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordSetColumns+`
		FROM record_sets WHERE status = $1
		ORDER BY created_at LIMIT NULLIF($2, 0)`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list record sets: %w", err)
	}
	defer rows.Close()
	return collectRecordSets(rows)
}

// MarkExpiredRecordSets moves sets past their retention window to
// DELETING and returns them for file cleanup. The effective hold time
// is the smaller of the tenant and secret limits unless one is
// unlimited (0), in which case the other applies.
func (s *Store) MarkExpiredRecordSets(ctx context.Context) ([]*RecordSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH held AS (
			SELECT rs.uuid,
			       CASE WHEN t.records_hold_time = 0 OR sec.records_hold_time = 0
			            THEN GREATEST(t.records_hold_time, sec.records_hold_time)
			            ELSE LEAST(t.records_hold_time, sec.records_hold_time)
			       END AS hold_days
			FROM record_sets rs
			JOIN secrets sec ON sec.uuid = rs.secret_uuid
			JOIN tenants t ON t.uuid = sec.tenant_uuid
			WHERE rs.status <> 'DELETING'
		)
		UPDATE record_sets
		SET status = 'DELETING'
		FROM held
		WHERE record_sets.uuid = held.uuid
		  AND held.hold_days > 0
		  AND record_sets.created_at < NOW() - make_interval(days => held.hold_days)
		RETURNING `+recordSetColumnsQualified("record_sets"))
	if err != nil {
		return nil, fmt.Errorf("mark expired record sets: %w", err)
	}
	defer rows.Close()
	return collectRecordSets(rows)
}

func recordSetColumnsQualified(alias string) string {
	return alias + `.uuid, ` + alias + `.secret_uuid, ` + alias + `.meeting_id, ` +
		alias + `.recording_ready_origin_url, ` + alias + `.nonce, ` +
		alias + `.status, ` + alias + `.file_path, ` + alias + `.raw_size, ` +
		alias + `.meta_meeting_id, ` + alias + `.meta_meeting_name, ` + alias + `.meta_end_callback_url, ` +
		alias + `.meta_bbb_origin, ` + alias + `.meta_bbb_origin_version, ` + alias + `.meta_bbb_origin_server_name, ` +
		alias + `.meta_is_breakout, ` + alias + `.meta_gl_listed, ` + alias + `.meta_start_time, ` +
		alias + `.meta_end_time, ` + alias + `.meta_participants, ` + alias + `.created_at`
}

func collectRecordSets(rows *sql.Rows) ([]*RecordSet, error) {
	var sets []*RecordSet
	for rows.Next() {
		rs, err := scanRecordSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record set: %w", err)
		}
		sets = append(sets, rs)
	}
	return sets, rows.Err()
}

// DeleteRecordSet removes the set and cascades to its records.
func (s *Store) DeleteRecordSet(ctx context.Context, setUUID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM record_sets WHERE uuid = $1`, setUUID)
	if err != nil {
		return fmt.Errorf("delete record set: %w", err)
	}
	return nil
}

const recordColumns = `uuid, record_set_uuid, profile_uuid, file_key, file_size,
	       name, gl_listed, published, nonce, uploaded_at`

func scanRecord(row interface{ Scan(...interface{}) error }) (*Record, error) {
	var r Record
	err := row.Scan(&r.UUID, &r.RecordSetUUID, &r.ProfileUUID, &r.FileKey, &r.FileSize,
		&r.Name, &r.GLListed, &r.Published, &r.Nonce, &r.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertRecord stores a rendered output, keeping the existing nonce and
// publish state of a re-render.
func (s *Store) UpsertRecord(ctx context.Context, r *Record) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Nonce == "" {
		r.Nonce = bbb.Nonce()
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid FROM records WHERE record_set_uuid = $1 AND profile_uuid = $2`,
		r.RecordSetUUID, r.ProfileUUID)
	var existing uuid.UUID
	err := row.Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO records (uuid, record_set_uuid, profile_uuid, file_key, file_size,
			                     name, gl_listed, published, nonce)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.UUID, r.RecordSetUUID, r.ProfileUUID, r.FileKey, r.FileSize,
			r.Name, r.GLListed, r.Published, r.Nonce)
	case err == nil:
		r.UUID = existing
		_, err = s.db.ExecContext(ctx, `
			UPDATE records SET file_key = $2, file_size = $3, name = $4, gl_listed = $5
			WHERE uuid = $1`,
			r.UUID, r.FileKey, r.FileSize, r.Name, r.GLListed)
	}
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// RecordQuery narrows a getRecordings lookup. IDs must be valid UUID
// strings; callers drop invalid elements before querying.
type RecordQuery struct {
	MeetingIDs []string
	RecordIDs  []string
	States     []string
}

// RecordWithSet is one rendered record joined with its set and profile
// for document rendering.
type RecordWithSet struct {
	Record  Record
	Set     RecordSet
	Profile RecordProfile
}

// ListRecords returns the rendered records of one secret. Only records
// with an uploaded file are returned.
func (s *Store) ListRecords(ctx context.Context, secretUUID uuid.UUID, q RecordQuery) ([]*RecordWithSet, error) {
	query := `
		SELECT r.uuid, r.record_set_uuid, r.profile_uuid, r.file_key, r.file_size,
		       r.name, r.gl_listed, r.published, r.nonce, r.uploaded_at,
		       ` + recordSetColumnsQualified("rs") + `,
		       p.uuid, p.name, p.description, p.width, p.height, p.webcam_size,
		       p.annotations, p.is_default, p.file_extension, p.mime_type, p.backend_profile
		FROM records r
		JOIN record_sets rs ON rs.uuid = r.record_set_uuid
		JOIN record_profiles p ON p.uuid = r.profile_uuid
		WHERE r.file_size > 0 AND rs.secret_uuid = $1`
	args := []interface{}{secretUUID}
	n := 1
	arg := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if len(q.MeetingIDs) > 0 {
		query += ` AND rs.meta_meeting_id = ANY(` + arg(pq.Array(q.MeetingIDs)) + `)`
	}
	if len(q.RecordIDs) > 0 {
		query += ` AND r.uuid = ANY(` + arg(pq.Array(q.RecordIDs)) + `::uuid[])`
	}
	if cond := stateCondition(q.States); cond != "" {
		query += cond
	}
	query += ` ORDER BY rs.created_at DESC, p.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*RecordWithSet
	for rows.Next() {
		var rw RecordWithSet
		if err := rows.Scan(
			&rw.Record.UUID, &rw.Record.RecordSetUUID, &rw.Record.ProfileUUID,
			&rw.Record.FileKey, &rw.Record.FileSize,
			&rw.Record.Name, &rw.Record.GLListed, &rw.Record.Published,
			&rw.Record.Nonce, &rw.Record.UploadedAt,
			&rw.Set.UUID, &rw.Set.SecretUUID, &rw.Set.MeetingID, &rw.Set.RecordingReadyOriginURL,
			&rw.Set.Nonce, &rw.Set.Status, &rw.Set.FilePath, &rw.Set.RawSize,
			&rw.Set.MetaMeetingID, &rw.Set.MetaMeetingName, &rw.Set.MetaEndCallbackURL,
			&rw.Set.MetaOrigin, &rw.Set.MetaOriginVersion, &rw.Set.MetaOriginServerName,
			&rw.Set.MetaIsBreakout, &rw.Set.MetaGLListed, &rw.Set.MetaStartTime, &rw.Set.MetaEndTime,
			&rw.Set.MetaParticipants, &rw.Set.CreatedAt,
			&rw.Profile.UUID, &rw.Profile.Name, &rw.Profile.Description,
			&rw.Profile.Width, &rw.Profile.Height, &rw.Profile.WebcamSize,
			&rw.Profile.Annotations, &rw.Profile.IsDefault,
			&rw.Profile.FileExtension, &rw.Profile.MimeType, &rw.Profile.BackendProfile,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, &rw)
	}
	return out, rows.Err()
}

// stateCondition maps the getRecordings state filter onto the publish
// flag. An empty filter matches everything; a filter naming only
// unknown states matches nothing.
func stateCondition(states []string) string {
	if len(states) == 0 {
		return ""
	}
	var published, unpublished bool
	for _, st := range states {
		switch st {
		case "published":
			published = true
		case "unpublished":
			unpublished = true
		default:
			return " AND FALSE"
		}
	}
	switch {
	case published && unpublished:
		return ""
	case published:
		return " AND r.published = TRUE"
	case unpublished:
		return " AND r.published = FALSE"
	}
	return " AND FALSE"
}

// GetRecordForSecret loads one record within the caller's secret scope
// regardless of its upload state, for the mutation endpoints.
func (s *Store) GetRecordForSecret(ctx context.Context, secretUUID, recordUUID uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.uuid, r.record_set_uuid, r.profile_uuid, r.file_key, r.file_size,
		       r.name, r.gl_listed, r.published, r.nonce, r.uploaded_at
		FROM records r
		JOIN record_sets rs ON rs.uuid = r.record_set_uuid
		WHERE r.uuid = $1 AND rs.secret_uuid = $2`, recordUUID, secretUUID)
	return scanRecord(row)
}

// GetRecordByNonce resolves a delivery link.
func (s *Store) GetRecordByNonce(ctx context.Context, nonce string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records WHERE nonce = $1 AND published = TRUE AND file_size > 0`, nonce)
	return scanRecord(row)
}

// SetRecordPublished flips the publish flag of a record within the
// caller's secret scope.
func (s *Store) SetRecordPublished(ctx context.Context, secretUUID, recordUUID uuid.UUID, published bool) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET published = $1
		FROM record_sets rs
		WHERE rs.uuid = records.record_set_uuid
		  AND records.uuid = $2 AND rs.secret_uuid = $3`,
		published, recordUUID, secretUUID)
	if err != nil {
		return 0, fmt.Errorf("set record published: %w", err)
	}
	return res.RowsAffected()
}

// UpdateRecordMeta renames a record and optionally re-flags its
// directory listing, scoped to the caller's secret. Empty name and nil
// listed leave the respective column untouched.
func (s *Store) UpdateRecordMeta(ctx context.Context, secretUUID, recordUUID uuid.UUID, name string, glListed *bool) error {
	if name != "" {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE records SET name = $1
			FROM record_sets rs
			WHERE rs.uuid = records.record_set_uuid
			  AND records.uuid = $2 AND rs.secret_uuid = $3`,
			name, recordUUID, secretUUID); err != nil {
			return fmt.Errorf("update record name: %w", err)
		}
	}
	if glListed != nil {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE records SET gl_listed = $1
			FROM record_sets rs
			WHERE rs.uuid = records.record_set_uuid
			  AND records.uuid = $2 AND rs.secret_uuid = $3`,
			*glListed, recordUUID, secretUUID); err != nil {
			return fmt.Errorf("update record listing: %w", err)
		}
	}
	return nil
}

// DeleteRecord removes one rendered record row. The stored file is the
// caller's to clean up.
func (s *Store) DeleteRecord(ctx context.Context, recordUUID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE uuid = $1`, recordUUID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// ListRecordsForRecordSet returns the rendered outputs of one set.
func (s *Store) ListRecordsForRecordSet(ctx context.Context, setUUID uuid.UUID) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records WHERE record_set_uuid = $1`, setUUID)
	if err != nil {
		return nil, fmt.Errorf("list records for set: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

const profileColumns = `uuid, name, description, width, height, webcam_size,
	       annotations, is_default, file_extension, mime_type, backend_profile`

// ListRecordProfilesForSecret returns the profiles bound to a secret,
// falling back to the default profiles when no explicit binding exists.
func (s *Store) ListRecordProfilesForSecret(ctx context.Context, secretUUID uuid.UUID) ([]*RecordProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.uuid, p.name, p.description, p.width, p.height, p.webcam_size,
		       p.annotations, p.is_default, p.file_extension, p.mime_type, p.backend_profile
		FROM record_profiles p
		JOIN secret_record_profile_relations rel ON rel.record_profile_uuid = p.uuid
		WHERE rel.secret_uuid = $1
		ORDER BY p.name`, secretUUID)
	if err != nil {
		return nil, fmt.Errorf("list secret record profiles: %w", err)
	}
	profiles, err := collectProfiles(rows)
	if err != nil {
		return nil, err
	}
	if len(profiles) > 0 {
		return profiles, nil
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM record_profiles WHERE is_default = TRUE
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list default record profiles: %w", err)
	}
	return collectProfiles(rows)
}

func collectProfiles(rows *sql.Rows) ([]*RecordProfile, error) {
	defer rows.Close()
	var profiles []*RecordProfile
	for rows.Next() {
		var p RecordProfile
		if err := rows.Scan(&p.UUID, &p.Name, &p.Description, &p.Width, &p.Height, &p.WebcamSize,
			&p.Annotations, &p.IsDefault, &p.FileExtension, &p.MimeType, &p.BackendProfile); err != nil {
			return nil, fmt.Errorf("scan record profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}
