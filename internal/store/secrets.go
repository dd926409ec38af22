package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const secretColumns = `s.uuid, s.sub_id, s.secret, s.secret2,
	       s.attendee_limit, s.meeting_limit, s.recording_enabled, s.records_hold_time,
	       t.uuid, t.slug, t.description, t.cluster_group_uuid,
	       t.attendee_limit, t.meeting_limit, t.recording_enabled, t.records_hold_time, t.stats_token`

func scanSecret(row interface{ Scan(...interface{}) error }) (*Secret, error) {
	var sec Secret
	err := row.Scan(
		&sec.UUID, &sec.SubID, &sec.Secret, &sec.Secret2,
		&sec.AttendeeLimit, &sec.MeetingLimit, &sec.RecordingEnabled, &sec.RecordsHoldTime,
		&sec.Tenant.UUID, &sec.Tenant.Slug, &sec.Tenant.Description, &sec.Tenant.ClusterGroupUUID,
		&sec.Tenant.AttendeeLimit, &sec.Tenant.MeetingLimit, &sec.Tenant.RecordingEnabled,
		&sec.Tenant.RecordsHoldTime, &sec.Tenant.StatsToken,
	)
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// GetSecret resolves a (tenant slug, sub id) pair to its credential.
// sql.ErrNoRows means the tenant is unknown and the request must be
// rejected as unauthorized.
func (s *Store) GetSecret(ctx context.Context, tenantSlug string, subID int) (*Secret, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+secretColumns+`
		FROM secrets s JOIN tenants t ON t.uuid = s.tenant_uuid
		WHERE t.slug = $1 AND s.sub_id = $2`, tenantSlug, subID)
	return scanSecret(row)
}

// GetSecretByUUID loads a secret with its tenant.
func (s *Store) GetSecretByUUID(ctx context.Context, secretUUID uuid.UUID) (*Secret, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+secretColumns+`
		FROM secrets s JOIN tenants t ON t.uuid = s.tenant_uuid
		WHERE s.uuid = $1`, secretUUID)
	return scanSecret(row)
}

// GetTenantRootSecret returns the tenant's sub_id=0 secret, the
// aggregation point for tenant-wide counters.
func (s *Store) GetTenantRootSecret(ctx context.Context, tenantUUID uuid.UUID) (*Secret, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+secretColumns+`
		FROM secrets s JOIN tenants t ON t.uuid = s.tenant_uuid
		WHERE s.tenant_uuid = $1 AND s.sub_id = 0`, tenantUUID)
	return scanSecret(row)
}

// ListSecrets returns every secret joined with its tenant, ordered by
// slug and sub id.
func (s *Store) ListSecrets(ctx context.Context) ([]*Secret, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+secretColumns+`
		FROM secrets s JOIN tenants t ON t.uuid = s.tenant_uuid
		ORDER BY t.slug, s.sub_id`)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []*Secret
	for rows.Next() {
		sec, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, sec)
	}
	return secrets, rows.Err()
}

// ListSecretsForTenant returns a tenant's secrets ordered by sub id.
func (s *Store) ListSecretsForTenant(ctx context.Context, tenantUUID uuid.UUID) ([]*Secret, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+secretColumns+`
		FROM secrets s JOIN tenants t ON t.uuid = s.tenant_uuid
		WHERE s.tenant_uuid = $1
		ORDER BY s.sub_id`, tenantUUID)
	if err != nil {
		return nil, fmt.Errorf("list tenant secrets: %w", err)
	}
	defer rows.Close()

	var secrets []*Secret
	for rows.Next() {
		sec, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, sec)
	}
	return secrets, rows.Err()
}

// ListTenants returns every tenant.
func (s *Store) ListTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, slug, description, cluster_group_uuid,
		       attendee_limit, meeting_limit, recording_enabled, records_hold_time, stats_token
		FROM tenants ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.UUID, &t.Slug, &t.Description, &t.ClusterGroupUUID,
			&t.AttendeeLimit, &t.MeetingLimit, &t.RecordingEnabled, &t.RecordsHoldTime, &t.StatsToken); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// ListParameters returns a tenant's parameter rules.
func (s *Store) ListParameters(ctx context.Context, tenantUUID uuid.UUID) ([]Parameter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, tenant_uuid, parameter, mode, COALESCE(value, '')
		FROM parameters WHERE tenant_uuid = $1`, tenantUUID)
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	defer rows.Close()

	var params []Parameter
	for rows.Next() {
		var p Parameter
		if err := rows.Scan(&p.UUID, &p.TenantUUID, &p.Parameter, &p.Mode, &p.Value); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

// GetAsset loads the tenant's asset row; a nil asset means the tenant
// has none.
func (s *Store) GetAsset(ctx context.Context, tenantUUID uuid.UUID) (*Asset, error) {
	var (
		asset = Asset{TenantUUID: tenantUUID}

		slideBlob, logoBlob, cssBlob             []byte
		slideName, logoName, cssName             sql.NullString
		slideMimetype, logoMimetype, cssMimetype sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT slide_blob, slide_filename, slide_mimetype,
		       logo_blob, logo_filename, logo_mimetype,
		       custom_css_blob, custom_css_filename, custom_css_mimetype
		FROM assets WHERE tenant_uuid = $1`, tenantUUID).Scan(
		&slideBlob, &slideName, &slideMimetype,
		&logoBlob, &logoName, &logoMimetype,
		&cssBlob, &cssName, &cssMimetype,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}

	if len(slideBlob) > 0 {
		asset.Slide = &AssetFile{Blob: slideBlob, Filename: slideName.String, Mimetype: slideMimetype.String}
	}
	if len(logoBlob) > 0 {
		asset.Logo = &AssetFile{Blob: logoBlob, Filename: logoName.String, Mimetype: logoMimetype.String}
	}
	if len(cssBlob) > 0 {
		asset.CustomCSS = &AssetFile{Blob: cssBlob, Filename: cssName.String, Mimetype: cssMimetype.String}
	}
	return &asset, nil
}

// GetAssetBySlug loads an asset via the tenant slug for the serving
// endpoints.
func (s *Store) GetAssetBySlug(ctx context.Context, tenantSlug string) (*Asset, error) {
	var tenantUUID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid FROM tenants WHERE slug = $1`, tenantSlug).Scan(&tenantUUID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return s.GetAsset(ctx, tenantUUID)
}
