package database

import (
	"regexp"
	"strings"
	"testing"

	schema "github.com/DE-IBH/b3lb/internal/database/sql"
)

func tableDDL(t *testing.T, table string) string {
	t.Helper()
	entries, err := schema.Content.ReadDir("schema")
	if err != nil {
		t.Fatalf("read embedded schema: %v", err)
	}
	pattern := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` \(.*?\);`)
	for _, entry := range entries {
		ddl, err := schema.Content.ReadFile("schema/" + entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		if block := pattern.FindString(string(ddl)); block != "" {
			return block
		}
	}
	t.Fatalf("no CREATE TABLE block for %q in embedded schema", table)
	return ""
}

// The store's secret lookup selects these on every tenant resolution, so
// a column missing from the DDL breaks every authenticated request.
func TestSecretsTableCarriesStoreColumns(t *testing.T) {
	ddl := tableDDL(t, "secrets")
	for _, column := range []string{
		"uuid", "tenant_uuid", "sub_id", "secret", "secret2",
		"attendee_limit", "meeting_limit", "recording_enabled", "records_hold_time",
	} {
		if !strings.Contains(ddl, column) {
			t.Errorf("secrets DDL lacks column %q", column)
		}
	}
}

func TestTenantsTableCarriesStoreColumns(t *testing.T) {
	ddl := tableDDL(t, "tenants")
	for _, column := range []string{
		"uuid", "slug", "description", "cluster_group_uuid",
		"attendee_limit", "meeting_limit", "recording_enabled", "records_hold_time", "stats_token",
	} {
		if !strings.Contains(ddl, column) {
			t.Errorf("tenants DDL lacks column %q", column)
		}
	}
}
