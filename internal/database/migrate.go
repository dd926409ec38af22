package database

import (
	"context"
	"fmt"
	"sort"

	schema "github.com/DE-IBH/b3lb/internal/database/sql"
	"github.com/DE-IBH/b3lb/internal/logging"
)

// ApplySchema executes the embedded schema files in lexical order.
// Every statement is idempotent (IF NOT EXISTS), so repeated boots are safe.
func ApplySchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	entries, err := schema.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := schema.Content.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Debug("Applied schema file")
	}

	logger.WithField("files", len(names)).Info("Database schema applied")
	return nil
}
