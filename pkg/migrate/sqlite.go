package migrate

import (
	"context"
	_ "embed"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for local runs and tests on sqlite,
// which cannot execute the Postgres DDL (gen_random_uuid, partial indexes, jsonb).
//
//go:embed sqlite/schema.sql
var sqliteSchema string

// ApplySQLiteSchema creates every table on a sqlite connection. It is idempotent.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.WithContext(ctx).Exec(sqliteSchema).Error; err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
