package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaStatements returns the DDL for the analysis tables, in creation order
func SchemaStatements(tables *TableNames, prefix string) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Sessions + ` (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_active BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Messages + ` (
			seq BIGSERIAL UNIQUE,
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			session_id UUID NOT NULL REFERENCES ` + tables.Sessions + `(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			attachments JSONB,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Templates + ` (
			id TEXT PRIMARY KEY,
			title VARCHAR(120) NOT NULL,
			category VARCHAR(60) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			contextual_fields JSONB,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `analysis_sessions_user_activity ON ` + tables.Sessions + `(user_id, last_activity DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_` + prefix + `analysis_sessions_one_active ON ` + tables.Sessions + `(user_id) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `analysis_messages_session ON ` + tables.Messages + `(session_id, seq)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_` + prefix + `prompt_templates_title ON ` + tables.Templates + `(lower(title))`,
	}
}

// EnsureSchema creates missing tables and indexes
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames, prefix string) error {
	for _, stmt := range SchemaStatements(tables, prefix) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("run schema: %w", err)
		}
	}
	return nil
}

// DropTables drops the analysis tables, dependents first
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, table := range []string{tables.Messages, tables.Sessions, tables.Templates} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
