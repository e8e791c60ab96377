// Package backends provides database backend implementations.
package backends

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one schema step. Statements run in order inside a single
// transaction together with the version bump.
type migration struct {
	version    int
	statements []string
}

// LatestVersion is the newest schema version known to this build.
func LatestVersion(dialect string) int {
	m := migrationsFor(dialect)
	return m[len(m)-1].version
}

func migrationsFor(dialect string) []migration {
	if dialect == "postgres" {
		return postgresMigrations
	}
	return sqliteMigrations
}

var sqliteMigrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS invite_links (
				chat_id     INTEGER PRIMARY KEY,
				title       TEXT NOT NULL DEFAULT '',
				invite_link TEXT NOT NULL,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_invite_links_title ON invite_links(title)`,
		},
	},
}

var postgresMigrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS invite_links (
				chat_id     BIGINT PRIMARY KEY,
				title       TEXT NOT NULL DEFAULT '',
				invite_link TEXT NOT NULL,
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_invite_links_title ON invite_links(title)`,
		},
	},
}

// Migrator applies the versioned schema for one dialect.
type Migrator struct {
	db      *sql.DB
	dialect string
}

// NewMigrator creates a migrator for dialect ("sqlite" or "postgres").
func NewMigrator(db *sql.DB, dialect string) *Migrator {
	return &Migrator{db: db, dialect: dialect}
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if m.dialect == "postgres" {
		ddl = `CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`
	}
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	return nil
}

// CurrentVersion returns the current schema version (0 for a fresh database).
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate applies pending migrations up to target (0 = latest).
func (m *Migrator) Migrate(ctx context.Context, target int) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if target == 0 {
		target = LatestVersion(m.dialect)
	}

	insert := "INSERT INTO schema_version (version) VALUES (?)"
	if m.dialect == "postgres" {
		insert = "INSERT INTO schema_version (version) VALUES ($1)"
	}

	for _, mig := range migrationsFor(m.dialect) {
		if mig.version <= current || mig.version > target {
			continue
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", mig.version, err)
		}
		for _, stmt := range mig.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", mig.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, insert, mig.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: record: %w", mig.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", mig.version, err)
		}
	}
	return nil
}

// NeedsMigration returns true if the schema is behind this build.
func (m *Migrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < LatestVersion(m.dialect), nil
}
