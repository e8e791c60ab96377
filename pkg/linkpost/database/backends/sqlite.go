package backends

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend wraps the SQLite database connection with additional functionality.
type SQLiteBackend struct {
	DB     *sql.DB
	Config SQLiteConfig

	// Migrator handles schema migrations
	Migrator *Migrator

	// Health checker
	Health *HealthChecker
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path        string
	JournalMode string
	BusyTimeout int
}

// OpenSQLite opens or creates a SQLite database with the given configuration.
// The special path ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, config SQLiteConfig) (*SQLiteBackend, error) {
	if config.Path == "" {
		config.Path = "./data/linkpost.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5000
	}

	if config.Path != ":memory:" {
		dir := filepath.Dir(config.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=ON",
		config.Path, config.JournalMode, config.BusyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", config.Path, err)
	}
	// A single writer keeps SQLite free of lock contention, and an
	// in-memory database only exists on its one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteBackend{
		DB:       db,
		Config:   config,
		Migrator: NewMigrator(db, "sqlite"),
		Health:   NewHealthChecker(db, "SELECT sqlite_version()"),
	}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.DB.Close()
}
