package backends

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// PostgreSQLBackend wraps the PostgreSQL database connection.
type PostgreSQLBackend struct {
	DB     *sql.DB
	Config PostgreSQLConfig

	// Migrator handles schema migrations
	Migrator *Migrator

	// Health checker
	Health *HealthChecker

	logger *slog.Logger
}

// PostgreSQLConfig holds PostgreSQL-specific configuration.
type PostgreSQLConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgreSQL opens a PostgreSQL database connection.
func OpenPostgreSQL(ctx context.Context, config PostgreSQLConfig, logger *slog.Logger) (*PostgreSQLBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Set defaults
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("pgx", BuildPostgreSQLDSN(config))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	// Verify connectivity with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Debug("postgresql connected", "host", config.Host, "database", config.Database)

	return &PostgreSQLBackend{
		DB:       db,
		Config:   config,
		Migrator: NewMigrator(db, "postgres"),
		Health:   NewHealthChecker(db, "SELECT version()"),
		logger:   logger,
	}, nil
}

// BuildPostgreSQLDSN builds the keyword/value connection string.
func BuildPostgreSQLDSN(config PostgreSQLConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode)
}

// Close closes the database connection.
func (b *PostgreSQLBackend) Close() error {
	return b.DB.Close()
}
