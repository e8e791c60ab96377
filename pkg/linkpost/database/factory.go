package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/linkpost/pkg/linkpost/database/backends"
)

// SQLiteFactory creates SQLite backends.
type SQLiteFactory struct{}

// Create creates a new SQLite backend with the given configuration.
func (f *SQLiteFactory) Create(ctx context.Context, config Config) (*Backend, error) {
	if config.Type != BackendSQLite {
		return nil, fmt.Errorf("sqlite factory cannot create %s backend", config.Type)
	}

	b, err := backends.OpenSQLite(ctx, backends.SQLiteConfig{
		Path:        config.Path,
		JournalMode: config.JournalMode,
		BusyTimeout: config.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Backend{
		Type:     BackendSQLite,
		DB:       b.DB,
		Config:   config,
		Migrator: b.Migrator,
		Health:   &healthWrapper{b.Health},
	}, nil
}

// Supports returns true for SQLite backend type.
func (f *SQLiteFactory) Supports(backendType BackendType) bool {
	return backendType == BackendSQLite
}

// PostgreSQLFactory creates PostgreSQL backends.
type PostgreSQLFactory struct {
	logger *slog.Logger
}

// NewPostgreSQLFactory creates a new PostgreSQL factory.
func NewPostgreSQLFactory(logger *slog.Logger) *PostgreSQLFactory {
	return &PostgreSQLFactory{logger: logger}
}

// Create creates a new PostgreSQL backend with the given configuration.
func (f *PostgreSQLFactory) Create(ctx context.Context, config Config) (*Backend, error) {
	if config.Type != BackendPostgreSQL {
		return nil, fmt.Errorf("postgresql factory cannot create %s backend", config.Type)
	}

	b, err := backends.OpenPostgreSQL(ctx, backends.PostgreSQLConfig{
		Host:            config.Host,
		Port:            config.Port,
		Database:        config.Database,
		User:            config.User,
		Password:        config.Password,
		SSLMode:         config.SSLMode,
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
	}, f.logger)
	if err != nil {
		return nil, err
	}

	return &Backend{
		Type:     BackendPostgreSQL,
		DB:       b.DB,
		Config:   config,
		Migrator: b.Migrator,
		Health:   &healthWrapper{b.Health},
	}, nil
}

// Supports returns true for PostgreSQL backend type.
func (f *PostgreSQLFactory) Supports(backendType BackendType) bool {
	return backendType == BackendPostgreSQL
}

// healthWrapper adapts the backends health map to HealthStatus.
type healthWrapper struct {
	h *backends.HealthChecker
}

func (w *healthWrapper) Ping(ctx context.Context) error {
	return w.h.Ping(ctx)
}

func (w *healthWrapper) Status(ctx context.Context) HealthStatus {
	status := w.h.Status(ctx)
	latency, _ := status["latency"].(time.Duration)
	return HealthStatus{
		Healthy:         extractBool(status, "healthy"),
		Version:         extractString(status, "version"),
		Error:           extractString(status, "error"),
		Latency:         latency,
		OpenConnections: extractInt(status, "open_conns"),
		InUse:           extractInt(status, "in_use"),
		Idle:            extractInt(status, "idle"),
	}
}

// Helper functions for extracting values from map[string]any

func extractBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func extractString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func extractInt(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
