package backends

import (
	"context"
	"database/sql"
	"time"
)

// HealthChecker monitors database health.
type HealthChecker struct {
	db           *sql.DB
	versionQuery string
}

// NewHealthChecker creates a health checker that reports the result of
// versionQuery as the server version.
func NewHealthChecker(db *sql.DB, versionQuery string) *HealthChecker {
	return &HealthChecker{db: db, versionQuery: versionQuery}
}

// Ping checks database connectivity.
func (h *HealthChecker) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Status returns detailed health status.
func (h *HealthChecker) Status(ctx context.Context) map[string]any {
	start := time.Now()
	err := h.db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return map[string]any{
			"healthy": false,
			"error":   err.Error(),
			"latency": latency,
		}
	}

	var version string
	if err := h.db.QueryRowContext(ctx, h.versionQuery).Scan(&version); err != nil {
		version = "unknown"
	}

	stats := h.db.Stats()
	return map[string]any{
		"healthy":    true,
		"version":    version,
		"latency":    latency,
		"open_conns": stats.OpenConnections,
		"in_use":     stats.InUse,
		"idle":       stats.Idle,
	}
}
