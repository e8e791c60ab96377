package invites

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jholhewres/linkpost/pkg/linkpost/database"
)

// SQLStore keeps invite records in the invite_links table. It works with
// both SQLite and PostgreSQL; placeholders are rebound per driver.
type SQLStore struct {
	db *sqlx.DB

	// closer releases whatever the store was opened from; nil when the
	// caller owns the connection.
	closer func() error

	// status reports the hub's backends; nil falls back to a plain ping.
	status func(ctx context.Context) map[string]database.HealthStatus
}

// NewSQLStore wraps an open connection for driverName ("sqlite3" or "pgx").
// The caller keeps ownership of db.
func NewSQLStore(db *sql.DB, driverName string) *SQLStore {
	return &SQLStore{db: sqlx.NewDb(db, driverName)}
}

const upsertSQL = `INSERT INTO invite_links (chat_id, title, invite_link, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (chat_id) DO UPDATE SET
	title = excluded.title,
	invite_link = excluded.invite_link,
	updated_at = excluded.updated_at`

// Upsert inserts or replaces the record for r.ChatID.
func (s *SQLStore) Upsert(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(upsertSQL), r.ChatID, r.Title, r.InviteLink, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert invite link: %w", err)
	}
	return nil
}

// List returns every record.
func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.db.SelectContext(ctx, &records,
		`SELECT chat_id, title, invite_link, updated_at FROM invite_links ORDER BY title, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list invite links: %w", err)
	}
	return records, nil
}

// Health reports the hub's backends, or pings the wrapped connection.
func (s *SQLStore) Health(ctx context.Context) map[string]database.HealthStatus {
	if s.status != nil {
		return s.status(ctx)
	}
	start := time.Now()
	err := s.db.PingContext(ctx)
	status := database.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Version: s.db.DriverName()}
	if err != nil {
		status.Error = err.Error()
	}
	stats := s.db.Stats()
	status.OpenConnections, status.InUse, status.Idle = stats.OpenConnections, stats.InUse, stats.Idle
	return map[string]database.HealthStatus{s.db.DriverName(): status}
}

// Close releases the connection when the store owns it.
func (s *SQLStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
