package invites

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jholhewres/linkpost/pkg/linkpost/database"
)

// OpenStore opens the store selected by cfg.Backend. SQL backends go through
// the database hub and are migrated before use.
func OpenStore(ctx context.Context, cfg database.HubConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Effective()

	switch cfg.Backend {
	case database.BackendMemory:
		logger.Warn("invites: using in-memory store, links are lost on restart")
		return NewMemoryStore(), nil

	case database.BackendMongoDB:
		s, err := OpenMongoStore(ctx, MongoConfig{
			URI:        cfg.MongoDB.URI,
			Database:   cfg.MongoDB.Database,
			Collection: cfg.MongoDB.Collection,
			Timeout:    cfg.MongoDB.Timeout,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("invites: mongodb store opened",
			"database", cfg.MongoDB.Database, "collection", cfg.MongoDB.Collection)
		return s, nil

	case database.BackendSQLite, database.BackendPostgreSQL:
		hub, err := database.NewHub(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("invites: opening database: %w", err)
		}
		if err := hub.Migrate(ctx, "", 0); err != nil {
			hub.Close()
			return nil, fmt.Errorf("invites: migrating database: %w", err)
		}
		driver := "sqlite3"
		if cfg.Backend == database.BackendPostgreSQL {
			driver = "pgx"
		}
		s := NewSQLStore(hub.DB(), driver)
		s.closer = hub.Close
		s.status = hub.Status
		return s, nil
	}
	return nil, fmt.Errorf("invites: unsupported backend %q", cfg.Backend)
}
