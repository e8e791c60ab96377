package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/database"
	"github.com/jholhewres/linkpost/pkg/linkpost/scheduler"
)

// healthJobID is the scheduler job that logs component health.
const healthJobID = "health"

// healthInterval is how often the health job runs.
const healthInterval = "5m"

type channelHealth interface {
	IsConnected() bool
	Health() channels.HealthStatus
}

type storeHealth interface {
	Health(ctx context.Context) map[string]database.HealthStatus
}

// reportHealth logs the transport and store state. It returns an error
// naming every unhealthy component.
func reportHealth(ctx context.Context, logger *slog.Logger, ch channelHealth, store storeHealth) error {
	var errs []error

	h := ch.Health()
	if ch.IsConnected() {
		logger.Info("telegram health",
			"connected", true,
			"errors", h.ErrorCount,
			"last_message_at", h.LastMessageAt,
		)
	} else {
		logger.Warn("telegram health", "connected", false, "errors", h.ErrorCount)
		errs = append(errs, channels.ErrChannelDisconnected)
	}

	status := store.Health(ctx)
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := status[name]
		if st.Healthy {
			logger.Info("database health",
				"backend", name,
				"version", st.Version,
				"latency", st.Latency,
				"open_connections", st.OpenConnections,
			)
			continue
		}
		logger.Warn("database health", "backend", name, "error", st.Error)
		errs = append(errs, fmt.Errorf("database %q unhealthy: %s", name, st.Error))
	}
	return errors.Join(errs...)
}

// scheduleHealth registers the periodic health job.
func scheduleHealth(sched *scheduler.Scheduler, logger *slog.Logger, ch channelHealth, store storeHealth) error {
	return sched.Add(&scheduler.Job{
		ID:       healthJobID,
		Type:     "every",
		Schedule: healthInterval,
		Enabled:  true,
		Run: func(ctx context.Context, _ *scheduler.Job) error {
			return reportHealth(ctx, logger, ch, store)
		},
	})
}
