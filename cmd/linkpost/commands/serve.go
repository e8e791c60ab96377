package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/linkpost/pkg/linkpost/bot"
	"github.com/jholhewres/linkpost/pkg/linkpost/channels/telegram"
	"github.com/jholhewres/linkpost/pkg/linkpost/composer"
	"github.com/jholhewres/linkpost/pkg/linkpost/config"
	"github.com/jholhewres/linkpost/pkg/linkpost/draft"
	"github.com/jholhewres/linkpost/pkg/linkpost/invites"
	"github.com/jholhewres/linkpost/pkg/linkpost/scheduler"
	"github.com/jholhewres/linkpost/pkg/linkpost/sitewatch"
)

// newServeCmd creates the `linkpost serve` command that starts the bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot",
		Long: `Connect to Telegram and process updates until interrupted.

Examples:
  linkpost serve
  linkpost serve --config ./config.yaml --verbose`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(os.Stdout, cfg.Logging, verbose)
	slog.SetDefault(logger)
	if path != "" {
		logger.Info("config loaded", "path", path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Invite link store ──
	store, err := invites.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	cache, err := invites.NewCache(store, cfg.Invites.MirrorSize, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("closing invite store", "error", err)
		}
	}()

	// ── Transport ──
	tg := telegram.New(cfg.Telegram, logger)
	if err := tg.Connect(ctx); err != nil {
		return err
	}

	// ── Engine ──
	drafts := draft.NewMemoryStore()
	comp := composer.New(drafts, tg, cache, cfg.Composer, logger)

	sched := scheduler.New(logger)
	if err := scheduleHealth(sched, logger, tg, cache); err != nil {
		_ = tg.Disconnect()
		return fmt.Errorf("scheduling health checks: %w", err)
	}
	var sites *sitewatch.Monitor
	if cfg.Sitewatch.Enabled {
		sites = sitewatch.New(cfg.Sitewatch, logger)
		if err := sites.Schedule(sched); err != nil {
			_ = tg.Disconnect()
			return err
		}
	}

	router := bot.New(bot.Deps{
		Transport: tg,
		Composer:  comp,
		Invites:   cache,
		Sites:     sites,
		AdminID:   cfg.AdminID,
		Name:      cfg.Name,
		Logger:    logger,
	})
	dispatcher := bot.NewDispatcher(cfg.Dispatch, router, logger)

	// ── Start ──
	if err := sched.Start(ctx); err != nil {
		_ = tg.Disconnect()
		return fmt.Errorf("starting scheduler: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx, tg.Receive()) })
	if sites != nil {
		// First round right away instead of one interval from now.
		g.Go(func() error { return sched.RunNow(sitewatch.JobID) })
	}

	logger.Info("linkpost running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"admin_id", cfg.AdminID,
		"backend", cfg.Database.Backend,
		"sitewatch", sites != nil,
	)
	if cfg.AdminID == 0 {
		logger.Warn("admin_id is not set; /invite and the site watch commands are disabled")
	}
	if err := reportHealth(ctx, logger, tg, cache); err != nil {
		logger.Warn("startup health check failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping...")

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		_ = tg.Disconnect()
		sched.Stop()
		if err := g.Wait(); err != nil {
			logger.Warn("worker exited with error", "error", err)
		}
		tg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete", "drafts_discarded", drafts.Len())
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}

// newLogger builds the slog handler selected by the logging section.
func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
