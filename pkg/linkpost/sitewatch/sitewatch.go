// Package sitewatch polls a list of websites on a fixed interval and keeps
// the outcome of the latest probe of each one.
package sitewatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/linkpost/pkg/linkpost/scheduler"
)

// JobID is the scheduler job that drives the probes.
const JobID = "sitewatch"

// TimeLayout formats probe times.
const TimeLayout = "2006-01-02 15:04:05"

// maxParallelProbes bounds concurrent requests within one round.
const maxParallelProbes = 8

// Config configures the monitor.
type Config struct {
	Enabled  bool          `yaml:"enabled" env:"LINKPOST_SITEWATCH_ENABLED"`
	Interval time.Duration `yaml:"interval" env:"LINKPOST_SITEWATCH_INTERVAL"`
	Timeout  time.Duration `yaml:"timeout" env:"LINKPOST_SITEWATCH_TIMEOUT"`
	Sites    []string      `yaml:"sites" env:"LINKPOST_SITEWATCH_SITES" envSeparator:","`
}

// DefaultConfig returns the default monitor settings.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Interval: 10 * time.Second,
		Timeout:  8 * time.Second,
		Sites:    []string{"https://google.com"},
	}
}

// Status is the outcome of the latest probe of a site. Zero times mean the
// site has not been probed yet.
type Status struct {
	Site       string
	LastStatus string
	LastOpen   time.Time
	NextOpen   time.Time
}

// Monitor holds the watched sites and their latest status.
type Monitor struct {
	mu     sync.RWMutex
	sites  []string
	status map[string]Status

	client   *http.Client
	interval time.Duration
	sched    *scheduler.Scheduler
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Monitor seeded with cfg.Sites.
func New(cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	m := &Monitor{
		status:   make(map[string]Status),
		client:   &http.Client{Timeout: cfg.Timeout},
		interval: cfg.Interval,
		now:      time.Now,
		logger:   logger.With("component", "sitewatch"),
	}
	for _, s := range cfg.Sites {
		m.Add(s)
	}
	return m
}

// Add appends url to the watch list. It reports false if url is empty or
// already watched.
func (m *Monitor) Add(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.sites, url) {
		return false
	}
	m.sites = append(m.sites, url)
	m.logger.Info("site added", "url", url)
	return true
}

// Remove drops url and its status. It reports false if url was not watched.
func (m *Monitor) Remove(url string) bool {
	url = strings.TrimSpace(url)
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.sites, url)
	if i < 0 {
		return false
	}
	m.sites = slices.Delete(m.sites, i, i+1)
	delete(m.status, url)
	m.logger.Info("site removed", "url", url)
	return true
}

// Sites returns the watch list in insertion order.
func (m *Monitor) Sites() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sites)
}

// Statuses returns one entry per watched site in insertion order.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.sites))
	for _, site := range m.sites {
		st, ok := m.status[site]
		if !ok {
			st = Status{Site: site}
		}
		out = append(out, st)
	}
	sched := m.sched
	m.mu.RUnlock()

	if sched != nil {
		if next, ok := sched.NextRun(JobID); ok {
			for i := range out {
				if !out[i].LastOpen.IsZero() {
					out[i].NextOpen = next
				}
			}
		}
	}
	return out
}

// Schedule registers the periodic probe with s. Probing starts once s is
// started.
func (m *Monitor) Schedule(s *scheduler.Scheduler) error {
	err := s.Add(&scheduler.Job{
		ID:       JobID,
		Type:     "every",
		Schedule: m.interval.String(),
		Enabled:  true,
		Run: func(ctx context.Context, _ *scheduler.Job) error {
			return m.ProbeAll(ctx)
		},
	})
	if err != nil {
		return fmt.Errorf("sitewatch: scheduling probes: %w", err)
	}
	m.mu.Lock()
	m.sched = s
	m.mu.Unlock()
	return nil
}

// ProbeAll requests every watched site once, concurrently, and records the
// outcomes. Failed requests are recorded, not returned.
func (m *Monitor) ProbeAll(ctx context.Context) error {
	sites := m.Sites()
	started := m.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for _, site := range sites {
		g.Go(func() error {
			m.record(site, m.probe(gctx, site), started)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.logger.Debug("probe round complete", "sites", len(sites), "duration", m.now().Sub(started))
	return ctx.Err()
}

// probe returns "HTTP <code>" or "Error: <err>".
func (m *Monitor) probe(ctx context.Context, site string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site, nil)
	if err != nil {
		return "Error: " + err.Error()
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "Error: " + err.Error()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

// record stores a probe result unless the site was removed meanwhile.
func (m *Monitor) record(site, result string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.sites, site) {
		return
	}
	m.status[site] = Status{
		Site:       site,
		LastStatus: result,
		LastOpen:   at,
		NextOpen:   at.Add(m.interval),
	}
}

// FormatStatus renders the /status report.
func FormatStatus(statuses []Status) string {
	var b strings.Builder
	b.WriteString("Website status:\n")
	for _, st := range statuses {
		last := st.LastStatus
		if last == "" {
			last = "N/A"
		}
		fmt.Fprintf(&b, "%s:\n   Last Status: %s\n   Last Open: %s\n   Next Open: %s\n",
			st.Site, last, formatTime(st.LastOpen), formatTime(st.NextOpen))
	}
	return b.String()
}

// FormatSites renders the watch list.
func FormatSites(sites []string) string {
	return "Current websites:\n" + strings.Join(sites, "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(TimeLayout)
}
