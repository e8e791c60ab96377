package commands

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/config"
	"github.com/jholhewres/linkpost/pkg/linkpost/database"
	"github.com/jholhewres/linkpost/pkg/linkpost/invites"
	"github.com/jholhewres/linkpost/pkg/linkpost/scheduler"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"}, false)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	l = newLogger(&buf, config.LoggingConfig{Level: "error", Format: "text"}, true)
	assert.True(t, l.Enabled(t.Context(), slog.LevelDebug))
	l.Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
}

func TestRunSetupWritesConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	input := strings.Join([]string{
		"MyBot",   // name
		"12345",   // admin id
		"sqlite",  // backend
		"./lp.db", // sqlite path
		"n",       // site watch
		"n",       // keyring
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runSetup(bufio.NewReader(strings.NewReader(input)), &out, path))
	assert.Contains(t, out.String(), "Configuration written to")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := config.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "MyBot", cfg.Name)
	assert.Equal(t, int64(12345), cfg.AdminID)
	assert.Equal(t, database.BackendSQLite, cfg.Database.Backend)
	assert.Equal(t, "./lp.db", cfg.Database.SQLite.Path)
	assert.False(t, cfg.Sitewatch.Enabled)
}

func TestRunSetupRejectsBadInput(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := runSetup(bufio.NewReader(strings.NewReader("\nnot-a-number\n")), &bytes.Buffer{}, path)
	assert.Error(t, err)

	err = runSetup(bufio.NewReader(strings.NewReader("\n\nredis\n")), &bytes.Buffer{}, path)
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()
	root := NewRootCmd("test")
	for _, name := range []string{"serve", "invites", "config", "token", "setup"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
}

type fakeChannel struct{ connected bool }

func (f fakeChannel) IsConnected() bool { return f.connected }

func (f fakeChannel) Health() channels.HealthStatus {
	return channels.HealthStatus{Connected: f.connected, ErrorCount: 2}
}

type fakeStoreHealth map[string]database.HealthStatus

func (f fakeStoreHealth) Health(context.Context) map[string]database.HealthStatus { return f }

func TestReportHealth(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Format: "json"}, false)

	err := reportHealth(t.Context(), logger, fakeChannel{connected: true}, invites.NewMemoryStore())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"telegram health"`)
	assert.Contains(t, buf.String(), `"backend":"memory"`)

	buf.Reset()
	err = reportHealth(t.Context(), logger, fakeChannel{}, fakeStoreHealth{
		"primary": {Error: "database is locked"},
		"replica": {Healthy: true, Latency: time.Millisecond},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, channels.ErrChannelDisconnected)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NotContains(t, err.Error(), "replica")
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestScheduleHealth(t *testing.T) {
	t.Parallel()

	logger := newLogger(&bytes.Buffer{}, config.LoggingConfig{}, false)
	sched := scheduler.New(logger)
	require.NoError(t, scheduleHealth(sched, logger, fakeChannel{}, invites.NewMemoryStore()))

	require.NoError(t, sched.RunNow(healthJobID))
	job, ok := sched.Get(healthJobID)
	require.True(t, ok)
	assert.Equal(t, 1, job.RunCount)
	assert.Equal(t, channels.ErrChannelDisconnected.Error(), job.LastError)
}
