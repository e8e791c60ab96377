package backends

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenSQLite(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "linkpost-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	backend, err := OpenSQLite(context.Background(), SQLiteConfig{
		Path: filepath.Join(tmpDir, "nested", "test.db"),
	})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer backend.Close()

	if err := backend.Health.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if backend.Config.JournalMode != "WAL" {
		t.Errorf("JournalMode = %q, want WAL", backend.Config.JournalMode)
	}
}

func TestMigrator_StepsAndLatest(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenSQLite(ctx, SQLiteConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer backend.Close()

	m := backend.Migrator
	if v, err := m.CurrentVersion(ctx); err != nil || v != 0 {
		t.Fatalf("CurrentVersion() = %d, %v; want 0, nil", v, err)
	}

	if err := m.Migrate(ctx, 1); err != nil {
		t.Fatalf("Migrate(1) failed: %v", err)
	}
	if v, _ := m.CurrentVersion(ctx); v != 1 {
		t.Errorf("CurrentVersion() = %d, want 1", v)
	}
	if needs, _ := m.NeedsMigration(ctx); !needs {
		t.Error("NeedsMigration() = false at version 1")
	}

	if err := m.Migrate(ctx, 0); err != nil {
		t.Fatalf("Migrate(0) failed: %v", err)
	}
	if v, _ := m.CurrentVersion(ctx); v != LatestVersion("sqlite") {
		t.Errorf("CurrentVersion() = %d, want %d", v, LatestVersion("sqlite"))
	}

	_, err = backend.DB.ExecContext(ctx,
		"INSERT INTO invite_links (chat_id, title, invite_link) VALUES (?, ?, ?)", -100, "t", "https://t.me/+x")
	if err != nil {
		t.Fatalf("insert into invite_links: %v", err)
	}
}

func TestBuildPostgreSQLDSN(t *testing.T) {
	dsn := BuildPostgreSQLDSN(PostgreSQLConfig{
		Host: "db", Port: 5433, User: "bot", Password: "pw", Database: "linkpost", SSLMode: "require",
	})
	for _, part := range []string{"host=db", "port=5433", "user=bot", "password=pw", "dbname=linkpost", "sslmode=require"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN %q missing %q", dsn, part)
		}
	}
}
