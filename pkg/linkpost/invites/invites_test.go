package invites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/linkpost/pkg/linkpost/database"
)

// failingStore rejects every write.
type failingStore struct{ *MemoryStore }

func (f *failingStore) Upsert(context.Context, Record) error { return errors.New("disk full") }

func newCache(t *testing.T, s Store) *Cache {
	t.Helper()
	c, err := NewCache(s, 8, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

func TestCacheUpsertIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCache(t, NewMemoryStore())

	require.NoError(t, c.Upsert(ctx, -100, "Chan", "https://t.me/+a"))
	require.NoError(t, c.Upsert(ctx, -100, "Chan", "https://t.me/+a"))

	records, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://t.me/+a", records[0].InviteLink)
}

func TestCacheLatestWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCache(t, NewMemoryStore())

	require.NoError(t, c.Upsert(ctx, -100, "Old", "https://t.me/+a"))
	require.NoError(t, c.Upsert(ctx, -100, "New", "https://t.me/+b"))

	r, ok := c.Lookup(-100)
	require.True(t, ok)
	assert.Equal(t, "New", r.Title)
	assert.Equal(t, "https://t.me/+b", r.InviteLink)

	records, _ := c.ListAll(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, "https://t.me/+b", records[0].InviteLink)
}

func TestCacheUnknownTitle(t *testing.T) {
	t.Parallel()
	c := newCache(t, NewMemoryStore())

	require.NoError(t, c.Upsert(context.Background(), -1, "  ", "https://t.me/+x"))
	r, _ := c.Lookup(-1)
	if r.Title != UnknownTitle {
		t.Errorf("Title = %q, want %q", r.Title, UnknownTitle)
	}
}

func TestCacheMirrorUpdatedOnStoreFailure(t *testing.T) {
	t.Parallel()
	c := newCache(t, &failingStore{MemoryStore: NewMemoryStore()})

	err := c.Upsert(context.Background(), -100, "Chan", "https://t.me/+a")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Upsert() error = %v, want the store error", err)
	}
	if _, ok := c.Lookup(-100); !ok {
		t.Error("mirror was not updated after a store failure")
	}
}

func TestCacheConcurrentUpserts(t *testing.T) {
	t.Parallel()

	const chats = 32
	c, err := NewCache(NewMemoryStore(), chats, nil)
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := range chats {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			for round := range 10 {
				link := fmt.Sprintf("https://t.me/+%d-%d", -chatID, round)
				assert.NoError(t, c.Upsert(context.Background(), chatID, fmt.Sprintf("chat %d", -chatID), link))
				r, ok := c.Lookup(chatID)
				if assert.True(t, ok) {
					assert.Equal(t, chatID, r.ChatID)
				}
			}
		}(int64(-1000 - i))
	}
	wg.Wait()

	records, err := c.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, chats)
	for _, r := range records {
		assert.Equal(t, fmt.Sprintf("https://t.me/+%d-9", -r.ChatID), r.InviteLink)
		assert.Equal(t, fmt.Sprintf("chat %d", -r.ChatID), r.Title)
	}
}

func TestCacheRejectsInvalidRecords(t *testing.T) {
	t.Parallel()
	c := newCache(t, NewMemoryStore())

	if err := c.Upsert(context.Background(), 0, "x", "https://t.me/+a"); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("zero chat id error = %v, want ErrInvalidRecord", err)
	}
	if err := c.Upsert(context.Background(), -1, "x", ""); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("empty link error = %v, want ErrInvalidRecord", err)
	}
}

func TestListAllSorted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCache(t, NewMemoryStore())

	require.NoError(t, c.Upsert(ctx, -3, "beta", "https://t.me/+3"))
	require.NoError(t, c.Upsert(ctx, -2, "alpha", "https://t.me/+2"))
	require.NoError(t, c.Upsert(ctx, -1, "alpha", "https://t.me/+1"))

	records, err := c.ListAll(ctx)
	require.NoError(t, err)
	got := []int64{records[0].ChatID, records[1].ChatID, records[2].ChatID}
	assert.Equal(t, []int64{-2, -1, -3}, got)
}

func TestFormatRecords(t *testing.T) {
	t.Parallel()

	got := FormatRecords([]Record{
		{ChatID: -100, Title: "News", InviteLink: "https://t.me/+a"},
		{ChatID: -200, Title: "Chat", InviteLink: "https://t.me/+b"},
	})
	want := "News (-100) -> https://t.me/+a\nChat (-200) -> https://t.me/+b"
	if got != want {
		t.Errorf("FormatRecords() = %q, want %q", got, want)
	}
}

func TestSplitChunks(t *testing.T) {
	t.Parallel()

	if got := SplitChunks("", 10); got != nil {
		t.Errorf("SplitChunks(\"\") = %v, want nil", got)
	}

	got := SplitChunks("aaaa\nbbbb\ncc", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cc"}, got)

	long := strings.Repeat("é", 25)
	got = SplitChunks(long, 10)
	require.Len(t, got, 3)
	for _, c := range got {
		if n := utf8.RuneCountInString(c); n > 10 {
			t.Errorf("chunk has %d runes, want <= 10", n)
		}
	}
	assert.Equal(t, long, strings.Join(got, ""))

	// Astral-plane runes take two UTF-16 code units each.
	emoji := strings.Repeat("😀", 25)
	got = SplitChunks(emoji, 10)
	require.Len(t, got, 5)
	for _, c := range got {
		assert.Equal(t, 10, utf16Len(c))
	}
	assert.Equal(t, emoji, strings.Join(got, ""))

	assert.Equal(t, []string{"😀", "😀"}, SplitChunks("😀😀", 1))
}

func TestSplitChunksTelegramLimit(t *testing.T) {
	t.Parallel()

	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, "Channel 📣🎉 title (-1001234567890) -> https://t.me/+abcdefghijklmnop")
	}
	text := strings.Join(lines, "\n")
	chunks := SplitChunks(text, MaxMessageLength)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if n := utf16Len(c); n > MaxMessageLength {
			t.Errorf("chunk %d has %d UTF-16 units, limit is %d", i, n, MaxMessageLength)
		}
		assert.False(t, strings.HasSuffix(c, "\n"))
	}
	assert.Equal(t, strings.ReplaceAll(text, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""))
}

// ---------- SQL store ----------

func TestSQLStoreSQLite(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "linkpost-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := database.DefaultHubConfig()
	cfg.SQLite.Path = filepath.Join(tmpDir, "invites.db")

	ctx := context.Background()
	store, err := OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, Record{ChatID: -100, Title: "A", InviteLink: "https://t.me/+1", UpdatedAt: ts}))
	require.NoError(t, store.Upsert(ctx, Record{ChatID: -100, Title: "A2", InviteLink: "https://t.me/+2", UpdatedAt: ts}))
	require.NoError(t, store.Upsert(ctx, Record{ChatID: -200, Title: "B", InviteLink: "https://t.me/+3", UpdatedAt: ts}))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(-100), records[0].ChatID)
	assert.Equal(t, "A2", records[0].Title)
	assert.Equal(t, "https://t.me/+2", records[0].InviteLink)
	assert.True(t, records[0].UpdatedAt.Equal(ts), "UpdatedAt = %v", records[0].UpdatedAt)

	health := store.Health(ctx)
	require.Contains(t, health, "primary")
	assert.True(t, health["primary"].Healthy)
	assert.NotEmpty(t, health["primary"].Version)
}

func TestSQLStoreHealthWithoutHub(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "plain.db"))
	require.NoError(t, err)
	defer db.Close()

	health := NewSQLStore(db, "sqlite3").Health(context.Background())
	require.Contains(t, health, "sqlite3")
	assert.True(t, health["sqlite3"].Healthy)

	require.NoError(t, db.Close())
	health = NewSQLStore(db, "sqlite3").Health(context.Background())
	assert.False(t, health["sqlite3"].Healthy)
	assert.NotEmpty(t, health["sqlite3"].Error)
}

func TestSQLStoreSurvivesReopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "linkpost-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := database.DefaultHubConfig()
	cfg.SQLite.Path = filepath.Join(tmpDir, "invites.db")
	ctx := context.Background()

	first, err := OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.Upsert(ctx, Record{ChatID: -1, Title: "T", InviteLink: "https://t.me/+x", UpdatedAt: time.Now().UTC()}))
	require.NoError(t, first.Close())

	second, err := OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer second.Close()

	records, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()

	cfg := database.DefaultHubConfig()
	cfg.Backend = database.BackendMemory
	s, err := OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("memory backend opened %T", s)
	}
	assert.True(t, s.Health(ctx)["memory"].Healthy)

	cfg.Backend = database.BackendMongoDB
	cfg.MongoDB.URI = ""
	if _, err := OpenStore(ctx, cfg, nil); err == nil {
		t.Error("mongodb without a uri succeeded")
	}

	cfg.Backend = "oracle"
	if _, err := OpenStore(ctx, cfg, nil); err == nil {
		t.Error("unknown backend succeeded")
	}
}
