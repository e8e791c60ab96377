// Package invites records the invite links issued for every chat a post was
// delivered into. Writes go through to a durable Store; a bounded LRU
// mirror serves point lookups and listings always read the store.
package invites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf16"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jholhewres/linkpost/pkg/linkpost/database"
)

// UnknownTitle is recorded when a chat title cannot be resolved.
const UnknownTitle = "Unknown Title"

// DefaultMirrorSize bounds the in-process mirror.
const DefaultMirrorSize = 1024

// ErrInvalidRecord is returned for records without a chat or a link.
var ErrInvalidRecord = errors.New("invites: invalid record")

// Record is the invite link issued for one chat. One record per ChatID.
type Record struct {
	ChatID     int64     `db:"chat_id" bson:"channel_id"`
	Title      string    `db:"title" bson:"title"`
	InviteLink string    `db:"invite_link" bson:"invite_link"`
	UpdatedAt  time.Time `db:"updated_at" bson:"updated_at"`
}

func (r Record) validate() error {
	if r.ChatID == 0 {
		return fmt.Errorf("%w: missing chat id", ErrInvalidRecord)
	}
	if r.InviteLink == "" {
		return fmt.Errorf("%w: missing invite link for %d", ErrInvalidRecord, r.ChatID)
	}
	return nil
}

// Store persists invite records.
type Store interface {
	// Upsert inserts or replaces the record for r.ChatID.
	Upsert(ctx context.Context, r Record) error

	// List returns every record.
	List(ctx context.Context) ([]Record, error)

	// Health reports the state of every connection behind the store,
	// keyed by backend name.
	Health(ctx context.Context) map[string]database.HealthStatus

	// Close releases the store.
	Close() error
}

// Cache is the write-through invite link cache.
type Cache struct {
	store  Store
	mirror *lru.Cache[int64, Record]
	logger *slog.Logger
	now    func() time.Time
}

// NewCache wraps store with a mirror of at most size entries.
func NewCache(store Store, size int, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultMirrorSize
	}
	mirror, err := lru.New[int64, Record](size)
	if err != nil {
		return nil, fmt.Errorf("invites: creating mirror: %w", err)
	}
	return &Cache{
		store:  store,
		mirror: mirror,
		logger: logger.With("component", "invites"),
		now:    time.Now,
	}, nil
}

// Upsert records the link for chatID. The mirror is updated even when the
// store write fails; the store error is returned.
func (c *Cache) Upsert(ctx context.Context, chatID int64, title, link string) error {
	if strings.TrimSpace(title) == "" {
		title = UnknownTitle
	}
	r := Record{ChatID: chatID, Title: title, InviteLink: link, UpdatedAt: c.now().UTC()}
	if err := r.validate(); err != nil {
		return err
	}

	c.mirror.Add(chatID, r)

	if err := c.store.Upsert(ctx, r); err != nil {
		c.logger.Error("invite link not persisted", "chat_id", chatID, "error", err)
		return fmt.Errorf("invites: persisting %d: %w", chatID, err)
	}
	c.logger.Info("invite link recorded", "chat_id", chatID, "title", title)
	return nil
}

// Lookup reads the mirror.
func (c *Cache) Lookup(chatID int64) (Record, bool) {
	return c.mirror.Get(chatID)
}

// ListAll reads every record from the store, sorted by title then chat id.
func (c *Cache) ListAll(ctx context.Context) ([]Record, error) {
	records, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("invites: listing: %w", err)
	}
	SortRecords(records)
	return records, nil
}

// Health reports the underlying store's health.
func (c *Cache) Health(ctx context.Context) map[string]database.HealthStatus {
	return c.store.Health(ctx)
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// SortRecords orders records by title, then chat id.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Title != records[j].Title {
			return records[i].Title < records[j].Title
		}
		return records[i].ChatID < records[j].ChatID
	})
}

// FormatRecords renders one "title (id) -> link" line per record.
func FormatRecords(records []Record) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%d) -> %s", r.Title, r.ChatID, r.InviteLink)
	}
	return b.String()
}

// MaxMessageLength is Telegram's text message limit in UTF-16 code units.
const MaxMessageLength = 4096

// SplitChunks cuts text into pieces of at most size UTF-16 code units,
// preferring line boundaries.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		size = MaxMessageLength
	}
	if text == "" {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf16Len(line)
		if curLen+n <= size {
			cur.WriteString(line)
			curLen += n
			continue
		}
		flush()
		for n > size {
			head, units := cutUnits(line, size)
			chunks = append(chunks, head)
			line = line[len(head):]
			n -= units
		}
		cur.WriteString(line)
		curLen = n
	}
	flush()

	for i, c := range chunks {
		chunks[i] = strings.TrimSuffix(c, "\n")
	}
	return chunks
}

// cutUnits returns the longest prefix of s within size UTF-16 code units,
// never splitting a rune and never empty.
func cutUnits(s string, size int) (string, int) {
	units := 0
	for i, r := range s {
		n := runeUnits(r)
		if units+n > size && i > 0 {
			return s[:i], units
		}
		units += n
	}
	return s, units
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}
