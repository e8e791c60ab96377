package draft

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idLength is the number of hex characters in a draft id. Together with the
// action encoding it stays well inside Telegram's 64-byte callback data.
const idLength = 12

// pointer remembers which draft a conversation's next free-form reply
// belongs to.
type pointer struct {
	draftID string
	kind    PromptKind
}

// MemoryStore keeps drafts in process memory. It is safe for concurrent use;
// callers get copies and commit changes through Save.
type MemoryStore struct {
	mu       sync.Mutex
	drafts   map[string]*Draft
	awaiting map[int64]pointer

	newID func() string
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts:   make(map[string]*Draft),
		awaiting: make(map[int64]pointer),
		newID:    randomID,
		now:      time.Now,
	}
}

func randomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
}

// Create registers a new draft for owner. Rows are copied; empty rows are
// skipped.
func (s *MemoryStore) Create(owner int64, content Content, rows []Row) *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, taken := s.drafts[id]; !taken {
			break
		}
		id = s.newID()
	}

	now := s.now()
	d := &Draft{
		ID:        id,
		Owner:     owner,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		d.Grid = append(d.Grid, append(Row(nil), row...))
	}
	s.drafts[id] = d
	return d.Clone()
}

// Get returns a copy of the draft with the given id.
func (s *MemoryStore) Get(id string) (*Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Save commits d and maintains the owner's awaiting pointer: a pending
// prompt takes the pointer over (clearing the prompt of the draft that held
// it) and a draft without a prompt releases a pointer it held.
func (s *MemoryStore) Save(d *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[d.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, d.ID)
	}

	stored := d.Clone()
	stored.UpdatedAt = s.now()
	s.drafts[d.ID] = stored

	p, held := s.awaiting[d.Owner]
	if d.Pending.Kind == PromptNone {
		if held && p.draftID == d.ID {
			delete(s.awaiting, d.Owner)
		}
		return nil
	}

	if held && p.draftID != d.ID {
		if prev, ok := s.drafts[p.draftID]; ok {
			prev.Pending = Prompt{}
		}
	}
	s.awaiting[d.Owner] = pointer{draftID: d.ID, kind: d.Pending.Kind}
	return nil
}

// Remove deletes a draft and any pointer referencing it.
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return
	}
	delete(s.drafts, id)
	if p, held := s.awaiting[d.Owner]; held && p.draftID == id {
		delete(s.awaiting, d.Owner)
	}
}

// Awaiting returns the draft the owner's next free-form reply belongs to.
// A pointer whose draft is gone or no longer carries the prompt is dropped.
func (s *MemoryStore) Awaiting(owner int64) (*Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, held := s.awaiting[owner]
	if !held {
		return nil, false
	}
	d, ok := s.drafts[p.draftID]
	if !ok || d.Pending.Kind != p.kind {
		delete(s.awaiting, owner)
		return nil, false
	}
	return d.Clone(), true
}

// Len returns the number of live drafts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}
