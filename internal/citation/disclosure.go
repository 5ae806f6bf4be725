// Package citation holds the collapsible source list attached to assistant answers.
//
// Each assistant entry that carries sources gets its own Disclosure. Disclosures are looked up
// by entry id, so inserting or clearing entries never moves open state from one answer to
// another.
package citation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/patrickmn/go-cache"
)

// Disclosure is the open/closed state of one entry's source list. It starts closed.
type Disclosure struct {
	entryID uuid.UUID
	sources []model.SourceReference
	open    bool
}

func New(entry model.TranscriptEntry) *Disclosure {
	return &Disclosure{
		entryID: entry.ID,
		sources: entry.Sources,
	}
}

func (d *Disclosure) EntryID() uuid.UUID {
	return d.entryID
}

func (d *Disclosure) Open() bool {
	return d.open
}

func (d *Disclosure) Toggle() bool {
	d.open = !d.open
	return d.open
}

func (d *Disclosure) Len() int {
	return len(d.sources)
}

func (d *Disclosure) Sources() []model.SourceReference {
	return d.sources
}

// Board keeps the disclosures of every rendered entry. State that was not touched for the
// retention period is dropped together with the conversation it belonged to.
type Board struct {
	mu          sync.Mutex
	disclosures *cache.Cache
}

// NewBoard creates a board. A retention of zero keeps state until Forget is called.
func NewBoard(retention time.Duration) *Board {
	expiration := cache.NoExpiration
	var cleanupInterval time.Duration
	if retention > 0 {
		expiration = retention
		cleanupInterval = retention
	}
	return &Board{
		disclosures: cache.New(expiration, cleanupInterval),
	}
}

// Mount returns the disclosure of entry, creating a closed one on first use.
// Entries without sources have no disclosure.
func (b *Board) Mount(entry model.TranscriptEntry) (*Disclosure, bool) {
	if !entry.IsAssistant() || !entry.HasSources() {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mount(entry), true
}

// IsOpen reports whether entryID's source list is expanded.
func (b *Board) IsOpen(entryID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, ok := b.disclosures.Get(entryID.String())
	if !ok {
		return false
	}
	return raw.(*Disclosure).Open()
}

// Toggle flips the state of entry's disclosure and returns the new state.
func (b *Board) Toggle(entry model.TranscriptEntry) (bool, bool) {
	if !entry.IsAssistant() || !entry.HasSources() {
		return false, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	disclosure := b.mount(entry)
	open := disclosure.Toggle()
	b.disclosures.Set(entry.ID.String(), disclosure, cache.DefaultExpiration)
	return open, true
}

func (b *Board) Forget(entryIDs ...uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range entryIDs {
		b.disclosures.Delete(id.String())
	}
}

func (b *Board) mount(entry model.TranscriptEntry) *Disclosure {
	if raw, ok := b.disclosures.Get(entry.ID.String()); ok {
		return raw.(*Disclosure)
	}
	disclosure := New(entry)
	b.disclosures.Set(entry.ID.String(), disclosure, cache.DefaultExpiration)
	return disclosure
}
