package model

import (
	"time"

	"github.com/google/uuid"
)

type Phase int8

const (
	PhaseIdle = Phase(iota)
	PhasePending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Conversation is the state of one chat session.
// InFlight holds the id of the user entry whose query is pending; it is uuid.Nil while idle.
type Conversation struct {
	ChatID    int64
	Entries   []TranscriptEntry
	Phase     Phase
	InFlight  uuid.UUID
	UpdatedAt time.Time
}

func NewConversation(chatID int64) Conversation {
	return Conversation{
		ChatID:    chatID,
		Entries:   make([]TranscriptEntry, 0),
		Phase:     PhaseIdle,
		UpdatedAt: time.Now(),
	}
}

func (c Conversation) Pending() bool {
	return c.Phase == PhasePending
}

// Awaits reports whether queryID is the query this conversation is waiting for.
func (c Conversation) Awaits(queryID uuid.UUID) bool {
	return c.Phase == PhasePending && c.InFlight == queryID
}

func (c Conversation) FindEntry(id uuid.UUID) (TranscriptEntry, bool) {
	for _, entry := range c.Entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return TranscriptEntry{}, false
}

// FirstQuestion returns the content of the first user entry, used as the session title.
func (c Conversation) FirstQuestion() (string, bool) {
	for _, entry := range c.Entries {
		if entry.Role == RoleUser {
			return entry.Content, true
		}
	}
	return "", false
}

// Clone returns a copy whose entry slice can be appended to without aliasing.
func (c Conversation) Clone() Conversation {
	entries := make([]TranscriptEntry, len(c.Entries))
	copy(entries, c.Entries)
	c.Entries = entries
	return c
}

// Answer is a successful backend reply.
type Answer struct {
	Answer  string            `json:"answer"`
	Sources []SourceReference `json:"sources"`
}
