package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      = Role("user")
	RoleAssistant = Role("assistant")
)

// SourceReference is one retrieved passage the backend used for an answer.
type SourceReference struct {
	Text  string  `json:"text"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// TranscriptEntry is one turn of a conversation. Entries are never edited after creation.
type TranscriptEntry struct {
	ID        uuid.UUID
	Role      Role
	Content   string
	Sources   []SourceReference
	CreatedAt time.Time
}

func NewUserEntry(content string) TranscriptEntry {
	return TranscriptEntry{
		ID:        uuid.New(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func NewAssistantEntry(content string, sources []SourceReference) TranscriptEntry {
	var copied []SourceReference
	if len(sources) > 0 {
		copied = make([]SourceReference, len(sources))
		copy(copied, sources)
	}
	return TranscriptEntry{
		ID:        uuid.New(),
		Role:      RoleAssistant,
		Content:   content,
		Sources:   copied,
		CreatedAt: time.Now(),
	}
}

// NewFailureEntry builds the assistant entry shown when a query could not be answered.
// It never carries sources.
func NewFailureEntry(message string) TranscriptEntry {
	return NewAssistantEntry(message, nil)
}

func (e TranscriptEntry) HasSources() bool {
	return len(e.Sources) > 0
}

func (e TranscriptEntry) IsAssistant() bool {
	return e.Role == RoleAssistant
}
