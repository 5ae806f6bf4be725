package in_memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/patrickmn/go-cache"
)

// ConversationStorage keeps conversations in process memory.
// A conversation untouched for longer than the idle timeout is dropped.
type ConversationStorage struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewConversationStorage creates the storage. An idleTimeout of zero keeps conversations
// until they are cleared.
func NewConversationStorage(idleTimeout time.Duration) *ConversationStorage {
	expiration := cache.NoExpiration
	var cleanupInterval time.Duration
	if idleTimeout > 0 {
		expiration = idleTimeout
		cleanupInterval = idleTimeout
	}
	return &ConversationStorage{
		cache: cache.New(expiration, cleanupInterval),
	}
}

func (s *ConversationStorage) GetConversation(_ context.Context, chatID int64) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.getConversation(chatID)
	if !ok {
		return model.NewConversation(chatID), nil
	}
	return conversation.Clone(), nil
}

func (s *ConversationStorage) BeginQuery(_ context.Context, chatID int64, userEntry model.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.getConversation(chatID)
	if !ok {
		conversation = model.NewConversation(chatID)
	}
	if conversation.Pending() {
		return model.ErrQueryInFlight
	}
	conversation.Entries = append(conversation.Entries, userEntry)
	conversation.Phase = model.PhasePending
	conversation.InFlight = userEntry.ID
	s.setConversation(conversation)
	return nil
}

func (s *ConversationStorage) CompleteQuery(
	_ context.Context,
	chatID int64,
	queryID uuid.UUID,
	assistantEntry model.TranscriptEntry,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.getConversation(chatID)
	if !ok || !conversation.Awaits(queryID) {
		return model.ErrStaleQuery
	}
	conversation.Entries = append(conversation.Entries, assistantEntry)
	conversation.Phase = model.PhaseIdle
	conversation.InFlight = uuid.Nil
	s.setConversation(conversation)
	return nil
}

func (s *ConversationStorage) ReleaseQuery(_ context.Context, chatID int64, queryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.getConversation(chatID)
	if !ok || !conversation.Awaits(queryID) {
		return model.ErrStaleQuery
	}
	conversation.Phase = model.PhaseIdle
	conversation.InFlight = uuid.Nil
	s.setConversation(conversation)
	return nil
}

func (s *ConversationStorage) ClearConversation(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(getConversationKey(chatID))
	return nil
}

func (s *ConversationStorage) getConversation(chatID int64) (model.Conversation, bool) {
	raw, ok := s.cache.Get(getConversationKey(chatID))
	if !ok {
		return model.Conversation{}, false
	}
	return raw.(model.Conversation), true
}

func (s *ConversationStorage) setConversation(conversation model.Conversation) {
	conversation.UpdatedAt = time.Now()
	s.cache.Set(getConversationKey(conversation.ChatID), conversation, cache.DefaultExpiration)
}

func getConversationKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
