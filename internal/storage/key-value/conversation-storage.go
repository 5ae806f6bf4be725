package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

var (
	ErrTooManyConflicts = errors.New("too many concurrent conversation updates")
)

type sourceInternal struct {
	Text  string  `json:"text"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

type entryInternal struct {
	ID        string           `json:"id"`
	Role      model.Role       `json:"role"`
	Content   string           `json:"content"`
	Sources   []sourceInternal `json:"sources,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type conversationInternal struct {
	ChatID    int64           `json:"chat_id"`
	Entries   []entryInternal `json:"entries"`
	Phase     model.Phase     `json:"phase"`
	InFlight  string          `json:"in_flight,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// ConversationStorage keeps one JSON document per conversation in redis so that several bot
// replicas can serve the same chat. Keys expire after the idle timeout.
type ConversationStorage struct {
	rdb         *redis.Client
	idleTimeout time.Duration
}

func NewConversationStorage(rdb *redis.Client, idleTimeout time.Duration) *ConversationStorage {
	return &ConversationStorage{
		rdb:         rdb,
		idleTimeout: idleTimeout,
	}
}

func (s *ConversationStorage) GetConversation(ctx context.Context, chatID int64) (model.Conversation, error) {
	convInt, ok, err := s.getConversationInt(ctx, s.rdb, getConversationKey(chatID))
	if err != nil {
		return model.Conversation{}, err
	}
	if !ok {
		return model.NewConversation(chatID), nil
	}
	conversation, err := convInt.toModel()
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to parse conversation %d: %w", chatID, err)
	}
	return conversation, nil
}

func (s *ConversationStorage) BeginQuery(ctx context.Context, chatID int64, userEntry model.TranscriptEntry) error {
	return s.update(
		ctx, chatID, func(convInt *conversationInternal, exists bool) error {
			if !exists {
				*convInt = conversationInternal{
					ChatID:  chatID,
					Entries: make([]entryInternal, 0),
				}
			}
			if convInt.Phase == model.PhasePending {
				return model.ErrQueryInFlight
			}
			convInt.Entries = append(convInt.Entries, newEntryInternal(userEntry))
			convInt.Phase = model.PhasePending
			convInt.InFlight = userEntry.ID.String()
			return nil
		},
	)
}

func (s *ConversationStorage) CompleteQuery(
	ctx context.Context,
	chatID int64,
	queryID uuid.UUID,
	assistantEntry model.TranscriptEntry,
) error {
	return s.update(
		ctx, chatID, func(convInt *conversationInternal, exists bool) error {
			if !exists || !convInt.awaits(queryID) {
				return model.ErrStaleQuery
			}
			convInt.Entries = append(convInt.Entries, newEntryInternal(assistantEntry))
			convInt.Phase = model.PhaseIdle
			convInt.InFlight = ""
			return nil
		},
	)
}

func (s *ConversationStorage) ReleaseQuery(ctx context.Context, chatID int64, queryID uuid.UUID) error {
	return s.update(
		ctx, chatID, func(convInt *conversationInternal, exists bool) error {
			if !exists || !convInt.awaits(queryID) {
				return model.ErrStaleQuery
			}
			convInt.Phase = model.PhaseIdle
			convInt.InFlight = ""
			return nil
		},
	)
}

func (s *ConversationStorage) ClearConversation(ctx context.Context, chatID int64) error {
	key := getConversationKey(chatID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", key, err)
	}
	return nil
}

// update runs fn over the stored conversation inside a WATCH/MULTI transaction and retries
// when another writer touched the key in between.
func (s *ConversationStorage) update(
	ctx context.Context,
	chatID int64,
	fn func(convInt *conversationInternal, exists bool) error,
) error {
	key := getConversationKey(chatID)
	txf := func(tx *redis.Tx) error {
		convInt, exists, err := s.getConversationInt(ctx, tx, key)
		if err != nil {
			return err
		}
		if err = fn(&convInt, exists); err != nil {
			return err
		}
		convInt.UpdatedAt = time.Now()
		convIntJSON, err := json.Marshal(convInt)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation %s: %w", key, err)
		}
		_, err = tx.TxPipelined(
			ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, convIntJSON, s.idleTimeout)
				return nil
			},
		)
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTooManyConflicts
}

func (s *ConversationStorage) getConversationInt(
	ctx context.Context,
	g getter,
	key string,
) (conversationInternal, bool, error) {
	raw, err := g.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversationInternal{}, false, nil
		}
		return conversationInternal{}, false, fmt.Errorf("failed to get conversation %s: %w", key, err)
	}
	var convInt conversationInternal
	if err = json.Unmarshal([]byte(raw), &convInt); err != nil {
		return conversationInternal{}, false, fmt.Errorf("failed to unmarshal conversation %s: %w", key, err)
	}
	return convInt, true, nil
}

func (c conversationInternal) awaits(queryID uuid.UUID) bool {
	return c.Phase == model.PhasePending && c.InFlight == queryID.String()
}

func (c conversationInternal) toModel() (model.Conversation, error) {
	conversation := model.Conversation{
		ChatID:    c.ChatID,
		Entries:   make([]model.TranscriptEntry, 0, len(c.Entries)),
		Phase:     c.Phase,
		UpdatedAt: c.UpdatedAt,
	}
	if c.InFlight != "" {
		inFlight, err := uuid.Parse(c.InFlight)
		if err != nil {
			return model.Conversation{}, fmt.Errorf("failed to parse in-flight query %s: %w", c.InFlight, err)
		}
		conversation.InFlight = inFlight
	}
	for _, entInt := range c.Entries {
		entryID, err := uuid.Parse(entInt.ID)
		if err != nil {
			return model.Conversation{}, fmt.Errorf("failed to parse entry id %s: %w", entInt.ID, err)
		}
		var sources []model.SourceReference
		if len(entInt.Sources) > 0 {
			sources = make([]model.SourceReference, 0, len(entInt.Sources))
			for _, src := range entInt.Sources {
				sources = append(
					sources, model.SourceReference{
						Text:  src.Text,
						Title: src.Title,
						URL:   src.URL,
						Score: src.Score,
					},
				)
			}
		}
		conversation.Entries = append(
			conversation.Entries, model.TranscriptEntry{
				ID:        entryID,
				Role:      entInt.Role,
				Content:   entInt.Content,
				Sources:   sources,
				CreatedAt: entInt.CreatedAt,
			},
		)
	}
	return conversation, nil
}

func newEntryInternal(entry model.TranscriptEntry) entryInternal {
	entInt := entryInternal{
		ID:        entry.ID.String(),
		Role:      entry.Role,
		Content:   entry.Content,
		CreatedAt: entry.CreatedAt,
	}
	for _, src := range entry.Sources {
		entInt.Sources = append(
			entInt.Sources, sourceInternal{
				Text:  src.Text,
				Title: src.Title,
				URL:   src.URL,
				Score: src.Score,
			},
		)
	}
	return entInt
}

func getConversationKey(chatID int64) string {
	return fmt.Sprintf("conversation_%d", chatID)
}
