package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/iamvkosarev/rag-chat-bot/pkg/local"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrClosed     = errors.New("conversation usecase closed")
)

type ConversationStorage interface {
	GetConversation(ctx context.Context, chatID int64) (model.Conversation, error)
	BeginQuery(ctx context.Context, chatID int64, userEntry model.TranscriptEntry) error
	CompleteQuery(ctx context.Context, chatID int64, queryID uuid.UUID, assistantEntry model.TranscriptEntry) error
	ReleaseQuery(ctx context.Context, chatID int64, queryID uuid.UUID) error
	ClearConversation(ctx context.Context, chatID int64) error
}

type QueryDispatcher interface {
	Ask(ctx context.Context, query string) (model.Answer, error)
}

type ConversationUsecaseDeps struct {
	Storage ConversationStorage
	Query   QueryDispatcher
	Logger  *zap.Logger
}

type ConversationUsecase struct {
	ConversationUsecaseDeps
	language local.Language

	ctx    context.Context
	cancel context.CancelFunc
	wg     *conc.WaitGroup

	mu       sync.Mutex
	inFlight map[int64]pendingQuery
}

type pendingQuery struct {
	queryID uuid.UUID
	cancel  context.CancelFunc
}

// Resolution is the outcome of an accepted query.
// Discarded is set when the entry was not appended, either because the conversation was cleared
// while the query was pending or because Err occurred while storing it.
// Failed is set when the backend gave no answer and Entry carries the failure text.
type Resolution struct {
	Entry     model.TranscriptEntry
	Failed    bool
	Discarded bool
	Err       error
}

// InFlightQuery is a query accepted by Submit.
type InFlightQuery struct {
	ChatID    int64
	UserEntry model.TranscriptEntry

	done       chan struct{}
	resolution Resolution
}

func (q *InFlightQuery) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the query is resolved or ctx is done.
func (q *InFlightQuery) Wait(ctx context.Context) (Resolution, error) {
	select {
	case <-q.done:
		return q.resolution, nil
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

func NewConversationUsecase(deps ConversationUsecaseDeps, cfg config.Conversation) *ConversationUsecase {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConversationUsecase{
		ConversationUsecaseDeps: deps,
		language:                local.Parse(cfg.Language),
		ctx:                     ctx,
		cancel:                  cancel,
		wg:                      conc.NewWaitGroup(),
		inFlight:                make(map[int64]pendingQuery),
	}
}

func (c *ConversationUsecase) Language() local.Language {
	return c.language
}

// Submit appends query to the chat's transcript and sends it to the backend.
// Blank queries and queries sent while another one is pending are rejected without side effects.
func (c *ConversationUsecase) Submit(ctx context.Context, chatID int64, query string) (*InFlightQuery, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}

	userEntry := model.NewUserEntry(query)
	if err := c.Storage.BeginQuery(ctx, chatID, userEntry); err != nil {
		if errors.Is(err, model.ErrQueryInFlight) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to begin query: %w", err)
	}

	queryCtx, cancel := context.WithCancel(trace.ContextWithSpan(c.ctx, trace.SpanFromContext(ctx)))
	c.mu.Lock()
	c.inFlight[chatID] = pendingQuery{queryID: userEntry.ID, cancel: cancel}
	c.mu.Unlock()

	inFlight := &InFlightQuery{
		ChatID:    chatID,
		UserEntry: userEntry,
		done:      make(chan struct{}),
	}
	c.wg.Go(
		func() {
			c.resolve(queryCtx, cancel, inFlight)
		},
	)
	return inFlight, nil
}

func (c *ConversationUsecase) resolve(ctx context.Context, cancel context.CancelFunc, q *InFlightQuery) {
	defer close(q.done)
	defer cancel()
	defer c.release(q.ChatID, q.UserEntry.ID)

	log := c.Logger.With(zap.Int64("chat_id", q.ChatID), zap.Stringer("query_id", q.UserEntry.ID))

	var entry model.TranscriptEntry
	var failed bool
	var catcher panics.Catcher
	catcher.Try(
		func() {
			entry, failed = c.answer(ctx, log, q.UserEntry.Content)
		},
	)
	if recovered := catcher.Recovered(); recovered != nil {
		log.Error("query panicked", zap.Error(recovered.AsError()))
		entry, failed = model.NewFailureEntry(TextQueryFailed.Text(c.language)), true
	}

	storeCtx := context.WithoutCancel(ctx)
	err := c.Storage.CompleteQuery(storeCtx, q.ChatID, q.UserEntry.ID, entry)
	switch {
	case err == nil:
		q.resolution = Resolution{Entry: entry, Failed: failed}
	case errors.Is(err, model.ErrStaleQuery):
		log.Debug("discarded answer of cleared conversation")
		q.resolution = Resolution{Entry: entry, Failed: failed, Discarded: true}
	default:
		log.Error("failed to complete query", zap.Error(err))
		releaseErr := c.Storage.ReleaseQuery(storeCtx, q.ChatID, q.UserEntry.ID)
		if releaseErr != nil && !errors.Is(releaseErr, model.ErrStaleQuery) {
			log.Error("failed to release query", zap.Error(releaseErr))
		}
		q.resolution = Resolution{Entry: entry, Failed: failed, Discarded: true, Err: err}
	}
}

func (c *ConversationUsecase) answer(ctx context.Context, log *zap.Logger, query string) (model.TranscriptEntry, bool) {
	answer, err := c.Query.Ask(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("query canceled", zap.Error(err))
		} else {
			log.Error("query failed", zap.Error(err))
		}
		return model.NewFailureEntry(TextQueryFailed.Text(c.language)), true
	}
	log.Debug("query answered", zap.Int("sources", len(answer.Sources)))
	return model.NewAssistantEntry(answer.Answer, answer.Sources), false
}

func (c *ConversationUsecase) release(chatID int64, queryID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending, ok := c.inFlight[chatID]
	if !ok || pending.queryID != queryID {
		return
	}
	pending.cancel()
	delete(c.inFlight, chatID)
}

// Clear empties the chat's transcript and cancels its pending query. The answer of that query
// is discarded. It returns the conversation as it was before clearing.
func (c *ConversationUsecase) Clear(ctx context.Context, chatID int64) (model.Conversation, error) {
	cleared, err := c.Storage.GetConversation(ctx, chatID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}
	if err = c.Storage.ClearConversation(ctx, chatID); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to clear conversation: %w", err)
	}
	if cleared.Pending() {
		c.release(chatID, cleared.InFlight)
	}
	return cleared, nil
}

// Conversation returns a snapshot of the chat's conversation.
func (c *ConversationUsecase) Conversation(ctx context.Context, chatID int64) (model.Conversation, error) {
	conversation, err := c.Storage.GetConversation(ctx, chatID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conversation, nil
}

// Close cancels every pending query and waits until all of them are resolved.
func (c *ConversationUsecase) Close() {
	c.cancel()
	c.wg.Wait()
}
