package app

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/iamvkosarev/rag-chat-bot/internal/citation"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	in_memory "github.com/iamvkosarev/rag-chat-bot/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/rag-chat-bot/internal/storage/key-value"
	"github.com/iamvkosarev/rag-chat-bot/internal/tracer"
	"github.com/iamvkosarev/rag-chat-bot/internal/tui"
	"github.com/iamvkosarev/rag-chat-bot/internal/usecase"
	"github.com/iamvkosarev/rag-chat-bot/pkg/local"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrMissingTelegramToken = errors.New("telegram api token is not set")

type App struct {
	cfg          *config.Config
	log          *zap.Logger
	rdb          *redis.Client
	query        *usecase.QueryUsecase
	conversation *usecase.ConversationUsecase
	shutdown     func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	shutdown, err := tracer.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}

	query, err := usecase.NewQueryUsecase(cfg.Backend, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create query usecase: %w", err)
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		query:    query,
		shutdown: shutdown,
	}

	var storage usecase.ConversationStorage
	switch cfg.Conversation.Storage {
	case config.StorageRedis:
		a.rdb = redis.NewClient(
			&redis.Options{
				Addr:     cfg.Redis.Endpoint,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		)
		if err = a.rdb.Ping(ctx).Err(); err != nil {
			_ = a.rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		storage = key_value.NewConversationStorage(a.rdb, cfg.Conversation.IdleTimeout)
	default:
		storage = in_memory.NewConversationStorage(cfg.Conversation.IdleTimeout)
	}
	log.Debug("conversation storage ready", zap.String("storage", cfg.Conversation.Storage))

	a.conversation = usecase.NewConversationUsecase(
		usecase.ConversationUsecaseDeps{
			Storage: storage,
			Query:   query,
			Logger:  log,
		}, cfg.Conversation,
	)
	return a, nil
}

// Close cancels pending queries and releases connections.
func (a *App) Close(ctx context.Context) error {
	a.conversation.Close()
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	errs = append(errs, a.shutdown(ctx))
	return errors.Join(errs...)
}

func (a *App) RunTelegram(ctx context.Context) error {
	if a.cfg.Telegram.TelegramAPIToken == "" {
		return ErrMissingTelegramToken
	}
	a.warnIfUnhealthy(ctx)

	bot, err := api.NewBotAPI(a.cfg.Telegram.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("failed to create new bot: %w", err)
	}
	a.log.Info("authorized on telegram", zap.String("account", bot.Self.UserName))

	telegramUsecase, err := usecase.NewTelegramUsecase(
		a.cfg.Conversation, usecase.TelegramUsecaseDeps{
			Bot:          bot,
			Conversation: a.conversation,
			Logger:       a.log,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create telegram usecase: %w", err)
	}
	return telegramUsecase.Run(ctx)
}

func (a *App) RunTUI(ctx context.Context) error {
	a.warnIfUnhealthy(ctx)
	return tui.Run(ctx, a.conversation, a.cfg.Conversation.PreviewLength)
}

// Ask runs a single exchange and writes the answer with its sources to out.
// It returns usecase.ErrQueryFailed after writing the failure text when the backend gave no answer.
func (a *App) Ask(ctx context.Context, question string, out io.Writer) error {
	chatID := newAskChatID()
	defer func() {
		if _, err := a.conversation.Clear(context.WithoutCancel(ctx), chatID); err != nil {
			a.log.Warn("failed to clear ask conversation", zap.Error(err))
		}
	}()

	q, err := a.conversation.Submit(ctx, chatID, question)
	if err != nil {
		return fmt.Errorf("failed to submit question: %w", err)
	}
	resolution, err := q.Wait(ctx)
	if err != nil {
		return err
	}
	if resolution.Err != nil {
		return resolution.Err
	}
	err = writeAnswer(out, resolution.Entry, a.conversation.Language(), a.cfg.Conversation.PreviewLength)
	if err != nil {
		return err
	}
	if resolution.Failed {
		return usecase.ErrQueryFailed
	}
	return nil
}

// newAskChatID returns a random negative id so that concurrent ask invocations sharing a redis
// storage keep separate conversations.
func newAskChatID() int64 {
	id := uuid.New()
	return -int64(binary.BigEndian.Uint64(id[:8])>>1) - 1
}

func writeAnswer(out io.Writer, entry model.TranscriptEntry, language local.Language, previewLength int) error {
	if _, err := fmt.Fprintln(out, entry.Content); err != nil {
		return err
	}
	if !entry.HasSources() {
		return nil
	}
	if _, err := fmt.Fprintf(out, "\n%s\n", citation.Summary(language, len(entry.Sources))); err != nil {
		return err
	}
	for i, item := range citation.Items(entry.Sources, previewLength) {
		_, err := fmt.Fprintf(
			out, "%d. %s (%s)\n   %s\n   %s\n",
			i+1, item.Title, citation.TextScore.Format(language, item.Score), item.URL, item.Preview,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Health(ctx context.Context) error {
	return a.query.Health(ctx)
}

func (a *App) warnIfUnhealthy(ctx context.Context) {
	if err := a.query.Health(ctx); err != nil {
		a.log.Warn("backend is not healthy", zap.Error(err))
	}
}
