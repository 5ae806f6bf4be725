package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/iamvkosarev/rag-chat-bot/internal/citation"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/iamvkosarev/rag-chat-bot/pkg/local"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	CommandStart   = "start"
	CommandHelp    = "help"
	CommandNew     = "new"
	CommandHistory = "history"

	callbackSources = "src:"
	callbackExample = "ask:"

	maxMessageLength   = 4096
	minAnswerLength    = 256
	maxHistoryTitleLen = 64
)

type Bot interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetUpdatesChan(config api.UpdateConfig) api.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramUsecaseDeps struct {
	Bot          Bot
	Conversation *ConversationUsecase
	Logger       *zap.Logger
}

type TelegramUsecase struct {
	TelegramUsecaseDeps
	board         *citation.Board
	previewLength int
	wg            *conc.WaitGroup
}

func NewTelegramUsecase(cfg config.Conversation, deps TelegramUsecaseDeps) (*TelegramUsecase, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	_, err := deps.Bot.Request(
		api.NewSetMyCommands(
			[]api.BotCommand{
				{
					Command:     CommandHelp,
					Description: "Get help",
				},
				{
					Command:     CommandNew,
					Description: "Start a new chat",
				},
				{
					Command:     CommandHistory,
					Description: "Show the current chat",
				},
			}...,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set bot commands: %w", err)
	}

	return &TelegramUsecase{
		TelegramUsecaseDeps: deps,
		board:               citation.NewBoard(cfg.IdleTimeout),
		previewLength:       cfg.PreviewLength,
		wg:                  conc.NewWaitGroup(),
	}, nil
}

// Run handles updates until ctx is done. Answers still being delivered are awaited before it
// returns.
func (t *TelegramUsecase) Run(ctx context.Context) error {
	u := api.NewUpdate(0)
	u.Timeout = 60

	updates := t.Bot.GetUpdatesChan(u)
	defer t.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			t.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *TelegramUsecase) handleUpdate(ctx context.Context, update api.Update) {
	switch {
	case update.Message != nil:
		chatID := update.Message.Chat.ID
		var err error
		if update.Message.IsCommand() {
			err = t.handleCommand(ctx, chatID, update.Message.Command())
		} else {
			err = t.handleText(ctx, chatID, update.Message.Text)
		}
		if err != nil {
			t.Logger.Error("failed to handle message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		query := update.CallbackQuery
		chatID := query.Message.Chat.ID
		if err := t.handleCallback(ctx, chatID, query.Message.MessageID, query.ID, query.Data); err != nil {
			t.Logger.Error("failed to handle callback query", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

func (t *TelegramUsecase) handleCommand(ctx context.Context, chatID int64, command string) error {
	language := t.Conversation.Language()
	switch command {
	case CommandStart:
		msg := api.NewMessage(chatID, TextWelcome.Text(language))
		msg.ReplyMarkup = examplesKeyboard(Examples(language))
		if _, err := t.Bot.Send(msg); err != nil {
			return fmt.Errorf("failed to send welcome message: %w", err)
		}
		return nil
	case CommandHelp:
		t.sendMessageAndHandleErr(chatID, TextHelp.Text(language))
	case CommandNew:
		cleared, err := t.Conversation.Clear(ctx, chatID)
		if err != nil {
			return fmt.Errorf("failed to clear conversation: %w", err)
		}
		ids := make([]uuid.UUID, 0, len(cleared.Entries))
		for _, entry := range cleared.Entries {
			ids = append(ids, entry.ID)
		}
		t.board.Forget(ids...)
		t.sendMessageAndHandleErr(chatID, TextCleared.Text(language))
	case CommandHistory:
		conversation, err := t.Conversation.Conversation(ctx, chatID)
		if err != nil {
			return fmt.Errorf("failed to get conversation: %w", err)
		}
		question, ok := conversation.FirstQuestion()
		if !ok {
			t.sendMessageAndHandleErr(chatID, TextNoHistory.Text(language))
			return nil
		}
		t.sendMessageAndHandleErr(
			chatID, TextHistoryFormat.Format(
				language, citation.Truncate(question, maxHistoryTitleLen), len(conversation.Entries),
			),
		)
	default:
		t.sendMessageAndHandleErr(chatID, TextUnknownCommand.Text(language))
	}
	return nil
}

func (t *TelegramUsecase) handleText(ctx context.Context, chatID int64, text string) error {
	language := t.Conversation.Language()
	q, err := t.Conversation.Submit(ctx, chatID, text)
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return nil
	case errors.Is(err, model.ErrQueryInFlight):
		t.sendMessageAndHandleErr(chatID, TextStillAnswering.Text(language))
		return nil
	case err != nil:
		t.sendMessageAndHandleErr(chatID, TextQueryFailed.Text(language))
		return fmt.Errorf("failed to submit query: %w", err)
	}

	if _, err = t.Bot.Request(api.NewChatAction(chatID, api.ChatTyping)); err != nil {
		t.Logger.Warn("failed to send chat action", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	placeholder := t.sendMessageAndHandleErr(chatID, TextGenerating.Text(language))

	t.wg.Go(
		func() {
			t.deliver(ctx, chatID, placeholder.MessageID, q)
		},
	)
	return nil
}

// deliver replaces the placeholder message with the resolved answer.
func (t *TelegramUsecase) deliver(ctx context.Context, chatID int64, placeholderID int, q *InFlightQuery) {
	resolution, err := q.Wait(ctx)
	if err != nil {
		return
	}
	log := t.Logger.With(zap.Int64("chat_id", chatID))

	switch {
	case resolution.Discarded && resolution.Err == nil:
		if placeholderID == 0 {
			return
		}
		if _, err = t.Bot.Request(api.NewDeleteMessage(chatID, placeholderID)); err != nil {
			log.Warn("failed to delete placeholder", zap.Error(err))
		}
		return
	case resolution.Discarded:
		resolution.Entry = model.NewFailureEntry(TextQueryFailed.Text(t.Conversation.Language()))
	}

	text, markup := t.renderEntry(resolution.Entry, false)
	if placeholderID == 0 {
		msg := api.NewMessage(chatID, text)
		msg.ParseMode = api.ModeHTML
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		if _, err = t.Bot.Send(msg); err != nil {
			log.Error("failed to send answer", zap.Error(err))
		}
		return
	}
	if _, err = t.Bot.Send(editMessage(chatID, placeholderID, text, markup)); err != nil {
		log.Error("failed to edit placeholder", zap.Error(err))
	}
}

func (t *TelegramUsecase) handleCallback(
	ctx context.Context,
	chatID int64,
	messageID int,
	callbackID string,
	data string,
) error {
	switch {
	case strings.HasPrefix(data, callbackSources):
		return t.toggleSources(ctx, chatID, messageID, callbackID, strings.TrimPrefix(data, callbackSources))
	case strings.HasPrefix(data, callbackExample):
		t.answerCallback(callbackID, "")
		index, err := strconv.Atoi(strings.TrimPrefix(data, callbackExample))
		if err != nil || index < 0 || index >= len(ExampleQuestions) {
			return fmt.Errorf("unknown example %q", data)
		}
		return t.handleText(ctx, chatID, ExampleQuestions[index].Text(t.Conversation.Language()))
	default:
		t.answerCallback(callbackID, "")
		return fmt.Errorf("unknown callback data %q", data)
	}
}

func (t *TelegramUsecase) toggleSources(
	ctx context.Context,
	chatID int64,
	messageID int,
	callbackID string,
	rawEntryID string,
) error {
	entryID, err := uuid.Parse(rawEntryID)
	if err != nil {
		t.answerCallback(callbackID, "")
		return fmt.Errorf("failed to parse entry id: %w", err)
	}
	conversation, err := t.Conversation.Conversation(ctx, chatID)
	if err != nil {
		t.answerCallback(callbackID, "")
		return fmt.Errorf("failed to get conversation: %w", err)
	}
	entry, ok := conversation.FindEntry(entryID)
	if !ok {
		t.answerCallback(callbackID, TextSourcesUnavailable.Text(t.Conversation.Language()))
		return nil
	}
	open, ok := t.board.Toggle(entry)
	if !ok {
		t.answerCallback(callbackID, "")
		return nil
	}
	t.answerCallback(callbackID, "")

	text, markup := t.renderEntry(entry, open)
	if _, err = t.Bot.Send(editMessage(chatID, messageID, text, markup)); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// renderEntry builds the HTML text of an assistant entry and the button toggling its sources.
// The text never exceeds the Telegram message limit.
func (t *TelegramUsecase) renderEntry(entry model.TranscriptEntry, open bool) (string, *api.InlineKeyboardMarkup) {
	language := t.Conversation.Language()
	content := entry.Content
	if strings.TrimSpace(content) == "" {
		content = TextEmptyAnswer.Text(language)
	}

	disclosure, ok := t.board.Mount(entry)
	if !ok {
		return html.EscapeString(citation.Truncate(content, maxMessageLength)), nil
	}

	var sources string
	if open {
		sources = renderSources(language, disclosure.Sources(), t.previewLength, maxMessageLength-minAnswerLength)
	}
	budget := maxMessageLength - utf8.RuneCountInString(sources)
	text := html.EscapeString(citation.Truncate(content, budget)) + sources

	marker := "▸"
	if open {
		marker = "▾"
	}
	markup := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(
				marker+" "+citation.Summary(language, disclosure.Len()),
				callbackSources+entry.ID.String(),
			),
		),
	)
	return text, &markup
}

// renderSources renders as many sources as fit in limit runes and counts the rest in a trailing line.
func renderSources(
	language local.Language,
	sources []model.SourceReference,
	previewLength int,
	limit int,
) string {
	var b strings.Builder
	b.WriteString("\n\n<b>")
	b.WriteString(html.EscapeString(citation.Summary(language, len(sources))))
	b.WriteString("</b>")
	length := utf8.RuneCountInString(b.String())

	items := citation.Items(sources, previewLength)
	for i, item := range items {
		block := renderSource(i+1, item)
		blockLength := utf8.RuneCountInString(block)
		var reserve int
		if rest := len(items) - i - 1; rest > 0 {
			reserve = utf8.RuneCountInString(moreSources(language, rest))
		}
		if length+blockLength+reserve > limit {
			b.WriteString(moreSources(language, len(items)-i))
			break
		}
		b.WriteString(block)
		length += blockLength
	}
	return b.String()
}

func renderSource(number int, item citation.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\n%d. ", number)
	if item.URL != "" {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(item.URL), html.EscapeString(item.Title))
	} else {
		b.WriteString(html.EscapeString(item.Title))
	}
	fmt.Fprintf(&b, " · <code>%s</code>", item.Score)
	if item.Preview != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(item.Preview))
		b.WriteString("</i>")
	}
	return b.String()
}

func moreSources(language local.Language, count int) string {
	return "\n\n" + html.EscapeString(TextMoreSources.Format(language, count))
}

func examplesKeyboard(examples []string) api.InlineKeyboardMarkup {
	rows := make([][]api.InlineKeyboardButton, 0, len(examples))
	for i, example := range examples {
		rows = append(
			rows, api.NewInlineKeyboardRow(
				api.NewInlineKeyboardButtonData(example, callbackExample+strconv.Itoa(i)),
			),
		)
	}
	return api.NewInlineKeyboardMarkup(rows...)
}

func editMessage(chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) api.Chattable {
	var edit api.EditMessageTextConfig
	if markup != nil {
		edit = api.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		edit = api.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = api.ModeHTML
	return edit
}

func (t *TelegramUsecase) answerCallback(callbackID, text string) {
	if _, err := t.Bot.Request(api.NewCallback(callbackID, text)); err != nil {
		t.Logger.Warn("failed to answer callback query", zap.Error(err))
	}
}

func (t *TelegramUsecase) sendMessageAndHandleErr(chatID int64, message string) api.Message {
	msg, err := t.Bot.Send(api.NewMessage(chatID, message))
	if err != nil {
		t.Logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return msg
}
