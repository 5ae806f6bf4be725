// Package tui is the terminal transcript view of a conversation.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/internal/citation"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/iamvkosarev/rag-chat-bot/internal/usecase"
	"github.com/iamvkosarev/rag-chat-bot/pkg/local"
)

// LocalChatID is the conversation key of the terminal session.
const LocalChatID = int64(0)

const (
	headerHeight = 1
	inputHeight  = 3
	footerHeight = 2
	minWrapWidth = 20
)

type Engine interface {
	Submit(ctx context.Context, chatID int64, query string) (*usecase.InFlightQuery, error)
	Clear(ctx context.Context, chatID int64) (model.Conversation, error)
	Conversation(ctx context.Context, chatID int64) (model.Conversation, error)
	Language() local.Language
}

type resolvedMsg struct {
	resolution usecase.Resolution
	err        error
}

type Model struct {
	engine        Engine
	ctx           context.Context
	chatID        int64
	language      local.Language
	board         *citation.Board
	previewLength int

	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    Styles
	renderer  *glamour.TermRenderer

	conversation model.Conversation
	selected     uuid.UUID
	example      int
	history      string
	err          error
	width        int
	height       int
	ready        bool
}

func New(ctx context.Context, engine Engine, previewLength int) Model {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask your knowledge base... (Enter to send, Esc to exit)"
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := Model{
		engine:        engine,
		ctx:           ctx,
		chatID:        LocalChatID,
		language:      engine.Language(),
		board:         citation.NewBoard(0),
		previewLength: previewLength,
		textinput:     ti,
		viewport:      viewport.New(80, 20),
		spinner:       sp,
		styles:        styles,
		renderer:      newRenderer(80),
		conversation:  model.NewConversation(LocalChatID),
		example:       -1,
	}
	m.refresh(true)
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(width, minWrapWidth)),
	)
	if err != nil {
		return nil
	}
	return renderer
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		case tea.KeyCtrlL:
			return m.handleClear()
		case tea.KeyTab:
			m.handleCycle(1)
			return m, nil
		case tea.KeyShiftTab:
			m.handleCycle(-1)
			return m, nil
		case tea.KeyCtrlO:
			m.handleToggle()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}
		m.textinput, tiCmd = m.textinput.Update(msg)
		return m, tiCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-inputHeight-footerHeight, 1)
		m.textinput.Width = max(msg.Width-6, 1)
		m.renderer = newRenderer(msg.Width - 4)
		m.ready = true
		m.refresh(true)
		return m, nil

	case spinner.TickMsg:
		if m.conversation.Pending() {
			var spCmd tea.Cmd
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}
		return m, nil

	case resolvedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else if msg.resolution.Err != nil {
			m.err = msg.resolution.Err
		}
		if err := m.reload(); err != nil {
			m.err = err
		}
		m.refresh(true)
		return m, nil
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	q, err := m.engine.Submit(m.ctx, m.chatID, m.textinput.Value())
	switch {
	case errors.Is(err, usecase.ErrEmptyQuery), errors.Is(err, model.ErrQueryInFlight):
		return m, nil
	case err != nil:
		m.err = err
		return m, nil
	}

	m.err = nil
	m.example = -1
	m.textinput.Reset()
	if err = m.reload(); err != nil {
		m.err = err
	}
	m.refresh(true)

	return m, tea.Batch(m.spinner.Tick, waitResolution(m.ctx, q))
}

func waitResolution(ctx context.Context, q *usecase.InFlightQuery) tea.Cmd {
	return func() tea.Msg {
		resolution, err := q.Wait(ctx)
		return resolvedMsg{resolution: resolution, err: err}
	}
}

func (m Model) handleClear() (tea.Model, tea.Cmd) {
	cleared, err := m.engine.Clear(m.ctx, m.chatID)
	if err != nil {
		m.err = err
		return m, nil
	}
	ids := make([]uuid.UUID, 0, len(cleared.Entries))
	for _, entry := range cleared.Entries {
		ids = append(ids, entry.ID)
	}
	m.board.Forget(ids...)

	m.err = nil
	m.selected = uuid.Nil
	m.example = -1
	m.textinput.Reset()
	if err = m.reload(); err != nil {
		m.err = err
	}
	m.refresh(true)
	return m, nil
}

// handleCycle fills in example questions while the chat is empty and moves the selection
// between answers with sources otherwise.
func (m *Model) handleCycle(step int) {
	if len(m.conversation.Entries) == 0 {
		examples := usecase.Examples(m.language)
		m.example = cycle(m.example, step, len(examples))
		m.textinput.SetValue(examples[m.example])
		m.textinput.CursorEnd()
		m.refresh(false)
		return
	}

	sourced := m.sourcedEntries()
	if len(sourced) == 0 {
		return
	}
	current := -1
	for i, id := range sourced {
		if id == m.selected {
			current = i
		}
	}
	m.selected = sourced[cycle(current, step, len(sourced))]
	m.refresh(false)
}

func cycle(current, step, n int) int {
	if current < 0 {
		if step < 0 {
			return n - 1
		}
		return 0
	}
	return ((current+step)%n + n) % n
}

func (m *Model) handleToggle() {
	entry, ok := m.conversation.FindEntry(m.selected)
	if !ok {
		return
	}
	if _, ok = m.board.Toggle(entry); ok {
		m.refresh(false)
	}
}

func (m *Model) sourcedEntries() []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, entry := range m.conversation.Entries {
		if entry.IsAssistant() && entry.HasSources() {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}

func (m *Model) reload() error {
	conversation, err := m.engine.Conversation(m.ctx, m.chatID)
	if err != nil {
		return err
	}
	m.conversation = conversation
	for _, entry := range conversation.Entries {
		m.board.Mount(entry)
	}
	if _, ok := conversation.FindEntry(m.selected); !ok {
		m.selected = uuid.Nil
	}
	return nil
}

// refresh re-renders the transcript. The view follows the newest entry only when toBottom is
// set, so toggling sources keeps the scroll position.
func (m *Model) refresh(toBottom bool) {
	m.history = m.renderHistory()
	m.viewport.SetContent(m.history)
	if toBottom {
		m.viewport.GotoBottom()
	}
}

// Run starts the terminal UI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, engine Engine, previewLength int) error {
	program := tea.NewProgram(New(ctx, engine, previewLength), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
