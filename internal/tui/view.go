package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iamvkosarev/rag-chat-bot/internal/citation"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/iamvkosarev/rag-chat-bot/internal/usecase"
)

const (
	labelUser      = "You"
	labelAssistant = "Assistant"
	markerClosed   = "▸"
	markerOpen     = "▾"
)

func (m Model) renderHistory() string {
	if len(m.conversation.Entries) == 0 {
		return m.renderEmptyState()
	}

	var sb strings.Builder
	for _, entry := range m.conversation.Entries {
		if entry.Role == model.RoleUser {
			sb.WriteString(m.styles.UserLabel.Render(labelUser) + "\n")
			sb.WriteString(m.styles.UserText.Render(entry.Content))
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(m.styles.BotLabel.Render(labelAssistant) + "\n")
		sb.WriteString(m.safeRenderMarkdown(entry.Content))
		sb.WriteString("\n")
		sb.WriteString(m.renderSources(entry))
	}
	return sb.String()
}

func (m Model) renderEmptyState() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(usecase.TextEmptyState.Text(m.language)))
	sb.WriteString("\n\n")
	for i, example := range usecase.Examples(m.language) {
		line := "  " + example
		if i == m.example {
			line = m.styles.Selected.Render(example)
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + m.styles.Muted.Render("  tab: use an example question"))
	return sb.String()
}

func (m Model) renderSources(entry model.TranscriptEntry) string {
	if !entry.HasSources() {
		return ""
	}
	open := m.board.IsOpen(entry.ID)
	marker := markerClosed
	if open {
		marker = markerOpen
	}
	summary := marker + " " + citation.Summary(m.language, len(entry.Sources))

	var sb strings.Builder
	if entry.ID == m.selected {
		sb.WriteString(m.styles.Selected.Render(summary))
	} else {
		sb.WriteString(m.styles.Summary.Render(summary))
	}
	sb.WriteString("\n")
	if !open {
		return sb.String()
	}

	for i, item := range citation.Items(entry.Sources, m.previewLength) {
		sb.WriteString(
			m.styles.Source.Render(fmt.Sprintf("%d. %s", i+1, item.Title)) + "  " +
				m.styles.Score.Render(citation.TextScore.Format(m.language, item.Score)) + "\n",
		)
		if item.URL != "" && item.URL != item.Title {
			sb.WriteString(m.styles.Preview.Render(item.URL) + "\n")
		}
		if item.Preview != "" {
			sb.WriteString(m.styles.Preview.Render(item.Preview) + "\n")
		}
	}
	return sb.String()
}

// safeRenderMarkdown falls back to the raw text when the markdown renderer fails.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.styles.Header.Render("RAG Search")

	chatView := m.viewport.View()
	if m.conversation.Pending() {
		chatView += "\n" + m.spinner.View() + " " + usecase.TextGenerating.Text(m.language)
	}
	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		m.styles.Input.Render(m.textinput.View()),
		m.renderFooter(),
	)
}

func (m Model) renderFooter() string {
	return m.styles.Muted.Render(
		"enter send · tab/shift+tab select answer · ctrl+o sources · ctrl+l new chat · esc quit",
	)
}
