package citation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourcedEntry(t *testing.T) model.TranscriptEntry {
	t.Helper()
	return model.NewAssistantEntry(
		"It is a note tool.", []model.SourceReference{
			{Text: "...", Title: "Scrapbox Docs", URL: "https://x/y", Score: 0.92},
		},
	)
}

func TestDisclosure_StartsClosed(t *testing.T) {
	disclosure := New(sourcedEntry(t))

	assert.False(t, disclosure.Open())
	assert.Equal(t, 1, disclosure.Len())
	assert.True(t, disclosure.Toggle())
	assert.False(t, disclosure.Toggle())
}

func TestBoard_MountOnlyForSourcedAnswers(t *testing.T) {
	board := NewBoard(0)

	_, ok := board.Mount(model.NewUserEntry("question"))
	assert.False(t, ok)

	_, ok = board.Mount(model.NewFailureEntry("error"))
	assert.False(t, ok)

	disclosure, ok := board.Mount(sourcedEntry(t))
	require.True(t, ok)
	assert.False(t, disclosure.Open())
}

func TestBoard_ToggleIsIndependentPerEntry(t *testing.T) {
	board := NewBoard(0)
	first := sourcedEntry(t)
	second := sourcedEntry(t)
	board.Mount(first)
	board.Mount(second)

	open, ok := board.Toggle(first)

	require.True(t, ok)
	assert.True(t, open)
	assert.True(t, board.IsOpen(first.ID))
	assert.False(t, board.IsOpen(second.ID))

	open, _ = board.Toggle(second)
	assert.True(t, open)
	open, _ = board.Toggle(first)
	assert.False(t, open)
	assert.True(t, board.IsOpen(second.ID))
}

func TestBoard_ToggleWithoutSources(t *testing.T) {
	board := NewBoard(0)
	entry := model.NewFailureEntry("error")

	open, ok := board.Toggle(entry)

	assert.False(t, ok)
	assert.False(t, open)
	assert.False(t, board.IsOpen(entry.ID))
}

func TestBoard_Forget(t *testing.T) {
	board := NewBoard(0)
	entry := sourcedEntry(t)
	board.Toggle(entry)

	board.Forget(entry.ID, uuid.New())

	assert.False(t, board.IsOpen(entry.ID))
	disclosure, ok := board.Mount(entry)
	require.True(t, ok)
	assert.False(t, disclosure.Open())
}
