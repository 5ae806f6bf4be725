package citation

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/iamvkosarev/rag-chat-bot/pkg/local"
)

const (
	DefaultPreviewLength = 160

	scoreDecimals = 4
	ellipsis      = "…"
)

var (
	TextSummary = local.NewSet("Cited sources (%d)", local.NewTrans(local.Jpn, "出典 (%d)"))
	TextScore   = local.NewSet("Score: %s", local.NewTrans(local.Jpn, "スコア: %s"))
)

// Item is a source reference prepared for display.
type Item struct {
	Title   string
	URL     string
	Score   string
	Preview string
}

// FormatScore renders a relevance score. The backend score is unbounded, so it is shown as is
// with a fixed number of decimals.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', scoreDecimals, 64)
}

// Preview collapses whitespace in text and cuts it to at most limit runes, ending with an
// ellipsis when something was cut.
func Preview(text string, limit int) string {
	return Truncate(strings.Join(strings.Fields(text), " "), limit)
}

// Truncate cuts s to at most limit runes including the trailing ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + ellipsis
}

func Summary(language local.Language, count int) string {
	return TextSummary.Format(language, count)
}

func Items(sources []model.SourceReference, previewLength int) []Item {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	items := make([]Item, 0, len(sources))
	for _, source := range sources {
		title := strings.TrimSpace(source.Title)
		if title == "" {
			title = source.URL
		}
		items = append(
			items, Item{
				Title:   title,
				URL:     source.URL,
				Score:   FormatScore(source.Score),
				Preview: Preview(source.Text, previewLength),
			},
		)
	}
	return items
}
