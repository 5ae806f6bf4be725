package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextSet_Text(t *testing.T) {
	set := NewSet("Generating answer...", NewTrans(Jpn, "回答を生成中..."))

	assert.Equal(t, "Generating answer...", set.Text(Eng))
	assert.Equal(t, "回答を生成中...", set.Text(Jpn))
	assert.Equal(t, "Generating answer...", set.Text(Language("fr")))
}

func TestTextSet_Format(t *testing.T) {
	set := NewSet("Cited sources (%d)", NewTrans(Jpn, "出典 (%d)"))

	assert.Equal(t, "Cited sources (3)", set.Format(Eng, 3))
	assert.Equal(t, "出典 (3)", set.Format(Jpn, 3))
	assert.Equal(t, "Cited sources (1)", set.DefaultFormat(1))
}

func TestParse(t *testing.T) {
	tests := map[string]Language{
		"ja":    Jpn,
		"ja-JP": Jpn,
		" JA ":  Jpn,
		"en":    Eng,
		"en_US": Eng,
		"":      Eng,
		"ru":    Eng,
	}
	for code, want := range tests {
		assert.Equal(t, want, Parse(code), code)
	}
}
