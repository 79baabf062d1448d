package compose

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarotvision/internal/rank"
)

func TestFirstSentence(t *testing.T) {
	t.Run("cuts at sentence end", func(t *testing.T) {
		got := firstSentence("The tower falls. More follows after.")
		assert.Equal(t, "The tower falls.", got)
	})

	t.Run("question and exclamation count", func(t *testing.T) {
		assert.Equal(t, "Why now?", firstSentence("Why now? Because."))
		assert.Equal(t, "Beware!", firstSentence("Beware! The moon rises."))
	})

	t.Run("no terminator caps the text", func(t *testing.T) {
		long := strings.Repeat("x", 300)
		got := firstSentence(long)
		assert.Len(t, got, 140)
	})

	t.Run("cap never splits a rune", func(t *testing.T) {
		// A multibyte rune straddling the byte cap must be dropped whole,
		// not cut mid-sequence.
		for pad := 135; pad <= 142; pad++ {
			text := strings.Repeat("a", pad) + "é über die Brücke"
			got := firstSentence(text)
			assert.True(t, utf8.ValidString(got), "pad %d produced invalid UTF-8", pad)
			assert.LessOrEqual(t, len(got), 140)
			assert.True(t, strings.HasPrefix(text, got))
		}
	})
}

func TestRenderPassagesSummaryValidUTF8(t *testing.T) {
	pool := []rank.Passage{
		{Text: strings.Repeat("é", 100) + " und so weiter ohne Ende, immer weiter und weiter und weiter", SourceLabel: "thoth"},
	}
	st := DefaultControlState(1)
	st.SummarizePassages = true

	got := renderPassages(pool, &st)
	require.NotEmpty(t, got)
	assert.True(t, utf8.ValidString(got))
}
