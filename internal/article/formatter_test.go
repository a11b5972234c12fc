package article

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2article/internal/domain"
)

// TestFormatSixSentences checks the 5 + 1 split of a short transcript.
func TestFormatSixSentences(t *testing.T) {
	transcript := "Hello world. This is a test. Short. Another one. Fifth sentence. Sixth one here."

	got := Format(transcript, "Demo")

	require.Len(t, got.Sections, 2)
	assert.Equal(t, "Section 1: Key Points", got.Sections[0].Title)
	assert.Equal(t, "Hello world. This is a test. Short. Another one. Fifth sentence.", got.Sections[0].Text)
	assert.Equal(t, "Section 2: Key Points", got.Sections[1].Title)
	assert.Equal(t, "Sixth one here.", got.Sections[1].Text)
}

// TestFormatEmptyTranscript keeps boilerplate when there are no sentences.
func TestFormatEmptyTranscript(t *testing.T) {
	for _, transcript := range []string{"", "   ", ". . ..", "\n.\t."} {
		got := Format(transcript, "Empty")
		assert.Empty(t, got.Sections, "transcript %q", transcript)
		assert.Contains(t, got.Introduction, `"Empty"`)
		assert.Contains(t, got.Conclusion, `"Empty"`)
		assert.Equal(t, "Analysis and Summary: Empty", got.Title)
	}
}

// TestFormatPartitionsSentences checks section count and sentence conservation.
func TestFormatPartitionsSentences(t *testing.T) {
	for n := 1; n <= 23; n++ {
		sentences := make([]string, n)
		for i := range sentences {
			sentences[i] = fmt.Sprintf("sentence number %d", i)
		}
		transcript := strings.Join(sentences, ". ") + "."

		got := Format(transcript, "t")

		wantSections := (n + SectionSize - 1) / SectionSize
		require.Len(t, got.Sections, wantSections, "n=%d", n)

		var seen []string
		for i, section := range got.Sections {
			count := SentenceCount(section)
			if i < len(got.Sections)-1 {
				assert.Equal(t, SectionSize, count, "n=%d section=%d", n, i)
			} else {
				assert.LessOrEqual(t, count, SectionSize)
				assert.GreaterOrEqual(t, count, 1)
			}
			seen = append(seen, SplitSentences(section.Text)...)
		}
		assert.Equal(t, sentences, seen, "n=%d", n)
	}
}

// TestFormatIsDeterministic checks repeated calls return identical articles.
func TestFormatIsDeterministic(t *testing.T) {
	transcript := "One. Two. Three. Four. Five. Six. Seven."
	first := Format(transcript, "Same")
	second := Format(transcript, "Same")
	assert.Equal(t, first, second)
	assert.Equal(t, Render(first), Render(second))
}

// TestSplitSentencesQuirks documents the naive boundary rules.
func TestSplitSentencesQuirks(t *testing.T) {
	assert.Equal(t, []string{"Pi is 3", "14 roughly"}, SplitSentences("Pi is 3.14 roughly."))
	assert.Equal(t, []string{"no terminal punctuation"}, SplitSentences("no terminal punctuation"))
	assert.Equal(t, []string{"Mr", "Smith arrived"}, SplitSentences("Mr. Smith arrived."))
}

// TestRender checks the plain-text layout of the downloadable article.
func TestRender(t *testing.T) {
	a := domain.Article{
		Title:        "T",
		Introduction: "I",
		Sections: []domain.Section{
			{Title: "Section 1: Key Points", Text: "A. B."},
			{Title: "Section 2: Key Points", Text: "C."},
		},
		Conclusion: "C",
	}

	want := "T\n\nI\n\nSection 1: Key Points\nA. B.\n\nSection 2: Key Points\nC.\n\nC"
	assert.Equal(t, want, Render(a))
}

// TestRenderWithoutSections checks intro is followed directly by conclusion.
func TestRenderWithoutSections(t *testing.T) {
	got := Render(Format("", "x"))
	assert.True(t, strings.HasPrefix(got, "Analysis and Summary: x\n\n"))
	assert.False(t, strings.Contains(got, "Section 1"))
}
