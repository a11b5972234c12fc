// Package article turns a raw transcript into a sectioned, templated document.
//
// Sentence detection is a plain split on '.', so abbreviations, decimals and
// transcripts without terminal punctuation are over- or under-segmented.
package article

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"video2article/internal/domain"
)

// SectionSize is the number of sentences that closes a section.
const SectionSize = 5

const (
	titleTemplate        = "Analysis and Summary: %s"
	introductionTemplate = `This comprehensive analysis provides a detailed examination of the key concepts and insights presented in the video "%s". The following sections break down the main topics and provide a structured overview of the content discussed.`
	conclusionTemplate   = `This analysis has provided a structured overview of the key concepts presented in "%s". The information has been organized into clear sections to facilitate understanding and reference. For the complete context and detailed discussion, we recommend viewing the original video content.`
	sectionTitleTemplate = "Section %d: Key Points"
)

// SplitSentences splits on '.' and drops fragments that are empty after trimming.
func SplitSentences(transcript string) []string {
	fragments := lo.Map(strings.Split(transcript, "."), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(fragments)
}

// Format builds the article for a transcript and source title.
// Every SectionSize-th sentence closes a section and the remainder closes the last one.
func Format(transcript, sourceTitle string) domain.Article {
	sentences := SplitSentences(transcript)

	sections := make([]domain.Section, 0, (len(sentences)+SectionSize-1)/SectionSize)
	for i, chunk := range lo.Chunk(sentences, SectionSize) {
		sections = append(sections, domain.Section{
			Title: fmt.Sprintf(sectionTitleTemplate, i+1),
			Text:  strings.Join(chunk, ". ") + ".",
		})
	}

	return domain.Article{
		Title:        fmt.Sprintf(titleTemplate, sourceTitle),
		Introduction: fmt.Sprintf(introductionTemplate, sourceTitle),
		Sections:     sections,
		Conclusion:   fmt.Sprintf(conclusionTemplate, sourceTitle),
	}
}

// Render writes the article as newline-separated plain text.
func Render(a domain.Article) string {
	var b strings.Builder
	b.WriteString(a.Title)
	b.WriteString("\n\n")
	b.WriteString(a.Introduction)
	b.WriteString("\n\n")
	for _, section := range a.Sections {
		b.WriteString(section.Title)
		b.WriteString("\n")
		b.WriteString(section.Text)
		b.WriteString("\n\n")
	}
	b.WriteString(a.Conclusion)
	return b.String()
}

// SentenceCount reports how many sentences a section text holds.
func SentenceCount(section domain.Section) int {
	return len(SplitSentences(section.Text))
}
