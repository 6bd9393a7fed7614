package analysis

import (
	"regexp"
	"strings"
)

// MaxSummarySentences bounds the length of a cleaned summary.
const MaxSummarySentences = 3

var (
	thinkBlock    = regexp.MustCompile(`(?i)<think>[\s\S]*?</think>`)
	thinkTag      = regexp.MustCompile(`(?i)</?think>`)
	sentenceBreak = regexp.MustCompile(`[.!?]+`)

	// Lines containing any of these are model self-talk, not summary.
	metaCommentary = []string{
		"okay, so i need to",
		"let me",
		"i should",
		"i'll",
		"i need to",
		"berikut ringkasannya:",
		"ringkasan:",
		"summary:",
	}
)

// CleanSummary removes reasoning leakage from a summary completion and
// clips it to at most three sentences with terminal punctuation.
func CleanSummary(raw string) string {
	s := strings.TrimSpace(raw)
	s = thinkBlock.ReplaceAllString(s, "")
	s = thinkTag.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !isMetaCommentary(line) {
			kept = append(kept, line)
		}
	}
	s = strings.TrimSpace(strings.Join(kept, " "))

	var sentences []string
	for _, part := range sentenceBreak.Split(s, -1) {
		if p := strings.TrimSpace(part); p != "" {
			sentences = append(sentences, p)
		}
	}
	if len(sentences) > MaxSummarySentences {
		s = strings.Join(sentences[:MaxSummarySentences], ". ") + "."
	}

	s = strings.TrimSpace(s)
	if s != "" && !strings.ContainsAny(s[len(s)-1:], ".!?") {
		s += "."
	}
	return s
}

func isMetaCommentary(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range metaCommentary {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
