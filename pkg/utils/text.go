package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TruncationMarker replaces the elided middle of a truncated text.
const TruncationMarker = "... [CONTENT TRUNCATED] ..."

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`,
	"‘", "'", "’", "'", "‚", "'",
)

// NormalizeText strips HTML markup, straightens curly quotes and collapses
// runs of whitespace into single spaces.
func NormalizeText(s string) string {
	if strings.ContainsRune(s, '<') {
		s = StripHTML(s)
	}
	s = quoteReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// StripHTML returns the text content of an HTML fragment. Input that cannot
// be parsed is returned unchanged.
func StripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return doc.Text()
}

// Truncate shortens text longer than max runes, keeping the first start and
// the last end runes around TruncationMarker. When start+end would reach
// max, end shrinks to max-start (not below zero).
func Truncate(text string, max, start, end int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	if start+end >= max {
		end = max - start
		if end < 0 {
			end = 0
		}
	}
	start = clamp(start, 0, len(r))
	end = clamp(end, 0, len(r))

	var b strings.Builder
	b.WriteString(string(r[:start]))
	b.WriteString(TruncationMarker)
	b.WriteString(string(r[len(r)-end:]))
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
