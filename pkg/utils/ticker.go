package utils

import (
	"regexp"
	"strings"
)

var (
	tickerJunk     = regexp.MustCompile(`[^A-Za-z0-9.]`)
	headlineTicker = regexp.MustCompile(`^([A-Z]{4}):`)
)

// StandardizeTicker removes every character other than letters, digits and
// '.' and upper-cases the rest. "bbca.jk " becomes "BBCA.JK".
func StandardizeTicker(s string) string {
	return strings.ToUpper(tickerJunk.ReplaceAllString(s, ""))
}

// HeadlineTicker extracts a leading four-letter "XXXX:" prefix from a
// headline. Whether the symbol is listed is the caller's concern.
func HeadlineTicker(headline string) (string, bool) {
	m := headlineTicker.FindStringSubmatch(headline)
	if m == nil {
		return "", false
	}
	return m[1], true
}
