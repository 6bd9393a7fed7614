package utils

import (
	"regexp"
	"strings"
	"time"
)

// WIB is Western Indonesia Time (UTC+7), the trading zone of the IDX.
var WIB *time.Location

func init() {
	var err error
	WIB, err = time.LoadLocation("Asia/Jakarta")
	if err != nil {
		// Fallback: create fixed zone if tz database is not available
		WIB = time.FixedZone("WIB", 7*60*60)
	}
}

// NowWIB returns the current time in WIB.
func NowWIB() time.Time {
	return time.Now().In(WIB)
}

// ToWIB converts a time.Time to WIB.
func ToWIB(t time.Time) time.Time {
	return t.In(WIB)
}

// publishedLayouts are tried in order by ParseDate. A trailing literal Z is
// matched but the wall clock is kept as published.
var publishedLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
}

var (
	embeddedISODate = regexp.MustCompile(`(\d{4}[-/]\d{1,2}[-/]\d{1,2})`)

	contentDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4})`),
		regexp.MustCompile(`((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`),
	}

	spaceRun = regexp.MustCompile(`\s+`)
)

// ParseDate parses a publication timestamp. Zone-less values are read as WIB.
// It reports false when no known layout or embedded date matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.ParseInLocation(layout, s, WIB); err == nil {
			return t, true
		}
	}

	m := embeddedISODate.FindString(s)
	if m == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-1-2", "2006/1/2"} {
		if t, err := time.ParseInLocation(layout, m, WIB); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EffectiveDate derives the date an article refers to: its published_at
// value if present, otherwise the first recognizable date in content,
// otherwise now.
func EffectiveDate(publishedAt, content string, now func() time.Time) time.Time {
	if now == nil {
		now = NowWIB
	}
	if strings.TrimSpace(publishedAt) != "" {
		if t, ok := ParseDate(publishedAt); ok {
			return t
		}
		return now()
	}

	for _, re := range contentDatePatterns {
		m := re.FindString(content)
		if m == "" {
			continue
		}
		if t, ok := ParseDate(spaceRun.ReplaceAllString(m, " ")); ok {
			return t
		}
	}
	return now()
}
