package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/finnews/pkg/utils"
)

// LocalTimeLayout is the wire format of timestamps in the result document:
// ISO 8601 local time without zone, fractional seconds only when present.
const LocalTimeLayout = "2006-01-02T15:04:05.999999"

// LocalTime is a time.Time serialized with LocalTimeLayout.
type LocalTime struct {
	time.Time
}

// MarshalJSON implements json.Marshaler. The wall clock is written in WIB
// so UnmarshalJSON reads back the same instant.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	wall := t.Time
	if !wall.IsZero() {
		wall = wall.In(utils.WIB)
	}
	return []byte(`"` + wall.Format(LocalTimeLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Zone-less timestamps are read
// as WIB; timestamps carrying a zone offset are accepted as well.
func (t *LocalTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{LocalTimeLayout, time.RFC3339Nano} {
		if parsed, err := time.ParseInLocation(layout, s, utils.WIB); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("models: invalid timestamp %q", s)
}

// Metadata is the header of the result document.
type Metadata struct {
	GeneratedAt  LocalTime `json:"generated_at"`
	ArticleCount int       `json:"article_count"`
	LastUpdated  LocalTime `json:"last_updated"`
	RunID        string    `json:"run_id,omitempty"`
}

// Document is the persisted output of one pipeline run.
type Document struct {
	Metadata Metadata         `json:"metadata"`
	Results  []AnalysisResult `json:"results"`
}

// Complete reports whether every article of the run has a result.
func (d *Document) Complete() bool {
	return len(d.Results) >= d.Metadata.ArticleCount
}
