// Package analysis turns raw completion text from the generation backend
// into validated analysis fields.
//
// Parsing and normalization are pure functions: they never log and never
// touch shared state. Corrections are reported as Defaults so callers can
// log them where they have a logger.
package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

// DefaultConfidence replaces a missing or non-numeric confidence.
const DefaultConfidence = 0.5

var jsonObjectSpan = regexp.MustCompile(`(?s)\{.*\}`)

// ParseError reports completion text with no extractable JSON object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("analysis: no JSON object in completion: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RawFields is the decoded, not yet validated, JSON object.
type RawFields map[string]any

// Fields are the validated classification fields of an analysis.
type Fields struct {
	Sentiment  models.Sentiment `json:"sentiment"`
	Confidence float64          `json:"confidence"`
	Tickers    []string         `json:"tickers"`
	Reasoning  string           `json:"reasoning"`
}

// Default records a field that was present but invalid, or absent, and was
// replaced. It is not an error.
type Default struct {
	Field string
	Value any
	Note  string
}

func (d Default) String() string {
	return fmt.Sprintf("%s: %s (got %v)", d.Field, d.Note, d.Value)
}

// TickerSet is the subset of the ticker universe the validator needs.
type TickerSet interface {
	IsValid(symbol string) bool
}

// Parse extracts the JSON object from completion text. Text that does not
// start with '{' is searched for the widest {...} span.
func Parse(raw string) (RawFields, error) {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "{") {
		span := jsonObjectSpan.FindString(text)
		if span == "" {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("no object delimiters")}
		}
		text = span
	}

	var fields RawFields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if fields == nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("null object")}
	}
	return fields, nil
}

// Normalize validates raw against the ticker universe. hint is a symbol
// taken from the headline, already known to be valid, or "".
func Normalize(raw RawFields, hint string, universe TickerSet) Fields {
	f, _ := NormalizeWithReport(raw, hint, universe)
	return f
}

// NormalizeWithReport is Normalize that also returns every corrected field.
func NormalizeWithReport(raw RawFields, hint string, universe TickerSet) (Fields, []Default) {
	var defaults []Default
	var f Fields

	// sentiment
	s, isStr := raw["sentiment"].(string)
	sentiment, ok := models.ParseSentiment(s)
	if !isStr || !ok {
		defaults = append(defaults, Default{"sentiment", raw["sentiment"], "defaulting to neutral"})
	}
	f.Sentiment = sentiment

	// confidence
	if c, ok := raw["confidence"].(float64); ok {
		f.Confidence = clampUnit(c)
		if f.Confidence != c {
			defaults = append(defaults, Default{"confidence", c, "clamped to [0,1]"})
		}
	} else {
		f.Confidence = DefaultConfidence
		defaults = append(defaults, Default{"confidence", raw["confidence"], "defaulting to 0.5"})
	}

	// tickers
	var candidates []any
	switch v := raw["tickers"].(type) {
	case []any:
		candidates = v
	default:
		defaults = append(defaults, Default{"tickers", v, "defaulting to empty list"})
	}
	f.Tickers = normalizeTickers(candidates, hint, universe, &defaults)

	// reasoning
	if r, ok := raw["reasoning"].(string); ok {
		f.Reasoning = r
	} else {
		defaults = append(defaults, Default{"reasoning", raw["reasoning"], "defaulting to empty string"})
	}

	return f, defaults
}

func normalizeTickers(candidates []any, hint string, universe TickerSet, defaults *[]Default) []string {
	out := make([]string, 0, models.MaxTickers)
	seen := make(map[string]bool, len(candidates)+1)

	for _, c := range candidates {
		s, ok := c.(string)
		if !ok {
			*defaults = append(*defaults, Default{"tickers", c, "removed non-string ticker"})
			continue
		}
		symbol := utils.StandardizeTicker(s)
		if !universe.IsValid(symbol) {
			*defaults = append(*defaults, Default{"tickers", symbol, "removed invalid ticker"})
			continue
		}
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}

	if hint != "" && !seen[hint] {
		out = append([]string{hint}, out...)
	}
	if len(out) > models.MaxTickers {
		out = out[:models.MaxTickers]
	}
	return out
}

// Raw converts validated fields back into RawFields, so that normalizing
// them again is a no-op.
func (f Fields) Raw() RawFields {
	tickers := make([]any, len(f.Tickers))
	for i, t := range f.Tickers {
		tickers[i] = t
	}
	return RawFields{
		"sentiment":  string(f.Sentiment),
		"confidence": f.Confidence,
		"tickers":    tickers,
		"reasoning":  f.Reasoning,
	}
}

func clampUnit(v float64) float64 {
	switch {
	case v != v: // NaN
		return DefaultConfidence
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
