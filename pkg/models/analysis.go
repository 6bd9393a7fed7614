package models

import (
	"strings"
	"time"
)

// Sentiment is the market sentiment label assigned to an article.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment lower-cases s and reports whether it names a known label.
func ParseSentiment(s string) (Sentiment, bool) {
	switch v := Sentiment(strings.ToLower(s)); v {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return v, true
	}
	return SentimentNeutral, false
}

// MaxTickers is the maximum number of tickers attached to one result.
const MaxTickers = 5

// Placeholder texts for a result whose analysis could not complete.
const (
	DegradedReasoning = "Processing error"
	DegradedSummary   = "Article could not be processed"
)

// AnalysisResult is the structured analysis of a single article.
// A degraded result carries a non-empty Error and zero confidence.
type AnalysisResult struct {
	Headline      string    `json:"headline"`
	EffectiveDate LocalTime `json:"effective_date"`
	Sentiment     Sentiment `json:"sentiment"            validate:"oneof=positive neutral negative"`
	Confidence    float64   `json:"confidence"           validate:"gte=0,lte=1"`
	Tickers       []string  `json:"tickers"              validate:"max=5,unique,dive,required"`
	Reasoning     string    `json:"reasoning"`
	Summary       string    `json:"summary"`
	Error         string    `json:"error,omitempty"`
}

// Degraded reports whether r stands in for a failed analysis.
func (r AnalysisResult) Degraded() bool {
	return r.Error != ""
}

// HasTicker reports whether symbol is among r's tickers.
func (r AnalysisResult) HasTicker(symbol string) bool {
	for _, t := range r.Tickers {
		if t == symbol {
			return true
		}
	}
	return false
}

// NewDegradedResult builds the neutral placeholder recorded for an article
// whose analysis failed.
func NewDegradedResult(headline string, date time.Time, err error) AnalysisResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return AnalysisResult{
		Headline:      headline,
		EffectiveDate: LocalTime{date},
		Sentiment:     SentimentNeutral,
		Confidence:    0.0,
		Tickers:       []string{},
		Reasoning:     DegradedReasoning,
		Summary:       DegradedSummary,
		Error:         "Failed to process: " + msg,
	}
}
