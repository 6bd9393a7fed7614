// Package sentiment aggregates article-level analysis results into a
// per-ticker sentiment view.
package sentiment

import (
	"math"
	"sort"
	"time"

	"github.com/seenimoa/finnews/pkg/models"
)

// Labels assigned to an aggregate score.
const (
	LabelBullish         = "Bullish"
	LabelSlightlyBullish = "Slightly Bullish"
	LabelNeutral         = "Neutral"
	LabelSlightlyBearish = "Slightly Bearish"
	LabelBearish         = "Bearish"
)

// HalfLife is the age at which an article's weight halves.
const HalfLife = 24 * time.Hour

// TickerSentiment is the aggregate over the non-degraded results that
// mention one ticker.
type TickerSentiment struct {
	Ticker         string            `json:"ticker"`
	Articles       int               `json:"articles"`
	Positive       int               `json:"positive"`
	Neutral        int               `json:"neutral"`
	Negative       int               `json:"negative"`
	MeanConfidence float64           `json:"mean_confidence"`
	LowConfidence  int               `json:"low_confidence"`
	Score          float64           `json:"score"`
	Label          string            `json:"label"`
	Latest         *models.LocalTime `json:"latest,omitempty"`
}

// Score maps a sentiment label onto -1, 0 or +1.
func Score(s models.Sentiment) float64 {
	switch s {
	case models.SentimentPositive:
		return 1
	case models.SentimentNegative:
		return -1
	}
	return 0
}

// Label names an aggregate score in [-1, 1].
func Label(score float64) string {
	switch {
	case score > 0.3:
		return LabelBullish
	case score > 0.1:
		return LabelSlightlyBullish
	case score < -0.3:
		return LabelBearish
	case score < -0.1:
		return LabelSlightlyBearish
	}
	return LabelNeutral
}

// Aggregate computes the sentiment of ticker across results. Each result is
// weighted by its confidence and decays with the age of its effective date
// relative to now. Results with a confidence below lowConfidence are
// counted in LowConfidence but still contribute.
func Aggregate(ticker string, results []models.AnalysisResult, now time.Time, lowConfidence float64) TickerSentiment {
	agg := TickerSentiment{Ticker: ticker, Label: LabelNeutral}

	weightedSum := 0.0
	totalWeight := 0.0
	confSum := 0.0

	for _, r := range results {
		if r.Degraded() || !r.HasTicker(ticker) {
			continue
		}
		agg.Articles++
		switch r.Sentiment {
		case models.SentimentPositive:
			agg.Positive++
		case models.SentimentNegative:
			agg.Negative++
		default:
			agg.Neutral++
		}
		if r.Confidence < lowConfidence {
			agg.LowConfidence++
		}
		confSum += r.Confidence

		if agg.Latest == nil || r.EffectiveDate.After(agg.Latest.Time) {
			latest := r.EffectiveDate
			agg.Latest = &latest
		}

		age := now.Sub(r.EffectiveDate.Time)
		if age < 0 {
			age = 0
		}
		w := decay(age) * r.Confidence
		weightedSum += Score(r.Sentiment) * w
		totalWeight += w
	}

	if agg.Articles == 0 {
		return agg
	}
	agg.MeanConfidence = confSum / float64(agg.Articles)
	if totalWeight > 0 {
		agg.Score = weightedSum / totalWeight
	}
	agg.Label = Label(agg.Score)
	return agg
}

// AggregateAll aggregates every ticker mentioned by a non-degraded result,
// most mentioned first, ties by symbol.
func AggregateAll(results []models.AnalysisResult, now time.Time, lowConfidence float64) []TickerSentiment {
	seen := map[string]bool{}
	var symbols []string
	for _, r := range results {
		if r.Degraded() {
			continue
		}
		for _, t := range r.Tickers {
			if !seen[t] {
				seen[t] = true
				symbols = append(symbols, t)
			}
		}
	}

	out := make([]TickerSentiment, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, Aggregate(s, results, now, lowConfidence))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Articles != out[j].Articles {
			return out[i].Articles > out[j].Articles
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

func decay(age time.Duration) float64 {
	return math.Exp(-math.Ln2 * age.Hours() / HalfLife.Hours())
}
