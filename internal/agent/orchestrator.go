package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/finnews/internal/agent/prompts"
	"github.com/seenimoa/finnews/internal/analysis"
	"github.com/seenimoa/finnews/internal/config"
	"github.com/seenimoa/finnews/internal/llm"
	"github.com/seenimoa/finnews/internal/tickers"
	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

// Orchestrator analyzes articles with a classification request and a
// summarization request that run concurrently and are merged into one
// result. It is safe for concurrent use.
type Orchestrator struct {
	generator llm.Generator
	universe  *tickers.Universe
	text      config.TextConfig
	logger    arbor.ILogger
	now       func() time.Time

	classificationPrompt string
}

var _ Analyzer = (*Orchestrator)(nil)

// OrchestratorConfig holds configuration for creating an Orchestrator.
type OrchestratorConfig struct {
	Generator llm.Generator
	Universe  *tickers.Universe
	Text      config.TextConfig
	Logger    arbor.ILogger
	Now       func() time.Time // defaults to utils.NowWIB
}

// NewOrchestrator creates an Orchestrator. The classification system prompt
// is rendered once from the first prompts.TickerSampleSize universe entries.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		generator: cfg.Generator,
		universe:  cfg.Universe,
		text:      cfg.Text,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if o.universe == nil {
		o.universe = tickers.Fallback()
	}
	if o.logger == nil {
		o.logger = arbor.NewLogger()
	}
	if o.now == nil {
		o.now = utils.NowWIB
	}
	o.classificationPrompt = prompts.ClassificationSystemPrompt(o.universe.Sample(prompts.TickerSampleSize))
	return o
}

// Analyze runs the full analysis of one article. Any failure, including a
// panic, yields a degraded result carrying the error.
func (o *Orchestrator) Analyze(ctx context.Context, article models.Article) (result models.AnalysisResult) {
	var date time.Time
	defer func() {
		if err := Recovered(recover()); err != nil {
			if date.IsZero() {
				date = o.now()
			}
			o.logger.Error().Err(err).Str("headline", article.Headline).Msg("agent: analysis panicked")
			result = models.NewDegradedResult(article.Headline, date, err)
		}
	}()

	headline := utils.NormalizeText(article.Headline)
	content := utils.NormalizeText(article.Content)
	date = utils.EffectiveDate(article.PublishedAt, content, o.now)

	start := time.Now()
	res, err := o.analyze(ctx, headline, content)
	if err != nil {
		o.logger.Warn().Err(err).Str("headline", article.Headline).Msg("agent: analysis failed, recording degraded result")
		return models.NewDegradedResult(article.Headline, date, err)
	}

	res.Headline = article.Headline
	res.EffectiveDate = models.LocalTime{Time: date}
	o.logger.Debug().
		Str("headline", article.Headline).
		Str("sentiment", string(res.Sentiment)).
		Strs("tickers", res.Tickers).
		Dur("elapsed", time.Since(start)).
		Msg("agent: article analyzed")
	return res
}

// analyze issues both requests and merges them. headline and content are
// normalized but not truncated.
func (o *Orchestrator) analyze(ctx context.Context, headline, content string) (models.AnalysisResult, error) {
	hint, company := o.headlineHint(headline)

	boundedContent := utils.Truncate(content, o.text.MaxContentLength, o.text.PreserveStartChars, o.text.PreserveEndChars)
	boundedHeadline := utils.Truncate(headline, o.text.MaxHeadlineLength, o.text.MaxHeadlineLength, 0)

	var (
		fields  analysis.Fields
		summary string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(guard(func() error {
		f, err := o.classify(gctx, boundedHeadline, boundedContent, hint, company)
		if err != nil {
			return fmt.Errorf("classification: %w", err)
		}
		fields = f
		return nil
	}))

	g.Go(guard(func() error {
		s, err := o.summarize(gctx, headline, content)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		summary = s
		return nil
	}))

	if err := g.Wait(); err != nil {
		return models.AnalysisResult{}, err
	}

	return models.AnalysisResult{
		Sentiment:  fields.Sentiment,
		Confidence: fields.Confidence,
		Tickers:    fields.Tickers,
		Reasoning:  fields.Reasoning,
		Summary:    summary,
	}, nil
}

// headlineHint returns the leading "XXXX:" symbol of the headline when it
// is listed, with its company name.
func (o *Orchestrator) headlineHint(headline string) (string, string) {
	symbol, ok := utils.HeadlineTicker(headline)
	if !ok || !o.universe.IsValid(symbol) {
		return "", ""
	}
	company, _ := o.universe.CompanyName(symbol)
	return symbol, company
}

func (o *Orchestrator) classify(ctx context.Context, headline, content, hint, company string) (analysis.Fields, error) {
	user := prompts.ClassificationUserPrompt(headline, content, hint, company)
	text, err := o.generator.Complete(ctx, o.classificationPrompt, user, prompts.ClassificationTemperature, 0)
	if err != nil {
		return analysis.Fields{}, err
	}

	raw, err := analysis.Parse(text)
	if err != nil {
		return analysis.Fields{}, err
	}

	fields, defaults := analysis.NormalizeWithReport(raw, hint, o.universe)
	for _, d := range defaults {
		o.logger.Warn().
			Str("field", d.Field).
			Str("value", fmt.Sprint(d.Value)).
			Str("note", d.Note).
			Msg("analysis: field defaulted")
	}
	return fields, nil
}

func (o *Orchestrator) summarize(ctx context.Context, headline, content string) (string, error) {
	user := prompts.SummaryUserPrompt(headline, content)
	text, err := o.generator.Complete(ctx, prompts.SummarySystemPrompt, user, prompts.SummaryTemperature, 0)
	if err != nil {
		return "", err
	}
	return analysis.CleanSummary(text), nil
}
