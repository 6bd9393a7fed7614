// Package pipeline runs the analysis of a batch of articles on a fixed-size
// worker pool and records every result, in completion order, in the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/finnews/internal/agent"
	"github.com/seenimoa/finnews/internal/config"
	"github.com/seenimoa/finnews/internal/store"
	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

// ErrNoArticles is returned by Run for an empty batch.
var ErrNoArticles = errors.New("pipeline: no articles to process")

// Store is where results go. *store.ResultStore implements it.
type Store interface {
	Init(articleCount int, runID string) error
	Append(r models.AnalysisResult) error
	Flush() error
}

var _ Store = (*store.ResultStore)(nil)

// Summary describes a finished run.
type Summary struct {
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Degraded        int           `json:"degraded"`
	PersistFailures int           `json:"persist_failures"`
	Duration        time.Duration `json:"duration"`
}

// Config holds the dependencies of a Pipeline.
type Config struct {
	Analyzer agent.Analyzer
	Store    Store
	Workers  int // defaults to config.DefaultWorkers()
	RunID    string
	Logger   arbor.ILogger
	Now      func() time.Time // clock for dates of cancelled articles
}

// Pipeline analyzes batches of articles.
type Pipeline struct {
	analyzer agent.Analyzer
	store    Store
	workers  int
	runID    string
	logger   arbor.ILogger
	now      func() time.Time
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		analyzer: cfg.Analyzer,
		store:    cfg.Store,
		workers:  cfg.Workers,
		runID:    cfg.RunID,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if p.workers <= 0 {
		p.workers = config.DefaultWorkers()
	}
	if p.logger == nil {
		p.logger = arbor.NewLogger()
	}
	if p.now == nil {
		p.now = utils.NowWIB
	}
	return p
}

// Run analyzes articles and appends one result per article to the store.
// When ctx is cancelled, articles not yet started are recorded as degraded
// results, the store is flushed and ctx.Err() is returned.
func (p *Pipeline) Run(ctx context.Context, articles []models.Article) (Summary, error) {
	start := time.Now()
	total := len(articles)
	if total == 0 {
		return Summary{}, ErrNoArticles
	}
	if err := p.store.Init(total, p.runID); err != nil {
		return Summary{}, fmt.Errorf("pipeline: %w", err)
	}

	p.logger.Info().Int("articles", total).Int("workers", p.workers).Msg("pipeline: starting analysis")

	results := make(chan models.AnalysisResult)
	summary := Summary{Total: total}
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		p.collect(results, &summary)
	}()

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, article := range articles {
		if ctx.Err() != nil {
			results <- p.cancelled(ctx, article)
			continue
		}
		g.Go(func() error {
			results <- p.process(ctx, article)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-collected

	summary.Duration = time.Since(start)
	flushErr := p.store.Flush()
	if flushErr != nil {
		p.logger.Error().Err(flushErr).Msg("pipeline: results could not be persisted")
		flushErr = fmt.Errorf("pipeline: results not persisted: %w", flushErr)
	}

	p.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("degraded", summary.Degraded).
		Int("persist_failures", summary.PersistFailures).
		Dur("duration", summary.Duration).
		Msg("pipeline: analysis finished")

	return summary, errors.Join(ctx.Err(), flushErr)
}

// process runs one task. A panic escaping the analyzer becomes a degraded
// result so the article keeps its slot.
func (p *Pipeline) process(ctx context.Context, article models.Article) (result models.AnalysisResult) {
	if ctx.Err() != nil {
		return p.cancelled(ctx, article)
	}
	defer func() {
		if err := agent.Recovered(recover()); err != nil {
			p.logger.Error().Err(err).Str("headline", article.Headline).Msg("pipeline: worker panicked")
			result = models.NewDegradedResult(article.Headline, p.effectiveDate(article), err)
		}
	}()
	return p.analyzer.Analyze(ctx, article)
}

func (p *Pipeline) cancelled(ctx context.Context, article models.Article) models.AnalysisResult {
	return models.NewDegradedResult(article.Headline, p.effectiveDate(article), ctx.Err())
}

func (p *Pipeline) effectiveDate(article models.Article) time.Time {
	return utils.EffectiveDate(article.PublishedAt, utils.NormalizeText(article.Content), p.now)
}

// collect is the only writer to the store.
func (p *Pipeline) collect(results <-chan models.AnalysisResult, summary *Summary) {
	n := 0
	for r := range results {
		n++
		if r.Degraded() {
			summary.Degraded++
		} else {
			summary.Succeeded++
		}

		err := p.store.Append(r)
		if errors.Is(err, store.ErrInvalidResult) {
			p.logger.Error().Err(err).Str("headline", r.Headline).Msg("pipeline: result rejected, recording degraded result")
			if !r.Degraded() {
				summary.Succeeded--
				summary.Degraded++
			}
			err = p.store.Append(models.NewDegradedResult(r.Headline, r.EffectiveDate.Time, err))
		}
		if err != nil {
			summary.PersistFailures++
			p.logger.Error().Err(err).Str("headline", r.Headline).Msg("pipeline: error saving result")
		}

		p.logger.Info().
			Str("progress", fmt.Sprintf("%d/%d", n, summary.Total)).
			Str("sentiment", string(r.Sentiment)).
			Bool("degraded", r.Degraded()).
			Msg("pipeline: article processed")
	}
}
