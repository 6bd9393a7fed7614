package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/seenimoa/finnews/internal/agent"
	"github.com/seenimoa/finnews/internal/config"
	"github.com/seenimoa/finnews/internal/datasource"
	"github.com/seenimoa/finnews/internal/llm"
	"github.com/seenimoa/finnews/internal/pipeline"
	"github.com/seenimoa/finnews/internal/store"
	"github.com/seenimoa/finnews/internal/tickers"
	"github.com/seenimoa/finnews/pkg/models"
)

type analyzeOptions struct {
	input        string
	feeds        []string
	defaultFeeds bool
	output       string
	workers      int
	tickers      string
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a batch of news articles",
		Long: `Analyze every article of a JSON file or of RSS/Atom feeds and write
the results document incrementally as articles complete.

Examples:
  finnews analyze --input data/news.json
  finnews analyze --feed https://www.idxchannel.com/rss --workers 2
  finnews analyze --default-feeds --output output/today.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.apply(a.cfg)
			return runAnalyze(cmd.Context(), a.cfg, a.logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "articles JSON file (default: data.input_file)")
	cmd.Flags().StringSliceVar(&opts.feeds, "feed", nil, "RSS/Atom feed URL, repeatable; takes precedence over --input")
	cmd.Flags().BoolVar(&opts.defaultFeeds, "default-feeds", false, "fetch the built-in Indonesian market feeds")
	cmd.Flags().StringVar(&opts.output, "output", "", "results document path (default: data.output_file)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "articles analyzed concurrently (default: pipeline.workers)")
	cmd.Flags().StringVar(&opts.tickers, "tickers", "", "ticker-company mapping file (default: data.ticker_file)")
	return cmd
}

// apply overrides the config with the flags that were set.
func (o analyzeOptions) apply(cfg *config.Config) {
	if o.input != "" {
		cfg.Data.InputFile = o.input
	}
	if o.output != "" {
		cfg.Data.OutputFile = o.output
	}
	if o.workers > 0 {
		cfg.Pipeline.Workers = o.workers
	}
	if o.tickers != "" {
		cfg.Data.TickerFile = o.tickers
	}
	switch {
	case len(o.feeds) > 0:
		cfg.Data.Feeds = o.feeds
	case o.defaultFeeds:
		cfg.Data.Feeds = datasource.DefaultFeeds
	case o.input != "":
		cfg.Data.Feeds = nil
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, logger arbor.ILogger, out io.Writer) error {
	runID := uuid.NewString()
	logger = logger.WithCorrelationId(runID)

	articles, err := loadArticles(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info().Int("articles", len(articles)).Msg("Articles loaded")

	client := llm.NewClientFromConfig(cfg.LLM, logger)
	universe := tickers.Load(cfg.Data.TickerFile, logger)
	orchestrator := agent.NewOrchestrator(agent.OrchestratorConfig{
		Generator: client,
		Universe:  universe,
		Text:      cfg.Text,
		Logger:    logger,
	})
	results := store.New(cfg.Data.OutputFile, store.WithLogger(logger))

	p := pipeline.New(pipeline.Config{
		Analyzer: orchestrator,
		Store:    results,
		Workers:  cfg.Pipeline.Workers,
		RunID:    runID,
		Logger:   logger,
	})

	summary, err := p.Run(ctx, articles)
	fmt.Fprintf(out, "Run %s: %d articles, %d analyzed, %d degraded in %s\n",
		runID, summary.Total, summary.Succeeded, summary.Degraded, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Results: %s\n", results.Path())

	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("analysis interrupted: %w", err)
	case err != nil:
		return err
	case summary.PersistFailures > 0 && results.Pending():
		return fmt.Errorf("%d results could not be persisted", summary.PersistFailures)
	}
	return nil
}

// loadArticles reads the batch from the configured feeds, or from the input
// file when no feed is configured.
func loadArticles(ctx context.Context, cfg *config.Config, logger arbor.ILogger) ([]models.Article, error) {
	if len(cfg.Data.Feeds) > 0 {
		feed := datasource.NewFeed(datasource.WithFeedLogger(logger))
		articles, err := feed.Fetch(ctx, cfg.Data.Feeds)
		if err != nil {
			return nil, fmt.Errorf("fetch feeds: %w", err)
		}
		return articles, nil
	}
	if cfg.Data.InputFile == "" {
		return nil, errors.New("no input: set --input, --feed or data.input_file")
	}
	return datasource.LoadArticlesFile(cfg.Data.InputFile)
}
