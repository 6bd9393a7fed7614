package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/finnews/api"
	"github.com/seenimoa/finnews/internal/config"
	"github.com/seenimoa/finnews/internal/llm"
	"github.com/seenimoa/finnews/internal/tickers"
	"github.com/seenimoa/finnews/pkg/utils"
)

// --- Serve Command (API Server) ---

func newServeCmd(a *app) *cobra.Command {
	var addr, output string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the results API server",
		Long: `Serve the results document over HTTP and stream newly appended results
to WebSocket clients at /api/v1/ws.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				a.cfg.Data.OutputFile = output
			}
			if addr == "" {
				addr = fmt.Sprintf("%s:%d", a.cfg.API.Host, a.cfg.API.Port)
			}
			universe := tickers.Load(a.cfg.Data.TickerFile, a.logger)
			srv := api.NewServer(a.cfg, universe, a.logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", a.cfg.Data.OutputFile, addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: api.host:api.port)")
	cmd.Flags().StringVar(&output, "output", "", "results document to serve (default: data.output_file)")
	return cmd
}

// --- Status Command ---

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and backend status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			universe := tickers.Load(a.cfg.Data.TickerFile, a.logger)
			client := llm.NewClientFromConfig(a.cfg.LLM, a.logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			printStatus(cmd.OutOrStdout(), a.cfg, universe, client.Ping(ctx))
			return nil
		},
	}
}

func printStatus(out io.Writer, cfg *config.Config, universe *tickers.Universe, pingErr error) {
	fmt.Fprintln(out, "═══════════════════════════════════════")
	fmt.Fprintln(out, "  finnews: System Status")
	fmt.Fprintln(out, "═══════════════════════════════════════")
	fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
	fmt.Fprintf(out, "  Time (WIB):    %s\n", utils.NowWIB().Format("2006-01-02 15:04:05"))
	if cfg.File != "" {
		fmt.Fprintf(out, "  Config File:   %s\n", cfg.File)
	}
	fmt.Fprintln(out)

	// Config summary
	fmt.Fprintln(out, "  Configuration:")
	fmt.Fprintf(out, "    Backend:       %s (model: %s)\n", cfg.LLM.APIURL, cfg.LLM.Model)
	fmt.Fprintf(out, "    Concurrency:   %d requests, %d workers\n", cfg.LLM.MaxConcurrentRequests, cfg.Pipeline.Workers)
	fmt.Fprintf(out, "    Retries:       %d (delay %s, backoff x%.1f)\n", cfg.LLM.MaxRetries, cfg.LLM.RetryDelay, cfg.LLM.RetryBackoff)
	fmt.Fprintf(out, "    Output:        %s\n", cfg.Data.OutputFile)
	fmt.Fprintf(out, "    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)

	tickerStatus := fmt.Sprintf("%d from %s", universe.Len(), cfg.Data.TickerFile)
	if universe.Degraded() {
		tickerStatus = fmt.Sprintf("%d (built-in fallback)", universe.Len())
	}
	fmt.Fprintf(out, "    Tickers:       %s\n", tickerStatus)
	fmt.Fprintln(out)

	// API keys status
	fmt.Fprintln(out, "  API Keys:")
	for _, k := range config.CheckAPIKeys(cfg) {
		status := "❌ not set"
		if k.IsSet {
			status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
		}
		fmt.Fprintf(out, "    %-25s %s\n", k.Name+":", status)
	}
	fmt.Fprintln(out)

	backend := "✅ reachable"
	if pingErr != nil {
		backend = fmt.Sprintf("❌ %v", pingErr)
	}
	fmt.Fprintf(out, "  Backend:         %s\n", backend)
	fmt.Fprintln(out, "═══════════════════════════════════════")
}
