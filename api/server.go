// Package api provides the HTTP API server for finnews.
//
// It serves the analysis document written by a pipeline run: the results
// with filters, the run metadata, per-ticker sentiment aggregates and a
// WebSocket stream of results as they are appended.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ternarybob/arbor"

	"github.com/seenimoa/finnews/internal/analysis/sentiment"
	"github.com/seenimoa/finnews/internal/config"
	"github.com/seenimoa/finnews/internal/infra"
	"github.com/seenimoa/finnews/internal/store"
	"github.com/seenimoa/finnews/internal/tickers"
	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

// Version is reported by the health endpoint. It is set by the CLI.
var Version = "dev"

const documentKey = "document"

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	universe *tickers.Universe
	docs     *infra.Cache[*models.Document]
	wsHub    *WSHub
	logger   arbor.ILogger
	now      func() time.Time
}

// NewServer creates a configured API server with all routes and middleware.
// universe may be nil; it only adds company names to ticker responses.
func NewServer(cfg *config.Config, universe *tickers.Universe, logger arbor.ILogger) *Server {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	ttl := cfg.API.PollInterval
	if ttl <= 0 {
		ttl = 2 * time.Second
	}

	srv := &Server{
		cfg:      cfg,
		universe: universe,
		docs:     infra.NewCache[*models.Document](ttl),
		wsHub:    NewWSHub(logger),
		logger:   logger,
		now:      utils.NowWIB,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// The WebSocket hub and the document watcher run for the same lifetime.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.wsHub.Run(ctx)
	go s.watchDocument(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("document", s.cfg.Data.OutputFile).Msg("api: listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("api: shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Results document
		r.Get("/results", s.handleResults)
		r.Get("/metadata", s.handleMetadata)

		// Ticker aggregates
		r.Get("/tickers", s.handleTickers)
		r.Get("/tickers/{ticker}", s.handleTicker)

		// Configuration
		r.Get("/config", s.handleGetConfig)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// requestLogger logs each request at debug level with its status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("api: request")
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ResultsResponse is returned by GET /api/v1/results.
type ResultsResponse struct {
	Total   int                     `json:"total"`
	Count   int                     `json:"count"`
	Results []models.AnalysisResult `json:"results"`
}

// MetadataResponse is returned by GET /api/v1/metadata.
type MetadataResponse struct {
	models.Metadata
	Results             int     `json:"results"`
	Degraded            int     `json:"degraded"`
	LowConfidence       int     `json:"low_confidence"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Complete            bool    `json:"complete"`
}

// TickerResponse is returned by GET /api/v1/tickers/{ticker}.
type TickerResponse struct {
	sentiment.TickerSentiment
	Company string `json:"company,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":   "ok",
			"version":  Version,
			"time_wib": s.now().Format(time.RFC3339),
			"clients":  s.wsHub.ClientCount(),
		},
	})
}

// handleResults lists results filtered by ticker, sentiment, degraded and
// low_confidence, with optional offset and limit.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w)
	if !ok {
		return
	}

	f, err := parseResultFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	matched := make([]models.AnalysisResult, 0, len(doc.Results))
	for _, res := range doc.Results {
		if f.match(res, s.cfg.Pipeline.ConfidenceThreshold) {
			matched = append(matched, res)
		}
	}

	total := len(matched)
	if f.offset > len(matched) {
		f.offset = len(matched)
	}
	matched = matched[f.offset:]
	if f.limit > 0 && len(matched) > f.limit {
		matched = matched[:f.limit]
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ResultsResponse{Total: total, Count: len(matched), Results: matched},
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w)
	if !ok {
		return
	}

	threshold := s.cfg.Pipeline.ConfidenceThreshold
	resp := MetadataResponse{
		Metadata:            doc.Metadata,
		Results:             len(doc.Results),
		ConfidenceThreshold: threshold,
		Complete:            doc.Complete(),
	}
	for _, res := range doc.Results {
		switch {
		case res.Degraded():
			resp.Degraded++
		case res.Confidence < threshold:
			resp.LowConfidence++
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w)
	if !ok {
		return
	}
	aggs := sentiment.AggregateAll(doc.Results, s.now(), s.cfg.Pipeline.ConfidenceThreshold)
	out := make([]TickerResponse, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, s.tickerResponse(a))
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	symbol := utils.StandardizeTicker(chi.URLParam(r, "ticker"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	doc, ok := s.loadDocument(w)
	if !ok {
		return
	}

	agg := sentiment.Aggregate(symbol, doc.Results, s.now(), s.cfg.Pipeline.ConfidenceThreshold)
	if agg.Articles == 0 && (s.universe == nil || !s.universe.IsValid(symbol)) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no results for ticker %s", symbol))
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.tickerResponse(agg)})
}

func (s *Server) tickerResponse(agg sentiment.TickerSentiment) TickerResponse {
	resp := TickerResponse{TickerSentiment: agg}
	if s.universe != nil {
		resp.Company, _ = s.universe.CompanyName(agg.Ticker)
	}
	return resp
}

// ============================================================
// Document access
// ============================================================

// document returns the current document, re-reading the file at most once
// per poll interval.
func (s *Server) document() (*models.Document, error) {
	return s.docs.GetOrLoad(documentKey, func() (*models.Document, error) {
		return store.ReadDocument(s.cfg.Data.OutputFile)
	})
}

// loadDocument writes a 503 and returns false when no document is readable.
func (s *Server) loadDocument(w http.ResponseWriter) (*models.Document, bool) {
	doc, err := s.document()
	if err != nil {
		s.logger.Warn().Err(err).Msg("api: document unavailable")
		writeError(w, http.StatusServiceUnavailable, "results not available: "+err.Error())
		return nil, false
	}
	return doc, true
}

// ============================================================
// Filters
// ============================================================

type resultFilter struct {
	ticker        string
	sentiment     models.Sentiment
	degraded      *bool
	lowConfidence *bool
	offset        int
	limit         int
}

func parseResultFilter(r *http.Request) (resultFilter, error) {
	q := r.URL.Query()
	var f resultFilter

	if t := q.Get("ticker"); t != "" {
		f.ticker = utils.StandardizeTicker(t)
	}
	if v := q.Get("sentiment"); v != "" {
		s, ok := models.ParseSentiment(v)
		if !ok {
			return f, fmt.Errorf("invalid sentiment %q: want positive, neutral or negative", v)
		}
		f.sentiment = s
	}

	var err error
	if f.degraded, err = parseBoolParam(q.Get("degraded"), "degraded"); err != nil {
		return f, err
	}
	if f.lowConfidence, err = parseBoolParam(q.Get("low_confidence"), "low_confidence"); err != nil {
		return f, err
	}
	if f.offset, err = parseIntParam(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	if f.limit, err = parseIntParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func (f resultFilter) match(r models.AnalysisResult, threshold float64) bool {
	if f.ticker != "" && !r.HasTicker(f.ticker) {
		return false
	}
	if f.sentiment != "" && r.Sentiment != f.sentiment {
		return false
	}
	if f.degraded != nil && r.Degraded() != *f.degraded {
		return false
	}
	if f.lowConfidence != nil && (r.Confidence < threshold) != *f.lowConfidence {
		return false
	}
	return true
}

func parseBoolParam(v, name string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: want true or false", name, v)
	}
	return &b, nil
}

func parseIntParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a non-negative integer", name, v)
	}
	return n, nil
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
