// Package store persists analysis results incrementally into a single JSON
// document, so partial progress survives an interrupted run.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

var (
	ErrNotInitialized = errors.New("store: not initialized")
	ErrStoreFull      = errors.New("store: document already holds article_count results")
	ErrInvalidResult  = errors.New("store: invalid result")
)

// ResultStore appends results to the document at Path. Every Append
// rewrites the whole document; the in-memory mirror covers unreadable or
// unwritable files so no accepted result is lost.
type ResultStore struct {
	path     string
	logger   arbor.ILogger
	now      func() time.Time
	validate *validator.Validate

	mu    sync.Mutex
	doc   *models.Document
	dirty bool // mirror holds results the file does not
}

// Option configures the store.
type Option func(*ResultStore)

// WithLogger sets the logger.
func WithLogger(l arbor.ILogger) Option {
	return func(s *ResultStore) { s.logger = l }
}

// WithClock sets the clock used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ResultStore) { s.now = now }
}

// New creates a store writing to path. Nothing touches disk until Init.
func New(path string, opts ...Option) *ResultStore {
	s := &ResultStore{
		path:     path,
		now:      utils.NowWIB,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = arbor.NewLogger()
	}
	return s
}

// Path returns the document location.
func (s *ResultStore) Path() string { return s.path }

// Init writes the metadata header with an empty result list, replacing any
// previous document. A failure here is fatal to the run.
func (s *ResultStore) Init(articleCount int, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("store: create output directory: %w", err)
	}

	now := models.LocalTime{Time: s.now()}
	doc := &models.Document{
		Metadata: models.Metadata{
			GeneratedAt:  now,
			ArticleCount: articleCount,
			LastUpdated:  now,
			RunID:        runID,
		},
		Results: []models.AnalysisResult{},
	}
	if err := writeDocument(s.path, doc); err != nil {
		return fmt.Errorf("store: initialize %s: %w", s.path, err)
	}

	s.doc = doc
	s.dirty = false
	s.logger.Info().Str("path", s.path).Int("article_count", articleCount).Msg("store: output initialized")
	return nil
}

// Append adds one result. A write failure is returned, but the result stays
// in the mirror and is persisted by the next successful write or Flush.
func (s *ResultStore) Append(r models.AnalysisResult) error {
	if r.Tickers == nil {
		r.Tickers = []string{}
	}
	if err := s.validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNotInitialized
	}

	doc := s.currentLocked()
	if len(doc.Results) >= doc.Metadata.ArticleCount {
		return fmt.Errorf("%w (%d)", ErrStoreFull, doc.Metadata.ArticleCount)
	}

	doc.Results = append(doc.Results, r)
	now := s.now()
	if now.Before(doc.Metadata.LastUpdated.Time) {
		now = doc.Metadata.LastUpdated.Time
	}
	doc.Metadata.LastUpdated = models.LocalTime{Time: now}
	s.doc = doc

	if err := writeDocument(s.path, doc); err != nil {
		s.dirty = true
		s.logger.Error().Err(err).Str("path", s.path).Int("results", len(doc.Results)).Msg("store: error saving result, kept in memory")
		return fmt.Errorf("store: persist result: %w", err)
	}
	s.dirty = false
	return nil
}

// Flush writes the mirror if it holds results the file lacks.
func (s *ResultStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNotInitialized
	}
	if !s.dirty {
		return nil
	}
	if err := writeDocument(s.path, s.doc); err != nil {
		return fmt.Errorf("store: flush: %w", err)
	}
	s.dirty = false
	s.logger.Info().Str("path", s.path).Int("results", len(s.doc.Results)).Msg("store: pending results flushed")
	return nil
}

// Pending reports whether accepted results are not yet on disk.
func (s *ResultStore) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Snapshot returns a copy of the in-memory document.
func (s *ResultStore) Snapshot() models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return models.Document{Results: []models.AnalysisResult{}}
	}
	return copyDocument(s.doc)
}

// currentLocked returns the document to append to: the file when it is
// readable and not behind the mirror, otherwise a copy of the mirror.
func (s *ResultStore) currentLocked() *models.Document {
	if s.dirty {
		doc := copyDocument(s.doc)
		return &doc
	}
	doc, err := ReadDocument(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("store: reading output failed, using in-memory copy")
		mirror := copyDocument(s.doc)
		return &mirror
	}
	if doc.Results == nil {
		doc.Results = []models.AnalysisResult{}
	}
	return doc
}

// ReadDocument loads the document at path.
func ReadDocument(path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("'%s' is empty", path)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &doc, nil
}

// writeDocument writes doc as indented JSON through a synced temp file in
// the target directory and renames it into place.
func writeDocument(path string, doc *models.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(buf.Bytes()); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func copyDocument(d *models.Document) models.Document {
	out := *d
	out.Results = make([]models.AnalysisResult, len(d.Results))
	copy(out.Results, d.Results)
	return out
}
