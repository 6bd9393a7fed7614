package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/finnews/internal/agent"
	"github.com/seenimoa/finnews/internal/store"
	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

func articles(n int) []models.Article {
	out := make([]models.Article, n)
	for i := range out {
		out[i] = models.Article{
			Headline:    fmt.Sprintf("Berita %d", i),
			Content:     "Isi berita.",
			PublishedAt: "2025-03-14 10:00:00",
		}
	}
	return out
}

// okAnalyzer returns a positive result for every article, or a degraded one
// when the headline ends in an odd digit and degradeOdd is set.
func okAnalyzer(degradeOdd bool) agent.AnalyzerFunc {
	return func(_ context.Context, a models.Article) models.AnalysisResult {
		date, _ := utils.ParseDate(a.PublishedAt)
		if degradeOdd && strings.ContainsAny(a.Headline[len(a.Headline)-1:], "13579") {
			return models.NewDegradedResult(a.Headline, date, errors.New("backend down"))
		}
		return models.AnalysisResult{
			Headline:      a.Headline,
			EffectiveDate: models.LocalTime{Time: date},
			Sentiment:     models.SentimentPositive,
			Confidence:    0.9,
			Tickers:       []string{"BBCA"},
			Reasoning:     "ok",
			Summary:       "ok.",
		}
	}
}

func newStore(t *testing.T) *store.ResultStore {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), "analysis.json"))
}

func TestRunRecordsEveryArticle(t *testing.T) {
	st := newStore(t)
	p := New(Config{Analyzer: okAnalyzer(true), Store: st, Workers: 3, RunID: "run-1"})

	summary, err := p.Run(context.Background(), articles(10))
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 5, summary.Succeeded)
	assert.Equal(t, 5, summary.Degraded)
	assert.Zero(t, summary.PersistFailures)

	doc, err := store.ReadDocument(st.Path())
	require.NoError(t, err)
	assert.Len(t, doc.Results, 10)
	assert.Equal(t, 10, doc.Metadata.ArticleCount)
	assert.Equal(t, "run-1", doc.Metadata.RunID)

	seen := map[string]bool{}
	for _, r := range doc.Results {
		seen[r.Headline] = true
	}
	assert.Len(t, seen, 10)
}

func TestRunRejectsEmptyBatch(t *testing.T) {
	st := newStore(t)
	_, err := New(Config{Analyzer: okAnalyzer(false), Store: st}).Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoArticles)

	_, statErr := os.Stat(st.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunFailsWhenStoreCannotInitialize(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var calls atomic.Int32
	a := agent.AnalyzerFunc(func(ctx context.Context, art models.Article) models.AnalysisResult {
		calls.Add(1)
		return okAnalyzer(false)(ctx, art)
	})
	_, err := New(Config{Analyzer: a, Store: store.New(filepath.Join(blocker, "out.json"))}).Run(context.Background(), articles(2))

	require.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestRunRecoversWorkerPanic(t *testing.T) {
	st := newStore(t)
	a := agent.AnalyzerFunc(func(ctx context.Context, art models.Article) models.AnalysisResult {
		if art.Headline == "Berita 2" {
			panic("unexpected nil")
		}
		return okAnalyzer(false)(ctx, art)
	})

	summary, err := New(Config{Analyzer: a, Store: st, Workers: 2}).Run(context.Background(), articles(4))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Degraded)

	doc, err := store.ReadDocument(st.Path())
	require.NoError(t, err)
	require.Len(t, doc.Results, 4)
	for _, r := range doc.Results {
		if r.Headline == "Berita 2" {
			assert.Contains(t, r.Error, "panic: unexpected nil")
			assert.Equal(t, "2025-03-14T10:00:00", r.EffectiveDate.Format(models.LocalTimeLayout))
		}
	}
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	a := agent.AnalyzerFunc(func(ctx context.Context, art models.Article) models.AnalysisResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return okAnalyzer(false)(ctx, art)
	})

	_, err := New(Config{Analyzer: a, Store: newStore(t), Workers: 2}).Run(context.Background(), articles(8))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunCancellationCompletesDocument(t *testing.T) {
	st := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32
	a := agent.AnalyzerFunc(func(ctx context.Context, art models.Article) models.AnalysisResult {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-ctx.Done()
		return models.NewDegradedResult(art.Headline, time.Now(), ctx.Err())
	})

	go func() {
		<-started
		cancel()
	}()

	summary, err := New(Config{Analyzer: a, Store: st, Workers: 1}).Run(ctx, articles(5))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 5, summary.Degraded)

	doc, err := store.ReadDocument(st.Path())
	require.NoError(t, err)
	require.Len(t, doc.Results, 5)
	assert.True(t, doc.Complete())
	for _, r := range doc.Results {
		assert.Contains(t, r.Error, context.Canceled.Error())
	}
}

// failingStore accepts Init but fails every write.
type failingStore struct {
	appended int
}

func (f *failingStore) Init(int, string) error { return nil }
func (f *failingStore) Append(models.AnalysisResult) error {
	f.appended++
	return errors.New("disk full")
}
func (f *failingStore) Flush() error { return errors.New("disk full") }

func TestRunReportsPersistFailures(t *testing.T) {
	fs := &failingStore{}
	summary, err := New(Config{Analyzer: okAnalyzer(false), Store: fs}).Run(context.Background(), articles(3))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "results not persisted")
	assert.Equal(t, 3, summary.PersistFailures)
	assert.Equal(t, 3, fs.appended)
}

func TestRunReplacesInvalidResult(t *testing.T) {
	st := newStore(t)
	a := agent.AnalyzerFunc(func(ctx context.Context, art models.Article) models.AnalysisResult {
		r := okAnalyzer(false)(ctx, art)
		r.Confidence = 3
		return r
	})

	summary, err := New(Config{Analyzer: a, Store: st}).Run(context.Background(), articles(2))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Degraded)
	assert.Zero(t, summary.PersistFailures)

	doc, err := store.ReadDocument(st.Path())
	require.NoError(t, err)
	require.Len(t, doc.Results, 2)
	assert.Contains(t, doc.Results[0].Error, "invalid result")
}

// signallingStore reports every appended headline on appended.
type signallingStore struct {
	*store.ResultStore
	appended chan string
}

func (s *signallingStore) Append(r models.AnalysisResult) error {
	err := s.ResultStore.Append(r)
	s.appended <- r.Headline
	return err
}

func TestRunAppendsInCompletionOrder(t *testing.T) {
	st := &signallingStore{ResultStore: newStore(t), appended: make(chan string, 2)}
	firstStored := make(chan struct{})
	a := agent.AnalyzerFunc(func(ctx context.Context, art models.Article) models.AnalysisResult {
		if art.Headline == "Berita 0" {
			select {
			case <-firstStored:
			case <-ctx.Done():
			}
		}
		return okAnalyzer(false)(ctx, art)
	})
	go func() {
		// Berita 0 is held until Berita 1 has been stored.
		if <-st.appended == "Berita 1" {
			close(firstStored)
		}
		<-st.appended
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(Config{Analyzer: a, Store: st, Workers: 2}).Run(ctx, articles(2))
	require.NoError(t, err)

	doc, err := store.ReadDocument(st.Path())
	require.NoError(t, err)
	require.Len(t, doc.Results, 2)
	assert.Equal(t, "Berita 1", doc.Results[0].Headline)
	assert.Equal(t, "Berita 0", doc.Results[1].Headline)
}

func TestRunPersistsEachResultBeforeTheRunEnds(t *testing.T) {
	st := newStore(t)
	release := make(chan struct{})
	a := agent.AnalyzerFunc(func(ctx context.Context, art models.Article) models.AnalysisResult {
		if art.Headline == "Berita 2" {
			<-release
		}
		return okAnalyzer(false)(ctx, art)
	})

	done := make(chan error, 1)
	go func() {
		_, err := New(Config{Analyzer: a, Store: st, Workers: 2}).Run(context.Background(), articles(4))
		done <- err
	}()

	var partial *models.Document
	require.Eventually(t, func() bool {
		doc, err := store.ReadDocument(st.Path())
		if err != nil || len(doc.Results) < 3 {
			return false
		}
		partial = doc
		return true
	}, 5*time.Second, 5*time.Millisecond)

	headlines := make([]string, 0, len(partial.Results))
	for _, r := range partial.Results {
		headlines = append(headlines, r.Headline)
	}
	assert.ElementsMatch(t, []string{"Berita 0", "Berita 1", "Berita 3"}, headlines)
	assert.Equal(t, 4, partial.Metadata.ArticleCount)
	assert.False(t, partial.Complete())

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	doc, err := store.ReadDocument(st.Path())
	require.NoError(t, err)
	require.Len(t, doc.Results, 4)
	assert.Equal(t, "Berita 2", doc.Results[3].Headline)
	assert.True(t, doc.Complete())
}
