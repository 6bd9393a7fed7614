package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

func result(headline string) models.AnalysisResult {
	return models.AnalysisResult{
		Headline:      headline,
		EffectiveDate: models.LocalTime{Time: time.Date(2025, 3, 14, 0, 0, 0, 0, utils.WIB)},
		Sentiment:     models.SentimentPositive,
		Confidence:    0.8,
		Tickers:       []string{"BBCA"},
		Reasoning:     "Laba naik.",
		Summary:       "Laba BBCA naik.",
	}
}

// tickingClock advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T, opts ...Option) *ResultStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out", "analysis.json")
	return New(path, opts...)
}

func TestInitWritesHeader(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(3, "run-1"))

	doc, err := ReadDocument(s.Path())
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Metadata.ArticleCount)
	assert.Equal(t, "run-1", doc.Metadata.RunID)
	assert.NotNil(t, doc.Results)
	assert.Empty(t, doc.Results)
	assert.False(t, doc.Complete())
}

func TestInitFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := New(filepath.Join(blocker, "analysis.json"))
	assert.Error(t, s.Init(1, ""))
}

func TestAppendNResults(t *testing.T) {
	const n = 5
	s := newTestStore(t, WithClock(tickingClock(time.Date(2025, 3, 20, 9, 0, 0, 0, utils.WIB))))
	require.NoError(t, s.Init(n, "run"))

	for i := 0; i < n; i++ {
		require.NoError(t, s.Append(result(fmt.Sprintf("berita %d", i))))
	}

	doc, err := ReadDocument(s.Path())
	require.NoError(t, err)
	assert.Len(t, doc.Results, n)
	assert.Equal(t, n, doc.Metadata.ArticleCount)
	assert.True(t, doc.Complete())
	assert.Equal(t, "berita 0", doc.Results[0].Headline)
	assert.Equal(t, "berita 4", doc.Results[4].Headline)
	assert.True(t, doc.Metadata.LastUpdated.After(doc.Metadata.GeneratedAt.Time))

	assert.ErrorIs(t, s.Append(result("extra")), ErrStoreFull)
	assert.Len(t, s.Snapshot().Results, n)
}

func TestAppendBeforeInit(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Append(result("x")), ErrNotInitialized)
	assert.ErrorIs(t, s.Flush(), ErrNotInitialized)
}

func TestAppendRejectsInvalidResult(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(2, ""))

	bad := result("x")
	bad.Confidence = 1.5
	assert.ErrorIs(t, s.Append(bad), ErrInvalidResult)

	bad = result("x")
	bad.Sentiment = "bullish"
	assert.ErrorIs(t, s.Append(bad), ErrInvalidResult)

	bad = result("x")
	bad.Tickers = []string{"A", "B", "C", "D", "E", "F"}
	assert.ErrorIs(t, s.Append(bad), ErrInvalidResult)

	assert.Empty(t, s.Snapshot().Results)
}

func TestAppendNilTickersWrittenAsEmptyList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(1, ""))

	r := result("x")
	r.Tickers = nil
	require.NoError(t, s.Append(r))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tickers": []`)
}

func TestLastUpdatedIsMonotonic(t *testing.T) {
	base := time.Date(2025, 3, 20, 9, 0, 0, 0, utils.WIB)
	times := []time.Time{base, base.Add(10 * time.Second), base.Add(5 * time.Second)}
	var i int
	clock := func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}

	s := newTestStore(t, WithClock(clock))
	require.NoError(t, s.Init(2, ""))
	require.NoError(t, s.Append(result("a")))
	require.NoError(t, s.Append(result("b")))

	doc, err := ReadDocument(s.Path())
	require.NoError(t, err)
	assert.True(t, doc.Metadata.LastUpdated.Equal(base.Add(10*time.Second)), doc.Metadata.LastUpdated)
}

func TestAppendFallsBackToMirrorOnMalformedFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(3, ""))
	require.NoError(t, s.Append(result("a")))

	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))
	require.NoError(t, s.Append(result("b")))

	doc, err := ReadDocument(s.Path())
	require.NoError(t, err)
	require.Len(t, doc.Results, 2)
	assert.Equal(t, "a", doc.Results[0].Headline)
	assert.Equal(t, "b", doc.Results[1].Headline)
}

func TestWriteFailureKeepsResultUntilFlush(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(3, ""))
	require.NoError(t, s.Append(result("a")))

	// A non-empty directory at the target path makes both read and rename fail.
	require.NoError(t, os.Remove(s.Path()))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Path(), "blocker"), 0o755))

	err := s.Append(result("b"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStoreFull))
	assert.True(t, s.Pending())
	assert.Len(t, s.Snapshot().Results, 2)

	require.NoError(t, os.RemoveAll(s.Path()))
	require.NoError(t, s.Append(result("c")))
	assert.False(t, s.Pending())

	doc, err := ReadDocument(s.Path())
	require.NoError(t, err)
	require.Len(t, doc.Results, 3)
	assert.Equal(t, "b", doc.Results[1].Headline)
}

func TestFlushPersistsPendingResults(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(2, ""))

	require.NoError(t, os.Remove(s.Path()))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Path(), "blocker"), 0o755))
	require.Error(t, s.Append(result("a")))
	assert.Error(t, s.Flush())

	require.NoError(t, os.RemoveAll(s.Path()))
	require.NoError(t, s.Flush())
	assert.False(t, s.Pending())

	doc, err := ReadDocument(s.Path())
	require.NoError(t, err)
	assert.Len(t, doc.Results, 1)
	assert.NoError(t, s.Flush())
}

func TestConcurrentAppends(t *testing.T) {
	const n = 40
	s := newTestStore(t)
	require.NoError(t, s.Init(n, ""))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(result(fmt.Sprintf("berita %d", i))))
		}(i)
	}
	wg.Wait()

	doc, err := ReadDocument(s.Path())
	require.NoError(t, err)
	assert.Len(t, doc.Results, n)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), ".*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestReadDocumentErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadDocument(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = ReadDocument(empty)
	assert.Error(t, err)
}
