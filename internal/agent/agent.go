// Package agent turns one news article into an AnalysisResult by combining
// a classification call and a summarization call to the generation backend.
package agent

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/seenimoa/finnews/pkg/models"
)

// ── Analyzer Interface ──

// Analyzer produces the analysis of a single article. Implementations never
// return an error: failures are reported as degraded results.
type Analyzer interface {
	Analyze(ctx context.Context, article models.Article) models.AnalysisResult
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, article models.Article) models.AnalysisResult

// Analyze calls f(ctx, article).
func (f AnalyzerFunc) Analyze(ctx context.Context, article models.Article) models.AnalysisResult {
	return f(ctx, article)
}

// ── Panics ──

// PanicError is a recovered panic converted into an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recovered converts the value returned by recover into a *PanicError.
// It returns nil when v is nil.
func Recovered(v any) error {
	if v == nil {
		return nil
	}
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// guard runs fn and turns a panic into an error, for use inside goroutines
// where the caller's recover cannot reach.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if perr := Recovered(recover()); perr != nil {
				err = perr
			}
		}()
		return fn()
	}
}
