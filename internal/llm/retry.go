package llm

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryState is a state of the retry sequence of one completion call.
//
//	Attempting ──success──────────────▶ Succeeded
//	Attempting ──retryable, budget left─▶ Backoff ──slept──▶ Attempting
//	Attempting ──retryable, no budget──▶ Exhausted
//	Attempting ──terminal──────────────▶ Exhausted
//	Backoff    ──cancelled─────────────▶ Exhausted
type RetryState int

const (
	StateAttempting RetryState = iota
	StateBackoff
	StateSucceeded
	StateExhausted
)

func (s RetryState) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s RetryState) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted
}

// Outcome classifies what just happened in the current state.
type Outcome int

const (
	OutcomeSuccess   Outcome = iota // attempt returned a completion
	OutcomeRetryable                // attempt failed, worth retrying
	OutcomeTerminal                 // attempt failed for good, or the caller gave up
	OutcomeSlept                    // backoff delay elapsed
)

// RetryPolicy configures the retry sequence.
type RetryPolicy struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // d
	Multiplier   float64       // b
}

// DefaultRetryPolicy retries three times after 3s, 6s and 12s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: 3 * time.Second, Multiplier: 2}
}

// Delay returns the backoff before retry k (0-based): d·bᵏ.
func (p RetryPolicy) Delay(k int) time.Duration {
	b := p.Multiplier
	if b < 1 {
		b = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(b, float64(k)))
}

// Transition is the retry state machine. retries is the number of retries
// already scheduled.
func (p RetryPolicy) Transition(s RetryState, o Outcome, retries int) RetryState {
	switch s {
	case StateAttempting:
		switch o {
		case OutcomeSuccess:
			return StateSucceeded
		case OutcomeRetryable:
			if retries < p.MaxRetries {
				return StateBackoff
			}
			return StateExhausted
		default:
			return StateExhausted
		}
	case StateBackoff:
		if o == OutcomeSlept {
			return StateAttempting
		}
		return StateExhausted
	}
	return s
}

// retrySequence drives one call through the state machine.
type retrySequence struct {
	policy   RetryPolicy
	state    RetryState
	attempts int
	retries  int
	lastErr  error
}

func newRetrySequence(p RetryPolicy) *retrySequence {
	return &retrySequence{policy: p, state: StateAttempting}
}

// attempted records the result of one attempt.
func (r *retrySequence) attempted(o Outcome, err error) {
	r.attempts++
	if err != nil {
		r.lastErr = err
	}
	r.state = r.policy.Transition(r.state, o, r.retries)
	if r.state == StateBackoff {
		r.retries++
	}
}

// nextDelay is the backoff for the retry just scheduled.
func (r *retrySequence) nextDelay() time.Duration {
	return r.policy.Delay(r.retries - 1)
}

// slept records the end of a backoff; err is non-nil if it was cut short.
func (r *retrySequence) slept(err error) {
	if err != nil {
		r.lastErr = err
		r.state = r.policy.Transition(r.state, OutcomeTerminal, r.retries)
		return
	}
	r.state = r.policy.Transition(r.state, OutcomeSlept, r.retries)
}

func (r *retrySequence) err() error {
	if r.state == StateSucceeded {
		return nil
	}
	return &BackendError{Attempts: r.attempts, Err: r.lastErr}
}

// classify maps an attempt error onto an Outcome. parent is the caller's
// context, not the per-attempt one: a per-attempt timeout is retryable,
// cancellation of the whole call is not.
func classify(parent context.Context, err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if parent.Err() != nil {
		return OutcomeTerminal
	}

	var status *StatusError
	if errors.As(err, &status) {
		if status.Retryable() {
			return OutcomeRetryable
		}
		return OutcomeTerminal
	}

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return OutcomeRetryable
	}

	// Transport failures, including the per-attempt deadline.
	if errors.Is(err, ErrProviderDown) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeRetryable
	}
	return OutcomeTerminal
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
