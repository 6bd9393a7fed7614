package infra

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate admits calls to a shared backend. It caps the number of calls in
// flight and, optionally, the rate at which requests are sent.
//
// A caller takes a permit with Acquire and keeps it until Release, however
// many requests it sends in between. Wait is called before each request.
type Gate struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	capacity int64
	inFlight atomic.Int64
}

// NewGate creates a gate admitting at most concurrency holders. A
// requestsPerSecond of zero or less disables rate limiting.
func NewGate(concurrency int, requestsPerSecond float64) *Gate {
	if concurrency < 1 {
		concurrency = 1
	}
	g := &Gate{
		sem:      semaphore.NewWeighted(int64(concurrency)),
		capacity: int64(concurrency),
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return g
}

// Acquire blocks until a permit is available or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	return nil
}

// Release returns a permit taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Wait blocks until the rate limit allows one more request.
func (g *Gate) Wait(ctx context.Context) error {
	if g.limiter == nil {
		return ctx.Err()
	}
	return g.limiter.Wait(ctx)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Capacity returns the maximum number of concurrent holders.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}
