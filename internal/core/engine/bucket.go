package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/namelens/chatgate/internal/core"
)

// noRefillWait is reported by TimeToNext when the bucket is empty and has no
// refill rate, so it will never admit another request.
const noRefillWait = time.Hour

// TokenBucket is a local admission controller. It caps the outbound request
// rate independent of upstream limits.
//
// Refill and take happen under one lock, so a bucket may be shared by
// concurrent callers.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	clock      func() time.Time
}

// BucketOption configures a TokenBucket.
type BucketOption func(*TokenBucket)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) BucketOption {
	return func(b *TokenBucket) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithState restores a persisted snapshot. Capacity and rate come from the
// constructor; tokens are clamped to [0, capacity].
func WithState(state core.RateBudget) BucketOption {
	return func(b *TokenBucket) {
		b.tokens = state.Tokens
		b.lastRefill = state.LastRefill
	}
}

// NewTokenBucket returns a full bucket unless WithState restores one.
func NewTokenBucket(capacity, refillPerSecond float64, opts ...BucketOption) *TokenBucket {
	if capacity < 0 {
		capacity = 0
	}
	if refillPerSecond < 0 {
		refillPerSecond = 0
	}
	b := &TokenBucket{
		capacity:   capacity,
		refillRate: refillPerSecond,
		tokens:     capacity,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	b.tokens = math.Max(0, math.Min(b.capacity, b.tokens))
	if now := b.clock(); b.lastRefill.IsZero() || b.lastRefill.After(now) {
		b.lastRefill = now
	}
	return b
}

// TryTake refills the bucket and takes cost tokens if available.
// It never blocks.
func (b *TokenBucket) TryTake(cost float64) bool {
	if b == nil {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= cost {
		b.tokens -= cost
		return true
	}
	return false
}

// TimeToNext returns how long until one token is available.
func (b *TokenBucket) TimeToNext() time.Duration {
	return time.Duration(b.TimeToNextMs()) * time.Millisecond
}

// TimeToNextMs returns the wait in whole milliseconds, rounded up. A partial
// token counts as unavailable.
func (b *TokenBucket) TimeToNextMs() int64 {
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	if b.refillRate <= 0 {
		return noRefillWait.Milliseconds()
	}
	deficit := 1 - b.tokens
	seconds := deficit / b.refillRate
	return int64(math.Ceil(seconds * 1000))
}

// Snapshot returns the current budget after applying any pending refill.
func (b *TokenBucket) Snapshot() core.RateBudget {
	if b == nil {
		return core.RateBudget{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return core.RateBudget{
		Capacity:        b.capacity,
		RefillPerSecond: b.refillRate,
		Tokens:          b.tokens,
		LastRefill:      b.lastRefill,
	}
}

// refill must be called with mu held.
func (b *TokenBucket) refill() {
	now := b.clock()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
	}
	b.lastRefill = now
}

// Admit takes cost tokens, or reports the wait until the next token when
// the bucket is short. It never fails.
func (b *TokenBucket) Admit(_ context.Context, cost float64) (time.Duration, bool, error) {
	if b.TryTake(cost) {
		return 0, true, nil
	}
	return b.TimeToNext(), false, nil
}

// State is Snapshot with the Admitter signature.
func (b *TokenBucket) State(context.Context) (core.RateBudget, error) {
	return b.Snapshot(), nil
}
