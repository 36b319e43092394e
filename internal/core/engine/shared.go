package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/namelens/chatgate/internal/core"
)

// Admitter decides whether a request may proceed. TokenBucket admits
// in-process; SharedBucket admits against state held by a BudgetBackend.
type Admitter interface {
	// Admit takes cost tokens. When it returns false the duration is the
	// wait until one token is available.
	Admit(ctx context.Context, cost float64) (time.Duration, bool, error)
	State(ctx context.Context) (core.RateBudget, error)
}

var (
	_ Admitter = (*TokenBucket)(nil)
	_ Admitter = (*SharedBucket)(nil)
)

// BudgetBackend stores admission state outside the process.
type BudgetBackend interface {
	// GetBudget returns nil when the bucket has no saved state.
	GetBudget(ctx context.Context, bucket string) (*core.RateBudget, error)
	// SwapBudget writes next only if the stored state still equals old
	// (tokens and last refill), or is absent when old is nil.
	SwapBudget(ctx context.Context, bucket string, old *core.RateBudget, next core.RateBudget) (bool, error)
}

const defaultMaxSwaps = 32

// ErrBudgetContended is returned when every compare-and-swap round lost to
// another writer.
var ErrBudgetContended = errors.New("admission state is contended")

// SharedBucket is a token bucket whose state lives in a BudgetBackend. Each
// Admit reads the state, refills and takes locally, and commits with a
// compare-and-swap, so concurrent processes never spend the same token.
type SharedBucket struct {
	Backend         BudgetBackend
	Bucket          string
	Capacity        float64
	RefillPerSecond float64

	Clock func() time.Time
	// MaxSwaps bounds the compare-and-swap rounds per Admit. Zero means 32.
	MaxSwaps int
}

// Admit implements Admitter. A denial does not write to the backend.
func (s *SharedBucket) Admit(ctx context.Context, cost float64) (time.Duration, bool, error) {
	if s == nil || s.Backend == nil {
		return 0, false, errors.New("shared budget is not configured")
	}

	rounds := s.MaxSwaps
	if rounds <= 0 {
		rounds = defaultMaxSwaps
	}
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}

		saved, local, err := s.load(ctx)
		if err != nil {
			return 0, false, err
		}
		if !local.TryTake(cost) {
			return local.TimeToNext(), false, nil
		}

		swapped, err := s.Backend.SwapBudget(ctx, s.Bucket, saved, local.Snapshot())
		if err != nil {
			return 0, false, fmt.Errorf("commit admission state: %w", err)
		}
		if swapped {
			return 0, true, nil
		}
	}
	return 0, false, ErrBudgetContended
}

// State returns the stored budget refilled to now without writing it back.
func (s *SharedBucket) State(ctx context.Context) (core.RateBudget, error) {
	if s == nil || s.Backend == nil {
		return core.RateBudget{}, errors.New("shared budget is not configured")
	}
	_, local, err := s.load(ctx)
	if err != nil {
		return core.RateBudget{}, err
	}
	return local.Snapshot(), nil
}

// load rebuilds a bucket from the stored state, frozen at one instant so the
// refill and the take agree.
func (s *SharedBucket) load(ctx context.Context) (*core.RateBudget, *TokenBucket, error) {
	saved, err := s.Backend.GetBudget(ctx, s.Bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("load admission state: %w", err)
	}
	now := s.now()
	opts := []BucketOption{WithClock(func() time.Time { return now })}
	if saved != nil {
		opts = append(opts, WithState(*saved))
	}
	return saved, NewTokenBucket(s.Capacity, s.RefillPerSecond, opts...), nil
}

func (s *SharedBucket) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
