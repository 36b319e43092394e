package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/namelens/chatgate/internal/core"
)

// GetBudget returns the persisted admission state for bucket, or nil when
// none is stored.
func (s *Store) GetBudget(ctx context.Context, bucket string) (*core.RateBudget, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var (
		budget       core.RateBudget
		lastRefillMs int64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT capacity, refill_per_second, tokens, last_refill_ms
		FROM admission_state
		WHERE bucket = ?
	`, bucket)
	if err := row.Scan(&budget.Capacity, &budget.RefillPerSecond, &budget.Tokens, &lastRefillMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch admission state: %w", err)
	}
	budget.LastRefill = time.UnixMilli(lastRefillMs).UTC()
	return &budget, nil
}

// SwapBudget writes next only when the stored row still holds old's tokens
// and last refill, or when no row exists and old is nil. Each branch is a
// single statement, so concurrent writers cannot both win.
func (s *Store) SwapBudget(ctx context.Context, bucket string, old *core.RateBudget, next core.RateBudget) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return false, errors.New("bucket is required")
	}

	var (
		result sql.Result
		err    error
	)
	if old == nil {
		result, err = s.DB.ExecContext(ctx, `
			INSERT INTO admission_state (bucket, capacity, refill_per_second, tokens, last_refill_ms)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(bucket) DO NOTHING
		`, bucket, next.Capacity, next.RefillPerSecond, next.Tokens, next.LastRefill.UTC().UnixMilli())
	} else {
		result, err = s.DB.ExecContext(ctx, `
			UPDATE admission_state
			SET capacity = ?, refill_per_second = ?, tokens = ?, last_refill_ms = ?
			WHERE bucket = ? AND tokens = ? AND last_refill_ms = ?
		`, next.Capacity, next.RefillPerSecond, next.Tokens, next.LastRefill.UTC().UnixMilli(),
			bucket, old.Tokens, old.LastRefill.UTC().UnixMilli())
	}
	if err != nil {
		return false, fmt.Errorf("store admission state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store admission state: %w", err)
	}
	return affected == 1, nil
}

// ResetBudget deletes the persisted state for bucket. The next load starts
// from a full bucket.
func (s *Store) ResetBudget(ctx context.Context, bucket string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM admission_state WHERE bucket = ?`, strings.TrimSpace(bucket))
	if err != nil {
		return false, fmt.Errorf("reset admission state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset admission state: %w", err)
	}
	return affected > 0, nil
}
