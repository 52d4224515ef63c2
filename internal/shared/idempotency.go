package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// ErrIdempotencyInFlight indicates the key is reserved by a run that has not completed.
var ErrIdempotencyInFlight = errors.New("idempotent request in progress")

// Reserve marks key as pending for module. A completed key returns
// ErrIdempotencyConflict. A pending key younger than lease returns
// ErrIdempotencyInFlight; an older one was abandoned and is reserved again.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, module string, lease time.Duration) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET created_at = EXCLUDED.created_at
WHERE idempotency_keys.completed_at IS NULL AND idempotency_keys.created_at < $4`, key, module, now, now.Add(-lease))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var completed bool
	err = s.pool.QueryRow(ctx, `SELECT completed_at IS NOT NULL FROM idempotency_keys WHERE key = $1`, key).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrIdempotencyInFlight
	}
	if err != nil {
		return err
	}
	if completed {
		return ErrIdempotencyConflict
	}
	return ErrIdempotencyInFlight
}

// Complete marks a reserved key as processed.
func (s *IdempotencyStore) Complete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET completed_at = $2 WHERE key = $1`, key, time.Now())
	return err
}

// Cleanup removes entries older than retention and reports how many were deleted.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}
