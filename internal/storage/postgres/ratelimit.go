package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	incrRateCounterSQL = `INSERT INTO rate_limit_counters (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key, window_start) DO UPDATE SET count = rate_limit_counters.count + 1
		RETURNING count`

	cleanupRateCountersSQL = `DELETE FROM rate_limit_counters WHERE window_start < $1`
)

// RateCounterStore is a shared fixed-window request counter. Because the
// increment is a single upsert, limits hold across any number of concurrently
// running service instances, unlike a process-local map.
type RateCounterStore struct {
	pool *pgxpool.Pool
}

// NewRateCounterStore returns a RateCounterStore that uses the given pool.
func NewRateCounterStore(pool *pgxpool.Pool) *RateCounterStore {
	return &RateCounterStore{pool: pool}
}

// Incr atomically increments the counter for key in the window bucket and
// returns the new count.
func (s *RateCounterStore) Incr(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, incrRateCounterSQL, key, windowStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing rate counter for %q: %w", key, err)
	}
	return count, nil
}

// Cleanup removes counter rows for windows that ended before cutoff.
func (s *RateCounterStore) Cleanup(ctx context.Context, cutoff time.Time) error {
	if _, err := s.pool.Exec(ctx, cleanupRateCountersSQL, cutoff); err != nil {
		return fmt.Errorf("cleaning up rate counters: %w", err)
	}
	return nil
}
