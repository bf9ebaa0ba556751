package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"sift/internal/config"
	"sift/pkg/circuitbreaker"
)

// CircuitBreakerRepository shields the Redis cache behind a breaker so a
// degraded cache cannot stall every ingest worker on timeouts.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo, cb: nil}
	}

	cbConfig := circuitbreaker.DefaultConfig("redis-dedup")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) Exists(ctx context.Context, key string) (bool, error) {
	if r.cb == nil {
		return r.repo.Exists(ctx, key)
	}

	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.repo.Exists(ctx, key)
	})
	r.cb.RecordRequest(err == nil)
	if err != nil {
		if r.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for redis-dedup: %w", err)
		}
		return false, err
	}

	exists, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("repository returned invalid result type")
	}
	return exists, nil
}

func (r *CircuitBreakerRepository) Set(ctx context.Context, key string, ttl time.Duration) error {
	if r.cb == nil {
		return r.repo.Set(ctx, key, ttl)
	}

	_, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, r.repo.Set(ctx, key, ttl)
	})
	r.cb.RecordRequest(err == nil)
	if err != nil && r.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for redis-dedup: %w", err)
	}
	return err
}

func (r *CircuitBreakerRepository) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if r.cb == nil {
		return r.repo.DeleteByPattern(ctx, pattern)
	}

	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.repo.DeleteByPattern(ctx, pattern)
	})
	r.cb.RecordRequest(err == nil)
	if err != nil {
		if r.cb.IsOpen() {
			return 0, fmt.Errorf("circuit breaker is open for redis-dedup: %w", err)
		}
		return 0, err
	}

	deleted, ok := result.(int)
	if !ok {
		return 0, fmt.Errorf("repository returned invalid result type")
	}
	return deleted, nil
}

func (r *CircuitBreakerRepository) CountByPattern(ctx context.Context, pattern string) (int, error) {
	if r.cb == nil {
		return r.repo.CountByPattern(ctx, pattern)
	}

	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.repo.CountByPattern(ctx, pattern)
	})
	r.cb.RecordRequest(err == nil)
	if err != nil {
		if r.cb.IsOpen() {
			return 0, fmt.Errorf("circuit breaker is open for redis-dedup: %w", err)
		}
		return 0, err
	}

	count, ok := result.(int)
	if !ok {
		return 0, fmt.Errorf("repository returned invalid result type")
	}
	return count, nil
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}
