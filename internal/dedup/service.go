package dedup

import (
	"context"
	"time"

	"sift/internal/config"
	"sift/internal/constants"
	"sift/internal/logger"
	"sift/pkg/errors"
	"sift/pkg/metrics"
	"sift/pkg/tracing"
)

// ExistenceStore is the durable side of the dedup decision. The message
// store implements it; its answer is authoritative, the cache advisory.
type ExistenceStore interface {
	HasMessage(ctx context.Context, tenantID string, key Key) (bool, error)
}

// Service decides whether a message has already been ingested. The fast
// cache is consulted first, but a skip decision is never taken on the
// cache alone: a cache hit is confirmed against the store, and a cache
// miss falls back to the store. The store's unique constraint remains the
// final arbiter at persistence time either way.
type Service struct {
	repo             Repository
	store            ExistenceStore
	cfg              config.DedupConfig
	logger           logger.Logger
	stopCacheMetrics chan struct{}
	cancelMetricsCtx context.CancelFunc
}

func NewService(repo Repository, store ExistenceStore, cfg config.DedupConfig, log logger.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultDedupTTL
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		repo:             repo,
		store:            store,
		cfg:              cfg,
		logger:           log,
		stopCacheMetrics: make(chan struct{}),
		cancelMetricsCtx: cancel,
	}

	go s.updateCacheSizeMetrics(ctx)

	return s
}

// IsDuplicate reports whether the message behind key is already ingested.
// I/O failure is returned as a retryable error, never as "not found": a
// timed-out check must not be read as "not a duplicate".
func (s *Service) IsDuplicate(ctx context.Context, key Key) (bool, error) {
	ctx, span := tracing.GetTracer("extraction-service").Start(ctx, "dedup.is_duplicate")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return false, errors.Wrap(err, errors.ErrTransient)
	}

	start := time.Now()

	cached, err := s.repo.Exists(ctx, key.CacheKey())
	if err != nil {
		if s.cfg.OnCacheError != constants.FallbackAllow {
			metrics.FallbackUsageTotal.WithLabelValues("dedup", "deny_on_error", "cache_error").Inc()
			metrics.ObserveDedupDuration(time.Since(start), "error")
			return false, errors.Wrap(err, errors.ErrTransient).WithDetail("message", "dedup cache check failed")
		}
		metrics.FallbackUsageTotal.WithLabelValues("dedup", "allow_on_error", "cache_error").Inc()
		s.logger.WarnwCtx(ctx, "Dedup cache error, falling back to store check",
			"error", err,
		)
		cached = false
	}

	exists, err := s.store.HasMessage(ctx, key.TenantID, key)
	if err != nil {
		metrics.ObserveDedupDuration(time.Since(start), "error")
		return false, errors.Wrap(err, errors.ErrTransient).WithDetail("message", "dedup store check failed")
	}

	if cached && !exists {
		// Entry survived a crash or purge window without a store row.
		// The store wins: treat as new and let the entry be rewritten
		// after a successful persist.
		metrics.DedupCacheFalsePositivesTotal.Inc()
		s.logger.WarnwCtx(ctx, "Dedup cache entry without store row, treating as new",
			"key", key.String(),
		)
	}

	status := "unique"
	if exists {
		status = "duplicate"
	}
	metrics.DedupChecksTotal.WithLabelValues(status).Inc()
	metrics.ObserveDedupDuration(time.Since(start), status)

	return exists, nil
}

// MarkSeen records the key in the cache with the configured TTL. Callers
// invoke it only after the message has been durably persisted, which is
// what keeps cache entries trustworthy hints. Writers race harmlessly:
// last write wins on a boolean marker.
func (s *Service) MarkSeen(ctx context.Context, key Key) error {
	if err := s.repo.Set(ctx, key.CacheKey(), s.cfg.TTL); err != nil {
		return errors.Wrap(err, errors.ErrTransient).WithDetail("message", "dedup cache mark failed")
	}
	return nil
}

// PurgeTenant removes every cached entry in the tenant's namespace.
func (s *Service) PurgeTenant(ctx context.Context, tenantID string) (int, error) {
	deleted, err := s.repo.DeleteByPattern(ctx, TenantPattern(tenantID))
	if err != nil {
		return deleted, errors.Wrap(err, errors.ErrTransient).WithDetail("message", "dedup cache purge failed")
	}
	s.logger.InfowCtx(ctx, "Purged dedup cache namespace",
		"deleted_keys", deleted,
	)
	return deleted, nil
}

func (s *Service) updateCacheSizeMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			size, err := s.repo.CountByPattern(ctx, dedupScanPattern)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debugw("Failed to get cache size for metrics",
					"error", err,
				)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			metrics.SetDedupCacheSize(size)
		case <-s.stopCacheMetrics:
			return
		case <-ctx.Done():
			return
		}
	}
}

// StopCacheMetricsUpdater stops the background cache metrics updater.
func (s *Service) StopCacheMetricsUpdater() {
	if s.cancelMetricsCtx != nil {
		s.cancelMetricsCtx()
	}
	close(s.stopCacheMetrics)
}
