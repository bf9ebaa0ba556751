package classification

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"sift/internal/broker"
	"sift/internal/config"
	"sift/internal/constants"
	"sift/internal/logger"
	"sift/internal/tenant"
	"sift/pkg/errors"
	"sift/pkg/metrics"
	"sift/pkg/models"
	"sift/pkg/tracing"
)

// Service consumes extracted-message events, classifies them, persists
// the result, and routes it to the category topic. Replayed events are
// absorbed: the cache (or the store upsert) makes Process idempotent.
type Service struct {
	ruleRepo   RuleRepository
	repo       Repository
	cache      Cache
	router     *broker.Router
	guard      *tenant.Guard
	cfg        config.ClassificationConfig
	logger     logger.Logger
	strategy   Strategy
	strategyMu sync.RWMutex
}

func NewService(
	ruleRepo RuleRepository,
	repo Repository,
	cache Cache,
	router *broker.Router,
	guard *tenant.Guard,
	cfg config.ClassificationConfig,
	log logger.Logger,
) *Service {
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = constants.DefaultConfidenceFloor
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = constants.DefaultClassificationCacheTTL
	}

	s := &Service{
		ruleRepo: ruleRepo,
		repo:     repo,
		cache:    cache,
		router:   router,
		guard:    guard,
		cfg:      cfg,
		logger:   log,
	}

	// built-in rules carry the service until the first store load
	if strategy, err := NewRuleBasedStrategy(DefaultRules(), cfg.ConfidenceFloor); err == nil {
		s.setStrategy(strategy)
	}

	return s
}

// HandleEvent is the broker entrypoint.
func (s *Service) HandleEvent(ctx context.Context, payload []byte) error {
	var event models.MessageExtractedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.ErrValidation.WithCause(err).
			WithDetail("message", "malformed extracted-message event").
			AsFatal()
	}

	// the event carries the authenticated tenant; bind it so every
	// downstream access is checked against it
	ctx = tenant.WithTenant(ctx, event.TenantID, "event-bus")

	return s.Process(ctx, event)
}

func (s *Service) Process(ctx context.Context, event models.MessageExtractedEvent) error {
	ctx, span := tracing.GetTracer("classification-service").Start(ctx, "classification.process")
	defer span.End()

	msg := event.Message
	if msg.TenantID != event.TenantID {
		return errors.ErrValidation.
			WithDetail("message", "event tenant does not match message tenant").
			AsFatal()
	}
	if err := s.guard.Authorize(ctx, msg.TenantID); err != nil {
		return err
	}

	start := time.Now()

	// replayed event: republish the original result and stop
	if cached, hit, err := s.cache.Get(ctx, msg.TenantID, msg.MessageID); err != nil {
		s.logger.WarnwCtx(ctx, "Classification cache lookup failed, classifying fresh",
			"message_id", msg.MessageID,
			"error", err,
		)
	} else if hit {
		metrics.ClassificationMessagesTotal.WithLabelValues(string(cached.PrimaryCategory), "cached").Inc()
		return s.routeResult(ctx, event, cached)
	}

	strategy := s.currentStrategy()
	if strategy == nil {
		return errors.ErrClassificationUnavailable.AsFatal()
	}

	result := strategy.Classify(msg)

	if err := s.repo.Save(ctx, result); err != nil {
		metrics.ClassificationMessagesTotal.WithLabelValues(string(result.PrimaryCategory), "error").Inc()
		return errors.ErrTransient.WithCause(err).
			WithDetail("message_id", msg.MessageID)
	}

	if err := s.cache.Set(ctx, result, s.cfg.CacheTTL); err != nil {
		// cache write is best-effort: the store upsert absorbs replays
		s.logger.WarnwCtx(ctx, "Failed to cache classification result",
			"message_id", msg.MessageID,
			"error", err,
		)
	}

	metrics.ClassificationMessagesTotal.WithLabelValues(string(result.PrimaryCategory), "scored").Inc()
	metrics.ObserveClassificationDuration(time.Since(start), "scored")

	s.logger.InfowCtx(ctx, "Message classified",
		"message_id", msg.MessageID,
		"tenant_id", msg.TenantID,
		"category", result.PrimaryCategory,
		"confidence", result.Confidence,
		"classifier", result.ClassifierName,
	)

	return s.routeResult(ctx, event, result)
}

func (s *Service) routeResult(ctx context.Context, event models.MessageExtractedEvent, result models.ClassificationResult) error {
	classified := models.MessageClassifiedEvent{
		EventID:        models.NewEventID(),
		TenantID:       event.TenantID,
		RawMessage:     event.Message,
		Classification: result,
		Timestamp:      time.Now(),
		CorrelationID:  event.CorrelationID,
	}
	return s.router.Route(ctx, classified)
}

// GetClassifications lists stored results for the calling tenant.
func (s *Service) GetClassifications(ctx context.Context, tenantID string, category models.Category, limit, offset int) ([]models.ClassificationResult, error) {
	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	results, err := s.repo.ListByCategory(ctx, tenantID, category, limit, offset)
	if err != nil {
		return nil, err
	}

	s.guard.AuditAction(ctx, constants.AuditActionMessagesAccessed, "classifications", "")

	return results, nil
}

func (s *Service) CountByCategory(ctx context.Context, tenantID string) (map[models.Category]int64, error) {
	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.CountByCategory(ctx, tenantID)
}

func (s *Service) currentStrategy() Strategy {
	s.strategyMu.RLock()
	defer s.strategyMu.RUnlock()
	return s.strategy
}

func (s *Service) setStrategy(strategy Strategy) {
	s.strategyMu.Lock()
	s.strategy = strategy
	s.strategyMu.Unlock()
}

func (s *Service) ReloadRules(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	rules, err := s.ruleRepo.GetActiveRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		// keep the running strategy; an empty store is a deploy gap, not
		// a reason to stop classifying
		s.logger.WarnwCtx(ctx, "No enabled pattern rules in store, keeping current rule set")
		return nil
	}

	strategy, err := NewRuleBasedStrategy(rules, s.cfg.ConfidenceFloor)
	if err != nil {
		return err
	}

	s.setStrategy(strategy)

	patternCount := 0
	for _, rule := range rules {
		patternCount += len(rule.Patterns)
	}
	metrics.SetClassificationActivePatterns(patternCount)
	s.logger.InfowCtx(ctx, "Reloaded pattern rules",
		"rules_count", len(rules),
		"patterns_count", patternCount,
	)

	return nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.ReloadRules(ctx); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to reload pattern rules",
			"error", err,
		)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadRules(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload pattern rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
