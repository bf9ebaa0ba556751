package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sift/internal/broker"
	"sift/internal/constants"
	"sift/internal/dedup"
	"sift/internal/logger"
	"sift/internal/tenant"
	"sift/pkg/errors"
	"sift/pkg/metrics"
	"sift/pkg/models"
	"sift/pkg/tracing"
)

// Service orchestrates the ingest path: authorize, deduplicate, persist,
// then publish. Persistence is the commit point; publishing is retried by
// the outbox sweeper if it fails here.
type Service struct {
	repo       Repository
	dedupSvc   *dedup.Service
	producer   broker.Producer
	connectors *Registry
	guard      *tenant.Guard
	audit      *tenant.AuditLogger
	logger     logger.Logger
	workers    int
}

func NewService(
	repo Repository,
	dedupSvc *dedup.Service,
	producer broker.Producer,
	connectors *Registry,
	guard *tenant.Guard,
	audit *tenant.AuditLogger,
	workers int,
	log logger.Logger,
) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		repo:       repo,
		dedupSvc:   dedupSvc,
		producer:   producer,
		connectors: connectors,
		guard:      guard,
		audit:      audit,
		logger:     log,
		workers:    workers,
	}
}

// Ingest processes a batch of messages for one tenant. Messages are
// processed concurrently and independently: one bad message never fails
// the batch.
func (s *Service) Ingest(ctx context.Context, tenantID string, messages []models.SourceMessage) (IngestStats, error) {
	ctx, span := tracing.GetTracer("extraction-service").Start(ctx, "extraction.ingest")
	defer span.End()

	stats := IngestStats{Received: len(messages)}

	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return stats, err
	}
	if len(messages) == 0 {
		return stats, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range messages {
		msg := messages[i]
		g.Go(func() error {
			outcome := s.processOne(gctx, tenantID, msg)
			mu.Lock()
			switch outcome {
			case outcomeSaved:
				stats.Saved++
			case outcomeDuplicate:
				stats.Duplicates++
			case outcomeFailed:
				stats.Failed++
			}
			mu.Unlock()
			// errors are absorbed per-message so the group never cancels
			return nil
		})
	}

	_ = g.Wait()

	s.logger.InfowCtx(ctx, "Ingest batch processed",
		"tenant_id", tenantID,
		"received", stats.Received,
		"saved", stats.Saved,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
	)

	return stats, nil
}

type ingestOutcome int

const (
	outcomeSaved ingestOutcome = iota
	outcomeDuplicate
	outcomeFailed
)

func (s *Service) processOne(ctx context.Context, tenantID string, msg models.SourceMessage) ingestOutcome {
	start := time.Now()

	normalized, err := s.normalize(tenantID, msg)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Rejected invalid message",
			"tenant_id", tenantID,
			"source_id", msg.SourceID,
			"error", err,
		)
		metrics.ExtractionMessagesTotal.WithLabelValues("failed").Inc()
		return outcomeFailed
	}

	key := dedup.Key{
		TenantID:   tenantID,
		SourceType: normalized.SourceType,
		SourceID:   normalized.SourceID,
	}

	duplicate, err := s.dedupSvc.IsDuplicate(ctx, key)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Deduplication check failed",
			"tenant_id", tenantID,
			"source_id", normalized.SourceID,
			"error", err,
		)
		metrics.ExtractionMessagesTotal.WithLabelValues("failed").Inc()
		return outcomeFailed
	}
	if duplicate {
		metrics.ExtractionMessagesTotal.WithLabelValues("duplicate").Inc()
		return outcomeDuplicate
	}

	if err := s.repo.Save(ctx, normalized); err != nil {
		if errors.IsDuplicateMessage(err) {
			// store constraint caught a concurrent ingest of the same message
			metrics.ExtractionMessagesTotal.WithLabelValues("duplicate").Inc()
			return outcomeDuplicate
		}
		s.logger.ErrorwCtx(ctx, "Failed to persist message",
			"tenant_id", tenantID,
			"source_id", normalized.SourceID,
			"error", err,
		)
		metrics.ExtractionMessagesTotal.WithLabelValues("failed").Inc()
		return outcomeFailed
	}

	// cache marking is best-effort: the row already protects us
	if err := s.dedupSvc.MarkSeen(ctx, key); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to mark message in dedup cache",
			"tenant_id", tenantID,
			"source_id", normalized.SourceID,
			"error", err,
		)
	}

	if err := s.publish(ctx, normalized); err != nil {
		// row stays unpublished; the outbox sweeper picks it up
		s.logger.WarnwCtx(ctx, "Failed to publish extracted event, leaving for outbox",
			"tenant_id", tenantID,
			"message_id", normalized.MessageID,
			"error", err,
		)
	}

	metrics.ExtractionMessagesTotal.WithLabelValues("saved").Inc()
	metrics.ObserveExtractionDuration(time.Since(start), "saved")
	return outcomeSaved
}

func (s *Service) publish(ctx context.Context, msg models.SourceMessage) error {
	event := models.MessageExtractedEvent{
		EventID:       models.NewEventID(),
		TenantID:      msg.TenantID,
		Message:       msg,
		Timestamp:     time.Now(),
		CorrelationID: msg.CorrelationID,
	}

	if err := s.producer.Publish(ctx, constants.TopicRawMessagesExtracted, msg.MessageID, event); err != nil {
		return err
	}

	if err := s.repo.MarkPublished(ctx, msg.MessageID); err != nil {
		// event is out but the flag is not set; the sweeper will republish,
		// which downstream absorbs idempotently
		return fmt.Errorf("published but failed to mark: %w", err)
	}

	return nil
}

// normalize fills in generated identifiers and validates the fields the
// pipeline depends on.
func (s *Service) normalize(tenantID string, msg models.SourceMessage) (models.SourceMessage, error) {
	if strings.TrimSpace(msg.SourceID) == "" {
		return msg, errors.ErrValidation.WithDetail("message", "source_id is required")
	}
	if !msg.SourceType.Valid() {
		return msg, errors.ErrValidation.WithDetail("message", fmt.Sprintf("unknown source type %q", msg.SourceType))
	}
	if msg.TenantID != "" && msg.TenantID != tenantID {
		return msg, errors.ErrValidation.WithDetail("message", "message tenant does not match ingest tenant")
	}

	msg.TenantID = tenantID
	if msg.MessageID == "" {
		msg.MessageID = models.NewMessageID(msg.SourceType, msg.SourceID)
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = models.NewCorrelationID()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	return msg, nil
}

// ExtractFromSource pulls messages from a registered connector and runs
// them through Ingest.
func (s *Service) ExtractFromSource(ctx context.Context, tenantID string, sourceType models.SourceType, from, to time.Time) (IngestStats, error) {
	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return IngestStats{}, err
	}

	connector, err := s.connectors.Resolve(sourceType)
	if err != nil {
		return IngestStats{}, err
	}
	if !connector.IsAvailable(ctx, tenantID) {
		return IngestStats{}, errors.ErrTransient.
			WithDetail("source_type", string(sourceType)).
			WithDetail("message", "source connector unavailable")
	}

	s.guard.AuditAction(ctx, constants.AuditActionExtractionStarted, "messages",
		fmt.Sprintf("source_type: %s", sourceType))

	messages, err := connector.Fetch(ctx, tenantID, from, to)
	if err != nil {
		return IngestStats{}, fmt.Errorf("failed to fetch from %s: %w", sourceType, err)
	}

	return s.Ingest(ctx, tenantID, messages)
}

// GetMessages lists stored messages for the calling tenant.
func (s *Service) GetMessages(ctx context.Context, tenantID string, sourceType models.SourceType, limit, offset int) ([]models.SourceMessage, error) {
	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.repo.ListByTenant(ctx, tenantID, sourceType, limit, offset)
	if err != nil {
		return nil, err
	}

	s.guard.AuditAction(ctx, constants.AuditActionMessagesAccessed, "messages",
		fmt.Sprintf("count: %d", len(messages)))

	return messages, nil
}

func (s *Service) CountMessages(ctx context.Context, tenantID string, sourceType models.SourceType) (int64, error) {
	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return 0, err
	}
	return s.repo.CountByTenant(ctx, tenantID, sourceType)
}

// ExportTenantData returns everything stored for the tenant, for data
// portability requests.
func (s *Service) ExportTenantData(ctx context.Context, tenantID string) (TenantExport, error) {
	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return TenantExport{}, err
	}

	export := TenantExport{TenantID: tenantID, ExportedAt: time.Now()}

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		page, err := s.repo.ListByTenant(ctx, tenantID, "", pageSize, offset)
		if err != nil {
			return TenantExport{}, err
		}
		export.Messages = append(export.Messages, page...)
		if len(page) < pageSize {
			break
		}
	}

	for offset := 0; ; offset += pageSize {
		page, err := s.repo.ListClassificationsByTenant(ctx, tenantID, pageSize, offset)
		if err != nil {
			return TenantExport{}, err
		}
		export.Classifications = append(export.Classifications, page...)
		if len(page) < pageSize {
			break
		}
	}

	s.audit.LogDataExport(ctx, tenantID, "json")

	return export, nil
}

// PurgeTenantData removes every trace of the tenant from the store and
// the dedup cache. Partial failure is fatal: a purge that silently left
// data behind would be worse than a loud error.
func (s *Service) PurgeTenantData(ctx context.Context, tenantID, reason string) error {
	if err := s.guard.Authorize(ctx, tenantID); err != nil {
		return err
	}

	messages, classifications, err := s.repo.PurgeTenant(ctx, tenantID)
	if err != nil {
		return errors.ErrInternal.WithCause(err).
			WithDetail("message", "tenant purge failed, data may remain").
			AsFatal()
	}

	cacheDeleted, err := s.dedupSvc.PurgeTenant(ctx, tenantID)
	if err != nil {
		return errors.ErrInternal.WithCause(err).
			WithDetail("message", "tenant purge incomplete, dedup cache entries remain").
			AsFatal()
	}

	s.audit.LogDataDeletion(ctx, tenantID, reason)
	s.logger.InfowCtx(ctx, "Tenant data purged",
		"tenant_id", tenantID,
		"messages_deleted", messages,
		"classifications_deleted", classifications,
		"cache_entries_deleted", cacheDeleted,
		"reason", reason,
	)

	return nil
}
