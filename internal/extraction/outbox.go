package extraction

import (
	"context"
	"time"

	"sift/internal/broker"
	"sift/internal/constants"
	"sift/internal/logger"
	"sift/pkg/metrics"
	"sift/pkg/models"
)

// OutboxSweeper republishes stored messages whose publish failed at
// ingest time. Downstream consumers absorb replays as duplicates, so the
// sweep only has to guarantee at-least-once.
type OutboxSweeper struct {
	repo      Repository
	producer  broker.Producer
	logger    logger.Logger
	interval  time.Duration
	batchSize int
}

func NewOutboxSweeper(repo Repository, producer broker.Producer, interval time.Duration, batchSize int, log logger.Logger) *OutboxSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxSweeper{
		repo:      repo,
		producer:  producer,
		logger:    log,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run sweeps until the context is cancelled.
func (s *OutboxSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infow("Outbox sweeper started",
		"interval", s.interval,
		"batch_size", s.batchSize,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("Outbox sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Errorw("Outbox sweep failed", "error", err)
			}
		}
	}
}

// Sweep publishes one batch of unpublished messages.
func (s *OutboxSweeper) Sweep(ctx context.Context) error {
	pending, err := s.repo.CountUnpublished(ctx)
	if err != nil {
		return err
	}
	metrics.SetOutboxPending(int(pending))
	if pending == 0 {
		return nil
	}

	messages, err := s.repo.ListUnpublished(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		event := models.MessageExtractedEvent{
			EventID:       models.NewEventID(),
			TenantID:      msg.TenantID,
			Message:       msg,
			Timestamp:     time.Now(),
			CorrelationID: msg.CorrelationID,
		}

		if err := s.producer.Publish(ctx, constants.TopicRawMessagesExtracted, msg.MessageID, event); err != nil {
			// stop the batch; the broker is likely still down
			s.logger.WarnwCtx(ctx, "Outbox republish failed, will retry next sweep",
				"message_id", msg.MessageID,
				"error", err,
			)
			return err
		}

		if err := s.repo.MarkPublished(ctx, msg.MessageID); err != nil {
			s.logger.ErrorwCtx(ctx, "Failed to mark republished message",
				"message_id", msg.MessageID,
				"error", err,
			)
			metrics.OutboxRepublishedTotal.WithLabelValues("unmarked").Inc()
			continue
		}

		metrics.OutboxRepublishedTotal.WithLabelValues("success").Inc()
	}

	s.logger.InfowCtx(ctx, "Outbox sweep completed",
		"republished", len(messages),
	)

	return nil
}
