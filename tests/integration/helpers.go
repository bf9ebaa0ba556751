package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sift/internal/config"
	"sift/internal/dedup"
	"sift/internal/extraction"
	"sift/internal/logger"
	"sift/pkg/models"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestMessage(tenantID, sourceID string, sourceType models.SourceType) models.SourceMessage {
	return models.SourceMessage{
		MessageID:     models.NewMessageID(sourceType, sourceID),
		SourceID:      sourceID,
		SourceType:    sourceType,
		TenantID:      tenantID,
		Subject:       "Order confirmation",
		Body:          "payment received $42.00",
		Snippet:       "payment received",
		From:          "shop@example.com",
		To:            []string{"user@example.com"},
		Labels:        []string{"inbox"},
		ReceivedAt:    time.Now().UTC().Truncate(time.Millisecond),
		CorrelationID: models.NewCorrelationID(),
	}
}

func createTestResult(tenantID, messageID string, category models.Category) models.ClassificationResult {
	return models.ClassificationResult{
		MessageID:       messageID,
		TenantID:        tenantID,
		PrimaryCategory: category,
		CategoryScores: map[models.Category]float64{
			category: 0.75,
		},
		ClassifierName: "rule-based",
		Confidence:     0.75,
		Entities:       []string{"amount:$42.00"},
		ClassifiedAt:   time.Now().UTC().Truncate(time.Millisecond),
		CorrelationID:  models.NewCorrelationID(),
	}
}

func uniqueSourceID(prefix string, n int) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}

// postgresStore backs the dedup service with the real message store so
// end-to-end tests exercise the authoritative-store path.
type postgresStore struct {
	repo extraction.Repository
}

func newPostgresStore(t *testing.T, infra *TestInfra) *postgresStore {
	t.Helper()
	return &postgresStore{repo: extraction.NewRepository(infra.PostgresDB)}
}

func (s *postgresStore) HasMessage(ctx context.Context, tenantID string, key dedup.Key) (bool, error) {
	return s.repo.HasMessage(ctx, tenantID, key)
}

func (s *postgresStore) save(ctx context.Context, key dedup.Key) error {
	return s.repo.Save(ctx, createTestMessage(key.TenantID, key.SourceID, key.SourceType))
}

func newDedupService(t *testing.T, infra *TestInfra, store dedup.ExistenceStore) *dedup.Service {
	t.Helper()
	svc := dedup.NewService(
		dedup.NewRepository(infra.RedisClient),
		store,
		config.DedupConfig{TTL: time.Hour},
		createTestLogger(),
	)
	t.Cleanup(svc.StopCacheMetricsUpdater)
	return svc
}
