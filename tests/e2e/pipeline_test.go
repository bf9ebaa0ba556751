package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sift/pkg/models"
)

const (
	kafkaBroker        = "localhost:29092"
	messageWaitTimeout = 30 * time.Second

	transactionalTopic = "classified.transactional"
	otherTopic         = "classified.other"
)

func TestPipelineEndToEnd(t *testing.T) {
	tenantID := uniqueTenantID()
	sourceID := uuid.New().String()

	stats := ingestMessages(t, tenantID, []models.SourceMessage{
		{
			SourceID:   sourceID,
			SourceType: models.SourceTypeGmail,
			Subject:    "Order confirmation",
			Body:       "payment received $42.00",
			From:       "shop@example.com",
		},
	})
	require.Equal(t, 1, stats.Saved)

	event := waitForClassifiedEvent(t, transactionalTopic, tenantID, sourceID)
	require.NotNil(t, event, "message should arrive on the transactional topic")

	assert.Equal(t, tenantID, event.TenantID)
	assert.Equal(t, sourceID, event.RawMessage.SourceID)
	assert.Equal(t, models.CategoryTransactional, event.Classification.PrimaryCategory)
	assert.GreaterOrEqual(t, event.Classification.Confidence, 0.3)
	assert.Contains(t, event.Classification.Entities, "amount:$42.00")
}

func TestPipelineUnmatchedGoesToCatchAll(t *testing.T) {
	tenantID := uniqueTenantID()
	sourceID := uuid.New().String()

	stats := ingestMessages(t, tenantID, []models.SourceMessage{
		{
			SourceID:   sourceID,
			SourceType: models.SourceTypeSMS,
			Body:       "xyzzy plugh",
		},
	})
	require.Equal(t, 1, stats.Saved)

	event := waitForClassifiedEvent(t, otherTopic, tenantID, sourceID)
	require.NotNil(t, event, "unmatched message should arrive on the catch-all topic")
	assert.Equal(t, models.CategoryOther, event.Classification.PrimaryCategory)
}

func TestPipelineReplayIsDeduplicated(t *testing.T) {
	tenantID := uniqueTenantID()
	sourceID := uuid.New().String()

	batch := []models.SourceMessage{
		{
			SourceID:   sourceID,
			SourceType: models.SourceTypeGmail,
			Subject:    "Order confirmation",
			Body:       "payment received $42.00",
		},
	}

	first := ingestMessages(t, tenantID, batch)
	require.Equal(t, 1, first.Saved)

	second := ingestMessages(t, tenantID, batch)
	assert.Zero(t, second.Saved)
	assert.Equal(t, 1, second.Duplicates)

	require.NotNil(t, waitForClassifiedEvent(t, transactionalTopic, tenantID, sourceID))

	count := countMessages(t, tenantID)
	assert.Equal(t, int64(1), count, "the replay must not create a second row")
}

func TestPipelineTenantsDoNotCollide(t *testing.T) {
	// the same provider message id ingested by two tenants yields two
	// independent pipeline runs
	tenantA := uniqueTenantID()
	tenantB := uniqueTenantID()
	sourceID := uuid.New().String()

	msg := models.SourceMessage{
		SourceID:   sourceID,
		SourceType: models.SourceTypeGmail,
		Subject:    "Order confirmation",
		Body:       "payment received $42.00",
	}

	require.Equal(t, 1, ingestMessages(t, tenantA, []models.SourceMessage{msg}).Saved)
	require.Equal(t, 1, ingestMessages(t, tenantB, []models.SourceMessage{msg}).Saved)

	eventA := waitForClassifiedEvent(t, transactionalTopic, tenantA, sourceID)
	require.NotNil(t, eventA)
	eventB := waitForClassifiedEvent(t, transactionalTopic, tenantB, sourceID)
	require.NotNil(t, eventB)

	assert.NotEqual(t, eventA.RawMessage.MessageID, eventB.RawMessage.MessageID)
}

func waitForClassifiedEvent(t *testing.T, topic, tenantID, sourceID string) *models.MessageClassifiedEvent {
	t.Helper()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{kafkaBroker},
		Topic:          topic,
		GroupID:        fmt.Sprintf("e2e-waiter-%s", uuid.New().String()),
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        2 * time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), messageWaitTimeout)
	defer cancel()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if err == context.DeadlineExceeded {
				return nil
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		var event models.MessageClassifiedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		_ = reader.CommitMessages(ctx, msg)

		if event.TenantID == tenantID && event.RawMessage.SourceID == sourceID {
			return &event
		}
	}
}
