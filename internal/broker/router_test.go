package broker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sift/internal/constants"
	"sift/internal/logger"
	"sift/pkg/models"
)

type recordingProducer struct {
	topics []string
	keys   []string
	err    error
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, key string, payload interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func newTestRouter(t *testing.T) (*Router, *recordingProducer) {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	producer := &recordingProducer{}
	return NewRouter(producer, log), producer
}

func classifiedEvent(category models.Category) models.MessageClassifiedEvent {
	return models.MessageClassifiedEvent{
		EventID:  models.NewEventID(),
		TenantID: "t1",
		Classification: models.ClassificationResult{
			MessageID:       "m-1",
			TenantID:        "t1",
			PrimaryCategory: category,
		},
	}
}

func TestTopicForCoversEveryCategory(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, category := range models.CategoryPriority {
		assert.NotEmpty(t, router.TopicFor(category), "category %s has no topic", category)
	}
	assert.Equal(t, constants.TopicClassifiedOther, router.TopicFor(models.CategoryOther))
}

func TestRouteByCategory(t *testing.T) {
	router, producer := newTestRouter(t)

	require.NoError(t, router.Route(context.Background(), classifiedEvent(models.CategoryTravel)))

	require.Len(t, producer.topics, 1)
	assert.Equal(t, constants.TopicClassifiedTravel, producer.topics[0])
	assert.Equal(t, "m-1", producer.keys[0])
}

func TestRouteUnmappedCategoryFallsBack(t *testing.T) {
	router, producer := newTestRouter(t)

	require.NoError(t, router.Route(context.Background(), classifiedEvent("spam")))

	require.Len(t, producer.topics, 1)
	assert.Equal(t, constants.TopicClassifiedOther, producer.topics[0])
}

func TestRoutePublishFailure(t *testing.T) {
	router, producer := newTestRouter(t)
	producer.err = fmt.Errorf("broker down")

	assert.Error(t, router.Route(context.Background(), classifiedEvent(models.CategoryPersonal)))
}
