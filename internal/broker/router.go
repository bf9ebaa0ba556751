package broker

import (
	"context"

	"sift/internal/constants"
	"sift/internal/logger"
	"sift/pkg/metrics"
	"sift/pkg/models"
)

// Router publishes classified events to their category topic. Categories
// without a topic binding fall back to the catch-all topic rather than
// dropping the event.
type Router struct {
	producer Producer
	logger   logger.Logger
}

func NewRouter(producer Producer, log logger.Logger) *Router {
	return &Router{producer: producer, logger: log}
}

// TopicFor resolves the destination topic for a category.
func (r *Router) TopicFor(category models.Category) string {
	if topic, ok := constants.ClassifiedTopics[category]; ok {
		return topic
	}
	return constants.TopicClassifiedOther
}

func (r *Router) Route(ctx context.Context, event models.MessageClassifiedEvent) error {
	category := event.Classification.PrimaryCategory
	topic, ok := constants.ClassifiedTopics[category]
	if !ok {
		topic = constants.TopicClassifiedOther
		metrics.FallbackUsageTotal.WithLabelValues("router", "catch_all_topic", "unmapped_category").Inc()
		r.logger.WarnwCtx(ctx, "No topic mapping for category, routing to catch-all",
			"category", category,
			"message_id", event.Classification.MessageID,
		)
	}

	// Key by message id so re-classifications of the same message stay
	// ordered on one partition.
	if err := r.producer.Publish(ctx, topic, event.Classification.MessageID, event); err != nil {
		metrics.RoutedEventsTotal.WithLabelValues(topic, "error").Inc()
		return err
	}

	metrics.RoutedEventsTotal.WithLabelValues(topic, "success").Inc()
	r.logger.DebugwCtx(ctx, "Routed classified event",
		"topic", topic,
		"category", category,
		"message_id", event.Classification.MessageID,
	)

	return nil
}
