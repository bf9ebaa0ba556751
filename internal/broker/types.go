package broker

import (
	"context"
)

// Producer publishes an event payload to a topic. The key selects the
// partition, so events sharing a key keep their relative order.
type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload interface{}) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc receives the raw event bytes; handlers decode into their
// own event type.
type HandlerFunc func(ctx context.Context, payload []byte) error

// eventHeader is the subset of every event used for log enrichment.
type eventHeader struct {
	EventID       string `json:"event_id"`
	TenantID      string `json:"tenant_id"`
	CorrelationID string `json:"correlation_id"`
}
