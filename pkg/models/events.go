package models

import "time"

// MessageExtractedEvent is published once per newly stored message and
// consumed by the classification service.
type MessageExtractedEvent struct {
	EventID       string        `json:"event_id"`
	TenantID      string        `json:"tenant_id"`
	Message       SourceMessage `json:"message"`
	Timestamp     time.Time     `json:"timestamp"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}

// MessageClassifiedEvent is routed to the category channel matching the
// classification outcome.
type MessageClassifiedEvent struct {
	EventID        string               `json:"event_id"`
	TenantID       string               `json:"tenant_id"`
	RawMessage     SourceMessage        `json:"raw_message"`
	Classification ClassificationResult `json:"classification"`
	Timestamp      time.Time            `json:"timestamp"`
	CorrelationID  string               `json:"correlation_id,omitempty"`
}
