package models

import (
	"fmt"

	"github.com/google/uuid"
)

// NewMessageID builds the internal message id from the natural key plus a
// short random suffix, e.g. "gmail_18c2f_a1b2c3d4".
func NewMessageID(sourceType SourceType, sourceID string) string {
	return fmt.Sprintf("%s_%s_%s", sourceType, sourceID, uuid.New().String()[:8])
}

// NewCorrelationID generates a correlation id for tracking a message across
// pipeline stages.
func NewCorrelationID() string {
	return uuid.New().String()
}

// NewEventID generates a unique event id.
func NewEventID() string {
	return uuid.New().String()
}
