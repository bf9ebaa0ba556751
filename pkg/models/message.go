package models

import "time"

// SourceType identifies the provider a message was ingested from.
type SourceType string

const (
	SourceTypeGmail    SourceType = "gmail"
	SourceTypeWhatsApp SourceType = "whatsapp"
	SourceTypeTelegram SourceType = "telegram"
	SourceTypeSMS      SourceType = "sms"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeGmail, SourceTypeWhatsApp, SourceTypeTelegram, SourceTypeSMS:
		return true
	}
	return false
}

// Category is the semantic category a message is classified into.
type Category string

const (
	CategoryTransactional Category = "transactional"
	CategoryJobSearch     Category = "job-search"
	CategorySubscription  Category = "subscription"
	CategoryPersonal      Category = "personal"
	CategoryTravel        Category = "travel"
	// CategoryOther is the fallback applied when no category clears the
	// confidence floor or when an unknown category is encountered.
	CategoryOther Category = "other"
)

// CategoryPriority is the fixed tie-break order used when two categories
// score equally. Defined once for the lifetime of the process.
var CategoryPriority = []Category{
	CategoryTransactional,
	CategoryJobSearch,
	CategoryTravel,
	CategorySubscription,
	CategoryPersonal,
}

type Attachment struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// SourceMessage is a provider-agnostic message. (SourceID, SourceType) is
// unique system-wide and serves as the natural key for deduplication. A
// message is immutable once normalized by the orchestrator; only the
// store-side published flag changes afterwards.
type SourceMessage struct {
	MessageID      string       `json:"message_id"`
	SourceID       string       `json:"source_id"`
	SourceType     SourceType   `json:"source_type"`
	TenantID       string       `json:"tenant_id"`
	Subject        string       `json:"subject,omitempty"`
	Body           string       `json:"body,omitempty"`
	Snippet        string       `json:"snippet,omitempty"`
	From           string       `json:"from,omitempty"`
	To             []string     `json:"to,omitempty"`
	Cc             []string     `json:"cc,omitempty"`
	Bcc            []string     `json:"bcc,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`
	SentAt         time.Time    `json:"sent_at,omitempty"`
	ThreadID       string       `json:"thread_id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Labels         []string     `json:"labels,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	IsRead         bool         `json:"is_read"`
	IsStarred      bool         `json:"is_starred"`
	IsImportant    bool         `json:"is_important"`
	CorrelationID  string       `json:"correlation_id,omitempty"`
}

// ClassificationResult assigns exactly one category to a message.
// Confidence always equals the raw score of the winning category; the
// confidence-floor override replaces PrimaryCategory only and leaves the
// score map and Confidence untouched for observability.
type ClassificationResult struct {
	MessageID       string               `json:"message_id"`
	TenantID        string               `json:"tenant_id"`
	PrimaryCategory Category             `json:"primary_category"`
	CategoryScores  map[Category]float64 `json:"category_scores"`
	ClassifierName  string               `json:"classifier_name"`
	Confidence      float64              `json:"confidence"`
	Entities        []string             `json:"entities,omitempty"`
	ClassifiedAt    time.Time            `json:"classified_at"`
	CorrelationID   string               `json:"correlation_id,omitempty"`
}
