package constants

import (
	"time"

	"sift/pkg/models"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

// Topic names shared by the extraction and classification services.
const (
	TopicRawMessagesExtracted = "raw-messages.extracted"

	TopicClassifiedTransactional = "classified.transactional"
	TopicClassifiedJobSearch     = "classified.job-search"
	TopicClassifiedSubscription  = "classified.subscription"
	TopicClassifiedPersonal      = "classified.personal"
	TopicClassifiedTravel        = "classified.travel"
	TopicClassifiedOther         = "classified.other"

	TopicDLQExtraction     = "dlq.extraction"
	TopicDLQClassification = "dlq.classification"
)

// ClassifiedTopics is the static category channel map. It is total: every
// known category has a destination and CategoryOther doubles as the
// fallback channel for anything unknown.
var ClassifiedTopics = map[models.Category]string{
	models.CategoryTransactional: TopicClassifiedTransactional,
	models.CategoryJobSearch:     TopicClassifiedJobSearch,
	models.CategorySubscription:  TopicClassifiedSubscription,
	models.CategoryPersonal:      TopicClassifiedPersonal,
	models.CategoryTravel:        TopicClassifiedTravel,
	models.CategoryOther:         TopicClassifiedOther,
}

// Redis key layout. Every key is namespaced by tenant so a tenant purge is
// a single SCAN over "tenant:<id>:*".
const (
	TenantKeyPrefix          = "tenant:"
	DedupKeySegment          = "dedup"
	ClassificationKeySegment = "classification"
)

const (
	DefaultMongoDBName = "sift"
)

const (
	DefaultDedupTTL               = 30 * 24 * time.Hour
	DefaultClassificationCacheTTL = 7 * 24 * time.Hour
	DefaultConfidenceFloor        = 0.3
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

// Audit actions recorded for sensitive operations.
const (
	AuditActionUnauthorizedAccess = "UNAUTHORIZED_ACCESS_ATTEMPT"
	AuditActionMessagesAccessed   = "MESSAGES_ACCESSED"
	AuditActionExtractionStarted  = "MESSAGE_EXTRACTION_STARTED"
	AuditActionDataExport         = "DATA_EXPORT"
	AuditActionDataDeletion       = "DATA_DELETION"
)
