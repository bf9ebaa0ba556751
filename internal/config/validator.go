package config

import (
	"fmt"

	"sift/internal/constants"
	"sift/pkg/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateExtraction(cfg.Extraction); err != nil {
		errors = append(errors, err)
	}

	if err := validateClassification(cfg.Classification); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Kafka.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Redis.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "redis host is required",
		}
	}

	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Redis.Port),
		}
	}

	if cfg.Postgres.Host != "" {
		if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
			return &ValidationError{
				Field:   "database.postgres.port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Postgres.Port),
			}
		}
		if cfg.Postgres.User == "" || cfg.Postgres.DBName == "" {
			return &ValidationError{
				Field:   "database.postgres",
				Message: "user and dbname are required when postgres host is set",
			}
		}
	}

	return nil
}

func validateExtraction(cfg ExtractionConfig) error {
	if cfg.Dedup.TTL < 0 {
		return &ValidationError{
			Field:   "extraction.dedup.ttl",
			Message: "ttl cannot be negative",
		}
	}

	switch cfg.Dedup.OnCacheError {
	case "", constants.FallbackAllow, constants.FallbackDeny:
	default:
		return &ValidationError{
			Field:   "extraction.dedup.on_cache_error",
			Message: fmt.Sprintf("must be %q or %q, got %q", constants.FallbackAllow, constants.FallbackDeny, cfg.Dedup.OnCacheError),
		}
	}

	if cfg.IngestWorkers < 0 {
		return &ValidationError{
			Field:   "extraction.ingest_workers",
			Message: "worker count cannot be negative",
		}
	}

	for i, source := range cfg.MemorySources {
		if !models.SourceType(source).Valid() {
			return &ValidationError{
				Field:   fmt.Sprintf("extraction.memory_sources[%d]", i),
				Message: fmt.Sprintf("unknown source type: %s", source),
			}
		}
	}

	return nil
}

func validateClassification(cfg ClassificationConfig) error {
	if cfg.ConfidenceFloor < 0 || cfg.ConfidenceFloor > 1 {
		return &ValidationError{
			Field:   "classification.confidence_floor",
			Message: fmt.Sprintf("confidence floor must be in [0,1], got %v", cfg.ConfidenceFloor),
		}
	}

	if cfg.CacheTTL < 0 {
		return &ValidationError{
			Field:   "classification.cache_ttl",
			Message: "cache ttl cannot be negative",
		}
	}

	return nil
}
