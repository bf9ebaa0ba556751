package extraction

import (
	"time"

	"sift/pkg/models"
)

// IngestStats summarizes one Ingest call. Duplicates counts both cache
// skips and unique-constraint collisions absorbed at persistence time.
type IngestStats struct {
	Received   int `json:"received"`
	Saved      int `json:"saved"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// TenantExport is the payload returned by the data-export operation.
type TenantExport struct {
	TenantID        string                        `json:"tenant_id"`
	ExportedAt      time.Time                     `json:"exported_at"`
	Messages        []models.SourceMessage        `json:"messages"`
	Classifications []models.ClassificationResult `json:"classifications"`
}

// IncrementalResult is the page returned by a connector's incremental
// fetch.
type IncrementalResult struct {
	Messages      []models.SourceMessage
	NextSyncToken string
	HasMore       bool
}
