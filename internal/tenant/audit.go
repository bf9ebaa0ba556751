package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sift/internal/constants"
	"sift/internal/logger"
	"sift/pkg/metrics"
)

// Record is one audit entry. TenantID is the acting tenant; for blocked
// cross-tenant attempts the requested tenant ends up in Metadata.
type Record struct {
	ID        string
	TenantID  string
	Action    string
	Resource  string
	Result    string
	Severity  string
	Metadata  string
	Timestamp time.Time
}

// AuditLogger persists audit records to Postgres and mirrors them to the
// structured log. A failed audit write is logged at error level but never
// masks the operation outcome it describes.
type AuditLogger struct {
	db     *sql.DB
	logger logger.Logger
}

func NewAuditLogger(db *sql.DB, log logger.Logger) *AuditLogger {
	return &AuditLogger{db: db, logger: log}
}

func (a *AuditLogger) Log(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Severity == "" {
		rec.Severity = "LOW"
	}

	a.logger.InfowCtx(ctx, "AUDIT",
		"audit_tenant_id", rec.TenantID,
		"action", rec.Action,
		"resource", rec.Resource,
		"result", rec.Result,
		"severity", rec.Severity,
		"metadata", rec.Metadata,
	)
	metrics.AuditEventsTotal.WithLabelValues(rec.Action, rec.Result).Inc()

	if a.db == nil {
		return
	}

	query := `
		INSERT INTO audit_log (id, tenant_id, action, resource, result, severity, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := a.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.Action, rec.Resource,
		rec.Result, rec.Severity, rec.Metadata, rec.Timestamp,
	); err != nil {
		a.logger.ErrorwCtx(ctx, "Failed to persist audit record",
			"error", err,
			"action", rec.Action,
		)
	}
}

// LogUnauthorizedAccess writes the mandatory record for a blocked
// cross-tenant attempt.
func (a *AuditLogger) LogUnauthorizedAccess(ctx context.Context, tenantID, requestedTenantID, resource string) {
	a.Log(ctx, Record{
		TenantID: tenantID,
		Action:   constants.AuditActionUnauthorizedAccess,
		Resource: resource,
		Metadata: fmt.Sprintf("attempted_tenant_id: %s", requestedTenantID),
		Result:   "BLOCKED",
		Severity: "HIGH",
	})
}

// LogDataDeletion records a tenant purge with its stated reason.
func (a *AuditLogger) LogDataDeletion(ctx context.Context, tenantID, reason string) {
	a.Log(ctx, Record{
		TenantID: tenantID,
		Action:   constants.AuditActionDataDeletion,
		Metadata: fmt.Sprintf("reason: %s", reason),
		Result:   "SUCCESS",
		Severity: "HIGH",
	})
}

// LogDataExport records a tenant data export.
func (a *AuditLogger) LogDataExport(ctx context.Context, tenantID, format string) {
	a.Log(ctx, Record{
		TenantID: tenantID,
		Action:   constants.AuditActionDataExport,
		Metadata: fmt.Sprintf("format: %s", format),
		Result:   "SUCCESS",
		Severity: "MEDIUM",
	})
}
