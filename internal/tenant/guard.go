package tenant

import (
	"context"
	"fmt"

	"sift/internal/constants"
	"sift/internal/logger"
	"sift/pkg/errors"
)

// Auditor receives the audit records the guard and the services emit.
// *AuditLogger is the Postgres-backed implementation.
type Auditor interface {
	Log(ctx context.Context, rec Record)
	LogUnauthorizedAccess(ctx context.Context, tenantID, requestedTenantID, resource string)
}

// Guard rejects cross-tenant access before any I/O happens. Every
// operation that accepts an explicit tenant id argument must call
// Authorize at its entry; the caller-supplied id never overrides the
// bound identity.
type Guard struct {
	audit  Auditor
	logger logger.Logger
}

func NewGuard(audit Auditor, log logger.Logger) *Guard {
	return &Guard{audit: audit, logger: log}
}

// Authorize fails with ErrForbidden when the requested tenant differs from
// the bound one, writing an audit record before the error propagates. An
// unbound context fails with ErrUnauthenticated and is not audited (there
// is no identity to attribute the attempt to).
func (g *Guard) Authorize(ctx context.Context, requestedTenantID string) error {
	t, err := FromContext(ctx)
	if err != nil {
		return err
	}

	if t.ID == requestedTenantID {
		return nil
	}

	g.logger.WarnwCtx(ctx, "Cross-tenant access attempt blocked",
		"requested_tenant_id", requestedTenantID,
	)

	if g.audit != nil {
		g.audit.LogUnauthorizedAccess(ctx, t.ID, requestedTenantID, "tenant:"+requestedTenantID)
	}

	return errors.ErrForbidden.WithDetail("message",
		fmt.Sprintf("tenant %s not authorized to access data for tenant %s", t.ID, requestedTenantID))
}

// AuditAction records a successful sensitive operation for the bound tenant.
func (g *Guard) AuditAction(ctx context.Context, action, resource, metadata string) {
	if g.audit == nil {
		return
	}
	t, err := FromContext(ctx)
	if err != nil {
		return
	}
	g.audit.Log(ctx, Record{
		TenantID: t.ID,
		Action:   action,
		Resource: resource,
		Metadata: metadata,
		Result:   "SUCCESS",
		Severity: severityFor(action),
	})
}

func severityFor(action string) string {
	switch action {
	case constants.AuditActionUnauthorizedAccess:
		return "HIGH"
	case constants.AuditActionDataDeletion:
		return "HIGH"
	case constants.AuditActionDataExport:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
