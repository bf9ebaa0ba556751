package tenant

import (
	"context"

	"sift/pkg/errors"
	"sift/pkg/logging"
)

type contextKey struct{}

// Tenant is the identity bound to a unit of work. It is carried in the
// context.Context of the request or consumed event, never in package or
// goroutine-local state, so it cannot leak into a reused worker: releasing
// the context releases the identity.
type Tenant struct {
	ID       string
	Identity string
}

// WithTenant binds a tenant to the given context and tags log output with
// the tenant id.
func WithTenant(ctx context.Context, tenantID, identity string) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, Tenant{ID: tenantID, Identity: identity})
	return logging.WithTenantID(ctx, tenantID)
}

// FromContext returns the bound tenant, or ErrUnauthenticated when the
// unit of work has no identity.
func FromContext(ctx context.Context) (Tenant, error) {
	t, ok := ctx.Value(contextKey{}).(Tenant)
	if !ok || t.ID == "" {
		return Tenant{}, errors.ErrUnauthenticated
	}
	return t, nil
}

// CurrentTenantID is a convenience accessor for the bound tenant id.
func CurrentTenantID(ctx context.Context) (string, error) {
	t, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}
