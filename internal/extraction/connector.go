package extraction

import (
	"context"
	"time"

	"sift/pkg/errors"
	"sift/pkg/models"
)

// Connector is the boundary contract a source provider implements. The
// orchestrator depends only on this interface, never on a provider's wire
// format or auth/paging quirks.
type Connector interface {
	// Fetch returns the tenant's messages received in [from, to).
	Fetch(ctx context.Context, tenantID string, from, to time.Time) ([]models.SourceMessage, error)

	// FetchIncremental pages through new messages using a provider sync
	// token. An empty token starts from the beginning.
	FetchIncremental(ctx context.Context, tenantID, syncToken string) (IncrementalResult, error)

	// GetByID fetches a single message by its provider-native id.
	GetByID(ctx context.Context, tenantID, sourceID string) (models.SourceMessage, error)

	// IsAvailable reports whether the provider is reachable and configured
	// for the tenant.
	IsAvailable(ctx context.Context, tenantID string) bool

	// Type is the source tag this connector handles.
	Type() models.SourceType
}

// Registry maps source types to connectors. It is populated once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	connectors map[models.SourceType]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[models.SourceType]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Type()] = c
	}
	return r
}

func (r *Registry) Resolve(sourceType models.SourceType) (Connector, error) {
	c, ok := r.connectors[sourceType]
	if !ok {
		return nil, errors.ErrNotFound.
			WithDetail("message", "no connector registered for source type").
			WithDetail("source_type", string(sourceType))
	}
	return c, nil
}

func (r *Registry) Types() []models.SourceType {
	types := make([]models.SourceType, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	return types
}
