package dedup

import (
	"fmt"

	"sift/internal/constants"
	"sift/pkg/models"
)

// Key is the natural key a message is deduplicated on.
type Key struct {
	TenantID   string
	SourceType models.SourceType
	SourceID   string
}

// CacheKey renders the tenant-namespaced Redis key, e.g.
// "tenant:t1:dedup:gmail:g-1".
func (k Key) CacheKey() string {
	return fmt.Sprintf("%s%s:%s:%s:%s",
		constants.TenantKeyPrefix, k.TenantID, constants.DedupKeySegment, k.SourceType, k.SourceID)
}

func (k Key) String() string {
	return k.CacheKey()
}

// TenantPattern matches every cached key in a tenant's namespace,
// regardless of segment. Used for GDPR purges.
func TenantPattern(tenantID string) string {
	return fmt.Sprintf("%s%s:*", constants.TenantKeyPrefix, tenantID)
}

// dedupScanPattern matches dedup entries across all tenants, for the cache
// size gauge only.
const dedupScanPattern = constants.TenantKeyPrefix + "*:" + constants.DedupKeySegment + ":*"
