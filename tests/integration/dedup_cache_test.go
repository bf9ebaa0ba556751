package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sift/internal/dedup"
)

func TestDedupRepository_SetAndExists(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	key := dedup.Key{TenantID: "t1", SourceType: "gmail", SourceID: "g-1"}.String()

	exists, err := repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Set(ctx, key, time.Hour))

	exists, err = repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	ttl, err := infra.RedisClient.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute, "entries must expire, not live forever")
}

func TestDedupRepository_DeleteByPattern(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	for i := 0; i < 5; i++ {
		key := dedup.Key{TenantID: "t1", SourceType: "gmail", SourceID: uniqueSourceID("g", i)}.String()
		require.NoError(t, repo.Set(ctx, key, time.Hour))
	}
	other := dedup.Key{TenantID: "t2", SourceType: "gmail", SourceID: "g-0"}.String()
	require.NoError(t, repo.Set(ctx, other, time.Hour))

	deleted, err := repo.DeleteByPattern(ctx, dedup.TenantPattern("t1"))
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	// the other tenant's entries survive the purge
	exists, err := repo.Exists(ctx, other)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDedupRepository_CountByPattern(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	for i := 0; i < 3; i++ {
		key := dedup.Key{TenantID: "t1", SourceType: "sms", SourceID: uniqueSourceID("s", i)}.String()
		require.NoError(t, repo.Set(ctx, key, time.Hour))
	}

	count, err := repo.CountByPattern(ctx, dedup.TenantPattern("t1"))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDedupService_EndToEnd(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, true)

	ctx := context.Background()
	store := newPostgresStore(t, infra)
	svc := newDedupService(t, infra, store)

	key := dedup.Key{TenantID: "t1", SourceType: "gmail", SourceID: "g-1"}

	duplicate, err := svc.IsDuplicate(ctx, key)
	require.NoError(t, err)
	assert.False(t, duplicate)

	require.NoError(t, store.save(ctx, key))
	require.NoError(t, svc.MarkSeen(ctx, key))

	duplicate, err = svc.IsDuplicate(ctx, key)
	require.NoError(t, err)
	assert.True(t, duplicate)

	// cache flushed: the store is still authoritative
	require.NoError(t, infra.RedisClient.FlushAll(ctx).Err())
	duplicate, err = svc.IsDuplicate(ctx, key)
	require.NoError(t, err)
	assert.True(t, duplicate)
}
