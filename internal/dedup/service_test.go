package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sift/internal/config"
	"sift/internal/constants"
	"sift/internal/logger"
	"sift/pkg/errors"
	"sift/pkg/models"
)

type fakeRepository struct {
	entries    map[string]bool
	existsErr  error
	setErr     error
	setTTLs    map[string]time.Duration
	deleteErr  error
	deletedPat string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		entries: make(map[string]bool),
		setTTLs: make(map[string]time.Duration),
	}
}

func (f *fakeRepository) Exists(ctx context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.entries[key], nil
}

func (f *fakeRepository) Set(ctx context.Context, key string, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = true
	f.setTTLs[key] = ttl
	return nil
}

func (f *fakeRepository) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedPat = pattern
	n := len(f.entries)
	f.entries = make(map[string]bool)
	return n, nil
}

func (f *fakeRepository) CountByPattern(ctx context.Context, pattern string) (int, error) {
	return len(f.entries), nil
}

type fakeStore struct {
	messages map[string]bool
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]bool)}
}

func (f *fakeStore) HasMessage(ctx context.Context, tenantID string, key Key) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.messages[key.CacheKey()], nil
}

func newTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func testKey() Key {
	return Key{TenantID: "t1", SourceType: models.SourceTypeGmail, SourceID: "g-1"}
}

func newTestService(t *testing.T, repo Repository, store ExistenceStore, cfg config.DedupConfig) *Service {
	t.Helper()
	svc := NewService(repo, store, cfg, newTestLogger(t))
	t.Cleanup(svc.StopCacheMetricsUpdater)
	return svc
}

func TestIsDuplicateNewMessage(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStore()
	svc := newTestService(t, repo, store, config.DedupConfig{})

	dup, err := svc.IsDuplicate(context.Background(), testKey())
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIsDuplicateCachedAndStored(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStore()
	key := testKey()
	repo.entries[key.CacheKey()] = true
	store.messages[key.CacheKey()] = true
	svc := newTestService(t, repo, store, config.DedupConfig{})

	dup, err := svc.IsDuplicate(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestIsDuplicateCacheLoss(t *testing.T) {
	// cache entry expired or evicted, but the row is durable
	repo := newFakeRepository()
	store := newFakeStore()
	key := testKey()
	store.messages[key.CacheKey()] = true
	svc := newTestService(t, repo, store, config.DedupConfig{})

	dup, err := svc.IsDuplicate(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, dup, "store row must win over a missing cache entry")
}

func TestIsDuplicateCacheFalsePositive(t *testing.T) {
	// cache entry without a store row: the store is authoritative
	repo := newFakeRepository()
	store := newFakeStore()
	key := testKey()
	repo.entries[key.CacheKey()] = true
	svc := newTestService(t, repo, store, config.DedupConfig{})

	dup, err := svc.IsDuplicate(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, dup, "cache entry alone must not mark a message duplicate")
}

func TestIsDuplicateCacheErrorDenies(t *testing.T) {
	repo := newFakeRepository()
	repo.existsErr = fmt.Errorf("connection refused")
	store := newFakeStore()
	svc := newTestService(t, repo, store, config.DedupConfig{OnCacheError: constants.FallbackDeny})

	_, err := svc.IsDuplicate(context.Background(), testKey())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestIsDuplicateCacheErrorAllowFallsBackToStore(t *testing.T) {
	repo := newFakeRepository()
	repo.existsErr = fmt.Errorf("connection refused")
	store := newFakeStore()
	key := testKey()
	store.messages[key.CacheKey()] = true
	svc := newTestService(t, repo, store, config.DedupConfig{OnCacheError: constants.FallbackAllow})

	dup, err := svc.IsDuplicate(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestIsDuplicateStoreError(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStore()
	store.err = fmt.Errorf("db down")
	svc := newTestService(t, repo, store, config.DedupConfig{})

	_, err := svc.IsDuplicate(context.Background(), testKey())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "store failure must never read as 'not a duplicate'")
}

func TestMarkSeenUsesConfiguredTTL(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStore()
	key := testKey()
	svc := newTestService(t, repo, store, config.DedupConfig{TTL: time.Hour})

	require.NoError(t, svc.MarkSeen(context.Background(), key))
	assert.True(t, repo.entries[key.CacheKey()])
	assert.Equal(t, time.Hour, repo.setTTLs[key.CacheKey()])
}

func TestMarkSeenDefaultTTL(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStore()
	key := testKey()
	svc := newTestService(t, repo, store, config.DedupConfig{})

	require.NoError(t, svc.MarkSeen(context.Background(), key))
	assert.Equal(t, constants.DefaultDedupTTL, repo.setTTLs[key.CacheKey()])
}

func TestPurgeTenant(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStore()
	key := testKey()
	repo.entries[key.CacheKey()] = true
	svc := newTestService(t, repo, store, config.DedupConfig{})

	deleted, err := svc.PurgeTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, "tenant:t1:*", repo.deletedPat)
}

func TestCacheKeyLayout(t *testing.T) {
	key := Key{TenantID: "t1", SourceType: models.SourceTypeGmail, SourceID: "g-1"}
	assert.Equal(t, "tenant:t1:dedup:gmail:g-1", key.CacheKey())
	assert.Equal(t, "tenant:t1:*", TenantPattern("t1"))
}
