package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sift/internal/config"
	"sift/internal/constants"
	"sift/internal/dedup"
	"sift/internal/logger"
	"sift/internal/tenant"
	"sift/pkg/errors"
	"sift/pkg/models"
)

type fakeRepo struct {
	mu              sync.Mutex
	messages        map[string]models.SourceMessage // keyed by source_id+source_type
	published       map[string]bool                 // keyed by message_id
	classifications []models.ClassificationResult
	saveCalls       int
	purgeErr        error
	purgedCount     int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		messages:  make(map[string]models.SourceMessage),
		published: make(map[string]bool),
	}
}

func (f *fakeRepo) naturalKey(sourceID string, sourceType models.SourceType) string {
	return sourceID + "|" + string(sourceType)
}

func (f *fakeRepo) Save(ctx context.Context, msg models.SourceMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	key := f.naturalKey(msg.SourceID, msg.SourceType)
	if _, exists := f.messages[key]; exists {
		return errors.ErrDuplicateMessage
	}
	f.messages[key] = msg
	f.published[msg.MessageID] = false
	return nil
}

func (f *fakeRepo) HasMessage(ctx context.Context, tenantID string, key dedup.Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[f.naturalKey(key.SourceID, key.SourceType)]
	return ok && msg.TenantID == tenantID, nil
}

func (f *fakeRepo) ListByTenant(ctx context.Context, tenantID string, sourceType models.SourceType, limit, offset int) ([]models.SourceMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SourceMessage
	for _, msg := range f.messages {
		if msg.TenantID == tenantID && (sourceType == "" || msg.SourceType == sourceType) {
			out = append(out, msg)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) CountByTenant(ctx context.Context, tenantID string, sourceType models.SourceType) (int64, error) {
	msgs, _ := f.ListByTenant(ctx, tenantID, sourceType, 1<<30, 0)
	return int64(len(msgs)), nil
}

func (f *fakeRepo) ListUnpublished(ctx context.Context, limit int) ([]models.SourceMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SourceMessage
	for _, msg := range f.messages {
		if !f.published[msg.MessageID] {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) CountUnpublished(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.published {
		if !p {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) MarkPublished(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.published[messageID]; !ok {
		return errors.ErrNotFound
	}
	f.published[messageID] = true
	return nil
}

func (f *fakeRepo) ListClassificationsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]models.ClassificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassificationResult
	for _, result := range f.classifications {
		if result.TenantID == tenantID {
			out = append(out, result)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) PurgeTenant(ctx context.Context, tenantID string) (int64, int64, error) {
	if f.purgeErr != nil {
		return 0, 0, f.purgeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for key, msg := range f.messages {
		if msg.TenantID == tenantID {
			delete(f.messages, key)
			delete(f.published, msg.MessageID)
			deleted++
		}
	}
	f.purgedCount = deleted
	return deleted, 0, nil
}

type publishedEvent struct {
	topic   string
	key     string
	payload interface{}
}

type fakeProducer struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{topic: topic, key: key, payload: payload})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProducer) published() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedEvent, len(f.events))
	copy(out, f.events)
	return out
}

type fakeCacheRepo struct {
	mu      sync.Mutex
	entries map[string]bool
}

func (f *fakeCacheRepo) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key], nil
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = true
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries)
	f.entries = make(map[string]bool)
	return n, nil
}

func (f *fakeCacheRepo) CountByPattern(ctx context.Context, pattern string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

type testEnv struct {
	repo     *fakeRepo
	producer *fakeProducer
	service  *Service
	outbox   *OutboxSweeper
	audit    *tenant.AuditLogger
}

func newTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := newTestLogger(t)

	repo := newFakeRepo()
	producer := &fakeProducer{}
	audit := tenant.NewAuditLogger(nil, log)
	guard := tenant.NewGuard(audit, log)

	dedupSvc := dedup.NewService(
		&fakeCacheRepo{entries: make(map[string]bool)},
		repo,
		config.DedupConfig{TTL: time.Hour},
		log,
	)
	t.Cleanup(dedupSvc.StopCacheMetricsUpdater)

	svc := NewService(repo, dedupSvc, producer, NewRegistry(), guard, audit, 4, log)
	outbox := NewOutboxSweeper(repo, producer, time.Minute, 100, log)

	return &testEnv{repo: repo, producer: producer, service: svc, outbox: outbox, audit: audit}
}

func tenantCtx(tenantID string) context.Context {
	return tenant.WithTenant(context.Background(), tenantID, "test")
}

func testMessage(sourceID string) models.SourceMessage {
	return models.SourceMessage{
		SourceID:   sourceID,
		SourceType: models.SourceTypeGmail,
		Subject:    "hello",
		Body:       "world",
	}
}

func TestIngestHappyPath(t *testing.T) {
	env := newTestEnv(t)

	stats, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Received)
	assert.Equal(t, 1, stats.Saved)
	assert.Zero(t, stats.Duplicates)
	assert.Zero(t, stats.Failed)

	events := env.producer.published()
	require.Len(t, events, 1)
	assert.Equal(t, constants.TopicRawMessagesExtracted, events[0].topic)

	event, ok := events[0].payload.(models.MessageExtractedEvent)
	require.True(t, ok)
	assert.Equal(t, "t1", event.TenantID)
	assert.True(t, strings.HasPrefix(event.Message.MessageID, "gmail_g-1_"))
	assert.NotEmpty(t, event.Message.CorrelationID)
	assert.True(t, env.repo.published[event.Message.MessageID], "message must be marked published")
}

func TestIngestReplayIsAbsorbed(t *testing.T) {
	env := newTestEnv(t)
	batch := []models.SourceMessage{testMessage("g-1")}

	first, err := env.service.Ingest(tenantCtx("t1"), "t1", batch)
	require.NoError(t, err)
	require.Equal(t, 1, first.Saved)

	second, err := env.service.Ingest(tenantCtx("t1"), "t1", batch)
	require.NoError(t, err)
	assert.Zero(t, second.Saved)
	assert.Equal(t, 1, second.Duplicates)

	// the store holds exactly one copy and exactly one event went out
	assert.Len(t, env.repo.messages, 1)
	assert.Len(t, env.producer.published(), 1)
}

func TestIngestSameSourceIDDifferentSourceType(t *testing.T) {
	// the natural key is (source_id, source_type); the id alone does not
	// collide across sources
	env := newTestEnv(t)

	first, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.NoError(t, err)
	require.Equal(t, 1, first.Saved)

	msg := testMessage("g-1")
	msg.SourceType = models.SourceTypeWhatsApp
	second, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{msg})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Saved, "same source id under a different source type is a new message")
}

func TestIngestRejectsUnknownSourceType(t *testing.T) {
	env := newTestEnv(t)

	msg := testMessage("g-1")
	msg.SourceType = "carrier-pigeon"
	stats, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{msg})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, env.repo.messages)
}

func TestIngestOneBadMessageDoesNotFailBatch(t *testing.T) {
	env := newTestEnv(t)

	bad := testMessage("")
	stats, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{
		testMessage("g-1"), bad, testMessage("g-2"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Saved)
	assert.Equal(t, 1, stats.Failed)
}

func TestIngestRequiresTenant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Ingest(context.Background(), "t1", []models.SourceMessage{testMessage("g-1")})
	require.Error(t, err)
	assert.True(t, errors.IsUnauthenticated(err))
}

func TestIngestCrossTenantIsForbidden(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Ingest(tenantCtx("t2"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.Error(t, err)
	assert.True(t, errors.IsForbidden(err))
	assert.Empty(t, env.repo.messages, "nothing may be written on a blocked request")
}

func TestCrossTenantReadIsForbidden(t *testing.T) {
	env := newTestEnv(t)

	_, saveErr := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.NoError(t, saveErr)

	_, err := env.service.GetMessages(tenantCtx("t2"), "t1", "", 10, 0)
	require.Error(t, err)
	assert.True(t, errors.IsForbidden(err))
}

func TestPublishFailureLeavesMessageForOutbox(t *testing.T) {
	env := newTestEnv(t)
	env.producer.setErr(fmt.Errorf("broker down"))

	stats, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved, "persisted message counts as saved even when the announce fails")

	pending, err := env.repo.CountUnpublished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	// broker recovers; the sweep publishes and marks the row
	env.producer.setErr(nil)
	require.NoError(t, env.outbox.Sweep(context.Background()))

	events := env.producer.published()
	require.Len(t, events, 1)
	assert.Equal(t, constants.TopicRawMessagesExtracted, events[0].topic)

	pending, err = env.repo.CountUnpublished(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestOutboxSweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.NoError(t, err)

	require.NoError(t, env.outbox.Sweep(context.Background()))
	require.NoError(t, env.outbox.Sweep(context.Background()))

	assert.Len(t, env.producer.published(), 1, "published rows must not be re-announced")
}

func TestGetMessagesFiltersBySourceType(t *testing.T) {
	env := newTestEnv(t)

	whatsapp := testMessage("w-1")
	whatsapp.SourceType = models.SourceTypeWhatsApp
	_, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1"), whatsapp})
	require.NoError(t, err)

	msgs, err := env.service.GetMessages(tenantCtx("t1"), "t1", models.SourceTypeWhatsApp, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SourceTypeWhatsApp, msgs[0].SourceType)

	count, err := env.service.CountMessages(tenantCtx("t1"), "t1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExportTenantData(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1"), testMessage("g-2")})
	require.NoError(t, err)

	env.repo.classifications = []models.ClassificationResult{
		{MessageID: "m-1", TenantID: "t1", PrimaryCategory: models.CategoryTransactional},
		{MessageID: "m-9", TenantID: "t2", PrimaryCategory: models.CategoryPersonal},
	}

	export, err := env.service.ExportTenantData(tenantCtx("t1"), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", export.TenantID)
	assert.Len(t, export.Messages, 2)
	assert.False(t, export.ExportedAt.IsZero())

	// the export carries classification data, and only the caller's
	require.Len(t, export.Classifications, 1)
	assert.Equal(t, "m-1", export.Classifications[0].MessageID)
}

func TestPurgeTenantData(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.NoError(t, err)

	require.NoError(t, env.service.PurgeTenantData(tenantCtx("t1"), "t1", "account_closed"))
	assert.Empty(t, env.repo.messages)

	// a purged message can be ingested again
	stats, err := env.service.Ingest(tenantCtx("t1"), "t1", []models.SourceMessage{testMessage("g-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
}

func TestPurgeTenantDataStoreFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.repo.purgeErr = fmt.Errorf("disk on fire")

	err := env.service.PurgeTenantData(tenantCtx("t1"), "t1", "account_closed")
	require.Error(t, err)

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsFatal(), "an incomplete purge must not look retryable-and-forgotten")
}

func TestExtractFromSourceUnknownConnector(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ExtractFromSource(tenantCtx("t1"), "t1", models.SourceTypeGmail, time.Time{}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
