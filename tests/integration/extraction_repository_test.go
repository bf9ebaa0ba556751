package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sift/internal/classification"
	"sift/internal/dedup"
	"sift/internal/extraction"
	"sift/pkg/errors"
	"sift/pkg/models"
)

func TestExtractionRepository_SaveAndList(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)

	msg := createTestMessage("t1", "g-1", models.SourceTypeGmail)
	require.NoError(t, repo.Save(ctx, msg))

	messages, err := repo.ListByTenant(ctx, "t1", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	got := messages[0]
	assert.Equal(t, msg.MessageID, got.MessageID)
	assert.Equal(t, msg.SourceID, got.SourceID)
	assert.Equal(t, msg.Subject, got.Subject)
	assert.Equal(t, msg.Body, got.Body)
	assert.Equal(t, msg.To, got.To)
	assert.Equal(t, msg.Labels, got.Labels)
}

func TestExtractionRepository_SaveDuplicate(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)

	first := createTestMessage("t1", "g-1", models.SourceTypeGmail)
	require.NoError(t, repo.Save(ctx, first))

	// same natural key, different internal id
	replay := createTestMessage("t1", "g-1", models.SourceTypeGmail)
	err := repo.Save(ctx, replay)
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateMessage(err))

	count, err := repo.CountByTenant(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestExtractionRepository_SameSourceIDDifferentType(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)

	require.NoError(t, repo.Save(ctx, createTestMessage("t1", "x-1", models.SourceTypeGmail)))
	require.NoError(t, repo.Save(ctx, createTestMessage("t1", "x-1", models.SourceTypeWhatsApp)))

	count, err := repo.CountByTenant(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExtractionRepository_HasMessage(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)

	require.NoError(t, repo.Save(ctx, createTestMessage("t1", "g-1", models.SourceTypeGmail)))

	key := dedup.Key{TenantID: "t1", SourceType: models.SourceTypeGmail, SourceID: "g-1"}
	exists, err := repo.HasMessage(ctx, "t1", key)
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := repo.HasMessage(ctx, "t1", dedup.Key{TenantID: "t1", SourceType: models.SourceTypeGmail, SourceID: "g-2"})
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestExtractionRepository_ListFiltersByTenantAndSource(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)

	require.NoError(t, repo.Save(ctx, createTestMessage("t1", "g-1", models.SourceTypeGmail)))
	require.NoError(t, repo.Save(ctx, createTestMessage("t1", "w-1", models.SourceTypeWhatsApp)))
	require.NoError(t, repo.Save(ctx, createTestMessage("t2", "g-2", models.SourceTypeGmail)))

	gmail, err := repo.ListByTenant(ctx, "t1", models.SourceTypeGmail, 10, 0)
	require.NoError(t, err)
	require.Len(t, gmail, 1)
	assert.Equal(t, "g-1", gmail[0].SourceID)

	// the other tenant's rows are invisible
	all, err := repo.ListByTenant(ctx, "t1", "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestExtractionRepository_Outbox(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)

	msg := createTestMessage("t1", "g-1", models.SourceTypeGmail)
	require.NoError(t, repo.Save(ctx, msg))

	pending, err := repo.CountUnpublished(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	unpublished, err := repo.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unpublished, 1)
	assert.Equal(t, msg.MessageID, unpublished[0].MessageID)

	require.NoError(t, repo.MarkPublished(ctx, msg.MessageID))

	pending, err = repo.CountUnpublished(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestExtractionRepository_MarkPublishedUnknown(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := extraction.NewRepository(infra.PostgresDB)

	err := repo.MarkPublished(context.Background(), "no-such-message")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestExtractionRepository_PurgeTenant(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)

	victim := createTestMessage("t1", "g-1", models.SourceTypeGmail)
	require.NoError(t, repo.Save(ctx, victim))
	require.NoError(t, repo.Save(ctx, createTestMessage("t2", "g-2", models.SourceTypeGmail)))

	messages, _, err := repo.PurgeTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), messages)

	count, err := repo.CountByTenant(ctx, "t1", "")
	require.NoError(t, err)
	assert.Zero(t, count)

	// the other tenant is untouched
	count, err = repo.CountByTenant(ctx, "t2", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// the natural key is free again after a purge
	assert.NoError(t, repo.Save(ctx, createTestMessage("t1", "g-1", models.SourceTypeGmail)))
}

func TestExtractionRepository_ListClassificationsByTenant(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := extraction.NewRepository(infra.PostgresDB)
	clsRepo := classification.NewRepository(infra.PostgresDB)

	require.NoError(t, clsRepo.Save(ctx, createTestResult("t1", "m-1", models.CategoryTransactional)))
	require.NoError(t, clsRepo.Save(ctx, createTestResult("t1", "m-2", models.CategoryTravel)))
	require.NoError(t, clsRepo.Save(ctx, createTestResult("t2", "m-3", models.CategoryPersonal)))

	results, err := repo.ListClassificationsByTenant(ctx, "t1", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, "t1", result.TenantID)
	}

	// paging walks the full set
	page, err := repo.ListClassificationsByTenant(ctx, "t1", 1, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
