package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"sift/internal/classification"
	"sift/pkg/migrations"
	"sift/pkg/models"
)

func TestRuleRepository_SeedDefaults(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	require.NoError(t, migrations.EnsurePatternRuleIndexes(ctx, infra.MongoDB))

	repo := classification.NewRuleRepository(infra.MongoDB)
	require.NoError(t, repo.SeedDefaults(ctx))

	rules, err := repo.GetActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, len(classification.DefaultRules()))

	categories := make(map[models.Category]bool)
	for _, rule := range rules {
		categories[rule.Category] = true
		assert.NotEmpty(t, rule.Patterns)
	}
	assert.True(t, categories[models.CategoryTransactional])
	assert.True(t, categories[models.CategoryPersonal])
}

func TestRuleRepository_SeedDefaultsIsIdempotent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	repo := classification.NewRuleRepository(infra.MongoDB)

	require.NoError(t, repo.SeedDefaults(ctx))
	require.NoError(t, repo.SeedDefaults(ctx))

	rules, err := repo.GetActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, len(classification.DefaultRules()))
}

func TestRuleRepository_GetActiveRulesSkipsDisabled(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	repo := classification.NewRuleRepository(infra.MongoDB)
	require.NoError(t, repo.SeedDefaults(ctx))

	_, err := infra.MongoDB.Collection("pattern_rules").UpdateOne(ctx,
		bson.M{"category": models.CategoryPersonal},
		bson.M{"$set": bson.M{"enabled": false}},
	)
	require.NoError(t, err)

	rules, err := repo.GetActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, len(classification.DefaultRules())-1)
	for _, rule := range rules {
		assert.NotEqual(t, models.CategoryPersonal, rule.Category)
	}
}

func TestRuleRepository_RulesCompileIntoStrategy(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	repo := classification.NewRuleRepository(infra.MongoDB)
	require.NoError(t, repo.SeedDefaults(ctx))

	rules, err := repo.GetActiveRules(ctx)
	require.NoError(t, err)

	strategy, err := classification.NewRuleBasedStrategy(rules, 0.3)
	require.NoError(t, err)

	result := strategy.Classify(models.SourceMessage{
		Subject: "Order confirmation",
		Body:    "payment received $42.00",
	})
	assert.Equal(t, models.CategoryTransactional, result.PrimaryCategory)
}
