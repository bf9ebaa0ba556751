package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsurePatternRuleIndexes creates the indexes the rule reloader queries
// against. Safe to call on every startup.
func EnsurePatternRuleIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("pattern_rules")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "enabled", Value: 1}, {Key: "priority", Value: -1}},
			Options: options.Index().SetName("idx_pattern_rules_enabled_priority"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}},
			Options: options.Index().SetName("idx_pattern_rules_category"),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_pattern_rules_updated_at"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
