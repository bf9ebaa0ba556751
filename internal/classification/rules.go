package classification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RuleRepository interface {
	GetActiveRules(ctx context.Context) ([]PatternRule, error)
	SeedDefaults(ctx context.Context) error
}

type MongoRuleRepository struct {
	collection *mongo.Collection
}

func NewRuleRepository(db *mongo.Database) RuleRepository {
	return &MongoRuleRepository{
		collection: db.Collection("pattern_rules"),
	}
}

func (r *MongoRuleRepository) GetActiveRules(ctx context.Context) ([]PatternRule, error) {
	filter := bson.M{"enabled": true}
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "category", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pattern rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []PatternRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode pattern rules: %w", err)
	}

	return rules, nil
}

// SeedDefaults inserts the built-in rule set when the collection is
// empty, so a fresh deployment classifies out of the box.
func (r *MongoRuleRepository) SeedDefaults(ctx context.Context) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count pattern rules: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := DefaultRules()
	docs := make([]interface{}, 0, len(defaults))
	for _, rule := range defaults {
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		rule.UpdatedAt = time.Now()
		docs = append(docs, rule)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to seed default pattern rules: %w", err)
	}

	return nil
}
