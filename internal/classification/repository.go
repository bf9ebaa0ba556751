package classification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sift/pkg/models"
)

type Repository interface {
	Save(ctx context.Context, result models.ClassificationResult) error
	GetByMessageID(ctx context.Context, tenantID, messageID string) (models.ClassificationResult, bool, error)
	ListByCategory(ctx context.Context, tenantID string, category models.Category, limit, offset int) ([]models.ClassificationResult, error)
	CountByCategory(ctx context.Context, tenantID string) (map[models.Category]int64, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

// Save upserts on message_id so a replayed event overwrites instead of
// erroring.
func (r *PostgresRepository) Save(ctx context.Context, result models.ClassificationResult) error {
	scores, err := json.Marshal(result.CategoryScores)
	if err != nil {
		return fmt.Errorf("failed to encode category scores: %w", err)
	}

	query := `
		INSERT INTO classified_messages
			(message_id, tenant_id, primary_category, category_scores, classifier_name,
			 confidence, entities, classified_at, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO UPDATE SET
			primary_category = EXCLUDED.primary_category,
			category_scores  = EXCLUDED.category_scores,
			classifier_name  = EXCLUDED.classifier_name,
			confidence       = EXCLUDED.confidence,
			entities         = EXCLUDED.entities,
			classified_at    = EXCLUDED.classified_at
	`

	_, err = r.db.ExecContext(ctx, query,
		result.MessageID, result.TenantID, string(result.PrimaryCategory), scores,
		result.ClassifierName, result.Confidence, strings.Join(result.Entities, ","),
		result.ClassifiedAt, result.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByMessageID(ctx context.Context, tenantID, messageID string) (models.ClassificationResult, bool, error) {
	query := `
		SELECT message_id, tenant_id, primary_category, category_scores, classifier_name,
		       confidence, entities, classified_at, correlation_id
		FROM classified_messages
		WHERE tenant_id = $1 AND message_id = $2
	`

	result, err := scanClassification(r.db.QueryRowContext(ctx, query, tenantID, messageID))
	if err == sql.ErrNoRows {
		return models.ClassificationResult{}, false, nil
	}
	if err != nil {
		return models.ClassificationResult{}, false, err
	}
	return result, true, nil
}

func (r *PostgresRepository) ListByCategory(ctx context.Context, tenantID string, category models.Category, limit, offset int) ([]models.ClassificationResult, error) {
	query := `
		SELECT message_id, tenant_id, primary_category, category_scores, classifier_name,
		       confidence, entities, classified_at, correlation_id
		FROM classified_messages
		WHERE tenant_id = $1 AND ($2 = '' OR primary_category = $2)
		ORDER BY classified_at DESC, message_id
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, string(category), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	defer rows.Close()

	var results []models.ClassificationResult
	for rows.Next() {
		result, err := scanClassification(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

func (r *PostgresRepository) CountByCategory(ctx context.Context, tenantID string) (map[models.Category]int64, error) {
	query := `
		SELECT primary_category, COUNT(*)
		FROM classified_messages
		WHERE tenant_id = $1
		GROUP BY primary_category
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count classifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Category]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[models.Category(category)] = count
	}

	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClassification(row rowScanner) (models.ClassificationResult, error) {
	var (
		result       models.ClassificationResult
		category     string
		scores       []byte
		entities     string
		classifiedAt time.Time
	)

	err := row.Scan(
		&result.MessageID, &result.TenantID, &category, &scores,
		&result.ClassifierName, &result.Confidence, &entities,
		&classifiedAt, &result.CorrelationID,
	)
	if err == sql.ErrNoRows {
		return result, err
	}
	if err != nil {
		return result, fmt.Errorf("failed to scan classification: %w", err)
	}

	result.PrimaryCategory = models.Category(category)
	result.ClassifiedAt = classifiedAt
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &result.CategoryScores); err != nil {
			return result, fmt.Errorf("failed to decode category scores: %w", err)
		}
	}
	if entities != "" {
		result.Entities = strings.Split(entities, ",")
	}

	return result, nil
}
