package extraction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"sift/internal/dedup"
	pkgerrors "sift/pkg/errors"
	"sift/pkg/models"
)

// Repository is the durable message store. The unique constraint on
// (source_id, source_type) is the final duplicate guard; every read and
// delete filters by tenant_id inside the SQL itself, not only in
// application code.
type Repository interface {
	Save(ctx context.Context, msg models.SourceMessage) error
	HasMessage(ctx context.Context, tenantID string, key dedup.Key) (bool, error)
	ListByTenant(ctx context.Context, tenantID string, sourceType models.SourceType, limit, offset int) ([]models.SourceMessage, error)
	CountByTenant(ctx context.Context, tenantID string, sourceType models.SourceType) (int64, error)
	ListUnpublished(ctx context.Context, limit int) ([]models.SourceMessage, error)
	CountUnpublished(ctx context.Context) (int64, error)
	MarkPublished(ctx context.Context, messageID string) error
	ListClassificationsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]models.ClassificationResult, error)
	PurgeTenant(ctx context.Context, tenantID string) (messages int64, classifications int64, err error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const messageColumns = `
	message_id, source_id, source_type, tenant_id, subject, body, snippet,
	from_address, to_addresses, cc_addresses, bcc_addresses,
	received_at, sent_at, thread_id, conversation_id, labels, attachments,
	is_read, is_starred, is_important, correlation_id
`

func (r *PostgresRepository) Save(ctx context.Context, msg models.SourceMessage) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	query := `
		INSERT INTO extracted_messages (` + messageColumns + `, published, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, FALSE, $22)
	`

	_, err = r.db.ExecContext(ctx, query,
		msg.MessageID, msg.SourceID, msg.SourceType, msg.TenantID,
		msg.Subject, msg.Body, msg.Snippet,
		msg.From, strings.Join(msg.To, ","), strings.Join(msg.Cc, ","), strings.Join(msg.Bcc, ","),
		nullableTime(msg.ReceivedAt), nullableTime(msg.SentAt),
		msg.ThreadID, msg.ConversationID, strings.Join(msg.Labels, ","), attachments,
		msg.IsRead, msg.IsStarred, msg.IsImportant, msg.CorrelationID, time.Now(),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrDuplicateMessage.WithCause(err).
				WithDetail("source_id", msg.SourceID).
				WithDetail("source_type", string(msg.SourceType))
		}
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return pkgerrors.ErrDuplicateMessage.WithCause(err).
				WithDetail("source_id", msg.SourceID).
				WithDetail("source_type", string(msg.SourceType))
		}
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

func (r *PostgresRepository) HasMessage(ctx context.Context, tenantID string, key dedup.Key) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM extracted_messages
			WHERE tenant_id = $1 AND source_id = $2 AND source_type = $3
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, tenantID, key.SourceID, key.SourceType).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, sourceType models.SourceType, limit, offset int) ([]models.SourceMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM extracted_messages
		WHERE tenant_id = $1 AND ($2 = '' OR source_type = $2)
		ORDER BY received_at DESC, message_id
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, string(sourceType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.SourceMessage
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (r *PostgresRepository) CountByTenant(ctx context.Context, tenantID string, sourceType models.SourceType) (int64, error) {
	query := `
		SELECT COUNT(*) FROM extracted_messages
		WHERE tenant_id = $1 AND ($2 = '' OR source_type = $2)
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, tenantID, string(sourceType)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ListUnpublished(ctx context.Context, limit int) ([]models.SourceMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM extracted_messages
		WHERE published = FALSE
		ORDER BY extracted_at
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished messages: %w", err)
	}
	defer rows.Close()

	var messages []models.SourceMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (r *PostgresRepository) CountUnpublished(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_messages WHERE published = FALSE`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unpublished messages: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE extracted_messages SET published = TRUE WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message published: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message_id", messageID)
	}

	return nil
}

// ListClassificationsByTenant reads the tenant's classification rows for
// the data export. The purge already owns both tables, so the export
// reads them from here too rather than crossing service boundaries.
func (r *PostgresRepository) ListClassificationsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]models.ClassificationResult, error) {
	query := `
		SELECT message_id, tenant_id, primary_category, category_scores, classifier_name,
		       confidence, entities, classified_at, correlation_id
		FROM classified_messages
		WHERE tenant_id = $1
		ORDER BY classified_at DESC, message_id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	defer rows.Close()

	var results []models.ClassificationResult
	for rows.Next() {
		var (
			result       models.ClassificationResult
			category     string
			scores       []byte
			entities     string
			classifiedAt time.Time
		)
		if err := rows.Scan(
			&result.MessageID, &result.TenantID, &category, &scores,
			&result.ClassifierName, &result.Confidence, &entities,
			&classifiedAt, &result.CorrelationID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		result.PrimaryCategory = models.Category(category)
		result.ClassifiedAt = classifiedAt
		if len(scores) > 0 {
			if err := json.Unmarshal(scores, &result.CategoryScores); err != nil {
				return nil, fmt.Errorf("failed to decode category scores: %w", err)
			}
		}
		if entities != "" {
			result.Entities = strings.Split(entities, ",")
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// PurgeTenant deletes the tenant's messages and classifications in one
// transaction so a partial store purge cannot be mistaken for success.
func (r *PostgresRepository) PurgeTenant(ctx context.Context, tenantID string) (int64, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer tx.Rollback()

	clsRes, err := tx.ExecContext(ctx, `DELETE FROM classified_messages WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge classifications: %w", err)
	}
	classifications, _ := clsRes.RowsAffected()

	msgRes, err := tx.ExecContext(ctx, `DELETE FROM extracted_messages WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	messages, _ := msgRes.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit purge transaction: %w", err)
	}

	return messages, classifications, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (models.SourceMessage, error) {
	var (
		msg                 models.SourceMessage
		sourceType          string
		to, cc, bcc, labels string
		receivedAt, sentAt  sql.NullTime
		attachments         []byte
	)

	err := row.Scan(
		&msg.MessageID, &msg.SourceID, &sourceType, &msg.TenantID,
		&msg.Subject, &msg.Body, &msg.Snippet,
		&msg.From, &to, &cc, &bcc,
		&receivedAt, &sentAt,
		&msg.ThreadID, &msg.ConversationID, &labels, &attachments,
		&msg.IsRead, &msg.IsStarred, &msg.IsImportant, &msg.CorrelationID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, pkgerrors.ErrNotFound.WithCause(err)
	}
	if err != nil {
		return msg, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.SourceType = models.SourceType(sourceType)
	msg.To = splitList(to)
	msg.Cc = splitList(cc)
	msg.Bcc = splitList(bcc)
	msg.Labels = splitList(labels)
	if receivedAt.Valid {
		msg.ReceivedAt = receivedAt.Time
	}
	if sentAt.Valid {
		msg.SentAt = sentAt.Time
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return msg, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}

	return msg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
