package extraction

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"sift/pkg/errors"
	"sift/pkg/models"
)

const memoryPageSize = 50

// MemoryConnector is an in-process message source. It backs local
// development and the test suites; production deployments register
// provider-specific connectors instead.
type MemoryConnector struct {
	sourceType models.SourceType

	mu       sync.RWMutex
	messages map[string][]models.SourceMessage
	down     bool
}

func NewMemoryConnector(sourceType models.SourceType) *MemoryConnector {
	return &MemoryConnector{
		sourceType: sourceType,
		messages:   make(map[string][]models.SourceMessage),
	}
}

// Seed appends messages to a tenant's backlog. The connector stamps its
// own source type so callers only describe content.
func (c *MemoryConnector) Seed(tenantID string, msgs ...models.SourceMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range msgs {
		msg.TenantID = tenantID
		msg.SourceType = c.sourceType
		c.messages[tenantID] = append(c.messages[tenantID], msg)
	}
	sort.SliceStable(c.messages[tenantID], func(i, j int) bool {
		return c.messages[tenantID][i].ReceivedAt.Before(c.messages[tenantID][j].ReceivedAt)
	})
}

// SetAvailable toggles the connector's health, so outage handling can be
// exercised without a real provider.
func (c *MemoryConnector) SetAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = !available
}

func (c *MemoryConnector) Fetch(ctx context.Context, tenantID string, from, to time.Time) ([]models.SourceMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTransient)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.down {
		return nil, errors.ErrTransient.
			WithDetail("message", "source provider unavailable").
			WithDetail("source_type", string(c.sourceType))
	}

	var out []models.SourceMessage
	for _, msg := range c.messages[tenantID] {
		if msg.ReceivedAt.Before(from) || !msg.ReceivedAt.Before(to) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *MemoryConnector) FetchIncremental(ctx context.Context, tenantID, syncToken string) (IncrementalResult, error) {
	if err := ctx.Err(); err != nil {
		return IncrementalResult{}, errors.Wrap(err, errors.ErrTransient)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.down {
		return IncrementalResult{}, errors.ErrTransient.
			WithDetail("message", "source provider unavailable").
			WithDetail("source_type", string(c.sourceType))
	}

	offset := 0
	if syncToken != "" {
		n, err := strconv.Atoi(syncToken)
		if err != nil || n < 0 {
			return IncrementalResult{}, errors.ErrValidation.
				WithDetail("message", "malformed sync token").
				WithDetail("sync_token", syncToken)
		}
		offset = n
	}

	backlog := c.messages[tenantID]
	if offset >= len(backlog) {
		return IncrementalResult{NextSyncToken: strconv.Itoa(len(backlog))}, nil
	}

	end := offset + memoryPageSize
	if end > len(backlog) {
		end = len(backlog)
	}

	page := make([]models.SourceMessage, end-offset)
	copy(page, backlog[offset:end])

	return IncrementalResult{
		Messages:      page,
		NextSyncToken: strconv.Itoa(end),
		HasMore:       end < len(backlog),
	}, nil
}

func (c *MemoryConnector) GetByID(ctx context.Context, tenantID, sourceID string) (models.SourceMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.SourceMessage{}, errors.Wrap(err, errors.ErrTransient)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, msg := range c.messages[tenantID] {
		if msg.SourceID == sourceID {
			return msg, nil
		}
	}
	return models.SourceMessage{}, errors.ErrNotFound.
		WithDetail("source_id", sourceID).
		WithDetail("source_type", string(c.sourceType))
}

func (c *MemoryConnector) IsAvailable(ctx context.Context, tenantID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.down
}

func (c *MemoryConnector) Type() models.SourceType {
	return c.sourceType
}
