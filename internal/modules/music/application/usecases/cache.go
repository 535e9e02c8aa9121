package usecases

import (
	"context"
	"fmt"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

const statsTopN = 5

// CacheService exposes cache administration and inspection on top of
// the store.
type CacheService struct {
	store ports.CacheStore
}

// NewCacheService wires a cache service over the given store.
func NewCacheService(store ports.CacheStore) *CacheService {
	return &CacheService{store: store}
}

// Stats returns cache totals and the most played tracks.
func (c *CacheService) Stats(ctx context.Context) (domain.CacheStats, error) {
	stats, err := c.store.Stats(ctx, statsTopN)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return stats, nil
}

// SearchRecords returns cached records matching the text, ranked by
// play count.
func (c *CacheService) SearchRecords(ctx context.Context, query string, limit int) ([]domain.CacheRecord, error) {
	records, err := c.store.Lookup(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search cache: %w", err)
	}
	return records, nil
}

// Purge deletes every cached record and returns how many were removed.
func (c *CacheService) Purge(ctx context.Context) (int64, error) {
	removed, err := c.store.Purge(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return removed, nil
}
