package ports

import (
	"context"

	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// CacheStore persists track metadata keyed by content identity.
// Implementations must support concurrent readers and concurrent
// merging writers without lost updates: Merge is an atomic upsert, not
// a read-modify-write from the caller's side.
type CacheStore interface {
	// Lookup returns records whose title, artist or any historical
	// search query matches the text (case-insensitive substring),
	// ranked by play count descending.
	Lookup(ctx context.Context, query string, limit int) ([]domain.CacheRecord, error)

	// Merge upserts the track under its identity hash. A new record
	// starts with play count 1 and the source query as its only
	// synonym; an existing record has its play count incremented, its
	// last-played timestamp refreshed, and the source query added to
	// its synonym set, all as one atomic unit.
	Merge(ctx context.Context, track *domain.Track, sourceQuery string) (domain.CacheRecord, error)

	// Stats returns cache totals and the topN most played records.
	Stats(ctx context.Context, topN int) (domain.CacheStats, error)

	// Purge removes every record and returns the count removed.
	Purge(ctx context.Context) (int64, error)

	// LogSearch appends one entry to the search observability log.
	LogSearch(ctx context.Context, query string, resultCount int, cacheHit bool) error

	// Close releases the underlying storage.
	Close() error
}
