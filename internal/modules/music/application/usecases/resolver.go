package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

const (
	recordTimeout = 10 * time.Second

	// defaultSearchTimeout bounds a single external search attempt.
	defaultSearchTimeout = 10 * time.Second
)

// MetadataResolver turns free-text queries and catalog references into
// playable tracks. Resolution is cache-first: a cached match short
// circuits the external search, and every successful external
// resolution is recorded back into the cache off the caller's path.
type MetadataResolver struct {
	search        ports.GeneralSearchProvider
	store         ports.CacheStore
	searchTimeout time.Duration
}

// NewMetadataResolver wires a resolver over the given search provider
// and cache store.
func NewMetadataResolver(search ports.GeneralSearchProvider, store ports.CacheStore) *MetadataResolver {
	return &MetadataResolver{
		search:        search,
		store:         store,
		searchTimeout: defaultSearchTimeout,
	}
}

// Resolve returns the best track for the query. Cache hits are marked
// FromCache and skip the external search entirely. Returns
// ErrNoResults when neither the cache nor the provider produces a
// track.
func (r *MetadataResolver) Resolve(ctx context.Context, query string) (*domain.Track, error) {
	if cached := r.lookupCached(ctx, query); cached != nil {
		return cached, nil
	}

	tracks, err := r.searchWithRetry(ctx, query, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to search for %q: %w", query, err)
	}
	if len(tracks) == 0 {
		r.recordSearchAsync(query, 0, false)
		return nil, ErrNoResults
	}

	track := *tracks[0]
	track.Query = query
	r.recordHitAsync(&track, query, len(tracks))
	return &track, nil
}

// ResolveCatalog resolves a catalog reference by searching for its
// title and artist, preserving the catalog identifier on the result.
// The cache is consulted with the same seed text first.
func (r *MetadataResolver) ResolveCatalog(ctx context.Context, ref *domain.CatalogRef) (*domain.Track, error) {
	seed := ref.SearchSeed()

	if cached := r.lookupCached(ctx, seed); cached != nil {
		cached.CatalogID = ref.ID
		return cached, nil
	}

	tracks, err := r.searchWithRetry(ctx, seed, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to search for %q: %w", seed, err)
	}
	if len(tracks) == 0 {
		r.recordSearchAsync(seed, 0, false)
		return nil, ErrNoResults
	}

	track := *tracks[0]
	track.Query = seed
	track.CatalogID = ref.ID
	r.recordHitAsync(&track, seed, len(tracks))
	return &track, nil
}

// SearchMany returns up to maxResults candidate tracks for the query
// without touching the cache. Used by interactive search.
func (r *MetadataResolver) SearchMany(ctx context.Context, query string, maxResults int) ([]*domain.Track, error) {
	tracks, err := r.searchWithRetry(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search for %q: %w", query, err)
	}
	if len(tracks) == 0 {
		return nil, ErrNoResults
	}
	r.recordSearchAsync(query, len(tracks), false)
	return tracks, nil
}

func (r *MetadataResolver) lookupCached(ctx context.Context, query string) *domain.Track {
	records, err := r.store.Lookup(ctx, query, 1)
	if err != nil {
		slog.Warn("cache lookup failed, falling back to search", "query", query, "error", err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	track := records[0].Track
	track.FromCache = true
	track.Query = query
	r.recordSearchAsync(query, 1, true)
	return &track
}

// searchWithRetry retries a failed provider call once. Transient
// provider hiccups are common enough that one retry pays for itself.
// Each attempt carries its own deadline so a hung provider cannot
// block the caller indefinitely.
func (r *MetadataResolver) searchWithRetry(ctx context.Context, query string, maxResults int) ([]*domain.Track, error) {
	tracks, err := r.boundedSearch(ctx, query, maxResults)
	if err == nil {
		return tracks, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	slog.Warn("search failed, retrying once", "query", query, "error", err)
	return r.boundedSearch(ctx, query, maxResults)
}

func (r *MetadataResolver) boundedSearch(ctx context.Context, query string, maxResults int) ([]*domain.Track, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()
	return r.search.Search(attemptCtx, query, maxResults)
}

// recordHitAsync merges the resolved track into the cache and logs the
// search, detached from the caller. Recording is best-effort.
func (r *MetadataResolver) recordHitAsync(track *domain.Track, query string, resultCount int) {
	trackCopy := *track
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if _, err := r.store.Merge(ctx, &trackCopy, query); err != nil {
			slog.Warn("failed to merge track into cache", "track", trackCopy.Title, "error", err)
		}
		if err := r.store.LogSearch(ctx, query, resultCount, false); err != nil {
			slog.Debug("failed to log search", "query", query, "error", err)
		}
	}()
}

func (r *MetadataResolver) recordSearchAsync(query string, resultCount int, cacheHit bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := r.store.LogSearch(ctx, query, resultCount, cacheHit); err != nil {
			slog.Debug("failed to log search", "query", query, "error", err)
		}
	}()
}
