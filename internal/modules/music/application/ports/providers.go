package ports

import (
	"context"

	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// GeneralSearchProvider locates playable sources for free-text queries.
type GeneralSearchProvider interface {
	// Search returns up to maxResults tracks for the query, best match
	// first. An empty result is not an error.
	Search(ctx context.Context, query string, maxResults int) ([]*domain.Track, error)
}

// CatalogSearchProvider resolves precise track identities against the
// external music catalog. Implementations may be absent when the
// catalog is unconfigured; callers must tolerate a nil provider.
type CatalogSearchProvider interface {
	// LookupTrack returns the catalog reference for the given catalog ID.
	LookupTrack(ctx context.Context, id string) (*domain.CatalogRef, error)

	// Playlists lists the configured catalog user's playlists.
	Playlists(ctx context.Context) ([]domain.Playlist, error)

	// PlaylistTracks returns all track references in a playlist. The
	// full listing is re-fetched on each invocation.
	PlaylistTracks(ctx context.Context, playlistID string) ([]domain.CatalogRef, error)
}
