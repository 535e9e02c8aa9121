package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// PlaylistEnqueueResult summarizes a bulk playlist enqueue.
type PlaylistEnqueueResult struct {
	Enqueued int
	Skipped  int // catalog entries that could not be resolved to a playable track
	First    *domain.Track
	Started  bool
}

// PlaylistService bridges the external music catalog into playback.
// Catalog entries carry no playable source, so each one is resolved
// through the metadata resolver before it can be queued.
type PlaylistService struct {
	catalog  ports.CatalogSearchProvider
	resolver *MetadataResolver
}

// NewPlaylistService wires a playlist service. catalog may be nil when
// no catalog credentials are configured; every method then reports
// ErrCatalogUnavailable.
func NewPlaylistService(catalog ports.CatalogSearchProvider, resolver *MetadataResolver) *PlaylistService {
	return &PlaylistService{catalog: catalog, resolver: resolver}
}

// List returns the configured user's public playlists.
func (p *PlaylistService) List(ctx context.Context) ([]domain.Playlist, error) {
	if p.catalog == nil {
		return nil, ErrCatalogUnavailable
	}

	playlists, err := p.catalog.Playlists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	public := make([]domain.Playlist, 0, len(playlists))
	for _, playlist := range playlists {
		if playlist.IsPublic {
			public = append(public, playlist)
		}
	}
	return public, nil
}

// LookupTrack resolves a single catalog track reference into a
// playable track.
func (p *PlaylistService) LookupTrack(ctx context.Context, catalogID string) (*domain.Track, error) {
	if p.catalog == nil {
		return nil, ErrCatalogUnavailable
	}

	ref, err := p.catalog.LookupTrack(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up catalog track %s: %w", catalogID, err)
	}
	return p.resolver.ResolveCatalog(ctx, ref)
}

// Enqueue resolves every track of the playlist and appends the
// playable ones to the session's queue. Entries that cannot be
// resolved are skipped and counted, not fatal. Returns
// ErrPlaylistEmpty when nothing resolved.
func (p *PlaylistService) Enqueue(ctx context.Context, session *PlaybackSession, playlistID string) (*PlaylistEnqueueResult, error) {
	if p.catalog == nil {
		return nil, ErrCatalogUnavailable
	}

	refs, err := p.catalog.PlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist %s: %w", playlistID, err)
	}

	result := &PlaylistEnqueueResult{}
	for i := range refs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		track, err := p.resolver.ResolveCatalog(ctx, &refs[i])
		if err != nil {
			slog.Warn("skipping unresolvable playlist entry",
				"playlist", playlistID,
				"title", refs[i].Title,
				"error", err,
			)
			result.Skipped++
			continue
		}

		enq, err := session.Enqueue(ctx, track)
		if err != nil {
			if errors.Is(err, ErrSourceUnavailable) {
				result.Skipped++
				continue
			}
			return nil, err
		}

		if result.Enqueued == 0 {
			result.First = track
			result.Started = enq.Started
		}
		result.Enqueued++
	}

	if result.Enqueued == 0 {
		return nil, ErrPlaylistEmpty
	}
	return result, nil
}
