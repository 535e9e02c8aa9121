package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

const playlistPageSize = 100

// SpotifyCatalog resolves track and playlist references against the
// Spotify Web API using the client-credentials flow. The oauth2 client
// refreshes its token transparently.
type SpotifyCatalog struct {
	client *spotify.Client
	userID string
}

// SpotifyConfig holds the API credentials and the account whose
// playlists are exposed.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	UserID       string
}

// NewSpotifyCatalog creates a catalog client. It does not call the API
// until first use.
func NewSpotifyCatalog(ctx context.Context, config SpotifyConfig) *SpotifyCatalog {
	auth := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	return &SpotifyCatalog{
		client: spotify.New(auth.Client(ctx)),
		userID: config.UserID,
	}
}

// LookupTrack returns the catalog reference for a Spotify track ID.
func (c *SpotifyCatalog) LookupTrack(ctx context.Context, id string) (*domain.CatalogRef, error) {
	track, err := c.client.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track %s: %w", id, err)
	}
	ref := fullTrackRef(track)
	return &ref, nil
}

// Playlists lists the configured user's playlists.
func (c *SpotifyCatalog) Playlists(ctx context.Context) ([]domain.Playlist, error) {
	page, err := c.client.GetPlaylistsForUser(ctx, c.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlists for %s: %w", c.userID, err)
	}

	playlists := make([]domain.Playlist, 0, len(page.Playlists))
	for _, p := range page.Playlists {
		playlists = append(playlists, domain.Playlist{
			ID:         string(p.ID),
			Name:       p.Name,
			TrackCount: int(p.Tracks.Total),
			IsPublic:   p.IsPublic,
		})
	}
	return playlists, nil
}

// PlaylistTracks pages through the playlist and returns every track
// reference. Podcast episodes and local files are skipped.
func (c *SpotifyCatalog) PlaylistTracks(ctx context.Context, playlistID string) ([]domain.CatalogRef, error) {
	var refs []domain.CatalogRef

	for offset := 0; ; offset += playlistPageSize {
		page, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(playlistPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch playlist %s at offset %d: %w", playlistID, offset, err)
		}

		for _, item := range page.Items {
			if item.Track.Track == nil {
				continue
			}
			refs = append(refs, fullTrackRef(item.Track.Track))
		}

		if len(page.Items) < playlistPageSize {
			return refs, nil
		}
	}
}

func fullTrackRef(track *spotify.FullTrack) domain.CatalogRef {
	names := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		names = append(names, artist.Name)
	}

	thumbnail := ""
	if len(track.Album.Images) > 0 {
		thumbnail = track.Album.Images[0].URL
	}

	return domain.CatalogRef{
		ID:           string(track.ID),
		Title:        track.Name,
		Artist:       strings.Join(names, ", "),
		Duration:     track.TimeDuration(),
		ThumbnailURL: thumbnail,
		URL:          track.ExternalURLs["spotify"],
	}
}

var _ ports.CatalogSearchProvider = (*SpotifyCatalog)(nil)
