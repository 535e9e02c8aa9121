package infrastructure

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// YouTubeSearchProvider resolves free-text queries against YouTube.
// Two backends run concurrently: YouTube Music gives clean title and
// artist metadata, plain YouTube search catches everything Music does
// not index. Music results rank first; duplicates collapse on video ID.
type YouTubeSearchProvider struct {
	client *ytsearch.Client
}

// NewYouTubeSearchProvider creates a YouTubeSearchProvider.
func NewYouTubeSearchProvider() *YouTubeSearchProvider {
	return &YouTubeSearchProvider{client: ytsearch.NewClient(nil)}
}

// Search fans the query out to both backends and merges the results.
// One backend failing is tolerated as long as the other returns
// something.
func (p *YouTubeSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]*domain.Track, error) {
	var (
		wg       sync.WaitGroup
		musicRes []*domain.Track
		videoRes []*domain.Track
		musicErr error
		videoErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		musicRes, musicErr = p.searchMusic(query)
	}()
	go func() {
		defer wg.Done()
		videoRes, videoErr = p.searchVideos(ctx, query)
	}()

	// The music backend takes no context, so a cancelled search
	// abandons the in-flight call instead of waiting it out.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if musicErr != nil {
		slog.Warn("youtube music search failed", "query", query, "error", musicErr)
	}
	if videoErr != nil {
		slog.Warn("youtube video search failed", "query", query, "error", videoErr)
	}
	if musicErr != nil && videoErr != nil {
		return nil, musicErr
	}

	seen := make(map[string]bool)
	merged := make([]*domain.Track, 0, len(musicRes)+len(videoRes))
	for _, track := range append(musicRes, videoRes...) {
		if seen[track.SourceURL] {
			continue
		}
		seen[track.SourceURL] = true
		merged = append(merged, track)
		if len(merged) == maxResults {
			break
		}
	}
	return merged, nil
}

func (p *YouTubeSearchProvider) searchMusic(query string) ([]*domain.Track, error) {
	result, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return nil, err
	}

	tracks := make([]*domain.Track, 0, len(result.Tracks))
	for _, item := range result.Tracks {
		if item.VideoID == "" {
			continue
		}
		artist := ""
		if len(item.Artists) > 0 {
			artist = item.Artists[0].Name
		}
		track := domain.NewTrack(
			item.Title,
			artist,
			time.Duration(item.Duration)*time.Second,
			watchURL(item.VideoID),
		)
		track.ThumbnailURL = thumbnailURL(item.VideoID)
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (p *YouTubeSearchProvider) searchVideos(ctx context.Context, query string) ([]*domain.Track, error) {
	result, err := p.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	tracks := make([]*domain.Track, 0, len(result.Results))
	for _, item := range result.Results {
		if item.VideoID == "" {
			continue
		}
		track := domain.NewTrack(item.Title, "", 0, watchURL(item.VideoID))
		track.ThumbnailURL = thumbnailURL(item.VideoID)
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func thumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

var _ ports.GeneralSearchProvider = (*YouTubeSearchProvider)(nil)
