package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

func mockTrack(id string) *domain.Track {
	return domain.NewTrack(
		"Track "+id,
		"Artist",
		3*time.Minute,
		"https://example.com/watch?v="+id,
	)
}

type openCall struct {
	sourceURL string
	token     uint64
}

type mockSink struct {
	mu sync.Mutex

	openErrs []error // consumed one per Open call, then openErr applies
	openErr  error
	stopErr  error

	opened       []openCall
	stopCalls    int
	pauseCalls   int
	resumeCalls  int
	releaseCalls int
	volumes      []int

	// openHook runs during Open, while the session mutex is released.
	// Tests use it to race commands against an in-flight open.
	openHook func()
}

func (m *mockSink) Open(_ context.Context, _ snowflake.ID, sourceURL string, token uint64) error {
	m.mu.Lock()
	m.opened = append(m.opened, openCall{sourceURL: sourceURL, token: token})
	var err error
	if len(m.openErrs) > 0 {
		err = m.openErrs[0]
		m.openErrs = m.openErrs[1:]
	} else {
		err = m.openErr
	}
	hook := m.openHook
	m.openHook = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (m *mockSink) Stop(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return m.stopErr
}

func (m *mockSink) Pause(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	return nil
}

func (m *mockSink) Resume(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCalls++
	return nil
}

func (m *mockSink) SetVolume(_ context.Context, _ snowflake.ID, percent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes = append(m.volumes, percent)
	return nil
}

func (m *mockSink) Release(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	return nil
}

func (m *mockSink) openCalls() []openCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]openCall, len(m.opened))
	copy(calls, m.opened)
	return calls
}

func (m *mockSink) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

func (m *mockSink) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseCalls
}

type mockNotifier struct {
	mu         sync.Mutex
	nowPlaying []string
	exhausted  int
}

func (m *mockNotifier) SendNowPlaying(_ snowflake.ID, track *domain.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowPlaying = append(m.nowPlaying, track.Title)
}

func (m *mockNotifier) SendQueueExhausted(_ snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted++
}

func (m *mockNotifier) exhaustedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

func (m *mockNotifier) nowPlayingTitles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	titles := make([]string, len(m.nowPlaying))
	copy(titles, m.nowPlaying)
	return titles
}

type mockSearchProvider struct {
	mu      sync.Mutex
	results []*domain.Track
	errs    []error // consumed one per call, then nil
	calls   []string
}

func (m *mockSearchProvider) Search(_ context.Context, query string, maxResults int) ([]*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, query)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	if maxResults < len(m.results) {
		return m.results[:maxResults], nil
	}
	return m.results, nil
}

func (m *mockSearchProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mergeCall struct {
	track *domain.Track
	query string
}

type mockCacheStore struct {
	mu          sync.Mutex
	lookupHits  []domain.CacheRecord
	lookupErr   error
	mergeErr    error
	statsResult domain.CacheStats
	purgeResult int64

	merges     []mergeCall
	searchLogs int
	closed     bool
}

func (m *mockCacheStore) Lookup(_ context.Context, _ string, limit int) ([]domain.CacheRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if limit < len(m.lookupHits) {
		return m.lookupHits[:limit], nil
	}
	return m.lookupHits, nil
}

func (m *mockCacheStore) Merge(_ context.Context, track *domain.Track, sourceQuery string) (domain.CacheRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeErr != nil {
		return domain.CacheRecord{}, m.mergeErr
	}
	m.merges = append(m.merges, mergeCall{track: track, query: sourceQuery})
	return domain.CacheRecord{Track: *track, PlayCount: len(m.merges)}, nil
}

func (m *mockCacheStore) Stats(_ context.Context, _ int) (domain.CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsResult, nil
}

func (m *mockCacheStore) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeResult, nil
}

func (m *mockCacheStore) LogSearch(_ context.Context, _ string, _ int, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchLogs++
	return nil
}

func (m *mockCacheStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockCacheStore) mergeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.merges)
}

type mockCatalogProvider struct {
	track        *domain.CatalogRef
	trackErr     error
	playlists    []domain.Playlist
	playlistsErr error
	tracks       []domain.CatalogRef
	tracksErr    error
}

func (m *mockCatalogProvider) LookupTrack(_ context.Context, _ string) (*domain.CatalogRef, error) {
	if m.trackErr != nil {
		return nil, m.trackErr
	}
	return m.track, nil
}

func (m *mockCatalogProvider) Playlists(_ context.Context) ([]domain.Playlist, error) {
	if m.playlistsErr != nil {
		return nil, m.playlistsErr
	}
	return m.playlists, nil
}

func (m *mockCatalogProvider) PlaylistTracks(_ context.Context, _ string) ([]domain.CatalogRef, error) {
	if m.tracksErr != nil {
		return nil, m.tracksErr
	}
	return m.tracks, nil
}

// waitFor polls cond until it holds or the deadline passes. Used for
// assertions about work the session detaches onto goroutines.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline: %s", msg)
}
