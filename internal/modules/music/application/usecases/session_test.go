package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

const testGuildID = snowflake.ID(42)

func newTestSession(sink *mockSink, notifier *mockNotifier) *PlaybackSession {
	session := NewPlaybackSession(testGuildID, sink, notifier, SessionConfig{})
	session.SetNotificationChannel(snowflake.ID(7))
	return session
}

func TestPlaybackSession_Enqueue(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*PlaybackSession, *mockSink)
		wantErr     error
		wantStarted bool
		wantPos     int
		wantState   domain.SessionState
	}{
		{
			name:        "idle session starts playback immediately",
			wantStarted: true,
			wantState:   domain.StatePlaying,
		},
		{
			name: "playing session queues at position one",
			setup: func(s *PlaybackSession, _ *mockSink) {
				if _, err := s.Enqueue(context.Background(), mockTrack("first")); err != nil {
					t.Fatalf("setup enqueue failed: %v", err)
				}
			},
			wantPos:   1,
			wantState: domain.StatePlaying,
		},
		{
			name: "open failure on sole track surfaces error",
			setup: func(_ *PlaybackSession, sink *mockSink) {
				sink.openErr = errors.New("load failed")
			},
			wantErr:   ErrSourceUnavailable,
			wantState: domain.StateIdle,
		},
		{
			name: "closed session rejects enqueue",
			setup: func(s *PlaybackSession, _ *mockSink) {
				if err := s.Close(context.Background()); err != nil {
					t.Fatalf("setup close failed: %v", err)
				}
			},
			wantErr:   ErrSessionClosed,
			wantState: domain.StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockSink{}
			session := newTestSession(sink, &mockNotifier{})

			if tt.setup != nil {
				tt.setup(session, sink)
			}

			result, err := session.Enqueue(context.Background(), mockTrack("queued"))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Started != tt.wantStarted {
					t.Errorf("expected Started=%v, got %v", tt.wantStarted, result.Started)
				}
				if result.Position != tt.wantPos {
					t.Errorf("expected Position=%d, got %d", tt.wantPos, result.Position)
				}
			}

			if got := session.Snapshot().State; got != tt.wantState {
				t.Errorf("expected state %v, got %v", tt.wantState, got)
			}
		})
	}
}

func TestPlaybackSession_NaturalCompletionAdvances(t *testing.T) {
	sink := &mockSink{}
	session := newTestSession(sink, &mockNotifier{})
	ctx := context.Background()

	if _, err := session.Enqueue(ctx, mockTrack("one")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := session.Enqueue(ctx, mockTrack("two")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	calls := sink.openCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 open call, got %d", len(calls))
	}

	session.HandleTrackEnd(ctx, calls[0].token, nil)

	snap := session.Snapshot()
	if snap.State != domain.StatePlaying {
		t.Errorf("expected state playing, got %v", snap.State)
	}
	if snap.Current == nil || snap.Current.Title != "Track two" {
		t.Errorf("expected current track two, got %+v", snap.Current)
	}
	if len(snap.Pending) != 0 {
		t.Errorf("expected empty pending, got %d tracks", len(snap.Pending))
	}

	calls = sink.openCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 open calls, got %d", len(calls))
	}
	if calls[0].token == calls[1].token {
		t.Error("expected each open to carry a fresh token")
	}
}

func TestPlaybackSession_CompletionAfterLastTrackSettlesIdle(t *testing.T) {
	sink := &mockSink{}
	notifier := &mockNotifier{}
	session := newTestSession(sink, notifier)
	ctx := context.Background()

	if _, err := session.Enqueue(ctx, mockTrack("only")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	session.HandleTrackEnd(ctx, sink.openCalls()[0].token, nil)

	snap := session.Snapshot()
	if snap.State != domain.StateIdle {
		t.Errorf("expected state idle, got %v", snap.State)
	}
	if snap.Current != nil {
		t.Errorf("expected no current track, got %+v", snap.Current)
	}
	// A clean drain is not an exhaustion report.
	if got := notifier.exhaustedCount(); got != 0 {
		t.Errorf("expected no exhausted notification, got %d", got)
	}
}

func TestPlaybackSession_StaleCompletionSignalDropped(t *testing.T) {
	sink := &mockSink{}
	session := newTestSession(sink, &mockNotifier{})
	ctx := context.Background()

	if _, err := session.Enqueue(ctx, mockTrack("one")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := session.Enqueue(ctx, mockTrack("two")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	staleToken := sink.openCalls()[0].token

	// The skip invalidates track one's registration before its natural
	// end signal arrives.
	result, err := session.Skip(ctx)
	if err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if result.Next == nil || result.Next.Title != "Track two" {
		t.Fatalf("expected skip to start track two, got %+v", result.Next)
	}

	session.HandleTrackEnd(ctx, staleToken, nil)

	snap := session.Snapshot()
	if snap.State != domain.StatePlaying {
		t.Errorf("expected state playing after stale signal, got %v", snap.State)
	}
	if snap.Current == nil || snap.Current.Title != "Track two" {
		t.Errorf("expected track two still current, got %+v", snap.Current)
	}
	if got := len(sink.openCalls()); got != 2 {
		t.Errorf("expected no extra open from stale signal, got %d opens", got)
	}
}

func TestPlaybackSession_Skip(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*PlaybackSession)
		wantErr   error
		wantNext  bool
		wantState domain.SessionState
	}{
		{
			name: "skip to next queued track",
			setup: func(s *PlaybackSession) {
				ctx := context.Background()
				_, _ = s.Enqueue(ctx, mockTrack("current"))
				_, _ = s.Enqueue(ctx, mockTrack("next"))
			},
			wantNext:  true,
			wantState: domain.StatePlaying,
		},
		{
			name: "skip with empty queue settles idle",
			setup: func(s *PlaybackSession) {
				_, _ = s.Enqueue(context.Background(), mockTrack("current"))
			},
			wantState: domain.StateIdle,
		},
		{
			name: "skip while paused",
			setup: func(s *PlaybackSession) {
				ctx := context.Background()
				_, _ = s.Enqueue(ctx, mockTrack("current"))
				_, _ = s.Enqueue(ctx, mockTrack("next"))
				if err := s.Pause(ctx); err != nil {
					t.Fatalf("setup pause failed: %v", err)
				}
			},
			wantNext:  true,
			wantState: domain.StatePlaying,
		},
		{
			name:      "skip while idle",
			wantErr:   ErrNotPlaying,
			wantState: domain.StateIdle,
		},
		{
			name: "skip after close",
			setup: func(s *PlaybackSession) {
				_ = s.Close(context.Background())
			},
			wantErr:   ErrSessionClosed,
			wantState: domain.StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockSink{}
			session := newTestSession(sink, &mockNotifier{})

			if tt.setup != nil {
				tt.setup(session)
			}

			result, err := session.Skip(context.Background())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Skipped == nil {
					t.Error("expected Skipped to be set")
				}
				if tt.wantNext && result.Next == nil {
					t.Error("expected Next to be set")
				}
				if !tt.wantNext && result.Next != nil {
					t.Errorf("expected Next to be nil, got %+v", result.Next)
				}
			}

			if got := session.Snapshot().State; got != tt.wantState {
				t.Errorf("expected state %v, got %v", tt.wantState, got)
			}
		})
	}
}

func TestPlaybackSession_UnplayableTracksAreSkipped(t *testing.T) {
	sink := &mockSink{openErrs: []error{nil, errors.New("load failed"), nil}}
	session := newTestSession(sink, &mockNotifier{})
	ctx := context.Background()

	for _, id := range []string{"one", "two", "three"} {
		if _, err := session.Enqueue(ctx, mockTrack(id)); err != nil {
			t.Fatalf("enqueue %s failed: %v", id, err)
		}
	}

	session.HandleTrackEnd(ctx, sink.openCalls()[0].token, nil)

	snap := session.Snapshot()
	if snap.State != domain.StatePlaying {
		t.Fatalf("expected state playing, got %v", snap.State)
	}
	if snap.Current == nil || snap.Current.Title != "Track three" {
		t.Errorf("expected track three playing, got %+v", snap.Current)
	}
	if got := len(sink.openCalls()); got != 3 {
		t.Errorf("expected 3 open attempts, got %d", got)
	}
}

func TestPlaybackSession_OpenFailureBoundStopsAdvancing(t *testing.T) {
	sink := &mockSink{openErrs: []error{nil}, openErr: errors.New("load failed")}
	notifier := &mockNotifier{}
	session := NewPlaybackSession(testGuildID, sink, notifier, SessionConfig{MaxOpenFailures: 2})
	session.SetNotificationChannel(snowflake.ID(7))
	ctx := context.Background()

	for _, id := range []string{"one", "two", "three", "four"} {
		if _, err := session.Enqueue(ctx, mockTrack(id)); err != nil {
			t.Fatalf("enqueue %s failed: %v", id, err)
		}
	}

	session.HandleTrackEnd(ctx, sink.openCalls()[0].token, nil)

	snap := session.Snapshot()
	if snap.State != domain.StateIdle {
		t.Errorf("expected state idle after hitting failure bound, got %v", snap.State)
	}
	// Tracks one, two and three were attempted; four stays queued.
	if got := len(sink.openCalls()); got != 3 {
		t.Errorf("expected 3 open attempts, got %d", got)
	}
	if len(snap.Pending) != 1 || snap.Pending[0].Title != "Track four" {
		t.Errorf("expected track four to remain pending, got %+v", snap.Pending)
	}

	waitFor(t, func() bool { return notifier.exhaustedCount() == 1 },
		"exactly one exhaustion report per advance chain")
}

func TestPlaybackSession_PauseResume(t *testing.T) {
	tests := []struct {
		name      string
		op        func(*PlaybackSession) error
		setup     func(*PlaybackSession)
		wantErr   error
		wantState domain.SessionState
	}{
		{
			name:      "pause while playing",
			op:        func(s *PlaybackSession) error { return s.Pause(context.Background()) },
			setup:     startPlaying,
			wantState: domain.StatePaused,
		},
		{
			name: "pause while already paused",
			op:   func(s *PlaybackSession) error { return s.Pause(context.Background()) },
			setup: func(s *PlaybackSession) {
				startPlaying(s)
				_ = s.Pause(context.Background())
			},
			wantState: domain.StatePaused,
		},
		{
			name:      "pause while idle",
			op:        func(s *PlaybackSession) error { return s.Pause(context.Background()) },
			wantErr:   ErrNotPlaying,
			wantState: domain.StateIdle,
		},
		{
			name: "resume while paused",
			op:   func(s *PlaybackSession) error { return s.Resume(context.Background()) },
			setup: func(s *PlaybackSession) {
				startPlaying(s)
				_ = s.Pause(context.Background())
			},
			wantState: domain.StatePlaying,
		},
		{
			name:      "resume while already playing",
			op:        func(s *PlaybackSession) error { return s.Resume(context.Background()) },
			setup:     startPlaying,
			wantState: domain.StatePlaying,
		},
		{
			name:      "resume while idle",
			op:        func(s *PlaybackSession) error { return s.Resume(context.Background()) },
			wantErr:   ErrNotPlaying,
			wantState: domain.StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newTestSession(&mockSink{}, &mockNotifier{})

			if tt.setup != nil {
				tt.setup(session)
			}

			err := tt.op(session)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := session.Snapshot().State; got != tt.wantState {
				t.Errorf("expected state %v, got %v", tt.wantState, got)
			}
		})
	}
}

func startPlaying(s *PlaybackSession) {
	_, _ = s.Enqueue(context.Background(), mockTrack("current"))
}

func TestPlaybackSession_SetVolume(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*PlaybackSession)
		percent int
		wantErr error
	}{
		{
			name:    "playing session accepts volume",
			setup:   startPlaying,
			percent: 40,
		},
		{
			name: "paused session accepts volume",
			setup: func(s *PlaybackSession) {
				startPlaying(s)
				_ = s.Pause(context.Background())
			},
			percent: 100,
		},
		{
			name:    "idle session rejects volume",
			percent: 40,
			wantErr: ErrNotPlaying,
		},
		{
			name:    "out-of-range volume rejected",
			setup:   startPlaying,
			percent: 150,
			wantErr: ErrInvalidVolume,
		},
		{
			name: "closed session rejects volume",
			setup: func(s *PlaybackSession) {
				_ = s.Close(context.Background())
			},
			percent: 40,
			wantErr: ErrSessionClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockSink{}
			session := newTestSession(sink, &mockNotifier{})
			if tt.setup != nil {
				tt.setup(session)
			}

			err := session.SetVolume(context.Background(), tt.percent)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}

			if tt.wantErr == nil {
				if len(sink.volumes) != 1 || sink.volumes[0] != tt.percent {
					t.Errorf("expected sink volume [%d], got %v", tt.percent, sink.volumes)
				}
			} else if len(sink.volumes) != 0 {
				t.Errorf("expected no sink volume call, got %v", sink.volumes)
			}
		})
	}
}

func TestPlaybackSession_StopClearsEverything(t *testing.T) {
	sink := &mockSink{}
	session := newTestSession(sink, &mockNotifier{})
	ctx := context.Background()

	for _, id := range []string{"one", "two", "three"} {
		if _, err := session.Enqueue(ctx, mockTrack(id)); err != nil {
			t.Fatalf("enqueue %s failed: %v", id, err)
		}
	}

	if err := session.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	snap := session.Snapshot()
	if snap.State != domain.StateIdle {
		t.Errorf("expected state idle, got %v", snap.State)
	}
	if snap.Current != nil || len(snap.Pending) != 0 {
		t.Errorf("expected empty queue, got current=%+v pending=%d", snap.Current, len(snap.Pending))
	}
	if got := sink.stopCount(); got != 1 {
		t.Errorf("expected 1 sink stop, got %d", got)
	}

	// Stop from idle is still a success.
	if err := session.Stop(ctx); err != nil {
		t.Errorf("stop from idle failed: %v", err)
	}
}

func TestPlaybackSession_StopDuringOpenDiscardsStream(t *testing.T) {
	sink := &mockSink{}
	session := newTestSession(sink, &mockNotifier{})
	ctx := context.Background()

	if _, err := session.Enqueue(ctx, mockTrack("one")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := session.Enqueue(ctx, mockTrack("two")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	// Stop fires while track two's open is in flight during the skip.
	sink.mu.Lock()
	sink.openHook = func() {
		if err := session.Stop(ctx); err != nil {
			t.Errorf("racing stop failed: %v", err)
		}
	}
	sink.mu.Unlock()

	result, err := session.Skip(ctx)
	if err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	if result.Next != nil {
		t.Errorf("expected no next track after racing stop, got %+v", result.Next)
	}

	snap := session.Snapshot()
	if snap.State != domain.StateIdle {
		t.Errorf("expected state idle, got %v", snap.State)
	}
	if snap.Current != nil || len(snap.Pending) != 0 {
		t.Errorf("expected empty queue, got current=%+v pending=%d", snap.Current, len(snap.Pending))
	}

	// Skip's stop, the racing stop, and the orphaned stream discard.
	waitFor(t, func() bool { return sink.stopCount() == 3 },
		"orphaned stream stopped after raced open")
}

func TestPlaybackSession_CloseDuringOpen(t *testing.T) {
	sink := &mockSink{}
	session := newTestSession(sink, &mockNotifier{})
	ctx := context.Background()

	sink.mu.Lock()
	sink.openHook = func() {
		if err := session.Close(ctx); err != nil {
			t.Errorf("racing close failed: %v", err)
		}
	}
	sink.mu.Unlock()

	_, err := session.Enqueue(ctx, mockTrack("one"))
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if got := session.Snapshot().State; got != domain.StateClosed {
		t.Errorf("expected state closed, got %v", got)
	}
}

func TestPlaybackSession_Close(t *testing.T) {
	sink := &mockSink{}
	session := newTestSession(sink, &mockNotifier{})
	ctx := context.Background()

	if _, err := session.Enqueue(ctx, mockTrack("one")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := session.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := sink.releaseCount(); got != 1 {
		t.Errorf("expected 1 sink release, got %d", got)
	}

	// Closing twice is a no-op.
	if err := session.Close(ctx); err != nil {
		t.Errorf("second close failed: %v", err)
	}
	if got := sink.releaseCount(); got != 1 {
		t.Errorf("expected no second release, got %d", got)
	}

	// Every command on a closed session fails the same way.
	if _, err := session.Enqueue(ctx, mockTrack("two")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed from enqueue, got %v", err)
	}
	if _, err := session.Skip(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed from skip, got %v", err)
	}
	if err := session.Pause(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed from pause, got %v", err)
	}
	if err := session.Resume(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed from resume, got %v", err)
	}
	if err := session.Stop(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed from stop, got %v", err)
	}
}

func TestPlaybackSession_NowPlayingNotification(t *testing.T) {
	notifier := &mockNotifier{}
	session := newTestSession(&mockSink{}, notifier)

	if _, err := session.Enqueue(context.Background(), mockTrack("one")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	waitFor(t, func() bool {
		titles := notifier.nowPlayingTitles()
		return len(titles) == 1 && titles[0] == "Track one"
	}, "now-playing notification for started track")
}
