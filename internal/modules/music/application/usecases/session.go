package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

const (
	// DefaultOpenTimeout bounds a single audio-source open call.
	DefaultOpenTimeout = 15 * time.Second

	// DefaultMaxOpenFailures bounds how many consecutive unplayable
	// tracks one advance chain will skip before settling idle.
	DefaultMaxOpenFailures = 3
)

// SessionConfig tunes a PlaybackSession. Zero values fall back to defaults.
type SessionConfig struct {
	OpenTimeout     time.Duration
	MaxOpenFailures int
}

// EnqueueResult is returned by Enqueue.
type EnqueueResult struct {
	Track    *domain.Track
	Position int  // 0 if the track started playing immediately
	Started  bool // true if the enqueue kicked off playback
}

// SkipResult is returned by Skip. Next is nil when the queue was empty.
type SkipResult struct {
	Skipped *domain.Track
	Next    *domain.Track
}

// SessionSnapshot is a consistent read-only view of a session.
type SessionSnapshot struct {
	State   domain.SessionState
	Current *domain.Track
	Pending []*domain.Track
}

// PlaybackSession is the per-guild playback state machine. It owns the
// guild's queue and sequences every command against the asynchronous
// track-end signal from the audio sink.
//
// All transitions run under the session mutex. The mutex is released
// across blocking sink calls (open, stop) and reacquired before the
// result is applied; the registration token detects transitions that
// raced against a skip, stop or teardown issued during the unlocked
// window. A completion signal whose token does not match the live
// registration is a stale artifact of a prior track and is dropped.
type PlaybackSession struct {
	guildID  snowflake.ID
	sink     ports.AudioSink
	notifier ports.Notifier

	openTimeout     time.Duration
	maxOpenFailures int

	mu              sync.Mutex
	state           domain.SessionState
	queue           domain.Queue
	tokenSeq        uint64
	liveToken       uint64 // current completion registration, 0 when none
	notifyChannelID snowflake.ID
}

// NewPlaybackSession creates an idle session for the guild.
func NewPlaybackSession(
	guildID snowflake.ID,
	sink ports.AudioSink,
	notifier ports.Notifier,
	cfg SessionConfig,
) *PlaybackSession {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.MaxOpenFailures <= 0 {
		cfg.MaxOpenFailures = DefaultMaxOpenFailures
	}

	return &PlaybackSession{
		guildID:         guildID,
		sink:            sink,
		notifier:        notifier,
		openTimeout:     cfg.OpenTimeout,
		maxOpenFailures: cfg.MaxOpenFailures,
		state:           domain.StateIdle,
		queue:           domain.NewQueue(),
	}
}

// GuildID returns the owning guild.
func (s *PlaybackSession) GuildID() snowflake.ID {
	return s.guildID
}

// SetNotificationChannel updates the text channel used for playback
// notifications.
func (s *PlaybackSession) SetNotificationChannel(channelID snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyChannelID = channelID
}

// Snapshot returns a consistent view of the session for display.
func (s *PlaybackSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		State:   s.state,
		Current: s.queue.Current(),
		Pending: s.queue.Pending(),
	}
}

// Enqueue appends a track to the queue. If the session is idle the
// track (or the first playable successor) starts playing immediately.
func (s *PlaybackSession) Enqueue(ctx context.Context, track *domain.Track) (*EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateClosed {
		return nil, ErrSessionClosed
	}

	s.queue.Enqueue(track)
	position := s.queue.Len()

	if s.state != domain.StateIdle {
		return &EnqueueResult{Track: track, Position: position}, nil
	}

	s.state = domain.StateTransitioning
	started, err := s.advanceLocked(ctx)
	if err != nil {
		return nil, err
	}
	if started == nil {
		// The enqueued track (and anything behind it) failed to open.
		return nil, ErrSourceUnavailable
	}

	return &EnqueueResult{Track: started, Started: true}, nil
}

// Skip stops the current track and advances to the next queued one.
// Valid from Playing and Paused only.
func (s *PlaybackSession) Skip(ctx context.Context) (*SkipResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateClosed {
		return nil, ErrSessionClosed
	}
	if !s.state.CanSkip() {
		return nil, ErrNotPlaying
	}

	skipped := s.queue.Current()

	// Invalidate the completion registration first: the natural-end
	// signal for the skipped track may already be in flight, and it
	// must be dropped on arrival rather than double-advance the queue.
	s.state = domain.StateTransitioning
	s.liveToken = 0

	s.mu.Unlock()
	stopErr := s.sink.Stop(ctx, s.guildID)
	s.mu.Lock()

	if stopErr != nil {
		slog.Warn("failed to stop audio sink on skip",
			"guild", s.guildID, "error", stopErr)
	}
	if s.state == domain.StateClosed {
		return nil, ErrSessionClosed
	}
	if s.state != domain.StateTransitioning {
		// A stop command raced the unlocked window and owns the machine now.
		return &SkipResult{Skipped: skipped}, nil
	}

	next, err := s.advanceLocked(ctx)
	if err != nil {
		return nil, err
	}
	return &SkipResult{Skipped: skipped, Next: next}, nil
}

// Pause suspends playback. Pausing an already-paused session is a
// no-effect success.
func (s *PlaybackSession) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.StateClosed:
		return ErrSessionClosed
	case domain.StatePaused:
		return nil
	case domain.StatePlaying:
	default:
		return ErrNotPlaying
	}

	if err := s.sink.Pause(ctx, s.guildID); err != nil {
		return err
	}
	s.state = domain.StatePaused
	return nil
}

// Resume continues paused playback. Resuming a playing session is a
// no-effect success.
func (s *PlaybackSession) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.StateClosed:
		return ErrSessionClosed
	case domain.StatePlaying:
		return nil
	case domain.StatePaused:
	default:
		return ErrNotPlaying
	}

	if err := s.sink.Resume(ctx, s.guildID); err != nil {
		return err
	}
	s.state = domain.StatePlaying
	return nil
}

// SetVolume adjusts playback volume, 0 to 100 percent. Valid while a
// track is playing or paused.
func (s *PlaybackSession) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidVolume
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateClosed {
		return ErrSessionClosed
	}
	if !s.state.CanSkip() {
		return ErrNotPlaying
	}

	return s.sink.SetVolume(ctx, s.guildID, percent)
}

// Stop halts playback and clears the queue, unconditionally from every
// state except Closed. An in-flight source open whose result arrives
// after Stop is discarded via the token check.
func (s *PlaybackSession) Stop(ctx context.Context) error {
	s.mu.Lock()

	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	s.liveToken = 0
	s.queue.Clear()
	s.state = domain.StateIdle
	s.mu.Unlock()

	if err := s.sink.Stop(ctx, s.guildID); err != nil {
		slog.Warn("failed to stop audio sink", "guild", s.guildID, "error", err)
	}
	return nil
}

// Close tears the session down. Irreversible: every later command
// returns ErrSessionClosed. Queue contents are discarded.
func (s *PlaybackSession) Close(ctx context.Context) error {
	s.mu.Lock()

	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return nil
	}

	s.liveToken = 0
	s.queue.Clear()
	s.state = domain.StateClosed
	s.mu.Unlock()

	if err := s.sink.Release(ctx, s.guildID); err != nil {
		slog.Warn("failed to release audio sink", "guild", s.guildID, "error", err)
	}
	return nil
}

// HandleTrackEnd processes a natural end-of-track signal from the audio
// sink. Signals bearing anything but the live registration token are
// stale artifacts of a prior skip or stop and are dropped without any
// state change.
func (s *PlaybackSession) HandleTrackEnd(ctx context.Context, token uint64, endErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateClosed || token == 0 || token != s.liveToken {
		slog.Debug("dropping stale track-end signal",
			"guild", s.guildID, "token", token, "live", s.liveToken)
		return
	}

	if endErr != nil {
		slog.Warn("track ended with error", "guild", s.guildID, "error", endErr)
	}

	s.state = domain.StateTransitioning
	s.liveToken = 0
	if _, err := s.advanceLocked(ctx); err != nil {
		slog.Error("failed to advance after track end", "guild", s.guildID, "error", err)
	}
}

// advanceLocked pops tracks off the queue and opens them against the
// sink until one plays, the queue drains, or the failure bound is hit.
// The mutex must be held on entry and is held again on return; it is
// released across each sink open. Returns the track that started, or
// nil if the session settled idle (or another command took over the
// machine during an unlocked window).
func (s *PlaybackSession) advanceLocked(ctx context.Context) (*domain.Track, error) {
	failures := 0

	for {
		track := s.queue.Advance()
		if track == nil {
			s.settleIdleLocked(failures > 0)
			return nil, nil
		}

		s.state = domain.StateStarting
		s.tokenSeq++
		token := s.tokenSeq
		s.liveToken = token

		s.mu.Unlock()
		openCtx, cancel := context.WithTimeout(ctx, s.openTimeout)
		openErr := s.sink.Open(openCtx, s.guildID, track.SourceURL, token)
		cancel()
		s.mu.Lock()

		if s.state == domain.StateClosed {
			return nil, ErrSessionClosed
		}
		if s.liveToken != token {
			// A stop raced the open. Whatever command invalidated the
			// registration owns the state machine; if the open
			// nevertheless succeeded, silence the orphaned stream.
			if openErr == nil {
				go s.discardOrphanedStream()
			}
			return nil, nil
		}

		if openErr != nil {
			slog.Warn("failed to open audio source, advancing",
				"guild", s.guildID,
				"track", track.Title,
				"error", openErr,
			)
			failures++
			if failures >= s.maxOpenFailures {
				s.settleIdleLocked(true)
				return nil, nil
			}
			continue
		}

		s.state = domain.StatePlaying
		s.notifyNowPlaying(track)
		return track, nil
	}
}

// settleIdleLocked returns the session to Idle at the end of an advance
// chain. The queue-exhausted report fires once per chain, and only for
// chains that encountered at least one open failure.
func (s *PlaybackSession) settleIdleLocked(exhausted bool) {
	s.state = domain.StateIdle
	s.liveToken = 0

	if exhausted && s.notifier != nil && s.notifyChannelID != 0 {
		channelID := s.notifyChannelID
		go s.notifier.SendQueueExhausted(channelID)
	}
}

func (s *PlaybackSession) notifyNowPlaying(track *domain.Track) {
	if s.notifier == nil || s.notifyChannelID == 0 {
		return
	}
	channelID := s.notifyChannelID
	go s.notifier.SendNowPlaying(channelID, track)
}

func (s *PlaybackSession) discardOrphanedStream() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sink.Stop(ctx, s.guildID); err != nil {
		slog.Warn("failed to discard orphaned stream", "guild", s.guildID, "error", err)
	}
}
