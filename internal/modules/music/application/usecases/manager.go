package usecases

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
)

// SessionManager owns at most one PlaybackSession per guild. Sessions
// are created lazily and removed explicitly; lookups by unknown guild
// never allocate.
type SessionManager struct {
	sink     ports.AudioSink
	notifier ports.Notifier
	cfg      SessionConfig

	mu       sync.Mutex
	sessions map[snowflake.ID]*PlaybackSession
}

// NewSessionManager creates an empty manager. Every session it creates
// shares the given sink and notifier.
func NewSessionManager(sink ports.AudioSink, notifier ports.Notifier, cfg SessionConfig) *SessionManager {
	return &SessionManager{
		sink:     sink,
		notifier: notifier,
		cfg:      cfg,
		sessions: map[snowflake.ID]*PlaybackSession{},
	}
}

// GetOrCreate returns the guild's session, creating an idle one if
// none exists. Concurrent calls for the same guild observe the same
// instance.
func (m *SessionManager) GetOrCreate(guildID snowflake.ID) *PlaybackSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[guildID]; ok {
		return session
	}

	session := NewPlaybackSession(guildID, m.sink, m.notifier, m.cfg)
	m.sessions[guildID] = session
	return session
}

// Get returns the guild's session, or nil if none exists.
func (m *SessionManager) Get(guildID snowflake.ID) *PlaybackSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID]
}

// Remove closes and unregisters the guild's session. Removing a guild
// without a session is a no-op.
func (m *SessionManager) Remove(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	session, ok := m.sessions[guildID]
	delete(m.sessions, guildID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return session.Close(ctx)
}

// HandleTrackEnd routes a sink completion signal to the owning
// session. Signals for guilds without a session are dropped.
func (m *SessionManager) HandleTrackEnd(ctx context.Context, guildID snowflake.ID, token uint64, endErr error) {
	session := m.Get(guildID)
	if session == nil {
		return
	}
	session.HandleTrackEnd(ctx, token, endErr)
}

// CloseAll tears down every session. Used at shutdown.
func (m *SessionManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*PlaybackSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = map[snowflake.ID]*PlaybackSession{}
	m.mu.Unlock()

	for _, session := range sessions {
		_ = session.Close(ctx)
	}
}
