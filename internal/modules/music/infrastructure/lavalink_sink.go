package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
)

const voiceConnectTimeout = 10 * time.Second

// voiceHandshake collects the VoiceStateUpdate and VoiceServerUpdate
// halves of a Discord voice connection. The two events arrive in either
// order; Lavalink must see the state half before the server half, so
// both are buffered until the pair is complete.
type voiceHandshake struct {
	mu        sync.Mutex
	ready     chan struct{}
	signalled bool

	hasState  bool
	channelID *snowflake.ID
	sessionID string

	hasServer bool
	token     string
	endpoint  string
}

func newVoiceHandshake() *voiceHandshake {
	return &voiceHandshake{ready: make(chan struct{})}
}

// setState stores the voice state half. Returns the complete pair, or
// false if the server half is still missing.
func (h *voiceHandshake) setState(channelID *snowflake.ID, sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hasState = true
	h.channelID = channelID
	h.sessionID = sessionID
	return h.completeLocked()
}

// setServer stores the voice server half. Returns the complete pair, or
// false if the state half is still missing.
func (h *voiceHandshake) setServer(token, endpoint string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hasServer = true
	h.token = token
	h.endpoint = endpoint
	return h.completeLocked()
}

func (h *voiceHandshake) completeLocked() bool {
	if !h.hasState || !h.hasServer {
		return false
	}
	if !h.signalled {
		h.signalled = true
		close(h.ready)
	}
	return true
}

// take returns the buffered pair and resets both halves for the next
// handshake on the same guild.
func (h *voiceHandshake) take() (channelID *snowflake.ID, sessionID, token, endpoint string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	channelID, sessionID = h.channelID, h.sessionID
	token, endpoint = h.token, h.endpoint
	h.hasState, h.hasServer = false, false
	h.channelID, h.sessionID, h.token, h.endpoint = nil, "", "", ""
	return
}

// LavalinkSink plays audio through a Lavalink node via DisGoLink. It
// implements both the audio sink and the voice connection ports.
//
// Each successful Open records the caller's completion token for the
// guild; when the node later reports a natural track end, the recorded
// token accompanies the callback so the session can match it against
// its live registration.
type LavalinkSink struct {
	link    disgolink.Client
	session *discordgo.Session
	botID   snowflake.ID

	handshakeMu sync.Mutex
	handshakes  map[snowflake.ID]*voiceHandshake

	tokenMu sync.Mutex
	tokens  map[snowflake.ID]uint64

	endMu      sync.Mutex
	onTrackEnd ports.TrackEndFunc
}

// LavalinkConfig holds node connection settings.
type LavalinkConfig struct {
	Address  string
	Password string
}

// NewLavalinkSink connects to the Lavalink node and returns the sink.
func NewLavalinkSink(session *discordgo.Session, config LavalinkConfig) (*LavalinkSink, error) {
	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bot ID: %w", err)
	}

	sink := &LavalinkSink{
		session:    session,
		botID:      botID,
		handshakes: make(map[snowflake.ID]*voiceHandshake),
		tokens:     make(map[snowflake.ID]uint64),
	}

	link := disgolink.New(botID,
		disgolink.WithListenerFunc(sink.handleTrackStart),
		disgolink.WithListenerFunc(sink.handleTrackEnd),
		disgolink.WithListenerFunc(sink.handleTrackException),
		disgolink.WithListenerFunc(sink.handleTrackStuck),
	)
	sink.link = link

	node, err := link.AddNode(context.Background(), disgolink.NodeConfig{
		Name:     "main",
		Address:  config.Address,
		Password: config.Password,
		Secure:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	slog.Info("connected to Lavalink", "node", node.Config().Name, "address", config.Address)
	return sink, nil
}

// SetTrackEndFunc registers the completion callback. Must be called
// before any Open.
func (s *LavalinkSink) SetTrackEndFunc(fn ports.TrackEndFunc) {
	s.endMu.Lock()
	defer s.endMu.Unlock()
	s.onTrackEnd = fn
}

// Close shuts down the node connection.
func (s *LavalinkSink) Close() {
	s.link.Close()
}

// Open resolves the source URL on the node and starts playback,
// registering the token for the eventual completion callback.
func (s *LavalinkSink) Open(ctx context.Context, guildID snowflake.ID, sourceURL string, token uint64) error {
	node := s.link.BestNode()
	if node == nil {
		return fmt.Errorf("no available Lavalink node")
	}

	result, err := node.LoadTracks(ctx, sourceURL)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", sourceURL, err)
	}

	encoded, err := firstEncodedTrack(result)
	if err != nil {
		return fmt.Errorf("no playable stream for %s: %w", sourceURL, err)
	}

	s.tokenMu.Lock()
	s.tokens[guildID] = token
	s.tokenMu.Unlock()

	player := s.link.Player(guildID)
	if err := player.Update(ctx, lavalink.WithEncodedTrack(encoded)); err != nil {
		s.tokenMu.Lock()
		delete(s.tokens, guildID)
		s.tokenMu.Unlock()
		return fmt.Errorf("failed to start playback: %w", err)
	}
	return nil
}

// Stop halts playback. The completion registration is dropped first so
// the stop never produces a callback.
func (s *LavalinkSink) Stop(ctx context.Context, guildID snowflake.ID) error {
	s.tokenMu.Lock()
	delete(s.tokens, guildID)
	s.tokenMu.Unlock()

	player := s.link.ExistingPlayer(guildID)
	if player == nil {
		return nil
	}
	if err := player.Update(ctx, lavalink.WithNullTrack()); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	return nil
}

// Pause suspends playback.
func (s *LavalinkSink) Pause(ctx context.Context, guildID snowflake.ID) error {
	if err := s.link.Player(guildID).Update(ctx, lavalink.WithPaused(true)); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}
	return nil
}

// Resume continues paused playback.
func (s *LavalinkSink) Resume(ctx context.Context, guildID snowflake.ID) error {
	if err := s.link.Player(guildID).Update(ctx, lavalink.WithPaused(false)); err != nil {
		return fmt.Errorf("failed to resume playback: %w", err)
	}
	return nil
}

// SetVolume adjusts the player volume, 0 to 100 percent.
func (s *LavalinkSink) SetVolume(ctx context.Context, guildID snowflake.ID, percent int) error {
	if err := s.link.Player(guildID).Update(ctx, lavalink.WithVolume(percent)); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}

// Release destroys the guild's player and leaves its voice channel.
func (s *LavalinkSink) Release(ctx context.Context, guildID snowflake.ID) error {
	s.tokenMu.Lock()
	delete(s.tokens, guildID)
	s.tokenMu.Unlock()

	if player := s.link.ExistingPlayer(guildID); player != nil {
		if err := player.Destroy(ctx); err != nil {
			slog.Warn("failed to destroy player", "guild", guildID, "error", err)
		}
	}
	return s.LeaveChannel(ctx, guildID)
}

// JoinChannel connects the bot to a voice channel and blocks until the
// voice handshake with Discord completes.
func (s *LavalinkSink) JoinChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	handshake := s.resetHandshake(guildID)

	if err := s.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, true); err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	select {
	case <-handshake.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cancelled while waiting for voice connection: %w", ctx.Err())
	case <-time.After(voiceConnectTimeout):
		return fmt.Errorf("timed out waiting for voice connection")
	}
}

// LeaveChannel disconnects the bot from the guild's voice channel.
func (s *LavalinkSink) LeaveChannel(_ context.Context, guildID snowflake.ID) error {
	if err := s.session.ChannelVoiceJoinManual(guildID.String(), "", false, true); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// OnVoiceServerUpdate feeds Discord voice server updates into the
// handshake buffer. Wire it into the discordgo event handlers.
func (s *LavalinkSink) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	handshake := s.getHandshake(guildID)
	if handshake.setServer(event.Token, event.Endpoint) {
		s.forwardHandshake(guildID, handshake)
	}
}

// OnVoiceStateUpdate feeds the bot's own voice state updates into the
// handshake buffer. Wire it into the discordgo event handlers.
func (s *LavalinkSink) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	if event.UserID != s.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	var channelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		channelID = &id
	}

	// A nil channel is a disconnect; Lavalink learns about it
	// immediately, no server half will follow.
	if channelID == nil {
		s.link.OnVoiceStateUpdate(context.Background(), guildID, nil, event.SessionID)
		s.dropHandshake(guildID)
		return
	}

	handshake := s.getHandshake(guildID)
	if handshake.setState(channelID, event.SessionID) {
		s.forwardHandshake(guildID, handshake)
	}
}

func (s *LavalinkSink) getHandshake(guildID snowflake.ID) *voiceHandshake {
	s.handshakeMu.Lock()
	defer s.handshakeMu.Unlock()
	handshake, ok := s.handshakes[guildID]
	if !ok {
		handshake = newVoiceHandshake()
		s.handshakes[guildID] = handshake
	}
	return handshake
}

func (s *LavalinkSink) resetHandshake(guildID snowflake.ID) *voiceHandshake {
	s.handshakeMu.Lock()
	defer s.handshakeMu.Unlock()
	handshake := newVoiceHandshake()
	s.handshakes[guildID] = handshake
	return handshake
}

func (s *LavalinkSink) dropHandshake(guildID snowflake.ID) {
	s.handshakeMu.Lock()
	defer s.handshakeMu.Unlock()
	delete(s.handshakes, guildID)
}

func (s *LavalinkSink) forwardHandshake(guildID snowflake.ID, handshake *voiceHandshake) {
	channelID, sessionID, token, endpoint := handshake.take()

	slog.Debug("forwarding voice handshake to Lavalink",
		"guild", guildID, "channel", channelID)

	s.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, sessionID)
	s.link.OnVoiceServerUpdate(context.Background(), guildID, token, endpoint)
}

func (s *LavalinkSink) handleTrackStart(player disgolink.Player, event lavalink.TrackStartEvent) {
	slog.Debug("track started", "guild", player.GuildID(), "track", event.Track.Info.Title)
}

func (s *LavalinkSink) handleTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	slog.Debug("track ended", "guild", player.GuildID(), "reason", event.Reason)

	// Stopped, replaced and cleanup ends all follow an explicit command
	// the session already accounted for; only natural ends propagate.
	var endErr error
	switch event.Reason {
	case lavalink.TrackEndReasonFinished:
	case lavalink.TrackEndReasonLoadFailed:
		endErr = fmt.Errorf("track failed to load mid-playback")
	default:
		return
	}

	guildID := player.GuildID()

	s.tokenMu.Lock()
	token, ok := s.tokens[guildID]
	delete(s.tokens, guildID)
	s.tokenMu.Unlock()
	if !ok {
		return
	}

	s.endMu.Lock()
	fn := s.onTrackEnd
	s.endMu.Unlock()
	if fn != nil {
		fn(guildID, token, endErr)
	}
}

func (s *LavalinkSink) handleTrackException(player disgolink.Player, event lavalink.TrackExceptionEvent) {
	slog.Warn("track exception", "guild", player.GuildID(), "error", event.Exception.Message)
}

func (s *LavalinkSink) handleTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	slog.Warn("track stuck", "guild", player.GuildID(), "threshold", event.Threshold)
}

// firstEncodedTrack extracts the playable track from a load result.
func firstEncodedTrack(result *lavalink.LoadResult) (string, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return data.Encoded, nil
	case lavalink.Search:
		if len(data) == 0 {
			return "", fmt.Errorf("empty search result")
		}
		return data[0].Encoded, nil
	case lavalink.Playlist:
		if len(data.Tracks) == 0 {
			return "", fmt.Errorf("empty playlist")
		}
		return data.Tracks[0].Encoded, nil
	case lavalink.Empty:
		return "", fmt.Errorf("no matches")
	case lavalink.Exception:
		return "", fmt.Errorf("load failed: %s", data.Message)
	default:
		return "", fmt.Errorf("unexpected load result type %T", data)
	}
}

var (
	_ ports.AudioSink       = (*LavalinkSink)(nil)
	_ ports.VoiceConnection = (*LavalinkSink)(nil)
)
