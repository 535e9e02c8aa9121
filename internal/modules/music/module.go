package music

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/bot"
	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/application/usecases"
	"github.com/tneulab/groovebot/internal/modules/music/infrastructure"
	"github.com/tneulab/groovebot/internal/modules/music/presentation"
)

func init() {
	bot.Register(&Module{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*Module)(nil)

// Module provides music playback, search and playlist commands.
type Module struct {
	config *Config

	handlers *presentation.Handlers
	manager  *usecases.SessionManager
	sink     *infrastructure.LavalinkSink
	store    *infrastructure.SQLiteStore
}

// Name returns the module name.
func (m *Module) Name() string {
	return "music"
}

// Commands returns the slash commands for this module.
func (m *Module) Commands() []*discordgo.ApplicationCommand {
	return presentation.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *Module) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"play":      m.handlers.HandlePlay,
		"skip":      m.handlers.HandleSkip,
		"pause":     m.handlers.HandlePause,
		"resume":    m.handlers.HandleResume,
		"volume":    m.handlers.HandleVolume,
		"stop":      m.handlers.HandleStop,
		"queue":     m.handlers.HandleQueue,
		"search":    m.handlers.HandleSearch,
		"stats":     m.handlers.HandleStats,
		"purge":     m.handlers.HandlePurge,
		"playlists": m.handlers.HandlePlaylists,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *Module) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(_ *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			if m.sink != nil {
				m.sink.OnVoiceServerUpdate(event)
			}
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			if m.sink != nil {
				m.sink.OnVoiceStateUpdate(event)
			}
			m.handleBotDisconnect(s, event)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *Module) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *Module) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil {
		slog.Warn("music module initialized without session, playback disabled")
		// Handlers with nil dependencies let the command set register;
		// invoking them without a session fails at runtime.
		m.handlers = presentation.NewHandlers(nil, nil, nil, nil, nil, nil, 0)
		return nil
	}

	ctx := context.Background()

	sink, err := infrastructure.NewLavalinkSink(deps.Session, infrastructure.LavalinkConfig{
		Address:  m.config.LavalinkAddress,
		Password: m.config.LavalinkPassword,
	})
	if err != nil {
		return err
	}
	m.sink = sink

	store, err := infrastructure.NewSQLiteStore(ctx, m.config.DatabasePath)
	if err != nil {
		return err
	}
	m.store = store

	notifier := infrastructure.NewDiscordNotifier(deps.Session)
	m.manager = usecases.NewSessionManager(sink, notifier, usecases.SessionConfig{})
	sink.SetTrackEndFunc(func(guildID snowflake.ID, token uint64, endErr error) {
		m.manager.HandleTrackEnd(context.Background(), guildID, token, endErr)
	})

	search := infrastructure.NewYouTubeSearchProvider()
	resolver := usecases.NewMetadataResolver(search, store)
	cache := usecases.NewCacheService(store)

	var catalog ports.CatalogSearchProvider
	if m.config.SpotifyClientID != "" && m.config.SpotifyClientSecret != "" {
		catalog = infrastructure.NewSpotifyCatalog(ctx, infrastructure.SpotifyConfig{
			ClientID:     m.config.SpotifyClientID,
			ClientSecret: m.config.SpotifyClientSecret,
			UserID:       m.config.SpotifyUserID,
		})
	}
	playlists := usecases.NewPlaylistService(catalog, resolver)

	var ownerID snowflake.ID
	if m.config.OwnerID != "" {
		ownerID, err = snowflake.Parse(m.config.OwnerID)
		if err != nil {
			return fmt.Errorf("invalid OWNER_ID: %w", err)
		}
	}

	voiceState := infrastructure.NewVoiceStateProvider(deps.Session)
	m.handlers = presentation.NewHandlers(m.manager, resolver, cache, playlists, sink, voiceState, ownerID)

	slog.Info("music module initialized",
		"database", m.config.DatabasePath,
		"spotify", catalog != nil,
	)
	return nil
}

// handleBotDisconnect tears the guild's session down when the bot
// leaves voice for any reason (kicked, channel deleted, /stop). The
// queue does not survive a disconnect.
func (m *Module) handleBotDisconnect(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if m.manager == nil || event.ChannelID != "" {
		return
	}
	if s.State.User == nil || event.UserID != s.State.User.ID {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		return
	}
	if m.manager.Get(guildID) == nil {
		return
	}

	slog.Info("voice disconnected, closing session", "guild", guildID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.manager.Remove(ctx, guildID); err != nil {
		slog.Warn("failed to close session after disconnect", "guild", guildID, "error", err)
	}
}

// Shutdown cleans up module resources.
func (m *Module) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if m.manager != nil {
		m.manager.CloseAll(ctx)
	}
	if m.sink != nil {
		m.sink.Close()
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
