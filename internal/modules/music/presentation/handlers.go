package presentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/bot"
	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/application/usecases"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
	colorInfo    = 0x3498DB
)

const queuePageSize = 10

var (
	spotifyTrackPattern    = regexp.MustCompile(`open\.spotify\.com/(?:intl-[a-z]+/)?track/([A-Za-z0-9]+)`)
	spotifyPlaylistPattern = regexp.MustCompile(`open\.spotify\.com/playlist/([A-Za-z0-9]+)`)
)

// Handlers holds all the command handlers for the music module.
type Handlers struct {
	manager    *usecases.SessionManager
	resolver   *usecases.MetadataResolver
	cache      *usecases.CacheService
	playlists  *usecases.PlaylistService
	voice      ports.VoiceConnection
	voiceState ports.VoiceStateProvider
	ownerID    snowflake.ID
}

// NewHandlers creates new Handlers.
func NewHandlers(
	manager *usecases.SessionManager,
	resolver *usecases.MetadataResolver,
	cache *usecases.CacheService,
	playlists *usecases.PlaylistService,
	voice ports.VoiceConnection,
	voiceState ports.VoiceStateProvider,
	ownerID snowflake.ID,
) *Handlers {
	return &Handlers{
		manager:    manager,
		resolver:   resolver,
		cache:      cache,
		playlists:  playlists,
		voice:      voice,
		voiceState: voiceState,
		ownerID:    ownerID,
	}
}

// HandlePlay handles the /play command. Accepts free-text queries,
// Spotify track URLs and Spotify playlist URLs.
func (h *Handlers) HandlePlay(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, err := parseInteractionIDs(i)
	if err != nil {
		return respondError(r, "Invalid interaction")
	}

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	// Joining voice and resolving the query can outlive Discord's three
	// second response window.
	if err := deferResponse(r); err != nil {
		return err
	}

	session, joinErr := h.connectForUser(ctx, ids)
	if joinErr != nil {
		return editEmbed(s, i, errorEmbed(userMessage(joinErr)))
	}

	if match := spotifyPlaylistPattern.FindStringSubmatch(query); match != nil {
		return h.enqueuePlaylist(ctx, s, i, session, match[1])
	}

	track, err := h.resolveQuery(ctx, query)
	if err != nil {
		return editEmbed(s, i, errorEmbed(userMessage(err)))
	}

	result, err := session.Enqueue(ctx, track)
	if err != nil {
		return editEmbed(s, i, errorEmbed(userMessage(err)))
	}

	return editEmbed(s, i, enqueueEmbed(result))
}

// HandleSkip handles the /skip command.
func (h *Handlers) HandleSkip(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	session, err := h.activeSession(i)
	if err != nil {
		return respondError(r, userMessage(err))
	}

	result, err := session.Skip(context.Background())
	if err != nil {
		return respondError(r, userMessage(err))
	}

	description := fmt.Sprintf("Skipped %s.", trackLink(result.Skipped))
	if result.Next != nil {
		description += fmt.Sprintf("\nNow playing %s.", trackLink(result.Next))
	}
	return respondSuccess(r, description)
}

// HandlePause handles the /pause command.
func (h *Handlers) HandlePause(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	session, err := h.activeSession(i)
	if err != nil {
		return respondError(r, userMessage(err))
	}

	if err := session.Pause(context.Background()); err != nil {
		return respondError(r, userMessage(err))
	}
	return respondSuccess(r, "Paused playback.")
}

// HandleResume handles the /resume command.
func (h *Handlers) HandleResume(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	session, err := h.activeSession(i)
	if err != nil {
		return respondError(r, userMessage(err))
	}

	if err := session.Resume(context.Background()); err != nil {
		return respondError(r, userMessage(err))
	}
	return respondSuccess(r, "Resumed playback.")
}

// HandleVolume handles the /volume command.
func (h *Handlers) HandleVolume(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	session, err := h.activeSession(i)
	if err != nil {
		return respondError(r, userMessage(err))
	}

	level := -1
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "level" {
			level = int(opt.IntValue())
		}
	}

	if err := session.SetVolume(context.Background(), level); err != nil {
		return respondError(r, userMessage(err))
	}
	return respondSuccess(r, fmt.Sprintf("Volume set to %d%%.", level))
}

// HandleStop handles the /stop command. The session is torn down
// entirely: queue cleared, playback halted, voice channel left.
func (h *Handlers) HandleStop(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	if h.manager.Get(guildID) == nil {
		return respondError(r, userMessage(usecases.ErrNotPlaying))
	}

	if err := h.manager.Remove(context.Background(), guildID); err != nil {
		return respondError(r, userMessage(err))
	}
	return respondSuccess(r, "Stopped playback and cleared the queue.")
}

// HandleQueue handles the /queue command.
func (h *Handlers) HandleQueue(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	page := 1
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "page" {
			page = int(opt.IntValue())
		}
	}

	session := h.manager.Get(guildID)
	if session == nil {
		return respondInfo(r, "Queue", "Queue is empty.")
	}

	return respondQueuePage(r, session.Snapshot(), page)
}

// HandleSearch handles the /search command.
func (h *Handlers) HandleSearch(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	if err := deferResponse(r); err != nil {
		return err
	}

	ctx := context.Background()

	records, recErr := h.cache.SearchRecords(ctx, query, 5)
	if recErr != nil {
		slog.Warn("cache search failed", "query", query, "error", recErr)
	}

	tracks, err := h.resolver.SearchMany(ctx, query, 5)
	if err != nil && len(records) == 0 {
		return editEmbed(s, i, errorEmbed(userMessage(err)))
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Results for %q", query),
		Color: colorInfo,
	}

	if len(records) > 0 {
		var sb strings.Builder
		for n, record := range records {
			fmt.Fprintf(&sb, "%d\\. %s (%d plays)\n", n+1, trackLink(&record.Track), record.PlayCount)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "From cache",
			Value: sb.String(),
		})
	}

	if len(tracks) > 0 {
		var sb strings.Builder
		for n, track := range tracks {
			fmt.Fprintf(&sb, "%d\\. %s", n+1, trackLink(track))
			if track.Duration > 0 {
				fmt.Fprintf(&sb, " `%s`", track.FormattedDuration())
			}
			sb.WriteString("\n")
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Search results",
			Value: sb.String(),
		})
	}

	if len(embed.Fields) == 0 {
		return editEmbed(s, i, errorEmbed(userMessage(usecases.ErrNoResults)))
	}
	return editEmbed(s, i, embed)
}

// HandleStats handles the /stats command.
func (h *Handlers) HandleStats(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	stats, err := h.cache.Stats(context.Background())
	if err != nil {
		return respondError(r, userMessage(err))
	}

	embed := &discordgo.MessageEmbed{
		Title: "Cache Statistics",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Cached tracks", Value: fmt.Sprintf("%d", stats.TotalTracks), Inline: true},
			{Name: "Total plays", Value: fmt.Sprintf("%d", stats.TotalPlays), Inline: true},
		},
	}

	if len(stats.MostPlayed) > 0 {
		var sb strings.Builder
		for n, record := range stats.MostPlayed {
			fmt.Fprintf(&sb, "%d\\. **%s** - %s (%d plays)\n",
				n+1, record.Title, record.Artist, record.PlayCount)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Most played",
			Value: sb.String(),
		})
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// HandlePurge handles the /purge command. Owner only.
func (h *Handlers) HandlePurge(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	if i.Member == nil || i.Member.User == nil {
		return respondError(r, "Invalid user")
	}
	if h.ownerID == 0 || i.Member.User.ID != h.ownerID.String() {
		return respondError(r, "Only the bot owner can purge the cache.")
	}

	removed, err := h.cache.Purge(context.Background())
	if err != nil {
		return respondError(r, userMessage(err))
	}
	return respondSuccess(r, fmt.Sprintf("Purged %d cached tracks.", removed))
}

// HandlePlaylists handles the /playlists command.
func (h *Handlers) HandlePlaylists(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return respondError(r, "Invalid subcommand")
	}

	switch sub := options[0]; sub.Name {
	case "list":
		return h.handlePlaylistsList(r)
	case "play":
		return h.handlePlaylistsPlay(s, i, r, sub.Options)
	default:
		return respondError(r, "Unknown subcommand")
	}
}

func (h *Handlers) handlePlaylistsList(r bot.Responder) error {
	playlists, err := h.playlists.List(context.Background())
	if err != nil {
		return respondError(r, userMessage(err))
	}
	if len(playlists) == 0 {
		return respondInfo(r, "Playlists", "No playlists available.")
	}

	var sb strings.Builder
	for _, playlist := range playlists {
		fmt.Fprintf(&sb, "**%s** (%d tracks)\n`%s`\n", playlist.Name, playlist.TrackCount, playlist.ID)
	}
	return respondInfo(r, "Playlists", sb.String())
}

func (h *Handlers) handlePlaylistsPlay(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	ctx := context.Background()

	ids, err := parseInteractionIDs(i)
	if err != nil {
		return respondError(r, "Invalid interaction")
	}

	var playlistID string
	for _, opt := range options {
		if opt.Name == "id" {
			playlistID = opt.StringValue()
		}
	}

	// Resolving a whole playlist takes far longer than the response
	// window allows.
	if err := deferResponse(r); err != nil {
		return err
	}

	session, joinErr := h.connectForUser(ctx, ids)
	if joinErr != nil {
		return editEmbed(s, i, errorEmbed(userMessage(joinErr)))
	}
	return h.enqueuePlaylist(ctx, s, i, session, playlistID)
}

// interactionIDs bundles the parsed snowflakes of a command invocation.
type interactionIDs struct {
	guildID   snowflake.ID
	userID    snowflake.ID
	channelID snowflake.ID
}

func parseInteractionIDs(i *discordgo.InteractionCreate) (interactionIDs, error) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return interactionIDs{}, err
	}
	if i.Member == nil || i.Member.User == nil {
		return interactionIDs{}, fmt.Errorf("interaction without member")
	}
	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return interactionIDs{}, err
	}
	channelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return interactionIDs{}, err
	}
	return interactionIDs{guildID: guildID, userID: userID, channelID: channelID}, nil
}

// connectForUser ensures the bot shares a voice channel with the
// invoking user and returns the guild's session with its notification
// channel pointed at the invocation channel.
func (h *Handlers) connectForUser(ctx context.Context, ids interactionIDs) (*usecases.PlaybackSession, error) {
	voiceChannel, err := h.voiceState.GetUserVoiceChannel(ids.guildID, ids.userID)
	if err != nil {
		return nil, err
	}
	if voiceChannel == nil {
		return nil, usecases.ErrUserNotInVoice
	}

	if err := h.voice.JoinChannel(ctx, ids.guildID, *voiceChannel); err != nil {
		return nil, err
	}

	session := h.manager.GetOrCreate(ids.guildID)
	session.SetNotificationChannel(ids.channelID)
	return session, nil
}

// resolveQuery picks the resolution path for the query text: Spotify
// track URLs go through the catalog, everything else is a free-text
// search.
func (h *Handlers) resolveQuery(ctx context.Context, query string) (*domain.Track, error) {
	if match := spotifyTrackPattern.FindStringSubmatch(query); match != nil {
		return h.playlists.LookupTrack(ctx, match[1])
	}
	return h.resolver.Resolve(ctx, query)
}

func (h *Handlers) enqueuePlaylist(
	ctx context.Context,
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	session *usecases.PlaybackSession,
	playlistID string,
) error {
	result, err := h.playlists.Enqueue(ctx, session, playlistID)
	if err != nil {
		return editEmbed(s, i, errorEmbed(userMessage(err)))
	}

	description := fmt.Sprintf("Enqueued %d tracks.", result.Enqueued)
	if result.Skipped > 0 {
		description += fmt.Sprintf(" Skipped %d unresolvable entries.", result.Skipped)
	}
	if result.Started && result.First != nil {
		description += fmt.Sprintf("\nNow playing %s.", trackLink(result.First))
	}
	return editEmbed(s, i, &discordgo.MessageEmbed{
		Description: description,
		Color:       colorSuccess,
	})
}

// activeSession returns the guild's session or ErrNotPlaying if the
// guild has none.
func (h *Handlers) activeSession(i *discordgo.InteractionCreate) (*usecases.PlaybackSession, error) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return nil, fmt.Errorf("invalid guild ID: %w", err)
	}
	session := h.manager.Get(guildID)
	if session == nil {
		return nil, usecases.ErrNotPlaying
	}
	return session, nil
}

// userMessage maps application errors to user-facing text.
func userMessage(err error) string {
	switch {
	case errors.Is(err, usecases.ErrUserNotInVoice):
		return "You must be in a voice channel."
	case errors.Is(err, usecases.ErrNoResults):
		return "No results found for that query."
	case errors.Is(err, usecases.ErrSourceUnavailable):
		return "Could not find a playable source for that track."
	case errors.Is(err, usecases.ErrNotPlaying):
		return "Nothing is currently playing."
	case errors.Is(err, usecases.ErrInvalidVolume):
		return "Volume must be between 0 and 100."
	case errors.Is(err, usecases.ErrSessionClosed):
		return "The playback session ended. Start again with /play."
	case errors.Is(err, usecases.ErrCatalogUnavailable):
		return "Spotify integration is not configured."
	case errors.Is(err, usecases.ErrPlaylistEmpty):
		return "No playable tracks found in that playlist."
	default:
		return "Something went wrong, please try again."
	}
}

// Response helpers.

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{errorEmbed(message)},
		},
	})
}

func respondSuccess(r bot.Responder, description string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: description,
					Color:       colorSuccess,
				},
			},
		},
	})
}

func respondInfo(r bot.Responder, title, description string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       title,
					Description: description,
					Color:       colorInfo,
				},
			},
		},
	})
}

func respondQueuePage(r bot.Responder, snap usecases.SessionSnapshot, page int) error {
	if snap.Current == nil && len(snap.Pending) == 0 {
		return respondInfo(r, "Queue", "Queue is empty.")
	}

	totalPages := (len(snap.Pending) + queuePageSize - 1) / queuePageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	var sb strings.Builder
	if snap.Current != nil {
		sb.WriteString("### Now Playing\n")
		fmt.Fprintf(&sb, "%s", trackLink(snap.Current))
		if snap.State == domain.StatePaused {
			sb.WriteString(" (paused)")
		}
		sb.WriteString("\n")
	}

	start := (page - 1) * queuePageSize
	end := min(start+queuePageSize, len(snap.Pending))
	if start < end {
		sb.WriteString("### Up Next\n")
		for n, track := range snap.Pending[start:end] {
			fmt.Fprintf(&sb, "%d\\. %s\n", start+n+1, trackLink(track))
		}
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Queue",
					Description: sb.String(),
					Color:       colorInfo,
					Footer: &discordgo.MessageEmbedFooter{
						Text: fmt.Sprintf("Page %d/%d", page, totalPages),
					},
				},
			},
		},
	})
}

func enqueueEmbed(result *usecases.EnqueueResult) *discordgo.MessageEmbed {
	var description string
	if result.Started {
		description = fmt.Sprintf("Now playing %s.", trackLink(result.Track))
	} else {
		description = fmt.Sprintf("Added %s to the queue (position %d).",
			trackLink(result.Track), result.Position)
	}
	if result.Track.FromCache {
		description += "\n-# Served from the metadata cache."
	}
	return &discordgo.MessageEmbed{
		Description: description,
		Color:       colorSuccess,
	}
}

func errorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: message,
		Color:       colorError,
	}
}

func trackLink(track *domain.Track) string {
	label := track.Title
	if track.Artist != "" {
		label += " - " + track.Artist
	}
	if track.SourceURL != "" {
		return fmt.Sprintf("[%s](%s)", label, track.SourceURL)
	}
	return fmt.Sprintf("**%s**", label)
}

func deferResponse(r bot.Responder) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func editEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	})
	return err
}
