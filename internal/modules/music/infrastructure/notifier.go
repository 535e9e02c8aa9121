package infrastructure

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// Embed colors.
const (
	colorGreen = 0x2ECC71
	colorGrey  = 0x95A5A6
)

// DiscordNotifier sends playback embeds to Discord text channels.
// Failures are logged and swallowed; notifications never affect
// playback.
type DiscordNotifier struct {
	session *discordgo.Session
}

// NewDiscordNotifier creates a DiscordNotifier.
func NewDiscordNotifier(session *discordgo.Session) *DiscordNotifier {
	return &DiscordNotifier{session: session}
}

// SendNowPlaying announces the track that just started.
func (n *DiscordNotifier) SendNowPlaying(channelID snowflake.ID, track *domain.Track) {
	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name: "Now Playing",
		},
		Title: track.Title,
		URL:   track.SourceURL,
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Artist",
				Value:  track.Artist,
				Inline: true,
			},
		},
	}

	if track.Duration > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Duration",
			Value:  track.FormattedDuration(),
			Inline: true,
		})
	}
	if track.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.ThumbnailURL}
	}

	if _, err := n.session.ChannelMessageSendEmbed(channelID.String(), embed); err != nil {
		slog.Warn("failed to send now-playing notification", "channel", channelID, "error", err)
	}
}

// SendQueueExhausted reports that playback drained the queue without
// finding a playable track.
func (n *DiscordNotifier) SendQueueExhausted(channelID snowflake.ID) {
	embed := &discordgo.MessageEmbed{
		Description: "Queue exhausted: no more playable tracks.",
		Color:       colorGrey,
	}

	if _, err := n.session.ChannelMessageSendEmbed(channelID.String(), embed); err != nil {
		slog.Warn("failed to send queue-exhausted notification", "channel", channelID, "error", err)
	}
}

var _ ports.Notifier = (*DiscordNotifier)(nil)
