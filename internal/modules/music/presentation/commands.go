package presentation

import "github.com/bwmarrin/discordgo"

// Commands returns all slash commands for the music module.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a track by search query or Spotify link",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Search term or Spotify track/playlist URL",
					Required:    true,
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the current track",
		},
		{
			Name:        "pause",
			Description: "Pause playback",
		},
		{
			Name:        "resume",
			Description: "Resume playback",
		},
		{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "level",
					Description: "Volume in percent",
					Required:    true,
					MinValue:    floatPtr(0),
					MaxValue:    100,
				},
			},
		},
		{
			Name:        "stop",
			Description: "Stop playback, clear the queue and leave the voice channel",
		},
		{
			Name:        "queue",
			Description: "Show the current queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "page",
					Description: "Page number",
					Required:    false,
					MinValue:    floatPtr(1),
				},
			},
		},
		{
			Name:        "search",
			Description: "Search for tracks without playing them",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Search term",
					Required:    true,
				},
			},
		},
		{
			Name:        "stats",
			Description: "Show metadata cache statistics",
		},
		{
			Name:        "purge",
			Description: "Wipe the metadata cache (bot owner only)",
		},
		{
			Name:        "playlists",
			Description: "Browse and play the curated Spotify playlists",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List the available playlists",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "play",
					Description: "Enqueue every track of a playlist",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "id",
							Description: "Playlist ID (see /playlists list)",
							Required:    true,
						},
					},
				},
			},
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
