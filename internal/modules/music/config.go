package music

// Config holds the music module configuration. The Spotify fields are
// optional; when the credentials are empty the catalog integration is
// disabled and the playlist commands report it as unconfigured.
type Config struct {
	LavalinkAddress  string `env:"LAVALINK_ADDRESS,notEmpty"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD,notEmpty"`
	DatabasePath     string `env:"DATABASE_PATH" envDefault:"groovebot.db"`
	OwnerID          string `env:"OWNER_ID"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	SpotifyUserID       string `env:"SPOTIFY_USER_ID"`
}
