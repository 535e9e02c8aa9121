package usecases

import "errors"

// Domain errors for the music module.
var (
	// ErrSessionClosed is returned when a command targets a torn-down session.
	ErrSessionClosed = errors.New("playback session is closed")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrNoResults is returned when a search yields no results.
	ErrNoResults = errors.New("no results found")

	// ErrSourceUnavailable is returned when no playable source could be
	// opened for any queued track.
	ErrSourceUnavailable = errors.New("audio source unavailable")

	// ErrInvalidVolume is returned for volume values outside 0 to 100.
	ErrInvalidVolume = errors.New("volume must be between 0 and 100")

	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")

	// ErrCatalogUnavailable is returned when catalog features are used
	// without catalog credentials configured.
	ErrCatalogUnavailable = errors.New("music catalog is not configured")

	// ErrPlaylistEmpty is returned when a playlist resolves to no playable tracks.
	ErrPlaylistEmpty = errors.New("no playable tracks found in playlist")
)
