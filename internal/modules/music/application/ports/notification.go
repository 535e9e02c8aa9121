package ports

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/domain"
)

// Notifier sends playback notifications to Discord channels. All
// methods are best-effort: failures are logged by implementations and
// never affect playback.
type Notifier interface {
	// SendNowPlaying announces the track that just started.
	SendNowPlaying(channelID snowflake.ID, track *domain.Track)

	// SendQueueExhausted reports that an advance chain drained the
	// queue without producing a playable track.
	SendQueueExhausted(channelID snowflake.ID)
}
