package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// TrackEndFunc is invoked by the audio sink when a track reaches its
// natural end (finished or failed to load). The token is the one passed
// to the Open call that started the track; sessions use it to discard
// completion signals that raced against a skip or stop. endErr is
// non-nil when the source failed mid-playback.
type TrackEndFunc func(guildID snowflake.ID, token uint64, endErr error)

// AudioSink defines the interface to the audio subsystem.
type AudioSink interface {
	// Open resolves the source URL into an audio stream and starts
	// playback for the guild. Exactly one TrackEndFunc invocation
	// follows per successful Open, unless playback is stopped or
	// replaced first.
	Open(ctx context.Context, guildID snowflake.ID, sourceURL string, token uint64) error

	// Stop halts the current playback. No TrackEndFunc invocation
	// follows a Stop.
	Stop(ctx context.Context, guildID snowflake.ID) error

	// Pause suspends the current playback.
	Pause(ctx context.Context, guildID snowflake.ID) error

	// Resume continues paused playback.
	Resume(ctx context.Context, guildID snowflake.ID) error

	// SetVolume adjusts the playback volume, 0 to 100 percent.
	SetVolume(ctx context.Context, guildID snowflake.ID, percent int) error

	// Release frees the guild's audio resources. Called on session
	// teardown; irreversible for that guild until a new Open.
	Release(ctx context.Context, guildID snowflake.ID) error
}
