package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// VoiceConnection controls the bot's voice channel membership.
type VoiceConnection interface {
	// JoinChannel connects the bot to the given voice channel.
	JoinChannel(ctx context.Context, guildID, channelID snowflake.ID) error

	// LeaveChannel disconnects the bot from the guild's voice channel.
	LeaveChannel(ctx context.Context, guildID snowflake.ID) error
}

// VoiceStateProvider reports where users currently are.
type VoiceStateProvider interface {
	// GetUserVoiceChannel returns the voice channel the user is in, or
	// nil if the user is not in a voice channel.
	GetUserVoiceChannel(guildID, userID snowflake.ID) (*snowflake.ID, error)
}
