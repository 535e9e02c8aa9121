package infrastructure

import (
	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/tneulab/groovebot/internal/modules/music/application/ports"
)

// VoiceStateProvider reads user voice states from the discordgo cache.
type VoiceStateProvider struct {
	session *discordgo.Session
}

// NewVoiceStateProvider creates a VoiceStateProvider.
func NewVoiceStateProvider(session *discordgo.Session) *VoiceStateProvider {
	return &VoiceStateProvider{session: session}
}

// GetUserVoiceChannel returns the voice channel the user is in, or nil
// if the user is not connected to voice in the guild.
func (v *VoiceStateProvider) GetUserVoiceChannel(guildID, userID snowflake.ID) (*snowflake.ID, error) {
	guild, err := v.session.State.Guild(guildID.String())
	if err != nil {
		return nil, err
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID.String() && vs.ChannelID != "" {
			channelID, err := snowflake.Parse(vs.ChannelID)
			if err != nil {
				return nil, err
			}
			return &channelID, nil
		}
	}

	return nil, nil
}

var _ ports.VoiceStateProvider = (*VoiceStateProvider)(nil)
