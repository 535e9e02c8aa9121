package diag

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/tneulab/groovebot/internal/bot"
)

func init() {
	bot.Register(&Module{})
}

// Module provides the /ping liveness command.
type Module struct{}

// Name returns the module name.
func (m *Module) Name() string {
	return "diag"
}

// Commands returns the slash commands for this module.
func (m *Module) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
	}
}

// CommandHandlers returns the command handlers for this module.
func (m *Module) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"ping": HandlePing,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *Module) EventHandlers() []bot.EventHandler {
	return nil
}

// Init initializes the module.
func (m *Module) Init(deps bot.ModuleDependencies) error {
	return nil
}

// Shutdown cleans up module resources.
func (m *Module) Shutdown() error {
	return nil
}

// HandlePing replies with the current gateway heartbeat latency.
func HandlePing(s *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	content := "Pong!"
	if s != nil {
		if latency := s.HeartbeatLatency(); latency > 0 {
			content = fmt.Sprintf("Pong! (%dms)", latency.Milliseconds())
		}
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}
