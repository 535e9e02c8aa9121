package bot

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the kernel-level configuration. Module-specific settings
// live with their modules and are loaded through ConfigurableModule.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`
}

// LoadConfig reads the kernel configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse bot config: %w", err)
	}
	return cfg, nil
}
