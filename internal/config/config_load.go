package config

import (
	"encoding/json"
	"os"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/goclaw/internal/corekind"
)

// Load reads config from a JSON(5) file, falling back to defaults if
// the file does not exist, then overlays the Postgres DSN from the
// environment (never persisted to disk).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, corekind.Wrap(corekind.Io, "config.Load", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, corekind.Wrap(corekind.Config, "config.Load", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("GOCLAW_POSTGRES_DSN"); dsn != "" {
		c.Store.PostgresDSN = dsn
		c.Store.Driver = "postgres"
	}
	if tok := os.Getenv("GOCLAW_TELEGRAM_TOKEN"); tok != "" {
		c.Channels.Telegram.Token = tok
	}
	if tok := os.Getenv("GOCLAW_DISCORD_TOKEN"); tok != "" {
		c.Channels.Discord.Token = tok
	}
}
