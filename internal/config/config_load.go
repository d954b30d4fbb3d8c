package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8765,
		},
		Graph: GraphConfig{
			DriveRoot: "Shared Documents",
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 500,
		},
		Personas: PersonasConfig{
			DefinitionsDir: "definitions",
			Watch:          true,
		},
		Subscription: SubscriptionConfig{
			Resource:        "/chats/getAllMessages",
			LifetimeMinutes: 55,
		},
		Paths: PathsConfig{
			CredentialsFile: "credentials.json",
			SessionsDir:     "sessions",
			StateFile:       "relay_state.json",
			LogFile:         "relay.log",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars.
// A missing file is not an error: defaults plus env vars apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	// State paths are resolved relative to the config file's directory so the
	// relay can run from anywhere.
	base := filepath.Dir(path)
	cfg.Paths.CredentialsFile = resolveRel(base, cfg.Paths.CredentialsFile)
	cfg.Paths.SessionsDir = resolveRel(base, cfg.Paths.SessionsDir)
	cfg.Paths.StateFile = resolveRel(base, cfg.Paths.StateFile)
	cfg.Paths.LogFile = resolveRel(base, cfg.Paths.LogFile)
	cfg.Personas.DefinitionsDir = resolveRel(base, cfg.Personas.DefinitionsDir)

	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ANTHROPIC_API_KEY", &c.Anthropic.APIKey)
	envStr("RELAY_TENANT_ID", &c.Graph.TenantID)
	envStr("RELAY_CLIENT_ID", &c.Graph.ClientID)
	envStr("RELAY_CALLBACK_URL", &c.Subscription.CallbackURL)
	envStr("RELAY_SITE_ID", &c.Graph.SiteID)

	if v := os.Getenv("RELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
}

func resolveRel(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ExpandHome expands a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
