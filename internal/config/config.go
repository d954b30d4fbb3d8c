package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the relay.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Graph        GraphConfig        `json:"graph"`
	Anthropic    AnthropicConfig    `json:"anthropic"`
	Personas     PersonasConfig     `json:"personas"`
	Subscription SubscriptionConfig `json:"subscription"`
	Paths        PathsConfig        `json:"paths"`
	mu           sync.RWMutex
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// GraphConfig holds Azure AD / Microsoft Graph identifiers.
// The app client secret is never read from the config file; it lives in the
// credentials file under the "_app" entry, alongside per-persona passwords.
type GraphConfig struct {
	TenantID  string `json:"tenant_id"`
	ClientID  string `json:"client_id"`
	SiteID    string `json:"site_id,omitempty"`    // drive site for report uploads
	DriveRoot string `json:"drive_root,omitempty"` // upload folder (default "Shared Documents")
}

// AnthropicConfig configures the completion service.
// APIKey comes from env ANTHROPIC_API_KEY only (secret, never persisted).
type AnthropicConfig struct {
	APIKey    string `json:"-"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// PersonasConfig configures persona definition loading.
type PersonasConfig struct {
	DefinitionsDir string `json:"definitions_dir"`
	Watch          bool   `json:"watch,omitempty"` // auto-reload on definition changes
}

// SubscriptionConfig configures the Graph change-notification subscription.
type SubscriptionConfig struct {
	CallbackURL     string `json:"callback_url"`               // externally reachable webhook URL
	Resource        string `json:"resource,omitempty"`         // default "/chats/getAllMessages"
	LifetimeMinutes int    `json:"lifetime_minutes,omitempty"` // default 55
}

// PathsConfig locates the relay's persisted state.
type PathsConfig struct {
	CredentialsFile string `json:"credentials_file"`
	SessionsDir     string `json:"sessions_dir"`
	StateFile       string `json:"state_file"`
	LogFile         string `json:"log_file"`
}

// Lifetime returns the subscription lifetime as a duration.
func (s SubscriptionConfig) Lifetime() time.Duration {
	m := s.LifetimeMinutes
	if m <= 0 {
		m = 55
	}
	return time.Duration(m) * time.Minute
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = src.Server
	c.Graph = src.Graph
	c.Anthropic = src.Anthropic
	c.Personas = src.Personas
	c.Subscription = src.Subscription
	c.Paths = src.Paths
}
