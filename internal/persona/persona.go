// Package persona loads and holds the relay's persona definitions.
//
// Each persona is one markdown file in the definitions directory: YAML
// frontmatter carrying identity, trigger, channel, and behavior settings,
// followed by the persona prompt body used as LLM system instructions.
package persona

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is a single configured chatbot identity. Immutable once loaded;
// a reload replaces the whole registry snapshot.
type Persona struct {
	Key          string
	Name         string
	Email        string
	Role         string
	Triggers     TriggerConfig
	Channels     ChannelPrefs
	Behavior     Behavior
	Capabilities []string
	Fallback     string // canned line used when no completion service is configured
	Prompt       string // markdown body after the frontmatter
}

// TriggerConfig decides when a persona responds.
type TriggerConfig struct {
	Mention        string   `yaml:"mention"` // "always" to respond to @mentions
	Keywords       []string `yaml:"keywords"`
	DirectQuestion float64  `yaml:"direct_question"` // probability on keyword match
	General        float64  `yaml:"general"`         // baseline response probability
}

// ChannelPrefs boosts or suppresses responses by channel name substring.
type ChannelPrefs struct {
	Preferred []string `yaml:"preferred"`
	Ignore    []string `yaml:"ignore"`
}

// Behavior controls response pacing.
type Behavior struct {
	DelayMinSeconds float64 `yaml:"delay_min_seconds"`
	DelayMaxSeconds float64 `yaml:"delay_max_seconds"`
}

type frontmatter struct {
	Agent struct {
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
		Role  string `yaml:"role"`
	} `yaml:"agent"`
	Triggers     TriggerConfig `yaml:"triggers"`
	Channels     ChannelPrefs  `yaml:"channels"`
	Behavior     Behavior      `yaml:"behavior"`
	Capabilities []string      `yaml:"capabilities"`
	Fallback     string        `yaml:"fallback"`
}

// Parse builds a validated Persona from a definition file's contents.
// Malformed definitions are rejected here, at load time, rather than
// surfacing as surprises during evaluation.
func Parse(key, content string) (*Persona, error) {
	if !strings.HasPrefix(content, "---") {
		return nil, fmt.Errorf("persona %s: missing frontmatter", key)
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("persona %s: unterminated frontmatter", key)
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return nil, fmt.Errorf("persona %s: parse frontmatter: %w", key, err)
	}

	p := &Persona{
		Key:          strings.ToLower(key),
		Name:         fm.Agent.Name,
		Email:        fm.Agent.Email,
		Role:         fm.Agent.Role,
		Triggers:     fm.Triggers,
		Channels:     fm.Channels,
		Behavior:     fm.Behavior,
		Capabilities: fm.Capabilities,
		Fallback:     fm.Fallback,
		Prompt:       strings.TrimSpace(parts[2]),
	}
	if p.Name == "" && p.Key != "" {
		p.Name = strings.ToUpper(p.Key[:1]) + p.Key[1:]
	}

	applyDefaults(p)
	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func applyDefaults(p *Persona) {
	if p.Triggers.DirectQuestion == 0 {
		p.Triggers.DirectQuestion = 0.5
	}
	if p.Triggers.General == 0 {
		p.Triggers.General = 0.1
	}
	if p.Behavior.DelayMinSeconds == 0 {
		p.Behavior.DelayMinSeconds = 15
	}
	if p.Behavior.DelayMaxSeconds == 0 {
		p.Behavior.DelayMaxSeconds = 90
	}
}

func validate(p *Persona) error {
	if p.Triggers.DirectQuestion < 0 || p.Triggers.DirectQuestion > 1 {
		return fmt.Errorf("persona %s: direct_question %v out of [0,1]", p.Key, p.Triggers.DirectQuestion)
	}
	if p.Triggers.General < 0 || p.Triggers.General > 1 {
		return fmt.Errorf("persona %s: general %v out of [0,1]", p.Key, p.Triggers.General)
	}
	if p.Behavior.DelayMinSeconds < 0 || p.Behavior.DelayMaxSeconds < p.Behavior.DelayMinSeconds {
		return fmt.Errorf("persona %s: invalid delay range [%v,%v]", p.Key, p.Behavior.DelayMinSeconds, p.Behavior.DelayMaxSeconds)
	}
	if m := p.Triggers.Mention; m != "" && m != "always" && m != "never" {
		return fmt.Errorf("persona %s: unknown mention policy %q", p.Key, m)
	}
	return nil
}

// SenderKey is the local part of the persona's address, lower-cased.
// Incoming messages whose sender resolves to any persona's key are dropped
// to prevent response loops.
func (p *Persona) SenderKey() string {
	addr := strings.ToLower(p.Email)
	if i := strings.Index(addr, "@"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// Can reports whether the persona has the named capability.
func (p *Persona) Can(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
