// Package routing is the relay's core: it decides which personas respond
// to each incoming chat message, with what delay, and runs the scheduled
// responses without double-processing or persona-to-persona reply loops.
package routing

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/helpinghand/relay/internal/persona"
)

// Decision is the outcome of evaluating one persona against one message.
// Computed fresh per message, never persisted.
type Decision struct {
	Respond bool
	Reason  string
	Delay   time.Duration
}

// Evaluator applies a persona's trigger rules to a message. The random
// source is injected so tests can seed it.
type Evaluator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEvaluator creates an evaluator over the given random source.
func NewEvaluator(rng *rand.Rand) *Evaluator {
	return &Evaluator{rng: rng}
}

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ExtractMentions returns the @name tokens in a message, lower-cased.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	mentions := make([]string, 0, len(matches))
	for _, m := range matches {
		mentions = append(mentions, strings.ToLower(m[1]))
	}
	return mentions
}

// Evaluate decides whether a persona responds to a message. Rules apply in
// strict priority order; the first matching rule wins:
//
//  1. @mention with mention policy "always": respond at half the base delay.
//  2. Ignored channel: never respond.
//  3. Keyword match: respond with the direct-question probability.
//  4. General interest: baseline probability, boosted 1.5x in preferred
//     channels, at 1.5x the base delay (unprompted replies come slower).
func (e *Evaluator) Evaluate(p *persona.Persona, messageText, senderName, channelName string) Decision {
	e.mu.Lock()
	base := p.Behavior.DelayMinSeconds + e.rng.Float64()*(p.Behavior.DelayMaxSeconds-p.Behavior.DelayMinSeconds)
	keywordRoll := e.rng.Float64()
	generalRoll := e.rng.Float64()
	e.mu.Unlock()

	mentions := ExtractMentions(messageText)
	name := strings.ToLower(p.Name)
	for _, m := range mentions {
		if (m == p.Key || m == name) && p.Triggers.Mention == "always" {
			return Decision{Respond: true, Reason: "mentioned", Delay: seconds(base * 0.5)}
		}
	}

	channelLower := strings.ToLower(channelName)
	for _, ch := range p.Channels.Ignore {
		if ch != "" && strings.Contains(channelLower, strings.ToLower(ch)) {
			return Decision{Respond: false, Reason: "ignores channel " + channelName}
		}
	}

	if len(p.Triggers.Keywords) > 0 && containsKeyword(messageText, p.Triggers.Keywords) {
		if keywordRoll < p.Triggers.DirectQuestion {
			return Decision{Respond: true, Reason: "keyword match", Delay: seconds(base)}
		}
	}

	prob := p.Triggers.General
	for _, ch := range p.Channels.Preferred {
		if ch != "" && strings.Contains(channelLower, strings.ToLower(ch)) {
			prob *= 1.5
			break
		}
	}
	if generalRoll < prob {
		return Decision{Respond: true, Reason: "general interest", Delay: seconds(base * 1.5)}
	}

	return Decision{Respond: false, Reason: "no trigger matched"}
}

func containsKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
