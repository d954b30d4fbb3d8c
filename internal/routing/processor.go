package routing

import (
	"context"
	"log/slog"
	"time"

	"github.com/helpinghand/relay/internal/graph"
	"github.com/helpinghand/relay/internal/persona"
)

// MessageSource reads chat content from Graph.
type MessageSource interface {
	FetchMessage(ctx context.Context, token, chatID, messageID string) (*graph.ChatMessage, error)
	ListChats(ctx context.Context, token string, max int) ([]graph.Chat, error)
	ListMessagesSince(ctx context.Context, token, chatID string, since time.Time) ([]graph.ChatMessage, error)
}

// TokenProvider issues Graph access tokens.
type TokenProvider interface {
	AppToken(ctx context.Context) (string, error)
	UserToken(ctx context.Context, personaKey, email, scopes string) (string, error)
	Credentials() graph.Credentials
}

// Bookmarks records routing progress so catch-up knows where to resume.
type Bookmarks interface {
	LastProcessed() time.Time
	SetLastProcessed(t time.Time)
	VerifyClientState(state string) bool
}

// Dispatcher hands a response off for delayed execution.
type Dispatcher interface {
	Schedule(req ScheduleRequest)
}

// Processor routes incoming change notifications: dedup, fetch, filter,
// then evaluate every credentialed persona and dispatch the responders.
type Processor struct {
	registry *persona.Registry
	ledger   *Ledger
	eval     *Evaluator
	source   MessageSource
	tokens   TokenProvider
	sched    Dispatcher
	marks    Bookmarks
}

// NewProcessor wires a processor from its collaborators.
func NewProcessor(reg *persona.Registry, ledger *Ledger, eval *Evaluator, source MessageSource, tokens TokenProvider, sched Dispatcher, marks Bookmarks) *Processor {
	return &Processor{
		registry: reg,
		ledger:   ledger,
		eval:     eval,
		source:   source,
		tokens:   tokens,
		sched:    sched,
		marks:    marks,
	}
}

// Process handles one webhook notification batch. Individual bad entries
// are logged and skipped; the batch never fails as a whole.
func (p *Processor) Process(ctx context.Context, batch graph.NotificationBatch) {
	if len(batch.Value) == 0 {
		return
	}

	token, err := p.tokens.AppToken(ctx)
	if err != nil {
		slog.Error("app token unavailable, dropping batch", "error", err, "count", len(batch.Value))
		return
	}

	for _, note := range batch.Value {
		if !p.marks.VerifyClientState(note.ClientState) {
			slog.Warn("notification client state mismatch", "resource", note.Resource)
			continue
		}
		chatID, messageID, ok := ParseResource(note.Resource)
		if !ok {
			slog.Debug("skipping non-message resource", "resource", note.Resource)
			continue
		}
		if p.ledger.Observe(chatID + ":" + messageID) {
			slog.Debug("duplicate notification", "chat", chatID, "message", messageID)
			continue
		}

		msg, err := p.source.FetchMessage(ctx, token, chatID, messageID)
		if err != nil {
			slog.Error("fetch message failed", "chat", chatID, "message", messageID, "error", err)
			continue
		}
		p.Route(ctx, msg, nil)
	}
}

// Route filters one fetched message and dispatches responses for every
// persona whose triggers fire. scale, if non-nil, adjusts each response
// delay (catch-up uses it to compress delays). Returns the number of
// responses dispatched.
func (p *Processor) Route(ctx context.Context, msg *graph.ChatMessage, scale func(time.Duration) time.Duration) int {
	if msg.From == nil {
		slog.Debug("message has no sender, skipping", "message", msg.ID)
		return 0
	}
	senderName := msg.SenderName()
	if self := p.registry.MatchSender(msg.SenderKey(), senderName); self != nil {
		slog.Debug("ignoring persona's own message", "persona", self.Key, "message", msg.ID)
		return 0
	}
	text := msg.PlainText()
	if text == "" {
		slog.Debug("empty message body, skipping", "message", msg.ID)
		return 0
	}

	// Advance the bookmark before any response work so a crash mid-dispatch
	// cannot make catch-up replay this message.
	p.marks.SetLastProcessed(msg.CreatedDateTime)

	channel := msg.ChannelName()
	creds := p.tokens.Credentials()
	dispatched := 0
	for _, pers := range p.registry.All() {
		if !creds.HasPersona(pers.Key) {
			continue
		}
		d := p.eval.Evaluate(pers, text, senderName, channel)
		if !d.Respond {
			slog.Debug("persona passing", "persona", pers.Key, "reason", d.Reason)
			continue
		}
		delay := d.Delay
		if scale != nil {
			delay = scale(delay)
		}
		slog.Info("persona responding",
			"persona", pers.Key,
			"reason", d.Reason,
			"delay", delay.Round(time.Second),
			"chat", msg.ChatID,
			"sender", senderName)
		p.sched.Schedule(ScheduleRequest{
			Persona:    pers,
			ChatID:     msg.ChatID,
			Text:       text,
			SenderName: senderName,
			Reason:     d.Reason,
			Delay:      delay,
		})
		dispatched++
	}
	return dispatched
}
