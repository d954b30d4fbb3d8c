package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/helpinghand/relay/internal/completion"
	"github.com/helpinghand/relay/internal/graph"
	"github.com/helpinghand/relay/internal/persona"
	"github.com/helpinghand/relay/internal/sessions"
)

// MessageSender posts replies into a chat.
type MessageSender interface {
	SendMessage(ctx context.Context, token, chatID, content string) (string, error)
}

// Completer produces a persona's reply text from its prompt and history.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, system string, history []completion.Message) (string, error)
}

// FollowUp runs a secondary action after a reply is sent, such as writing
// a requested document and posting its link.
type FollowUp interface {
	MaybeFollowUp(ctx context.Context, p *persona.Persona, userToken, chatID, requestText string)
}

// ScheduleRequest is one pending persona response.
type ScheduleRequest struct {
	Persona    *persona.Persona
	ChatID     string
	Text       string
	SenderName string
	Reason     string
	Delay      time.Duration
}

// Scheduler executes responses after their human-like delay. Each response
// runs on its own goroutine; responses for the same persona serialize on
// the session store's per-persona lock so history stays consistent.
type Scheduler struct {
	sender      MessageSender
	tokens      TokenProvider
	store       *sessions.Store
	completions Completer
	follow      FollowUp

	wg sync.WaitGroup
}

// NewScheduler wires a scheduler. follow may be nil when document actions
// are not configured.
func NewScheduler(sender MessageSender, tokens TokenProvider, store *sessions.Store, completions Completer, follow FollowUp) *Scheduler {
	return &Scheduler{
		sender:      sender,
		tokens:      tokens,
		store:       store,
		completions: completions,
		follow:      follow,
	}
}

// Schedule queues a response for execution after its delay. Returns
// immediately; failures inside the response are logged, never surfaced.
func (s *Scheduler) Schedule(req ScheduleRequest) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("response panicked", "persona", req.Persona.Key, "panic", r)
			}
		}()
		s.run(context.Background(), req)
	}()
}

// Wait blocks until all in-flight responses finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, req ScheduleRequest) {
	if req.Delay > 0 {
		select {
		case <-time.After(req.Delay):
		case <-ctx.Done():
			return
		}
	}

	p := req.Persona
	reply, err := s.compose(ctx, req)
	if err != nil {
		slog.Error("compose reply failed", "persona", p.Key, "chat", req.ChatID, "error", err)
		return
	}

	token, err := s.tokens.UserToken(ctx, p.Key, p.Email, graph.DefaultChatScope)
	if err != nil {
		slog.Error("persona token failed", "persona", p.Key, "error", err)
		return
	}
	msgID, err := s.sender.SendMessage(ctx, token, req.ChatID, reply)
	if err != nil {
		slog.Error("send reply failed", "persona", p.Key, "chat", req.ChatID, "error", err)
		return
	}
	slog.Info("reply sent", "persona", p.Key, "chat", req.ChatID, "message", msgID, "reason", req.Reason)

	if s.follow != nil {
		s.follow.MaybeFollowUp(ctx, p, token, req.ChatID, req.Text)
	}
}

// compose builds the reply text. Session history is only persisted after a
// successful completion call; a failed call or a fallback reply leaves the
// stored history untouched.
func (s *Scheduler) compose(ctx context.Context, req ScheduleRequest) (string, error) {
	p := req.Persona
	if !s.completions.Configured() {
		return fallbackLine(p), nil
	}

	lock := s.store.Lock(p.Key)
	lock.Lock()
	defer lock.Unlock()

	history := s.store.History(p.Key)
	history = append(history, completion.Message{
		Role:    "user",
		Content: fmt.Sprintf("[%s]: %s", req.SenderName, req.Text),
	})

	reply, err := s.completions.Complete(ctx, systemPrompt(p), history)
	if err != nil {
		return "", err
	}

	history = append(history, completion.Message{Role: "assistant", Content: reply})
	if err := s.store.Save(p.Key, history); err != nil {
		slog.Warn("session save failed", "persona", p.Key, "error", err)
	}
	return reply, nil
}

// systemPrompt wraps the persona's character prompt with chat etiquette.
// The sender tag convention is explained so replies address people by name
// without echoing the bracket format back.
func systemPrompt(p *persona.Persona) string {
	return p.Prompt + fmt.Sprintf(`

You are chatting in Microsoft Teams as %s. Guidelines:
- Messages from coworkers are tagged [Name]: so you know who said what.
- Never start your own reply with a [Name]: tag.
- Keep replies short and conversational, like a real chat message.
- Stay in character at all times.`, p.Name)
}

func fallbackLine(p *persona.Persona) string {
	if p.Fallback != "" {
		return p.Fallback
	}
	return "*" + p.Name + " nods*"
}
