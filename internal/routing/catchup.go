package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Catch-up responses skip the full conversational delay. Messages found by
// a scan are already late, so delays are compressed and capped.
const (
	catchupDelayScale = 0.3
	catchupMaxDelay   = 30 * time.Second
	catchupMaxChats   = 100
)

// Scanner sweeps recent chats for messages that arrived while the relay
// was down or while no subscription was active, and routes them through
// the same pipeline as live notifications.
type Scanner struct {
	proc   *Processor
	source MessageSource
	tokens TokenProvider
	ledger *Ledger
	marks  Bookmarks
}

// NewScanner wires a scanner around an existing processor.
func NewScanner(proc *Processor, source MessageSource, tokens TokenProvider, ledger *Ledger, marks Bookmarks) *Scanner {
	return &Scanner{proc: proc, source: source, tokens: tokens, ledger: ledger, marks: marks}
}

// Run scans all reachable chats for messages newer than the bookmark and
// routes them oldest first. A missing bookmark means a fresh install; the
// scan is skipped rather than replaying unbounded history.
func (s *Scanner) Run(ctx context.Context) error {
	since := s.marks.LastProcessed()
	if since.IsZero() {
		slog.Info("no catch-up bookmark, skipping scan")
		return nil
	}

	token, err := s.tokens.AppToken(ctx)
	if err != nil {
		return fmt.Errorf("catch-up token: %w", err)
	}

	chats, err := s.source.ListChats(ctx, token, catchupMaxChats)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	slog.Info("catch-up scan started", "since", since.Format(time.RFC3339), "chats", len(chats))

	routed := 0
	for _, chat := range chats {
		msgs, err := s.source.ListMessagesSince(ctx, token, chat.ID, since)
		if err != nil {
			slog.Warn("catch-up chat fetch failed", "chat", chat.ID, "error", err)
			continue
		}
		sort.Slice(msgs, func(i, j int) bool {
			return msgs[i].CreatedDateTime.Before(msgs[j].CreatedDateTime)
		})
		for i := range msgs {
			msg := &msgs[i]
			if msg.ChatID == "" {
				msg.ChatID = chat.ID
			}
			if s.ledger.Observe(msg.ChatID + ":" + msg.ID) {
				continue
			}
			routed += s.proc.Route(ctx, msg, compressDelay)
		}
	}
	slog.Info("catch-up scan finished", "responses", routed)
	return nil
}

func compressDelay(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * catchupDelayScale)
	if d > catchupMaxDelay {
		d = catchupMaxDelay
	}
	return d
}
