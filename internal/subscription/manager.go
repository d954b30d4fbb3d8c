// Package subscription keeps one Graph change-notification subscription
// alive: ensure on startup, renew before expiry, recreate when a renewal is
// rejected, and persist the subscription record plus the last-processed
// message bookmark in a single JSON state file.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/helpinghand/relay/internal/graph"
)

// renewalMargin is how long before expiry the renewal loop wakes up.
const renewalMargin = 5 * time.Minute

// State is the persisted subscription record.
type State struct {
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Expires        time.Time `json:"expires,omitempty"`
	CallbackURL    string    `json:"callback_url,omitempty"`
	ClientState    string    `json:"client_state,omitempty"`
	LastProcessed  time.Time `json:"last_processed,omitempty"`
}

// Manager owns the relay's single subscription. At most one subscription id
// is tracked at a time; deletion is manual-only.
type Manager struct {
	client      *graph.Client
	tokens      *graph.TokenSource
	statePath   string
	resource    string
	callbackURL string
	lifetime    time.Duration

	mu    sync.Mutex
	state State

	loopRunning atomic.Bool
}

// NewManager creates a manager and loads any persisted state.
func NewManager(client *graph.Client, tokens *graph.TokenSource, statePath, resource, callbackURL string, lifetime time.Duration) *Manager {
	m := &Manager{
		client:      client,
		tokens:      tokens,
		statePath:   statePath,
		resource:    resource,
		callbackURL: callbackURL,
		lifetime:    lifetime,
	}
	m.load()
	return m
}

// Ensure makes sure an active subscription exists: renew the persisted one
// if any, falling back to a fresh create when the renewal is rejected
// (expired or deleted upstream).
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	id := m.state.SubscriptionID
	m.mu.Unlock()

	if id != "" {
		if err := m.renew(ctx, id); err == nil {
			return nil
		} else {
			slog.Warn("subscription renewal failed, recreating", "id", id, "error", err)
		}
	}
	return m.create(ctx)
}

// RenewalLoop renews the subscription renewalMargin before each expiry,
// recreating it when renewal fails. Starting a second loop is a no-op while
// one is live. Blocks until ctx is done.
func (m *Manager) RenewalLoop(ctx context.Context) error {
	if !m.loopRunning.CompareAndSwap(false, true) {
		return nil
	}
	defer m.loopRunning.Store(false)

	for {
		sleep := m.lifetime - renewalMargin
		if sleep < time.Minute {
			sleep = time.Minute
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		if err := m.Ensure(ctx); err != nil {
			slog.Warn("subscription renewal cycle failed", "error", err)
		}
	}
}

// Delete removes the subscription upstream and clears the persisted id.
// Never called automatically.
func (m *Manager) Delete(ctx context.Context) error {
	m.mu.Lock()
	id := m.state.SubscriptionID
	m.mu.Unlock()
	if id == "" {
		return nil
	}

	token, err := m.tokens.AppToken(ctx)
	if err != nil {
		return err
	}
	if err := m.client.DeleteSubscription(ctx, token, id); err != nil {
		return err
	}

	m.mu.Lock()
	m.state.SubscriptionID = ""
	m.state.Expires = time.Time{}
	m.mu.Unlock()
	return m.save()
}

// Status returns a copy of the persisted state.
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether a tracked subscription has not yet expired.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SubscriptionID != "" && time.Now().Before(m.state.Expires)
}

// LastProcessed returns the catch-up bookmark; zero when never set.
func (m *Manager) LastProcessed() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastProcessed
}

// SetLastProcessed advances the catch-up bookmark. Older timestamps from
// out-of-order deliveries never rewind it.
func (m *Manager) SetLastProcessed(t time.Time) {
	m.mu.Lock()
	if !t.After(m.state.LastProcessed) {
		m.mu.Unlock()
		return
	}
	m.state.LastProcessed = t
	m.mu.Unlock()

	if err := m.save(); err != nil {
		slog.Warn("persist bookmark failed", "error", err)
	}
}

// VerifyClientState checks an inbound notification's clientState against
// the stored one. Notifications without a clientState pass (the transport
// retries deliveries created before our last recreate).
func (m *Manager) VerifyClientState(cs string) bool {
	if cs == "" {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ClientState == "" || m.state.ClientState == cs
}

func (m *Manager) create(ctx context.Context) error {
	token, err := m.tokens.AppToken(ctx)
	if err != nil {
		return fmt.Errorf("subscription create: %w", err)
	}

	clientState := uuid.NewString()
	created, err := m.client.CreateSubscription(ctx, token, graph.Subscription{
		Resource:           m.resource,
		NotificationURL:    m.callbackURL,
		ClientState:        clientState,
		ExpirationDateTime: time.Now().Add(m.lifetime),
	})
	if err != nil {
		return fmt.Errorf("subscription create: %w", err)
	}

	m.mu.Lock()
	m.state.SubscriptionID = created.ID
	m.state.Expires = created.ExpirationDateTime
	m.state.CallbackURL = m.callbackURL
	m.state.ClientState = clientState
	m.mu.Unlock()

	slog.Info("subscription created", "id", created.ID, "expires", created.ExpirationDateTime)
	return m.save()
}

func (m *Manager) renew(ctx context.Context, id string) error {
	token, err := m.tokens.AppToken(ctx)
	if err != nil {
		return err
	}

	// Expiry extends a full lifetime from now, not from the old expiry.
	expires := time.Now().Add(m.lifetime)
	renewed, err := m.client.RenewSubscription(ctx, token, id, expires)
	if err != nil {
		return err
	}
	if !renewed.ExpirationDateTime.IsZero() {
		expires = renewed.ExpirationDateTime
	}

	m.mu.Lock()
	m.state.Expires = expires
	m.mu.Unlock()

	slog.Info("subscription renewed", "id", id, "expires", expires)
	return m.save()
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		return
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("state file unreadable, starting fresh", "path", m.statePath, "error", err)
		return
	}
	m.state = st
}

func (m *Manager) save() error {
	m.mu.Lock()
	data, err := json.MarshalIndent(m.state, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.statePath), "relay-state-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, m.statePath); err != nil {
		return err
	}
	cleanup = false
	return nil
}
