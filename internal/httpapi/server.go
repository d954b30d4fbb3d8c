// Package httpapi exposes the relay's HTTP surface: the Graph webhook
// endpoint plus a small management API for personas, sessions, the
// subscription, and logs.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/helpinghand/relay/internal/graph"
	"github.com/helpinghand/relay/internal/persona"
	"github.com/helpinghand/relay/internal/sessions"
	"github.com/helpinghand/relay/internal/subscription"
)

// NotificationSink consumes webhook notification batches.
type NotificationSink interface {
	Process(ctx context.Context, batch graph.NotificationBatch)
}

// SubscriptionManager exposes the subscription operations the API serves.
type SubscriptionManager interface {
	Ensure(ctx context.Context) error
	Status() subscription.State
	Active() bool
}

// CatchupRunner triggers a catch-up scan.
type CatchupRunner interface {
	Run(ctx context.Context) error
}

// LogReadFunc returns the last n lines of the service log.
type LogReadFunc func(n int) []string

// Deps are the collaborators behind the HTTP surface. ReadLog,
// Credentials, and LLMConfigured are optional.
type Deps struct {
	Registry      *persona.Registry
	Sink          NotificationSink
	Subs          SubscriptionManager
	Catchup       CatchupRunner
	Store         *sessions.Store
	ReadLog       LogReadFunc
	Credentials   func() graph.Credentials
	LLMConfigured func() bool
	Version       string
}

// Server is the relay's HTTP server.
type Server struct {
	deps    Deps
	limiter *WebhookRateLimiter
	started time.Time

	httpServer *http.Server
}

// NewServer wires the HTTP server.
func NewServer(deps Deps) *Server {
	return &Server{
		deps:    deps,
		limiter: NewWebhookRateLimiter(),
		started: time.Now(),
	}
}

// Handler builds the route table. Exposed separately so tests can drive
// the mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook", s.handleWebhookValidation)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /agents", s.handleAgents)
	mux.HandleFunc("GET /agents/{key}", s.handleAgent)
	mux.HandleFunc("DELETE /sessions/{key}", s.handleSessionDelete)
	mux.HandleFunc("POST /reload", s.handleReload)
	mux.HandleFunc("GET /subscription", s.handleSubscriptionStatus)
	mux.HandleFunc("POST /subscription/renew", s.handleSubscriptionRenew)
	mux.HandleFunc("POST /catchup", s.handleCatchup)
	mux.HandleFunc("GET /logs", s.handleLogs)
	return mux
}

// Start serves HTTP until the context is cancelled, then drains with a
// short grace period.
func (s *Server) Start(ctx context.Context, port int) error {
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort("", fmt.Sprint(port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "port", port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
