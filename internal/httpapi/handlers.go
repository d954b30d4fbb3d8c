package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/helpinghand/relay/internal/graph"
)

// handleWebhookValidation answers Graph's endpoint validation probe. The
// token must be echoed back as plain text within 10 seconds or the
// subscription request fails.
func (s *Server) handleWebhookValidation(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("validationToken")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token))
}

// handleWebhook accepts a notification batch, acknowledges immediately,
// and routes in the background. Graph retries slow endpoints, so nothing
// here may block on message fetches or completions.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	if !s.limiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	var batch graph.NotificationBatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification body")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	go s.deps.Sink.Process(context.Background(), batch)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	withCreds := 0
	if s.deps.Credentials != nil {
		creds := s.deps.Credentials()
		for _, p := range s.deps.Registry.All() {
			if creds.HasPersona(p.Key) {
				withCreds++
			}
		}
	}
	configured := false
	if s.deps.LLMConfigured != nil {
		configured = s.deps.LLMConfigured()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":                   "relay",
		"version":                   s.deps.Version,
		"personas":                  s.deps.Registry.Len(),
		"personas_with_credentials": withCreds,
		"subscription_active":       s.deps.Subs.Active(),
		"anthropic_configured":      configured,
		"uptime":                    time.Since(s.started).Round(time.Second).String(),
	})
}

type agentSummary struct {
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Role     string   `json:"role,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Sessions int      `json:"session_messages"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	personas := s.deps.Registry.All()
	out := make([]agentSummary, 0, len(personas))
	for _, p := range personas {
		out = append(out, agentSummary{
			Key:      p.Key,
			Name:     p.Name,
			Role:     p.Role,
			Keywords: p.Triggers.Keywords,
			Sessions: s.deps.Store.Count(p.Key),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	p := s.deps.Registry.Get(key)
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown agent: "+key)
		return
	}
	history := s.deps.Store.History(p.Key)
	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":              p.Key,
		"name":             p.Name,
		"email":            p.Email,
		"role":             p.Role,
		"keywords":         p.Triggers.Keywords,
		"mention":          p.Triggers.Mention,
		"capabilities":     p.Capabilities,
		"session_messages": s.deps.Store.Count(p.Key),
		"recent":           history,
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if s.deps.Registry.Get(key) == nil {
		writeError(w, http.StatusNotFound, "unknown agent: "+key)
		return
	}
	if err := s.deps.Store.Delete(key); err != nil {
		writeError(w, http.StatusInternalServerError, "delete session: "+err.Error())
		return
	}
	slog.Info("session cleared", "persona", key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "agent": key})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "reload: "+err.Error())
		return
	}
	slog.Info("personas reloaded", "count", s.deps.Registry.Len())
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "personas": s.deps.Registry.Len()})
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Subs.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":         s.deps.Subs.Active(),
		"subscription":   st.SubscriptionID,
		"expires":        st.Expires,
		"callback_url":   st.CallbackURL,
		"last_processed": st.LastProcessed,
	})
}

func (s *Server) handleSubscriptionRenew(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Subs.Ensure(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "renew: "+err.Error())
		return
	}
	st := s.deps.Subs.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "renewed",
		"subscription": st.SubscriptionID,
		"expires":      st.Expires,
	})
}

// handleCatchup kicks off a scan in the background. Scans can take a
// while against a large chat list, so the request only acknowledges.
func (s *Server) handleCatchup(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.deps.Catchup.Run(context.Background()); err != nil {
			slog.Error("catch-up scan failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scanning"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadLog == nil {
		writeError(w, http.StatusNotFound, "no log file configured")
		return
	}
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.deps.ReadLog(n)})
}
