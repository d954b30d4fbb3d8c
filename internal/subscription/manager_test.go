package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helpinghand/relay/internal/graph"
)

type graphStub struct {
	creates    atomic.Int64
	renews     atomic.Int64
	deletes    atomic.Int64
	renewFails bool
}

// newTestStack serves both the token endpoint and the subscriptions API
// from one test server and wires a manager against it.
func newTestStack(t *testing.T, stub *graphStub, statePath string) *Manager {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token"):
			json.NewEncoder(w).Encode(map[string]any{"access_token": "app-tok", "expires_in": 3600})
		case r.Method == http.MethodPost && r.URL.Path == "/subscriptions":
			stub.creates.Add(1)
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"id":                 "sub-new",
				"clientState":        body["clientState"],
				"expirationDateTime": time.Now().Add(55 * time.Minute).UTC().Format(time.RFC3339),
			})
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/subscriptions/"):
			stub.renews.Add(1)
			if stub.renewFails {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":{"code":"ResourceNotFound"}}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":                 strings.TrimPrefix(r.URL.Path, "/subscriptions/"),
				"expirationDateTime": time.Now().Add(55 * time.Minute).UTC().Format(time.RFC3339),
			})
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/subscriptions/"):
			stub.deletes.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	credsPath := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(credsPath, []byte(`{"_app":{"client_secret":"s"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	tokens := graph.NewTokenSource("tenant1", "client1", credsPath)
	tokens.SetLoginURL(srv.URL)
	client := graph.NewClient()
	client.SetBaseURL(srv.URL)

	return NewManager(client, tokens, statePath, "/chats/getAllMessages", "https://relay.example/webhook", 55*time.Minute)
}

func TestEnsureCreatesWhenEmpty(t *testing.T) {
	stub := &graphStub{}
	statePath := filepath.Join(t.TempDir(), "relay_state.json")
	m := newTestStack(t, stub, statePath)

	if m.Active() {
		t.Fatal("fresh manager reports an active subscription")
	}
	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stub.creates.Load() != 1 || stub.renews.Load() != 0 {
		t.Fatalf("creates=%d renews=%d", stub.creates.Load(), stub.renews.Load())
	}
	if !m.Active() {
		t.Fatal("subscription not active after create")
	}
	st := m.Status()
	if st.SubscriptionID != "sub-new" || st.ClientState == "" {
		t.Fatalf("state = %+v", st)
	}

	// State survived to disk.
	data, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "sub-new") {
		t.Fatalf("persisted state missing subscription id: %s", data)
	}
}

func TestEnsureRenewsExisting(t *testing.T) {
	stub := &graphStub{}
	statePath := filepath.Join(t.TempDir(), "relay_state.json")
	m := newTestStack(t, stub, statePath)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stub.creates.Load() != 1 || stub.renews.Load() != 1 {
		t.Fatalf("creates=%d renews=%d, want renew on second ensure", stub.creates.Load(), stub.renews.Load())
	}
}

func TestEnsureRecreatesOnRenewalFailure(t *testing.T) {
	stub := &graphStub{}
	statePath := filepath.Join(t.TempDir(), "relay_state.json")
	m := newTestStack(t, stub, statePath)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}

	stub.renewFails = true
	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stub.creates.Load() != 2 {
		t.Fatalf("creates=%d, want recreate after failed renewal", stub.creates.Load())
	}
}

func TestStatePersistsAcrossManagers(t *testing.T) {
	stub := &graphStub{}
	statePath := filepath.Join(t.TempDir(), "relay_state.json")
	m := newTestStack(t, stub, statePath)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	mark := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m.SetLastProcessed(mark)

	m2 := newTestStack(t, stub, statePath)
	if got := m2.Status().SubscriptionID; got != "sub-new" {
		t.Fatalf("reloaded subscription id = %q", got)
	}
	if got := m2.LastProcessed(); !got.Equal(mark) {
		t.Fatalf("reloaded bookmark = %v", got)
	}
}

func TestSetLastProcessedMonotonic(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "relay_state.json")
	m := newTestStack(t, &graphStub{}, statePath)

	newer := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	m.SetLastProcessed(newer)
	m.SetLastProcessed(older)
	if got := m.LastProcessed(); !got.Equal(newer) {
		t.Fatalf("bookmark rewound to %v", got)
	}
}

func TestDelete(t *testing.T) {
	stub := &graphStub{}
	statePath := filepath.Join(t.TempDir(), "relay_state.json")
	m := newTestStack(t, stub, statePath)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stub.deletes.Load() != 1 {
		t.Fatalf("deletes=%d", stub.deletes.Load())
	}
	if m.Active() {
		t.Fatal("subscription still active after delete")
	}
	// Deleting with nothing tracked is a no-op.
	if err := m.Delete(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stub.deletes.Load() != 1 {
		t.Fatal("delete called upstream with no tracked subscription")
	}
}

func TestVerifyClientState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "relay_state.json")
	m := newTestStack(t, &graphStub{}, statePath)

	// Nothing stored yet: everything passes.
	if !m.VerifyClientState("anything") {
		t.Fatal("no stored state should accept any client state")
	}

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	cs := m.Status().ClientState
	if !m.VerifyClientState(cs) {
		t.Fatal("stored client state rejected")
	}
	if m.VerifyClientState("wrong") {
		t.Fatal("mismatched client state accepted")
	}
	if !m.VerifyClientState("") {
		t.Fatal("empty client state should pass")
	}
}
