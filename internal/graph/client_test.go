package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/chats/chat1/messages/m1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":   "m1",
			"body": map[string]string{"content": "<p>hi</p>"},
		})
	}))
	defer srv.Close()

	c := NewClient()
	c.SetBaseURL(srv.URL)
	msg, err := c.FetchMessage(context.Background(), "tok", "chat1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "m1" {
		t.Errorf("ID = %q", msg.ID)
	}
	if msg.ChatID != "chat1" {
		t.Errorf("ChatID = %q, want filled from the request", msg.ChatID)
	}
	if msg.PlainText() != "hi" {
		t.Errorf("PlainText = %q", msg.PlainText())
	}
}

func TestFetchMessageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NotFound"}}`))
	}))
	defer srv.Close()

	c := NewClient()
	c.SetBaseURL(srv.URL)
	_, err := c.FetchMessage(context.Background(), "tok", "chat1", "m1")
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("error type %T, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("status = %d", httpErr.Status)
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body struct {
			Body struct {
				Content string `json:"content"`
			} `json:"body"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Body.Content != "on my way" {
			t.Errorf("content = %q", body.Body.Content)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "sent1"})
	}))
	defer srv.Close()

	c := NewClient()
	c.SetBaseURL(srv.URL)
	id, err := c.SendMessage(context.Background(), "tok", "chat1", "on my way")
	if err != nil {
		t.Fatal(err)
	}
	if id != "sent1" {
		t.Errorf("id = %q", id)
	}
}

func TestListChatsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := []map[string]string{}
		next := ""
		if r.URL.Query().Get("page") == "2" {
			for i := 50; i < 60; i++ {
				page = append(page, map[string]string{"id": fmt.Sprintf("chat%d", i)})
			}
		} else {
			for i := 0; i < 50; i++ {
				page = append(page, map[string]string{"id": fmt.Sprintf("chat%d", i)})
			}
			next = srv.URL + "/chats?page=2"
		}
		resp := map[string]any{"value": page}
		if next != "" {
			resp["@odata.nextLink"] = next
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient()
	c.SetBaseURL(srv.URL)
	chats, err := c.ListChats(context.Background(), "tok", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 60 {
		t.Fatalf("got %d chats, want 60", len(chats))
	}

	// The cap truncates mid-page.
	chats, err = c.ListChats(context.Background(), "tok", 55)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 55 {
		t.Fatalf("got %d chats, want the 55 cap", len(chats))
	}
}

func TestListMessagesSinceFilter(t *testing.T) {
	since := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("$filter")
		if !strings.Contains(filter, "createdDateTime gt 2026-08-30T09:00:00Z") {
			t.Errorf("$filter = %q", filter)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{"id": "m1"}},
		})
	}))
	defer srv.Close()

	c := NewClient()
	c.SetBaseURL(srv.URL)
	msgs, err := c.ListMessagesSince(context.Background(), "tok", "chat1", since)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ChatID != "chat1" {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/subscriptions":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["changeType"] != "created" {
				t.Errorf("changeType = %v", body["changeType"])
			}
			if body["resource"] != "/chats/getAllMessages" {
				t.Errorf("resource = %v", body["resource"])
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "sub1"})
		case r.Method == http.MethodPatch && r.URL.Path == "/subscriptions/sub1":
			json.NewEncoder(w).Encode(map[string]string{"id": "sub1"})
		case r.Method == http.MethodDelete && r.URL.Path == "/subscriptions/sub1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewClient()
	c.SetBaseURL(srv.URL)
	ctx := context.Background()

	created, err := c.CreateSubscription(ctx, "tok", Subscription{
		Resource:           "/chats/getAllMessages",
		NotificationURL:    "https://relay.example/webhook",
		ExpirationDateTime: time.Now().Add(55 * time.Minute),
		ClientState:        "cs1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "sub1" {
		t.Errorf("created id = %q", created.ID)
	}

	if _, err := c.RenewSubscription(ctx, "tok", "sub1", time.Now().Add(55*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteSubscription(ctx, "tok", "sub1"); err != nil {
		t.Fatal(err)
	}
}

func TestUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/sites/site1/drive/root:/Shared Documents/report.md:/content") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     "item1",
			"webUrl": "https://corp.example/drive/report.md",
		})
	}))
	defer srv.Close()

	c := NewClient()
	c.SetBaseURL(srv.URL)
	item, err := c.UploadFile(context.Background(), "tok", "site1", "Shared Documents", "report.md", "text/markdown", []byte("# Report"))
	if err != nil {
		t.Fatal(err)
	}
	if item.WebURL != "https://corp.example/drive/report.md" {
		t.Errorf("webUrl = %q", item.WebURL)
	}
}
