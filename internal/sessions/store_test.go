package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/helpinghand/relay/internal/completion"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	msgs := []completion.Message{
		{Role: "user", Content: "[Walt]: hello"},
		{Role: "assistant", Content: "hey"},
	}
	if err := s.Save("bud", msgs); err != nil {
		t.Fatal(err)
	}

	got := s.History("bud")
	if len(got) != 2 {
		t.Fatalf("History returned %d messages, want 2", len(got))
	}
	if got[0].Content != "[Walt]: hello" || got[1].Role != "assistant" {
		t.Fatalf("history = %+v", got)
	}
	if s.Count("bud") != 2 {
		t.Fatalf("Count = %d", s.Count("bud"))
	}
}

func TestStoreMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	if got := s.History("nobody"); got != nil {
		t.Fatalf("missing session returned %v", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := s.History("bad"); got != nil {
		t.Fatalf("corrupt session returned %v", got)
	}
}

func TestStoreTrimsHistory(t *testing.T) {
	s := NewStore(t.TempDir())

	// Simulate 60 exchange cycles: load, append a pair, save.
	for i := 0; i < 60; i++ {
		history := s.History("bud")
		history = append(history,
			completion.Message{Role: "user", Content: fmt.Sprintf("[Walt]: msg %d", i)},
			completion.Message{Role: "assistant", Content: fmt.Sprintf("reply %d", i)},
		)
		if err := s.Save("bud", history); err != nil {
			t.Fatal(err)
		}
	}

	got := s.History("bud")
	if len(got) != MaxEntries {
		t.Fatalf("history length = %d, want %d", len(got), MaxEntries)
	}
	// The newest entries survive.
	if got[len(got)-1].Content != "reply 59" {
		t.Fatalf("newest entry = %q", got[len(got)-1].Content)
	}
	if got[0].Content == "[Walt]: msg 0" {
		t.Fatal("oldest entries were not trimmed")
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Save("bud", []completion.Message{{Role: "user", Content: "hi"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("bud"); err != nil {
		t.Fatal(err)
	}
	if s.Count("bud") != 0 {
		t.Fatal("history survived deletion")
	}
	// Deleting a missing session is not an error.
	if err := s.Delete("bud"); err != nil {
		t.Fatal(err)
	}
}

func TestStoreList(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, key := range []string{"bud", "miller"} {
		if err := s.Save(key, []completion.Message{{Role: "user", Content: "hi"}}); err != nil {
			t.Fatal(err)
		}
	}
	keys := s.List()
	if len(keys) != 2 {
		t.Fatalf("List = %v", keys)
	}
}

func TestStorePathSanitized(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	if err := s.Save("../evil", []completion.Message{{Role: "user", Content: "hi"}}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "..") {
			t.Fatalf("unsanitized session file %q", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "..", "evil.json")); err == nil {
		t.Fatal("session escaped the store directory")
	}
}

func TestStoreLockIsPerPersona(t *testing.T) {
	s := NewStore(t.TempDir())
	if s.Lock("bud") != s.Lock("BUD") {
		t.Fatal("lock not shared across case variants")
	}
	if s.Lock("bud") == s.Lock("miller") {
		t.Fatal("different personas share a lock")
	}
}
