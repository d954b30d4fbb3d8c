package persona

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
)

// Registry holds the loaded persona set. Reads are lock-free; a reload
// builds a fresh snapshot and swaps it in atomically, so a routing cycle
// always sees one consistent persona set.
type Registry struct {
	dir     string
	current atomic.Pointer[snapshot]
}

type snapshot struct {
	byKey    map[string]*Persona
	bySender map[string]*Persona // sender key and lower-cased display name
	keys     []string            // sorted
}

// NewRegistry creates a registry over the given definitions directory and
// performs the initial load. Individual bad definition files are skipped
// with a log line; an unreadable directory yields an empty registry.
func NewRegistry(dir string) *Registry {
	r := &Registry{dir: dir}
	r.current.Store(&snapshot{byKey: map[string]*Persona{}, bySender: map[string]*Persona{}})
	if err := r.Reload(); err != nil {
		slog.Warn("persona definitions unavailable", "dir", dir, "error", err)
	}
	return r
}

// Reload re-reads every *.md definition and swaps the registry snapshot.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}

	snap := &snapshot{
		byKey:    make(map[string]*Persona),
		bySender: make(map[string]*Persona),
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".md")
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			slog.Warn("read persona definition", "file", e.Name(), "error", err)
			continue
		}
		p, err := Parse(key, string(data))
		if err != nil {
			slog.Warn("skipping persona definition", "file", e.Name(), "error", err)
			continue
		}
		snap.byKey[p.Key] = p
		snap.keys = append(snap.keys, p.Key)
		if sk := p.SenderKey(); sk != "" {
			snap.bySender[sk] = p
		}
		snap.bySender[strings.ToLower(p.Name)] = p
		slog.Info("loaded persona definition", "persona", p.Key, "name", p.Name)
	}
	sort.Strings(snap.keys)

	r.current.Store(snap)
	slog.Info("persona registry loaded", "count", len(snap.keys))
	return nil
}

// Get returns a persona by key, or nil.
func (r *Registry) Get(key string) *Persona {
	return r.current.Load().byKey[strings.ToLower(key)]
}

// All returns every persona, ordered by key.
func (r *Registry) All() []*Persona {
	snap := r.current.Load()
	out := make([]*Persona, 0, len(snap.keys))
	for _, k := range snap.keys {
		out = append(out, snap.byKey[k])
	}
	return out
}

// Keys returns the sorted persona keys.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.current.Load().keys...)
}

// MatchSender returns the persona behind a message sender, matching the
// address local part or the display name, or nil if the sender is not one
// of ours.
func (r *Registry) MatchSender(senderKey, displayName string) *Persona {
	snap := r.current.Load()
	if senderKey != "" {
		if p, ok := snap.bySender[strings.ToLower(senderKey)]; ok {
			return p
		}
	}
	if displayName != "" {
		if p, ok := snap.bySender[strings.ToLower(displayName)]; ok {
			return p
		}
	}
	return nil
}

// Len returns the number of loaded personas.
func (r *Registry) Len() int {
	return len(r.current.Load().keys)
}
