package routing

import "sync"

// defaultLedgerLimit caps the in-memory dedup set. When the set fills up it
// is cleared wholesale rather than evicted entry by entry; after a clear an
// old notification redelivered by Graph would reprocess, which is harmless
// because deliveries that stale are rare.
const defaultLedgerLimit = 500

// Ledger tracks which messages have already been routed so duplicate
// webhook deliveries and catch-up overlap do not produce double replies.
type Ledger struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	limit int
}

// NewLedger creates a ledger holding at most limit keys. A non-positive
// limit uses the default.
func NewLedger(limit int) *Ledger {
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	return &Ledger{seen: make(map[string]struct{}), limit: limit}
}

// Observe records a message key and reports whether it was already present.
// The check and the insert are a single atomic step.
func (l *Ledger) Observe(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[key]; ok {
		return true
	}
	if len(l.seen) >= l.limit {
		l.seen = make(map[string]struct{})
	}
	l.seen[key] = struct{}{}
	return false
}

// Len reports the current number of tracked keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
