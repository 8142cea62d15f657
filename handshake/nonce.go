package handshake

import (
	"sync"
	"time"
)

// nonceTTL bounds how long a sent nonce is remembered for reflexive-
// connection detection (spec §4.8 step 3).
const nonceTTL = 10 * time.Minute

// NonceTracker remembers nonces this node has recently sent, so an
// incoming Version carrying one of them can be recognized as a
// connection to ourselves and rejected.
type NonceTracker struct {
	mu   sync.Mutex
	sent map[uint64]time.Time
}

// NewNonceTracker constructs an empty tracker.
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{sent: make(map[uint64]time.Time)}
}

// Remember records nonce as one this node just sent.
func (t *NonceTracker) Remember(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gcLocked()
	t.sent[nonce] = time.Now()
}

// Seen reports whether nonce matches one this node recently sent
// (spec §4.8 step 3: "if the received nonce equals any nonce this node
// has recently sent, it is us").
func (t *NonceTracker) Seen(nonce uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sent[nonce]
	return ok
}

func (t *NonceTracker) gcLocked() {
	cutoff := time.Now().Add(-nonceTTL)
	for n, ts := range t.sent {
		if ts.Before(cutoff) {
			delete(t.sent, n)
		}
	}
}
