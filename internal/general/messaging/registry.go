package messaging

import (
	"errors"
	"sync"

	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/metrics"
)

// ErrDuplicateKey is returned when a correlation key is already awaiting a reply.
var ErrDuplicateKey = errors.New("messaging: correlation key already pending")

// Registry tracks commands awaiting an acknowledgement, keyed by correlation key.
// Each entry is resolved at most once: by a reply, or removed by its waiter.
type Registry struct {
	mu      sync.Mutex
	pending map[string]chan contracts.CarAcknowledgement
}

func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]chan contracts.CarAcknowledgement)}
}

// Register opens a wait for key. The returned release func must be called by the
// waiter once it stops waiting; it is a no-op after the wait was resolved.
func (r *Registry) Register(key string) (<-chan contracts.CarAcknowledgement, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[key]; exists {
		return nil, nil, ErrDuplicateKey
	}

	ch := make(chan contracts.CarAcknowledgement, 1)
	r.pending[key] = ch
	metrics.PendingReplies.Inc()

	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.pending[key]; ok && cur == ch {
			delete(r.pending, key)
			metrics.PendingReplies.Dec()
		}
	}
	return ch, release, nil
}

// Resolve delivers ack to the waiter registered under key and removes the entry.
// It reports false when nobody is waiting (late, duplicate or unknown reply).
func (r *Registry) Resolve(key string, ack contracts.CarAcknowledgement) bool {
	r.mu.Lock()
	ch, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
		metrics.PendingReplies.Dec()
	}
	r.mu.Unlock()

	if !ok {
		metrics.UnmatchedAcks.Inc()
		return false
	}
	ch <- ack // buffered, never blocks
	return true
}

// Pending returns the number of open waits.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
