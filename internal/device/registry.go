package device

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry is the process-lifetime cache of known remote devices, keyed by
// address. It is read-mostly: discovery and bonded-set queries upsert into it,
// snapshots serve display and lookup. There is no deletion; the platform's
// bonded list remains the source of truth and is re-queried, not served from
// here.
type Registry struct {
	mu     sync.RWMutex
	byAddr *orderedmap.OrderedMap[string, Device]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byAddr: orderedmap.New[string, Device]()}
}

// Upsert records d, replacing any existing entry with the same address.
// First-seen order is preserved across replacements.
func (r *Registry) Upsert(d Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAddr.Set(d.Address, d)
}

// Get returns the entry for addr, if any.
func (r *Registry) Get(addr string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddr.Get(addr)
}

// Snapshot returns all entries in first-seen order.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, r.byAddr.Len())
	for pair := r.byAddr.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of distinct addresses recorded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddr.Len()
}
