package dedupe

import (
	"context"
	"sync"
	"time"
)

// Registry tracks recently seen signatures. Admit is the atomic
// check-and-set used on the generation path: two concurrently generated
// documents with the same fingerprint must never both pass.
type Registry interface {
	// Seen reports whether sig is in the recent window.
	Seen(ctx context.Context, sig string) (bool, error)
	// Remember records sig, evicting the oldest entry at capacity.
	Remember(ctx context.Context, sig string) error
	// Admit records sig and reports true iff it was not already present.
	Admit(ctx context.Context, sig string) (bool, error)
}

// Options bound the registry window.
type Options struct {
	// Capacity is the maximum number of signatures retained. Eviction is
	// pure FIFO — an approximation of "recent", good enough to avoid
	// back-to-back repeats. Default: 200.
	Capacity int
	// TTL expires signatures by age regardless of capacity. Default: 24h.
	TTL time.Duration
}

func (o *Options) defaults() {
	if o.Capacity <= 0 {
		o.Capacity = 200
	}
	if o.TTL <= 0 {
		o.TTL = 24 * time.Hour
	}
}

type entry struct {
	sig    string
	seenAt time.Time
}

// MemoryRegistry is the in-process Registry. A single mutex guards the
// window; operations are O(1)-ish and contention is low.
type MemoryRegistry struct {
	mu      sync.Mutex
	opts    Options
	order   []entry
	present map[string]time.Time
	now     func() time.Time
}

// NewMemoryRegistry creates a bounded in-memory registry.
func NewMemoryRegistry(opts Options) *MemoryRegistry {
	opts.defaults()
	return &MemoryRegistry{
		opts:    opts,
		present: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen implements Registry.
func (r *MemoryRegistry) Seen(_ context.Context, sig string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seenLocked(sig), nil
}

// Remember implements Registry.
func (r *MemoryRegistry) Remember(_ context.Context, sig string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rememberLocked(sig)
	return nil
}

// Admit implements Registry.
func (r *MemoryRegistry) Admit(_ context.Context, sig string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seenLocked(sig) {
		return false, nil
	}
	r.rememberLocked(sig)
	return true, nil
}

// Len returns the current window size.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *MemoryRegistry) seenLocked(sig string) bool {
	seenAt, ok := r.present[sig]
	if !ok {
		return false
	}
	return r.now().Sub(seenAt) <= r.opts.TTL
}

func (r *MemoryRegistry) rememberLocked(sig string) {
	if _, ok := r.present[sig]; ok {
		// Refresh an expired-but-still-tracked signature.
		r.present[sig] = r.now()
		return
	}
	for len(r.order) >= r.opts.Capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.present, oldest.sig)
	}
	now := r.now()
	r.order = append(r.order, entry{sig: sig, seenAt: now})
	r.present[sig] = now
}
