package executor

import (
	"sync"
	"time"
)

// Deduplicator remembers which event identities have been admitted. The set
// is bounded: once it grows past its capacity the oldest evictBatch entries
// are dropped in one pass, after which those identities are admissible again.
// It never expires entries by age. It is safe for concurrent use.
type Deduplicator struct {
	mu         sync.Mutex
	seen       map[string]time.Time // identity -> admitted at
	order      []string             // admission order, oldest first
	capacity   int
	evictBatch int
	now        func() time.Time
}

// NewDeduplicator creates a Deduplicator holding at most capacity identities.
func NewDeduplicator(capacity, evictBatch int) *Deduplicator {
	if capacity < 1 {
		capacity = 1
	}
	if evictBatch < 1 || evictBatch > capacity {
		evictBatch = 1
	}
	return &Deduplicator{
		seen:       make(map[string]time.Time, capacity+1),
		order:      make([]string, 0, capacity+1),
		capacity:   capacity,
		evictBatch: evictBatch,
		now:        time.Now,
	}
}

// Admit returns true and records identity if it has not been seen, and false
// otherwise.
func (d *Deduplicator) Admit(identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[identity]; ok {
		return false
	}

	d.seen[identity] = d.now()
	d.order = append(d.order, identity)

	if len(d.order) > d.capacity {
		evicted := d.order[:d.evictBatch]
		for _, id := range evicted {
			delete(d.seen, id)
		}
		// Copy down so the backing array does not grow without bound.
		d.order = append(d.order[:0], d.order[d.evictBatch:]...)
	}
	return true
}

// SeenAt returns when identity was admitted.
func (d *Deduplicator) SeenAt(identity string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.seen[identity]
	return t, ok
}

// Len returns the number of remembered identities.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
