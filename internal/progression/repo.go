package progression

import (
	"context"
	"sync"
	"time"

	"github.com/thoretheking/Junosixteen-sub000/internal/decision"
	"github.com/thoretheking/Junosixteen-sub000/internal/facts"
	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
)

// Entry is the cached working-set record for one session: the last seen
// event log and the status it produced. Entries are advisory; the durable
// truth is always the caller-supplied event log, so eviction never affects
// correctness of a freshly-built request.
type Entry struct {
	Request    facts.Request
	LastStatus decision.Status
	UpdatedAt  time.Time
}

// Repository is the explicit session-keyed working set, injected into the
// controller instead of ambient process-wide state.
type Repository interface {
	Get(sessionKey string) (Entry, bool)
	Put(sessionKey string, e Entry)
	Delete(sessionKey string)
}

// MemoryRepository is an in-memory Repository with age-based eviction.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	clock   func() time.Time
}

// NewMemoryRepository creates a repository whose entries expire after ttl.
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]Entry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Get returns a live entry; expired entries are treated as absent.
func (r *MemoryRepository) Get(sessionKey string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionKey]
	if !ok {
		return Entry{}, false
	}
	if r.ttl > 0 && r.clock().Sub(e.UpdatedAt) > r.ttl {
		return Entry{}, false
	}
	return e, true
}

// Put stores an entry, stamping its age.
func (r *MemoryRepository) Put(sessionKey string, e Entry) {
	e.UpdatedAt = r.clock()
	r.mu.Lock()
	r.entries[sessionKey] = e
	r.mu.Unlock()
}

// Delete removes an entry.
func (r *MemoryRepository) Delete(sessionKey string) {
	r.mu.Lock()
	delete(r.entries, sessionKey)
	r.mu.Unlock()
}

// Sweep evicts every expired entry and reports how many were removed.
func (r *MemoryRepository) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.clock().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, e := range r.entries {
		if e.UpdatedAt.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the current entry count, including not-yet-swept expired ones.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// StartSweeper runs periodic eviction until the context is cancelled.
func (r *MemoryRepository) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					logging.Get(logging.CategoryDecision).Debug("evicted %d expired session entries", n)
				}
			}
		}
	}()
}
