package risk

import (
	"context"
	"sync"
	"time"
)

// Hub hands out one control Manager per mission session and drives cooldown
// expiry for all of them from a single ticker.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Manager
	build    func() *Manager
}

// NewHub creates a hub. Every session manager inherits the same attempt cap,
// cooldown and options.
func NewHub(maxAttempts int, cooldown time.Duration, opts ...Option) *Hub {
	return &Hub{
		sessions: make(map[string]*Manager),
		build: func() *Manager {
			return NewManager(maxAttempts, cooldown, opts...)
		},
	}
}

// Session returns the manager for a session, creating it on first use.
func (h *Hub) Session(sessionID string) *Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.sessions[sessionID]
	if !ok {
		m = h.build()
		h.sessions[sessionID] = m
	}
	return m
}

// Drop discards a session's control records, typically after a reset or a
// finished mission.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// Tick advances cooldown expiry on every session. Managers are collected
// under the hub lock but ticked outside it so a slow manager cannot block
// Session lookups.
func (h *Hub) Tick() {
	h.mu.Lock()
	managers := make([]*Manager, 0, len(h.sessions))
	for _, m := range h.sessions {
		managers = append(managers, m)
	}
	h.mu.Unlock()

	for _, m := range managers {
		m.Tick()
	}
}

// Run drives Tick on a 1-second interval until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick()
		}
	}
}
