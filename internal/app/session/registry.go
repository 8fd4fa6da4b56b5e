package session

import (
	"sort"
	"sync"

	"attendance_tracker_bot/internal/domain/transport"
	"attendance_tracker_bot/internal/infra/metrics"
)

// Registry maps a coordinator to its live transport client.
// Presence in the registry is the only signal that a coordinator is connected.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]transport.Client
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]transport.Client)}
}

// Set registers the client, replacing any previous one for the coordinator.
func (r *Registry) Set(coordinatorID string, c transport.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[coordinatorID] = c
	metrics.LiveSessions.Set(float64(len(r.sessions)))
}

func (r *Registry) Get(coordinatorID string) (transport.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[coordinatorID]
	return c, ok
}

func (r *Registry) Remove(coordinatorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, coordinatorID)
	metrics.LiveSessions.Set(float64(len(r.sessions)))
}

// RemoveIf removes the entry only while it still holds c, so a closing session
// never unregisters the session that replaced it.
func (r *Registry) RemoveIf(coordinatorID string, c transport.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[coordinatorID]; !ok || cur != c {
		return false
	}
	delete(r.sessions, coordinatorID)
	metrics.LiveSessions.Set(float64(len(r.sessions)))
	return true
}

// IDs returns the connected coordinators, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
