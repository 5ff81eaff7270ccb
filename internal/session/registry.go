package session

import (
	"sort"
	"sync"

	"github.com/smiledesk/smiledesk/agent-plane/pkg/models"
)

// Registry tracks live sessions for admin visibility. Entries are added at
// call start and removed at call end; nothing outlives the call. The
// registry is shared between call tasks and the admin API.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // key: session id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a live session under its session id.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.SessionID()] = s
	r.mu.Unlock()
}

// Remove drops a session at call end. Unknown ids are a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Get returns a live session by id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshots returns a point-in-time view of every live session, oldest
// first.
func (r *Registry) Snapshots() []models.SessionSnapshot {
	r.mu.RLock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.RUnlock()

	// Snapshot outside the registry lock; each session has its own.
	snaps := make([]models.SessionSnapshot, 0, len(live))
	for _, s := range live {
		snaps = append(snaps, s.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].SessionID < snaps[j].SessionID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}
