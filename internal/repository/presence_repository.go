package repository

import (
	"sync"

	"realtime-service/internal/domain"
)

// PresenceStore holds one presence record per user.
type PresenceStore interface {
	Get(userID string) (*domain.Presence, bool)
	Put(presence *domain.Presence)
	Delete(userID string)
	List() []*domain.Presence
}

type presenceRepository struct {
	mu        sync.RWMutex
	presences map[string]*domain.Presence
}

// NewPresenceRepository returns an in-memory PresenceStore. Records are copied
// on the way in and out.
func NewPresenceRepository() PresenceStore {
	return &presenceRepository{presences: make(map[string]*domain.Presence)}
}

func (r *presenceRepository) Get(userID string) (*domain.Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presences[userID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (r *presenceRepository) Put(presence *domain.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presences[presence.UserID] = presence.Clone()
}

func (r *presenceRepository) Delete(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.presences, userID)
}

func (r *presenceRepository) List() []*domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Presence, 0, len(r.presences))
	for _, p := range r.presences {
		out = append(out, p.Clone())
	}
	return out
}
