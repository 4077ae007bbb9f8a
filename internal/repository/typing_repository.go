package repository

import (
	"sync"

	"realtime-service/internal/domain"
)

// TypingKey identifies one typing indicator.
type TypingKey struct {
	UserID string
	RoomID string
}

type TypingStore interface {
	Get(key TypingKey) (domain.TypingIndicator, bool)
	Put(indicator domain.TypingIndicator)
	// Delete reports whether a record was removed.
	Delete(key TypingKey) bool
	List() []domain.TypingIndicator
	ByUser(userID string) []domain.TypingIndicator
}

type typingRepository struct {
	mu         sync.RWMutex
	indicators map[TypingKey]domain.TypingIndicator
}

func NewTypingRepository() TypingStore {
	return &typingRepository{indicators: make(map[TypingKey]domain.TypingIndicator)}
}

func (r *typingRepository) Get(key TypingKey) (domain.TypingIndicator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ind, ok := r.indicators[key]
	return ind, ok
}

func (r *typingRepository) Put(indicator domain.TypingIndicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicators[TypingKey{UserID: indicator.UserID, RoomID: indicator.RoomID}] = indicator
}

func (r *typingRepository) Delete(key TypingKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.indicators[key]; !ok {
		return false
	}
	delete(r.indicators, key)
	return true
}

func (r *typingRepository) List() []domain.TypingIndicator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TypingIndicator, 0, len(r.indicators))
	for _, ind := range r.indicators {
		out = append(out, ind)
	}
	return out
}

func (r *typingRepository) ByUser(userID string) []domain.TypingIndicator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.TypingIndicator
	for key, ind := range r.indicators {
		if key.UserID == userID {
			out = append(out, ind)
		}
	}
	return out
}
