package repository

import (
	"sync"
	"time"

	"realtime-service/internal/domain"
)

// DeliveryStore tracks per-recipient delivery state keyed by (message, recipient).
type DeliveryStore interface {
	Create(statuses []domain.DeliveryStatus)
	Get(messageID, recipientID string) (domain.DeliveryStatus, bool)
	// Advance moves a record forward to state. It returns false, leaving the
	// record untouched, when the record is absent or already at or past state.
	Advance(messageID, recipientID string, state domain.DeliveryState, at time.Time) (domain.DeliveryStatus, bool)
	ForMessage(messageID string) []domain.DeliveryStatus
	DeleteOlderThan(cutoff time.Time) int
	Len() int
}

type deliveryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]*domain.DeliveryStatus // messageID -> recipientID -> status
}

func NewDeliveryRepository() DeliveryStore {
	return &deliveryRepository{records: make(map[string]map[string]*domain.DeliveryStatus)}
}

func (r *deliveryRepository) Create(statuses []domain.DeliveryStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range statuses {
		s := statuses[i]
		byRecipient, ok := r.records[s.MessageID]
		if !ok {
			byRecipient = make(map[string]*domain.DeliveryStatus)
			r.records[s.MessageID] = byRecipient
		}
		if _, exists := byRecipient[s.RecipientID]; exists {
			continue
		}
		byRecipient[s.RecipientID] = &s
	}
}

func (r *deliveryRepository) Get(messageID, recipientID string) (domain.DeliveryStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.records[messageID][recipientID]
	if !ok {
		return domain.DeliveryStatus{}, false
	}
	return *s, true
}

func (r *deliveryRepository) Advance(messageID, recipientID string, state domain.DeliveryState, at time.Time) (domain.DeliveryStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[messageID][recipientID]
	if !ok || !s.Status.Before(state) {
		return domain.DeliveryStatus{}, false
	}
	s.Status = state
	s.UpdatedAt = at
	return *s, true
}

func (r *deliveryRepository) ForMessage(messageID string) []domain.DeliveryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DeliveryStatus, 0, len(r.records[messageID]))
	for _, s := range r.records[messageID] {
		out = append(out, *s)
	}
	return out
}

func (r *deliveryRepository) DeleteOlderThan(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for messageID, byRecipient := range r.records {
		for recipientID, s := range byRecipient {
			if s.CreatedAt.Before(cutoff) {
				delete(byRecipient, recipientID)
				removed++
			}
		}
		if len(byRecipient) == 0 {
			delete(r.records, messageID)
		}
	}
	return removed
}

func (r *deliveryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, byRecipient := range r.records {
		n += len(byRecipient)
	}
	return n
}
