package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/broadcast"
	"realtime-service/internal/clock"
	"realtime-service/internal/domain"
	"realtime-service/internal/repository"
)

type typingTimer struct {
	timer clock.Timer
}

// TypingService tracks who is composing in which room. Every indicator
// carries an auto-stop timer; renewing the indicator re-arms it.
type TypingService struct {
	mu          sync.Mutex
	store       repository.TypingStore
	broadcaster broadcast.Broadcaster
	clock       clock.Clock
	logger      *zap.Logger
	timeout     time.Duration
	timers      map[repository.TypingKey]*typingTimer
}

func NewTypingService(
	store repository.TypingStore,
	broadcaster broadcast.Broadcaster,
	clk clock.Clock,
	logger *zap.Logger,
	timeout time.Duration,
) *TypingService {
	return &TypingService{
		store:       store,
		broadcaster: broadcaster,
		clock:       clk,
		logger:      logger,
		timeout:     timeout,
		timers:      make(map[repository.TypingKey]*typingTimer),
	}
}

// Start upserts the indicator and re-arms its timer. typing_started goes out
// only for a new indicator.
func (s *TypingService) Start(userID, roomID string) {
	key := repository.TypingKey{UserID: userID, RoomID: roomID}

	s.mu.Lock()
	_, existed := s.store.Get(key)
	if prev := s.timers[key]; prev != nil {
		prev.timer.Stop()
	}
	t := &typingTimer{}
	t.timer = s.clock.AfterFunc(s.timeout, func() { s.expire(key, t) })
	s.timers[key] = t
	s.store.Put(domain.TypingIndicator{
		UserID:    userID,
		RoomID:    roomID,
		IsTyping:  true,
		UpdatedAt: s.clock.Now(),
	})
	s.mu.Unlock()

	if !existed {
		s.broadcaster.EmitToRoom(roomID, domain.EventTypingStarted, domain.TypingPayload{UserID: userID, RoomID: roomID}, userID)
	}
}

// Stop clears the indicator. It reports whether one existed.
func (s *TypingService) Stop(userID, roomID string) bool {
	key := repository.TypingKey{UserID: userID, RoomID: roomID}

	s.mu.Lock()
	removed := s.removeLocked(key)
	s.mu.Unlock()

	if removed {
		s.announceStopped(key)
	}
	return removed
}

// Sweep removes indicators not renewed within olderThan.
func (s *TypingService) Sweep(olderThan time.Duration) int {
	cutoff := s.clock.Now().Add(-olderThan)

	s.mu.Lock()
	var stale []repository.TypingKey
	for _, ind := range s.store.List() {
		if ind.UpdatedAt.Before(cutoff) {
			key := repository.TypingKey{UserID: ind.UserID, RoomID: ind.RoomID}
			if s.removeLocked(key) {
				stale = append(stale, key)
			}
		}
	}
	s.mu.Unlock()

	if len(stale) > 0 {
		s.logger.Debug("Swept stale typing indicators", zap.Int("count", len(stale)))
	}
	for _, key := range stale {
		s.announceStopped(key)
	}
	return len(stale)
}

// ClearUser stops every indicator of the user.
func (s *TypingService) ClearUser(userID string) int {
	s.mu.Lock()
	var cleared []repository.TypingKey
	for _, ind := range s.store.ByUser(userID) {
		key := repository.TypingKey{UserID: ind.UserID, RoomID: ind.RoomID}
		if s.removeLocked(key) {
			cleared = append(cleared, key)
		}
	}
	s.mu.Unlock()

	for _, key := range cleared {
		s.announceStopped(key)
	}
	return len(cleared)
}

func (s *TypingService) IsTyping(userID, roomID string) bool {
	_, ok := s.store.Get(repository.TypingKey{UserID: userID, RoomID: roomID})
	return ok
}

func (s *TypingService) expire(key repository.TypingKey, t *typingTimer) {
	s.mu.Lock()
	if s.timers[key] != t {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	removed := s.store.Delete(key)
	s.mu.Unlock()

	if removed {
		s.announceStopped(key)
	}
}

func (s *TypingService) removeLocked(key repository.TypingKey) bool {
	if t := s.timers[key]; t != nil {
		t.timer.Stop()
		delete(s.timers, key)
	}
	return s.store.Delete(key)
}

func (s *TypingService) announceStopped(key repository.TypingKey) {
	s.broadcaster.EmitToRoom(key.RoomID, domain.EventTypingStopped, domain.TypingPayload{UserID: key.UserID, RoomID: key.RoomID}, key.UserID)
}
