package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/apperror"
	"realtime-service/internal/broadcast"
	"realtime-service/internal/clock"
	"realtime-service/internal/domain"
	"realtime-service/internal/metrics"
	"realtime-service/internal/repository"
)

// RoomLocator answers which room a user currently occupies.
type RoomLocator interface {
	RoomOf(userID string) (string, bool)
}

type pendingOffline struct {
	connID string
	timer  clock.Timer
}

type departure struct {
	roomID string
	at     time.Time
}

// PresenceService tracks online/away/busy/offline per user. A disconnect only
// turns into offline after the grace period, and only if no newer connection
// has taken over the record in the meantime.
type PresenceService struct {
	mu          sync.Mutex
	store       repository.PresenceStore
	rooms       RoomLocator
	broadcaster broadcast.Broadcaster
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *zap.Logger
	grace       time.Duration

	pending    map[string]*pendingOffline
	departures map[string]departure // room a user was in when they disconnected
}

func NewPresenceService(
	store repository.PresenceStore,
	rooms RoomLocator,
	broadcaster broadcast.Broadcaster,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	grace time.Duration,
) *PresenceService {
	return &PresenceService{
		store:       store,
		rooms:       rooms,
		broadcaster: broadcaster,
		clock:       clk,
		metrics:     m,
		logger:      logger,
		grace:       grace,
		pending:     make(map[string]*pendingOffline),
		departures:  make(map[string]departure),
	}
}

// SetOnline registers connID as the user's current connection and cancels any
// pending offline transition. Peers are only notified when the status changes.
func (s *PresenceService) SetOnline(userID, connID string, metadata map[string]string) *domain.Presence {
	s.mu.Lock()
	s.cancelLocked(userID)

	now := s.clock.Now()
	prev, existed := s.store.Get(userID)
	presence := &domain.Presence{
		UserID:       userID,
		ConnectionID: connID,
		Status:       domain.PresenceOnline,
		LastSeen:     now,
		Metadata:     metadata,
	}
	if existed {
		// a reconnect keeps the explicitly chosen status
		presence.Status = prev.Status
		if metadata == nil {
			presence.Metadata = prev.Metadata
		}
	}
	s.store.Put(presence)

	changed := !existed
	var lastRoom string
	if changed {
		lastRoom = s.departures[userID].roomID
		delete(s.departures, userID)
	}
	s.mu.Unlock()

	if changed {
		s.announce(presence, lastRoom)
	}
	return presence.Clone()
}

// UpdateStatus switches between online, away and busy.
func (s *PresenceService) UpdateStatus(userID string, status domain.PresenceStatus, metadata map[string]string) (*domain.Presence, error) {
	if !status.Settable() {
		return nil, apperror.Validation("status must be one of online, away, busy")
	}

	s.mu.Lock()
	presence, ok := s.store.Get(userID)
	if !ok {
		s.mu.Unlock()
		return nil, apperror.NotFound("presence for user " + userID)
	}
	changed := presence.Status != status
	presence.Status = status
	presence.LastSeen = s.clock.Now()
	if metadata != nil {
		presence.Metadata = metadata
	}
	s.store.Put(presence)
	s.mu.Unlock()

	if changed {
		s.announce(presence, "")
	}
	return presence, nil
}

// ScheduleOffline arms the grace timer for a closed connection. It is ignored
// when connID no longer owns the presence record.
func (s *PresenceService) ScheduleOffline(userID, connID, lastRoom string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	presence, ok := s.store.Get(userID)
	if !ok || presence.ConnectionID != connID {
		return false
	}
	s.cancelLocked(userID)

	now := s.clock.Now()
	presence.LastSeen = now
	s.store.Put(presence)
	if lastRoom != "" {
		s.departures[userID] = departure{roomID: lastRoom, at: now}
	}

	p := &pendingOffline{connID: connID}
	p.timer = s.clock.AfterFunc(s.grace, func() { s.expire(userID, p) })
	s.pending[userID] = p

	s.logger.Debug("Scheduled offline",
		zap.String("userId", userID),
		zap.String("connectionId", connID),
		zap.Duration("grace", s.grace))
	return true
}

// CancelScheduledOffline reports whether a pending offline transition was cancelled.
func (s *PresenceService) CancelScheduledOffline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(userID)
}

// Rebind hands the presence record to another live connection of the same user.
func (s *PresenceService) Rebind(userID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	presence, ok := s.store.Get(userID)
	if !ok {
		return
	}
	presence.ConnectionID = connID
	s.store.Put(presence)
}

func (s *PresenceService) Get(userID string) (*domain.Presence, bool) {
	return s.store.Get(userID)
}

// PruneDepartures forgets last-seen rooms older than olderThan for users that
// are not waiting out a grace period.
func (s *PresenceService) PruneDepartures(olderThan time.Duration) int {
	cutoff := s.clock.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, d := range s.departures {
		if _, waiting := s.pending[userID]; waiting {
			continue
		}
		if d.at.Before(cutoff) {
			delete(s.departures, userID)
			removed++
		}
	}
	return removed
}

func (s *PresenceService) cancelLocked(userID string) bool {
	p, ok := s.pending[userID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, userID)
	return true
}

func (s *PresenceService) expire(userID string, p *pendingOffline) {
	s.mu.Lock()
	if s.pending[userID] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, userID)

	presence, ok := s.store.Get(userID)
	if !ok || presence.ConnectionID != p.connID {
		s.mu.Unlock()
		return
	}
	s.store.Delete(userID)
	lastRoom := s.departures[userID].roomID
	s.mu.Unlock()

	presence.Status = domain.PresenceOffline
	presence.LastSeen = s.clock.Now()
	s.logger.Info("User went offline", zap.String("userId", userID))
	s.announce(presence, lastRoom)
}

// announce sends presence_update to the personal room, the current room and
// the room the user was last seen in.
func (s *PresenceService) announce(presence *domain.Presence, lastRoom string) {
	audience := []string{domain.PersonalRoomID(presence.UserID)}
	if s.rooms != nil {
		if roomID, ok := s.rooms.RoomOf(presence.UserID); ok {
			audience = append(audience, roomID)
		}
	}
	if lastRoom != "" {
		audience = append(audience, lastRoom)
	}

	s.broadcaster.EmitToRooms(audience, domain.EventPresenceUpdate, domain.PresenceUpdatePayload{
		UserID:   presence.UserID,
		Status:   presence.Status,
		LastSeen: presence.LastSeen,
		Metadata: presence.Metadata,
	})
	s.metrics.RecordPresenceTransition(string(presence.Status))
}
