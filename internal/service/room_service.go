package service

import (
	"sync"

	"go.uber.org/zap"

	"realtime-service/internal/apperror"
	"realtime-service/internal/broadcast"
	"realtime-service/internal/clock"
	"realtime-service/internal/domain"
	"realtime-service/internal/metrics"
	"realtime-service/internal/repository"
)

// departed describes a member removed from a room, for the events sent after unlock.
type departed struct {
	roomID      string
	userID      string
	connID      string
	memberCount int
}

// RoomService is the room directory. A user occupies at most one room; joining
// another room leaves the previous one in the same critical section.
type RoomService struct {
	mu          sync.Mutex
	store       repository.RoomStore
	broadcaster broadcast.Broadcaster
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewRoomService(
	store repository.RoomStore,
	broadcaster broadcast.Broadcaster,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RoomService {
	return &RoomService{
		store:       store,
		broadcaster: broadcaster,
		clock:       clk,
		metrics:     m,
		logger:      logger,
	}
}

// RoleFor derives the member role from the permissions presented at join time.
func RoleFor(permissions []string) domain.MemberRole {
	readOnly := false
	for _, p := range permissions {
		switch p {
		case domain.PermissionAdmin:
			return domain.RoleOwner
		case domain.PermissionReadOnly:
			readOnly = true
		}
	}
	if readOnly {
		return domain.RoleObserver
	}
	return domain.RoleParticipant
}

// Join places the user's connection in roomID, creating the room on first join.
// Rejoining the current room only refreshes the connection binding.
func (s *RoomService) Join(userID, connID, roomID string, roomType domain.RoomType, permissions []string) (*domain.Room, domain.MemberRole, error) {
	if roomID == "" {
		return nil, "", apperror.Validation("roomId is required")
	}
	if roomType == "" {
		roomType = domain.RoomTypeChat
	}
	if !roomType.Valid() {
		return nil, "", apperror.Validation("unknown room type " + string(roomType))
	}

	s.mu.Lock()
	now := s.clock.Now()

	var left *departed
	currentID, inRoom := s.store.RoomOf(userID)
	if inRoom && currentID == roomID {
		room, _ := s.store.Get(roomID)
		member := room.Members[userID]
		if member.ConnectionID != connID {
			s.broadcaster.Leave(member.ConnectionID, roomID)
			member.ConnectionID = connID
			s.store.Save(room)
		}
		s.broadcaster.Join(connID, roomID)
		s.mu.Unlock()

		s.broadcaster.EmitToConnection(connID, domain.EventRoomJoined, domain.RoomJoinedPayload{Room: room, Role: member.Role})
		return room, member.Role, nil
	}
	if inRoom {
		left = s.removeLocked(currentID, userID)
	}

	room, ok := s.store.Get(roomID)
	if !ok {
		room = domain.NewRoom(roomID, roomType, now)
	}
	role := RoleFor(permissions)
	room.Members[userID] = &domain.RoomMember{
		UserID:       userID,
		ConnectionID: connID,
		Role:         role,
		JoinedAt:     now,
		Permissions:  append([]string(nil), permissions...),
	}
	room.LastActivity = now
	s.store.Save(room)
	s.broadcaster.Join(connID, roomID)
	count := s.store.Count()
	s.mu.Unlock()

	s.metrics.SetActiveRooms(count)
	if left != nil {
		s.announceLeft(left, true)
	}

	s.broadcaster.EmitToRoom(roomID, domain.EventUserJoined, domain.MembershipPayload{
		RoomID:      roomID,
		UserID:      userID,
		Role:        role,
		MemberCount: len(room.Members),
		Timestamp:   now,
	}, userID)
	s.broadcaster.EmitToConnection(connID, domain.EventRoomJoined, domain.RoomJoinedPayload{Room: room, Role: role})

	s.logger.Debug("User joined room",
		zap.String("userId", userID),
		zap.String("roomId", roomID),
		zap.String("role", string(role)))
	return room, role, nil
}

// Leave removes the user from roomID. It fails with NOT_FOUND when the user is
// not in that room.
func (s *RoomService) Leave(userID, roomID string) error {
	s.mu.Lock()
	currentID, ok := s.store.RoomOf(userID)
	if !ok || currentID != roomID {
		s.mu.Unlock()
		return apperror.NotFound("user is not in room " + roomID)
	}
	left := s.removeLocked(roomID, userID)
	count := s.store.Count()
	s.mu.Unlock()

	s.metrics.SetActiveRooms(count)
	s.announceLeft(left, true)
	return nil
}

// LeaveConnection is the disconnect path. Membership is only removed while it
// is still bound to connID, so a late close cannot evict a newer connection.
func (s *RoomService) LeaveConnection(userID, connID string) (string, bool) {
	s.mu.Lock()
	roomID, ok := s.store.RoomOf(userID)
	if !ok {
		s.mu.Unlock()
		return "", false
	}
	room, _ := s.store.Get(roomID)
	if member := room.Members[userID]; member == nil || member.ConnectionID != connID {
		s.mu.Unlock()
		return "", false
	}
	left := s.removeLocked(roomID, userID)
	count := s.store.Count()
	s.mu.Unlock()

	s.metrics.SetActiveRooms(count)
	s.announceLeft(left, false)
	return roomID, true
}

func (s *RoomService) GetRoom(roomID string) (*domain.Room, error) {
	room, ok := s.store.Get(roomID)
	if !ok {
		return nil, apperror.NotFound("room " + roomID)
	}
	return room, nil
}

func (s *RoomService) RoomOf(userID string) (string, bool) {
	return s.store.RoomOf(userID)
}

func (s *RoomService) IsMember(userID, roomID string) bool {
	current, ok := s.store.RoomOf(userID)
	return ok && current == roomID
}

// Touch bumps the room's last activity.
func (s *RoomService) Touch(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.store.Get(roomID)
	if !ok {
		return
	}
	room.LastActivity = s.clock.Now()
	s.store.Save(room)
}

func (s *RoomService) Count() int {
	return s.store.Count()
}

func (s *RoomService) removeLocked(roomID, userID string) *departed {
	room, ok := s.store.Get(roomID)
	if !ok {
		return nil
	}
	member, ok := room.Members[userID]
	if !ok {
		return nil
	}
	delete(room.Members, userID)
	s.broadcaster.Leave(member.ConnectionID, roomID)

	if len(room.Members) == 0 {
		s.store.Delete(roomID)
	} else {
		room.LastActivity = s.clock.Now()
		s.store.Save(room)
	}
	return &departed{
		roomID:      roomID,
		userID:      userID,
		connID:      member.ConnectionID,
		memberCount: len(room.Members),
	}
}

func (s *RoomService) announceLeft(left *departed, notifyActor bool) {
	if left == nil {
		return
	}
	if left.memberCount > 0 {
		s.broadcaster.EmitToRoom(left.roomID, domain.EventUserLeft, domain.MembershipPayload{
			RoomID:      left.roomID,
			UserID:      left.userID,
			MemberCount: left.memberCount,
			Timestamp:   s.clock.Now(),
		}, left.userID)
	}
	if notifyActor {
		s.broadcaster.EmitToConnection(left.connID, domain.EventRoomLeft, domain.RoomLeftPayload{RoomID: left.roomID})
	}
	s.logger.Debug("User left room",
		zap.String("userId", left.userID),
		zap.String("roomId", left.roomID),
		zap.Int("memberCount", left.memberCount))
}
