package repository

import (
	"sync"

	"realtime-service/internal/domain"
)

// RoomStore holds ephemeral rooms and indexes which room each user is in.
type RoomStore interface {
	Get(roomID string) (*domain.Room, bool)
	Save(room *domain.Room)
	Delete(roomID string)
	RoomOf(userID string) (string, bool)
	Count() int
}

type roomRepository struct {
	mu     sync.RWMutex
	rooms  map[string]*domain.Room
	byUser map[string]string // userID -> roomID
}

func NewRoomRepository() RoomStore {
	return &roomRepository{
		rooms:  make(map[string]*domain.Room),
		byUser: make(map[string]string),
	}
}

func (r *roomRepository) Get(roomID string) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.Clone(), true
}

// Save replaces the stored room and moves the user index to match its members.
func (r *roomRepository) Save(room *domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.rooms[room.ID]; ok {
		for userID := range prev.Members {
			if _, still := room.Members[userID]; !still && r.byUser[userID] == room.ID {
				delete(r.byUser, userID)
			}
		}
	}
	for userID := range room.Members {
		r.byUser[userID] = room.ID
	}
	r.rooms[room.ID] = room.Clone()
}

func (r *roomRepository) Delete(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for userID := range prev.Members {
		if r.byUser[userID] == roomID {
			delete(r.byUser, userID)
		}
	}
	delete(r.rooms, roomID)
}

func (r *roomRepository) RoomOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byUser[userID]
	return roomID, ok
}

func (r *roomRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
