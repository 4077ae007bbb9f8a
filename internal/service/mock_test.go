package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/clock"
	"realtime-service/internal/domain"
	"realtime-service/internal/repository"
)

var testEpoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// emitted is one call recorded by MockBroadcaster.
type emitted struct {
	Kind    string // room, user, connection, disconnect
	Targets []string
	Event   string
	Payload any
	Exclude []string
}

// MockBroadcaster records every emission and subscription.
type MockBroadcaster struct {
	mu     sync.Mutex
	emits  []emitted
	joined map[string]map[string]bool // connID -> roomIDs
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{joined: make(map[string]map[string]bool)}
}

func (b *MockBroadcaster) Join(connID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.joined[connID] == nil {
		b.joined[connID] = make(map[string]bool)
	}
	b.joined[connID][roomID] = true
}

func (b *MockBroadcaster) Leave(connID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.joined[connID], roomID)
}

func (b *MockBroadcaster) EmitToRoom(roomID, event string, payload any, exclude ...string) {
	b.record(emitted{Kind: "room", Targets: []string{roomID}, Event: event, Payload: payload, Exclude: exclude})
}

func (b *MockBroadcaster) EmitToRooms(roomIDs []string, event string, payload any, exclude ...string) {
	b.record(emitted{Kind: "room", Targets: roomIDs, Event: event, Payload: payload, Exclude: exclude})
}

func (b *MockBroadcaster) EmitToUser(userID, event string, payload any) {
	b.record(emitted{Kind: "user", Targets: []string{userID}, Event: event, Payload: payload})
}

func (b *MockBroadcaster) EmitToConnection(connID, event string, payload any) {
	b.record(emitted{Kind: "connection", Targets: []string{connID}, Event: event, Payload: payload})
}

func (b *MockBroadcaster) Disconnect(userID, reason string) {
	b.record(emitted{Kind: "disconnect", Targets: []string{userID}, Event: domain.EventForceDisconnect, Payload: reason})
}

func (b *MockBroadcaster) record(e emitted) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = append(b.emits, e)
}

// Events returns every recorded emission with the given event name.
func (b *MockBroadcaster) Events(event string) []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []emitted
	for _, e := range b.emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (b *MockBroadcaster) Subscribed(connID, roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joined[connID][roomID]
}

func (b *MockBroadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = nil
}

// MockMessageStore is a mock implementation of MessageStore
type MockMessageStore struct {
	SaveFunc func(ctx context.Context, msg *domain.Message) error

	mu    sync.Mutex
	saved []*domain.Message
}

func (m *MockMessageStore) Save(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	m.saved = append(m.saved, msg)
	m.mu.Unlock()
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, msg)
	}
	return nil
}

func (m *MockMessageStore) Saved() []*domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Message(nil), m.saved...)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	SendOfflineFunc func(ctx context.Context, userID, event string, payload any) error

	mu    sync.Mutex
	users []string
}

func (m *MockNotifier) SendOffline(ctx context.Context, userID, event string, payload any) error {
	m.mu.Lock()
	m.users = append(m.users, userID)
	m.mu.Unlock()
	if m.SendOfflineFunc != nil {
		return m.SendOfflineFunc(ctx, userID, event, payload)
	}
	return nil
}

func (m *MockNotifier) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.users...)
}

// coordinator wires the four services the way the gateway does.
type coordinator struct {
	clock       *clock.Fake
	broadcaster *MockBroadcaster
	rooms       *RoomService
	presence    *PresenceService
	typing      *TypingService
	messages    *MessageService
	store       *MockMessageStore
	notifier    *MockNotifier
}

func newCoordinator() *coordinator {
	clk := clock.NewFake(testEpoch)
	b := NewMockBroadcaster()
	logger := zap.NewNop()

	rooms := NewRoomService(repository.NewRoomRepository(), b, clk, nil, logger)
	presence := NewPresenceService(repository.NewPresenceRepository(), rooms, b, clk, nil, logger, 30*time.Second)
	typing := NewTypingService(repository.NewTypingRepository(), b, clk, logger, 3*time.Second)
	store := &MockMessageStore{}
	notifier := &MockNotifier{}
	messages := NewMessageService(rooms, repository.NewDeliveryRepository(), store, notifier, presence, typing, b, clk, nil, logger,
		MessageOptions{MaxLength: 4000, PersistTimeout: time.Second})

	return &coordinator{
		clock:       clk,
		broadcaster: b,
		rooms:       rooms,
		presence:    presence,
		typing:      typing,
		messages:    messages,
		store:       store,
		notifier:    notifier,
	}
}

// connect mimics the gateway attach: presence online plus the personal room.
func (c *coordinator) connect(userID, connID string) {
	c.presence.SetOnline(userID, connID, nil)
	c.broadcaster.Join(connID, domain.PersonalRoomID(userID))
}
