package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"realtime-service/internal/domain"
)

type set map[string]struct{}

// Local delivers events to the sinks connected to this process.
type Local struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	byUser map[string]set // userID -> connIDs
	rooms  map[string]set // roomID -> connIDs
	joined map[string]set // connID -> roomIDs
	logger *zap.Logger
}

func NewLocal(logger *zap.Logger) *Local {
	return &Local{
		sinks:  make(map[string]Sink),
		byUser: make(map[string]set),
		rooms:  make(map[string]set),
		joined: make(map[string]set),
		logger: logger,
	}
}

// Register makes the sink reachable by connection and user id.
func (l *Local) Register(sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks[sink.ID()] = sink
	add(l.byUser, sink.UserID(), sink.ID())
}

// Unregister drops the sink and all of its room subscriptions.
func (l *Local) Unregister(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sink, ok := l.sinks[connID]
	if !ok {
		return
	}
	for roomID := range l.joined[connID] {
		remove(l.rooms, roomID, connID)
	}
	delete(l.joined, connID)
	remove(l.byUser, sink.UserID(), connID)
	delete(l.sinks, connID)
}

func (l *Local) Join(connID, roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sinks[connID]; !ok {
		return
	}
	add(l.rooms, roomID, connID)
	add(l.joined, connID, roomID)
}

func (l *Local) Leave(connID, roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	remove(l.rooms, roomID, connID)
	remove(l.joined, connID, roomID)
}

// Rooms returns the rooms a connection is subscribed to.
func (l *Local) Rooms(connID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.joined[connID]))
	for roomID := range l.joined[connID] {
		out = append(out, roomID)
	}
	return out
}

// Connections returns the number of registered sinks.
func (l *Local) Connections() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sinks)
}

func (l *Local) EmitToRoom(roomID, event string, payload any, exclude ...string) {
	l.EmitToRooms([]string{roomID}, event, payload, exclude...)
}

func (l *Local) EmitToRooms(roomIDs []string, event string, payload any, exclude ...string) {
	if frame, ok := l.encode(event, payload); ok {
		l.deliverToRooms(roomIDs, frame, exclude)
	}
}

func (l *Local) EmitToUser(userID, event string, payload any) {
	if frame, ok := l.encode(event, payload); ok {
		l.deliverToUser(userID, frame)
	}
}

func (l *Local) EmitToConnection(connID, event string, payload any) {
	if frame, ok := l.encode(event, payload); ok {
		l.deliverToConnection(connID, frame)
	}
}

// Disconnect sends force_disconnect to every connection of the user, then closes them.
func (l *Local) Disconnect(userID, reason string) {
	if frame, ok := l.encode(domain.EventForceDisconnect, domain.ForceDisconnectPayload{Reason: reason}); ok {
		l.disconnectUser(userID, frame)
	}
}

// HasUser reports whether the user has a connection on this process.
func (l *Local) HasUser(userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byUser[userID]) > 0
}

func (l *Local) encode(event string, payload any) ([]byte, bool) {
	frame, err := domain.EncodeFrame(event, payload)
	if err != nil {
		l.logger.Error("Failed to encode event", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}

// deliverToRooms sends frame once per sink even when the sink is in several
// of the rooms.
func (l *Local) deliverToRooms(roomIDs []string, frame []byte, exclude []string) int {
	skip := make(set, len(exclude))
	for _, userID := range exclude {
		skip[userID] = struct{}{}
	}

	l.mu.RLock()
	seen := make(set)
	targets := make([]Sink, 0)
	for _, roomID := range roomIDs {
		for connID := range l.rooms[roomID] {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			sink := l.sinks[connID]
			if sink == nil {
				continue
			}
			if _, excluded := skip[sink.UserID()]; excluded {
				continue
			}
			targets = append(targets, sink)
		}
	}
	l.mu.RUnlock()

	return l.send(targets, frame)
}

func (l *Local) deliverToUser(userID string, frame []byte) int {
	return l.send(l.userSinks(userID), frame)
}

func (l *Local) deliverToConnection(connID string, frame []byte) int {
	l.mu.RLock()
	sink := l.sinks[connID]
	l.mu.RUnlock()
	if sink == nil {
		return 0
	}
	return l.send([]Sink{sink}, frame)
}

func (l *Local) disconnectUser(userID string, frame []byte) int {
	sinks := l.userSinks(userID)
	l.send(sinks, frame)
	for _, sink := range sinks {
		sink.Close()
	}
	return len(sinks)
}

func (l *Local) userSinks(userID string) []Sink {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Sink, 0, len(l.byUser[userID]))
	for connID := range l.byUser[userID] {
		if sink := l.sinks[connID]; sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

func (l *Local) send(sinks []Sink, frame []byte) int {
	delivered := 0
	for _, sink := range sinks {
		if sink.Send(frame) {
			delivered++
			continue
		}
		l.logger.Warn("Dropped frame for slow connection",
			zap.String("connectionId", sink.ID()),
			zap.String("userId", sink.UserID()))
	}
	return delivered
}

func add(m map[string]set, key, member string) {
	s, ok := m[key]
	if !ok {
		s = make(set)
		m[key] = s
	}
	s[member] = struct{}{}
}

func remove(m map[string]set, key, member string) {
	s, ok := m[key]
	if !ok {
		return
	}
	delete(s, member)
	if len(s) == 0 {
		delete(m, key)
	}
}
