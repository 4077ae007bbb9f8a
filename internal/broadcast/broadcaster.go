// Package broadcast fans outbound events out to connections grouped by room
// and by user.
package broadcast

// Sink is one connected client as seen by the broadcaster.
type Sink interface {
	ID() string
	UserID() string
	// Send queues a frame without blocking and reports whether it was accepted.
	Send(frame []byte) bool
	Close()
}

// Broadcaster delivers events to rooms, users and single connections.
// Excluded ids passed to the room emitters are user ids.
type Broadcaster interface {
	Join(connID, roomID string)
	Leave(connID, roomID string)
	EmitToRoom(roomID, event string, payload any, exclude ...string)
	EmitToRooms(roomIDs []string, event string, payload any, exclude ...string)
	EmitToUser(userID, event string, payload any)
	EmitToConnection(connID, event string, payload any)
	Disconnect(userID, reason string)
}
