// Package domain holds the in-memory state owned by the realtime coordinator.
package domain

import "time"

// PresenceStatus defines user presence status
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// Settable reports whether a client may switch to the status explicitly.
// Offline is only reached through the disconnect grace period.
func (s PresenceStatus) Settable() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy:
		return true
	}
	return false
}

// RoomType defines the context a room is scoped to
type RoomType string

const (
	RoomTypeChat         RoomType = "chat"
	RoomTypeTask         RoomType = "task"
	RoomTypeNotification RoomType = "notification"
	RoomTypeAdmin        RoomType = "admin"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeChat, RoomTypeTask, RoomTypeNotification, RoomTypeAdmin:
		return true
	}
	return false
}

// MemberRole defines a member's role inside a room
type MemberRole string

const (
	RoleOwner       MemberRole = "owner"
	RoleParticipant MemberRole = "participant"
	RoleObserver    MemberRole = "observer"
)

// Permission markers understood by the room directory
const (
	PermissionAdmin    = "admin"
	PermissionReadOnly = "read_only"
)

// MessageType defines the type of message
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// DeliveryState is the per-recipient delivery state of a message.
// States only move forward: sent -> delivered -> read.
type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryRead      DeliveryState = "read"
)

func (s DeliveryState) rank() int {
	switch s {
	case DeliverySent:
		return 1
	case DeliveryDelivered:
		return 2
	case DeliveryRead:
		return 3
	}
	return 0
}

// Before reports whether s precedes other in the delivery order.
func (s DeliveryState) Before(other DeliveryState) bool {
	return s.rank() < other.rank()
}

// PersonalRoomID is the notification room every connection of a user joins.
func PersonalRoomID(userID string) string {
	return "user:" + userID
}

// Principal is the authenticated identity behind a connection.
type Principal struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// Connection is a single authenticated transport session.
type Connection struct {
	ID          string    `json:"connectionId"`
	UserID      string    `json:"userId"`
	Role        string    `json:"role,omitempty"`
	RemoteAddr  string    `json:"-"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type Presence struct {
	UserID       string            `json:"userId"`
	ConnectionID string            `json:"-"`
	Status       PresenceStatus    `json:"status"`
	LastSeen     time.Time         `json:"lastSeen"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (p *Presence) Clone() *Presence {
	c := *p
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

type RoomMember struct {
	UserID       string     `json:"userId"`
	ConnectionID string     `json:"-"`
	Role         MemberRole `json:"role"`
	JoinedAt     time.Time  `json:"joinedAt"`
	Permissions  []string   `json:"permissions,omitempty"`
}

type Room struct {
	ID           string                 `json:"roomId"`
	Type         RoomType               `json:"roomType"`
	Members      map[string]*RoomMember `json:"members"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastActivity time.Time              `json:"lastActivity"`
}

func NewRoom(id string, roomType RoomType, now time.Time) *Room {
	return &Room{
		ID:           id,
		Type:         roomType,
		Members:      make(map[string]*RoomMember),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Clone returns a deep copy so callers never share member maps with the store.
func (r *Room) Clone() *Room {
	c := *r
	c.Members = make(map[string]*RoomMember, len(r.Members))
	for id, m := range r.Members {
		mc := *m
		mc.Permissions = append([]string(nil), m.Permissions...)
		c.Members[id] = &mc
	}
	return &c
}

// MemberIDs returns the ids of all members except the excluded user.
func (r *Room) MemberIDs(exclude string) []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

type Message struct {
	ID        string      `json:"messageId"`
	SenderID  string      `json:"senderId"`
	RoomID    string      `json:"roomId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	ReplyTo   *string     `json:"replyTo,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DeliveryStatus tracks one recipient of one message.
type DeliveryStatus struct {
	MessageID   string        `json:"messageId"`
	RecipientID string        `json:"recipientId"`
	SenderID    string        `json:"senderId"`
	RoomID      string        `json:"roomId"`
	Status      DeliveryState `json:"status"`
	CreatedAt   time.Time     `json:"-"`
	UpdatedAt   time.Time     `json:"timestamp"`
}

type TypingIndicator struct {
	UserID    string    `json:"userId"`
	RoomID    string    `json:"roomId"`
	IsTyping  bool      `json:"isTyping"`
	UpdatedAt time.Time `json:"updatedAt"`
}
