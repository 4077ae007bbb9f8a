package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"realtime-service/internal/apperror"
)

// Inbound event names (client -> coordinator)
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventPresence    = "presence"
	EventMessageRead = "message_read"
)

// Outbound event names (coordinator -> client)
const (
	EventConnectionEstablished = "connection_established"
	EventUserJoined            = "user_joined"
	EventUserLeft              = "user_left"
	EventRoomJoined            = "room_joined"
	EventRoomLeft              = "room_left"
	EventMessage               = "message"
	EventMessageSent           = "message_sent"
	EventTypingStarted         = "typing_started"
	EventTypingStopped         = "typing_stopped"
	EventPresenceUpdate        = "presence_update"
	EventError                 = "error"
	EventForceDisconnect       = "force_disconnect"
)

const maxRoomIDLength = 128

// Envelope is the frame format on the wire: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is marshalled into an Envelope when sent to a client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// EncodeFrame marshals an outbound event.
func EncodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: payload})
}

// InboundEvent is one of the validated client event payloads below.
type InboundEvent interface {
	EventName() string
	Validate() error
}

type JoinRoomEvent struct {
	RoomID      string   `json:"roomId"`
	RoomType    RoomType `json:"roomType"`
	Permissions []string `json:"permissions"`
}

type LeaveRoomEvent struct {
	RoomID string `json:"roomId"`
}

type SendMessageEvent struct {
	RoomID  string      `json:"roomId"`
	Content string      `json:"content"`
	Type    MessageType `json:"type"`
	ReplyTo *string     `json:"replyTo,omitempty"`
	TempID  string      `json:"tempId,omitempty"`
}

type TypingEvent struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type PresenceEvent struct {
	Status   PresenceStatus    `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type MessageReadEvent struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

func (JoinRoomEvent) EventName() string    { return EventJoinRoom }
func (LeaveRoomEvent) EventName() string   { return EventLeaveRoom }
func (SendMessageEvent) EventName() string { return EventSendMessage }
func (TypingEvent) EventName() string      { return EventTyping }
func (PresenceEvent) EventName() string    { return EventPresence }
func (MessageReadEvent) EventName() string { return EventMessageRead }

func (e *JoinRoomEvent) Validate() error {
	if err := validateRoomID(e.RoomID); err != nil {
		return err
	}
	if e.RoomType == "" {
		e.RoomType = RoomTypeChat
	}
	if !e.RoomType.Valid() {
		return apperror.Validation(fmt.Sprintf("unknown roomType %q", e.RoomType))
	}
	return nil
}

func (e *LeaveRoomEvent) Validate() error {
	return validateRoomID(e.RoomID)
}

func (e *SendMessageEvent) Validate() error {
	if err := validateRoomID(e.RoomID); err != nil {
		return err
	}
	if e.Type == "" {
		e.Type = MessageTypeText
	}
	if e.ReplyTo != nil && strings.TrimSpace(*e.ReplyTo) == "" {
		e.ReplyTo = nil
	}
	return nil
}

func (e *TypingEvent) Validate() error {
	return validateRoomID(e.RoomID)
}

func (e *PresenceEvent) Validate() error {
	if !e.Status.Settable() {
		return apperror.Validation(fmt.Sprintf("status must be one of online, away, busy; got %q", e.Status))
	}
	return nil
}

func (e *MessageReadEvent) Validate() error {
	if strings.TrimSpace(e.MessageID) == "" {
		return apperror.Validation("messageId is required")
	}
	return nil
}

func validateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return apperror.Validation("roomId is required")
	}
	if len(roomID) > maxRoomIDLength {
		return apperror.Validation("roomId is too long")
	}
	return nil
}

// DecodeInbound parses a raw frame into its typed event and validates it.
// Unknown events and payloads that do not match the event schema are
// rejected as validation errors.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperror.Validation("malformed frame")
	}

	var ev InboundEvent
	switch env.Event {
	case EventJoinRoom:
		ev = &JoinRoomEvent{}
	case EventLeaveRoom:
		ev = &LeaveRoomEvent{}
	case EventSendMessage:
		ev = &SendMessageEvent{}
	case EventTyping:
		ev = &TypingEvent{}
	case EventPresence:
		ev = &PresenceEvent{}
	case EventMessageRead:
		ev = &MessageReadEvent{}
	case "":
		return nil, apperror.Validation("event is required")
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown event %q", env.Event))
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, apperror.Validation(fmt.Sprintf("%s: data is required", env.Event))
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("%s: invalid payload", env.Event))
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Outbound payloads

type ConnectionEstablishedPayload struct {
	ConnectionID         string    `json:"connectionId"`
	UserID               string    `json:"userId"`
	Presence             *Presence `json:"presence"`
	PendingNotifications int64     `json:"pendingNotifications"`
}

type MembershipPayload struct {
	RoomID      string     `json:"roomId"`
	UserID      string     `json:"userId"`
	Role        MemberRole `json:"role,omitempty"`
	MemberCount int        `json:"memberCount"`
	Timestamp   time.Time  `json:"timestamp"`
}

type RoomJoinedPayload struct {
	Room *Room      `json:"room"`
	Role MemberRole `json:"role"`
}

type RoomLeftPayload struct {
	RoomID string `json:"roomId"`
}

type MessageSentPayload struct {
	MessageID string    `json:"messageId"`
	RoomID    string    `json:"roomId"`
	TempID    string    `json:"tempId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type PresenceUpdatePayload struct {
	UserID   string            `json:"userId"`
	Status   PresenceStatus    `json:"status"`
	LastSeen time.Time         `json:"lastSeen"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type MessageReadPayload struct {
	MessageID string    `json:"messageId"`
	RoomID    string    `json:"roomId"`
	ReaderID  string    `json:"readerId"`
	ReadAt    time.Time `json:"readAt"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type ForceDisconnectPayload struct {
	Reason string `json:"reason"`
}
