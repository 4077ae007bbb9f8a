// Package websocket is the connection gateway: it authenticates sockets,
// routes inbound events to the coordinator services and runs the disconnect path.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"realtime-service/internal/apperror"
	"realtime-service/internal/broadcast"
	"realtime-service/internal/client"
	"realtime-service/internal/clock"
	"realtime-service/internal/domain"
	"realtime-service/internal/metrics"
	"realtime-service/internal/ratelimit"
	"realtime-service/internal/service"
)

var upgrader = ws.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// PendingCounter reports queued offline notifications for a user.
type PendingCounter interface {
	CountPending(ctx context.Context, userID string) (int64, error)
}

type Deps struct {
	Verifier    client.TokenVerifier
	Limiter     *ratelimit.Limiter
	Local       *broadcast.Local
	Broadcaster broadcast.Broadcaster
	Presence    *service.PresenceService
	Rooms       *service.RoomService
	Typing      *service.TypingService
	Messages    *service.MessageService
	Pending     PendingCounter
	Clock       clock.Clock
	Metrics     *metrics.Metrics
}

type Options struct {
	ConnectionRule ratelimit.Rule
	MessageRule    ratelimit.Rule
	SendBufferSize int
}

type session struct {
	conn domain.Connection
	sink broadcast.Sink
}

type Hub struct {
	Deps
	opts   Options
	logger *zap.Logger
	newID  func() string
	ctx    context.Context

	mu       sync.RWMutex
	sessions map[string]*session
	byUser   map[string]map[string]struct{}
}

func NewHub(deps Deps, opts Options, logger *zap.Logger) (*Hub, error) {
	newID, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection id generator: %w", err)
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = deps.Local
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &Hub{
		Deps:     deps,
		opts:     opts,
		logger:   logger,
		newID:    newID,
		ctx:      context.Background(),
		sessions: make(map[string]*session),
		byUser:   make(map[string]map[string]struct{}),
	}, nil
}

// HandleWebSocket upgrades an authenticated request. The token comes from the
// token query parameter or an Authorization bearer header.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	remoteAddr := c.ClientIP()
	principal, err := h.Authorize(c.Request.Context(), remoteAddr, tokenFromRequest(c.Request))
	if err != nil {
		appErr := apperror.From(err)
		h.Metrics.RecordWebSocketRejected(appErr.Code)
		h.logger.Warn("WebSocket handshake rejected",
			zap.String("remoteAddr", remoteAddr),
			zap.String("code", appErr.Code))
		c.JSON(apperror.HTTPStatus(appErr.Code), gin.H{"success": false, "error": appErr})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	cl := newClient(conn, h.newID(), principal.UserID, h.opts.SendBufferSize, h.logger)
	h.Attach(cl, principal, remoteAddr)

	go cl.writePump()
	go cl.readPump(h)
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Authorize applies the per-address connection budget and verifies the token.
func (h *Hub) Authorize(ctx context.Context, remoteAddr, token string) (*domain.Principal, error) {
	if err := h.Limiter.Allow(remoteAddr, h.opts.ConnectionRule); err != nil {
		h.Metrics.RecordRateLimited(h.opts.ConnectionRule.Name)
		return nil, err
	}
	if token == "" {
		return nil, apperror.Authentication("token required")
	}
	return h.Verifier.Verify(ctx, token)
}

// Attach registers an authenticated sink: presence goes online, the sink joins
// the user's personal room and receives connection_established.
func (h *Hub) Attach(sink broadcast.Sink, principal *domain.Principal, remoteAddr string) domain.Connection {
	conn := domain.Connection{
		ID:          sink.ID(),
		UserID:      principal.UserID,
		Role:        principal.Role,
		RemoteAddr:  remoteAddr,
		ConnectedAt: h.Clock.Now(),
	}

	h.mu.Lock()
	h.sessions[conn.ID] = &session{conn: conn, sink: sink}
	if h.byUser[conn.UserID] == nil {
		h.byUser[conn.UserID] = make(map[string]struct{})
	}
	h.byUser[conn.UserID][conn.ID] = struct{}{}
	h.mu.Unlock()

	h.Local.Register(sink)
	h.Broadcaster.Join(conn.ID, domain.PersonalRoomID(conn.UserID))
	presence := h.Presence.SetOnline(conn.UserID, conn.ID, nil)

	h.Broadcaster.EmitToConnection(conn.ID, domain.EventConnectionEstablished, domain.ConnectionEstablishedPayload{
		ConnectionID:         conn.ID,
		UserID:               conn.UserID,
		Presence:             presence,
		PendingNotifications: h.pendingCount(conn.UserID),
	})
	h.Metrics.RecordWebSocketConnection()

	h.logger.Info("Client connected",
		zap.String("connectionId", conn.ID),
		zap.String("userId", conn.UserID))
	return conn
}

// Detach runs the disconnect path for a closed connection.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	sess, ok := h.sessions[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, connID)
	userID := sess.conn.UserID
	delete(h.byUser[userID], connID)
	var remaining string
	for other := range h.byUser[userID] {
		remaining = other
		break
	}
	if len(h.byUser[userID]) == 0 {
		delete(h.byUser, userID)
	}
	h.mu.Unlock()

	lastRoom, left := h.Rooms.LeaveConnection(userID, connID)
	if remaining != "" {
		h.Presence.Rebind(userID, remaining)
		if left {
			h.Typing.Stop(userID, lastRoom)
		}
	} else {
		h.Presence.ScheduleOffline(userID, connID, lastRoom)
		h.Typing.ClearUser(userID)
	}

	h.Local.Unregister(connID)
	h.Metrics.RecordWebSocketDisconnection()

	h.logger.Info("Client disconnected",
		zap.String("connectionId", connID),
		zap.String("userId", userID),
		zap.Bool("stillConnected", remaining != ""))
}

// Dispatch decodes and handles one inbound frame. Failures are reported to the
// originating connection only.
func (h *Hub) Dispatch(connID string, raw []byte) {
	h.mu.RLock()
	sess, ok := h.sessions[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	ev, err := domain.DecodeInbound(raw)
	if err != nil {
		h.reject(sess, "invalid", err)
		return
	}
	h.handle(sess, ev)
}

func (h *Hub) handle(sess *session, ev domain.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic in event handler",
				zap.String("event", ev.EventName()),
				zap.String("connectionId", sess.conn.ID),
				zap.Any("panic", r))
			h.reject(sess, ev.EventName(), apperror.Internal(""))
		}
	}()

	var err error
	switch e := ev.(type) {
	case *domain.JoinRoomEvent:
		err = h.onJoinRoom(sess, e)
	case *domain.LeaveRoomEvent:
		err = h.onLeaveRoom(sess, e)
	case *domain.SendMessageEvent:
		err = h.onSendMessage(sess, e)
	case *domain.TypingEvent:
		err = h.onTyping(sess, e)
	case *domain.PresenceEvent:
		err = h.onPresence(sess, e)
	case *domain.MessageReadEvent:
		err = h.onMessageRead(sess, e)
	default:
		err = apperror.Validation("unsupported event " + ev.EventName())
	}
	if err != nil {
		h.reject(sess, ev.EventName(), err)
		return
	}
	h.Metrics.RecordEvent(ev.EventName(), "ok")
}

func (h *Hub) onJoinRoom(sess *session, e *domain.JoinRoomEvent) error {
	userID := sess.conn.UserID
	previous, hadRoom := h.Rooms.RoomOf(userID)
	if _, _, err := h.Rooms.Join(userID, sess.conn.ID, e.RoomID, e.RoomType, e.Permissions); err != nil {
		return err
	}
	if hadRoom && previous != e.RoomID {
		h.Typing.Stop(userID, previous)
	}
	return nil
}

func (h *Hub) onLeaveRoom(sess *session, e *domain.LeaveRoomEvent) error {
	if err := h.Rooms.Leave(sess.conn.UserID, e.RoomID); err != nil {
		return err
	}
	h.Typing.Stop(sess.conn.UserID, e.RoomID)
	return nil
}

func (h *Hub) onSendMessage(sess *session, e *domain.SendMessageEvent) error {
	if err := h.Limiter.Allow(sess.conn.UserID, h.opts.MessageRule); err != nil {
		h.Metrics.RecordRateLimited(h.opts.MessageRule.Name)
		return err
	}

	msg, err := h.Messages.Send(h.ctx, sess.conn.UserID, e.RoomID, e.Content, e.Type, e.ReplyTo)
	if err != nil {
		return err
	}

	h.Broadcaster.EmitToConnection(sess.conn.ID, domain.EventMessageSent, domain.MessageSentPayload{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		TempID:    e.TempID,
		Timestamp: msg.Timestamp,
	})
	return nil
}

func (h *Hub) onTyping(sess *session, e *domain.TypingEvent) error {
	userID := sess.conn.UserID
	if !h.Rooms.IsMember(userID, e.RoomID) {
		return apperror.Permission("not a member of room " + e.RoomID)
	}
	if e.IsTyping {
		h.Typing.Start(userID, e.RoomID)
	} else {
		h.Typing.Stop(userID, e.RoomID)
	}
	return nil
}

func (h *Hub) onPresence(sess *session, e *domain.PresenceEvent) error {
	_, err := h.Presence.UpdateStatus(sess.conn.UserID, e.Status, e.Metadata)
	return err
}

func (h *Hub) onMessageRead(sess *session, e *domain.MessageReadEvent) error {
	_, err := h.Messages.MarkRead(e.MessageID, sess.conn.UserID)
	return err
}

func (h *Hub) reject(sess *session, event string, err error) {
	appErr := apperror.From(err)
	if appErr.Code == apperror.CodeInternal {
		h.logger.Error("Event handler failed",
			zap.String("event", event),
			zap.String("connectionId", sess.conn.ID),
			zap.Error(err))
	} else {
		h.logger.Debug("Event rejected",
			zap.String("event", event),
			zap.String("connectionId", sess.conn.ID),
			zap.String("code", appErr.Code))
	}
	h.Metrics.RecordEvent(event, appErr.Code)
	h.Broadcaster.EmitToConnection(sess.conn.ID, domain.EventError, domain.ErrorPayload{
		Message: appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

func (h *Hub) pendingCount(userID string) int64 {
	if h.Pending == nil {
		return 0
	}
	count, err := h.Pending.CountPending(h.ctx, userID)
	if err != nil {
		h.logger.Debug("Pending notification count unavailable", zap.String("userId", userID), zap.Error(err))
		return 0
	}
	return count
}

// SendToUser delivers to a connected user or queues an offline notification.
// It reports whether the user was online.
func (h *Hub) SendToUser(ctx context.Context, userID, event string, payload any) bool {
	if _, online := h.Presence.Get(userID); online {
		h.Broadcaster.EmitToUser(userID, event, payload)
		return true
	}
	h.Messages.NotifyOffline(ctx, userID, event, payload)
	return false
}

func (h *Hub) BroadcastToRoom(roomID, event string, payload any) {
	h.Broadcaster.EmitToRoom(roomID, event, payload)
}

// DisconnectUser sends force_disconnect with reason to every connection of the
// user and closes them.
func (h *Hub) DisconnectUser(userID, reason string) {
	h.logger.Info("Disconnecting user", zap.String("userId", userID), zap.String("reason", reason))
	h.Broadcaster.Disconnect(userID, reason)
}

// Connection returns the connection registered under connID.
func (h *Hub) Connection(connID string) (domain.Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[connID]
	if !ok {
		return domain.Connection{}, false
	}
	return sess.conn, true
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown closes every connection with a force_disconnect notice.
func (h *Hub) Shutdown(reason string) {
	h.mu.RLock()
	users := make([]string, 0, len(h.byUser))
	for userID := range h.byUser {
		users = append(users, userID)
	}
	h.mu.RUnlock()

	for _, userID := range users {
		h.Local.Disconnect(userID, reason)
	}
}
