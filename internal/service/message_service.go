package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"realtime-service/internal/apperror"
	"realtime-service/internal/broadcast"
	"realtime-service/internal/clock"
	"realtime-service/internal/domain"
	"realtime-service/internal/metrics"
	"realtime-service/internal/repository"
)

// MessageStore persists dispatched messages.
type MessageStore interface {
	Save(ctx context.Context, msg *domain.Message) error
}

// Notifier queues an event for a user with no live connection.
type Notifier interface {
	SendOffline(ctx context.Context, userID, event string, payload any) error
}

type RoomReader interface {
	GetRoom(roomID string) (*domain.Room, error)
	Touch(roomID string)
}

type PresenceReader interface {
	Get(userID string) (*domain.Presence, bool)
}

type TypingStopper interface {
	Stop(userID, roomID string) bool
}

type MessageOptions struct {
	MaxLength      int
	PersistTimeout time.Duration
}

// MessageService dispatches room messages and tracks per-recipient delivery.
type MessageService struct {
	rooms       RoomReader
	deliveries  repository.DeliveryStore
	store       MessageStore
	notifier    Notifier
	presence    PresenceReader
	typing      TypingStopper
	broadcaster broadcast.Broadcaster
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *zap.Logger
	opts        MessageOptions

	wg sync.WaitGroup
}

func NewMessageService(
	rooms RoomReader,
	deliveries repository.DeliveryStore,
	store MessageStore,
	notifier Notifier,
	presence PresenceReader,
	typing TypingStopper,
	broadcaster broadcast.Broadcaster,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts MessageOptions,
) *MessageService {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 4000
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	return &MessageService{
		rooms:       rooms,
		deliveries:  deliveries,
		store:       store,
		notifier:    notifier,
		presence:    presence,
		typing:      typing,
		broadcaster: broadcaster,
		clock:       clk,
		metrics:     m,
		logger:      logger,
		opts:        opts,
	}
}

// Send validates and broadcasts a message to the sender's room. Persistence
// and offline notification run in the background and never undo the broadcast.
func (s *MessageService) Send(ctx context.Context, senderID, roomID, content string, msgType domain.MessageType, replyTo *string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > s.opts.MaxLength {
		return nil, apperror.Validation(fmt.Sprintf("content exceeds %d characters", s.opts.MaxLength))
	}
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, apperror.Validation("unknown message type " + string(msgType))
	}

	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeNotFound) {
			return nil, apperror.Permission("not a member of room " + roomID)
		}
		return nil, err
	}
	if _, ok := room.Members[senderID]; !ok {
		return nil, apperror.Permission("not a member of room " + roomID)
	}

	now := s.clock.Now()
	msg := &domain.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		RoomID:    roomID,
		Content:   content,
		Type:      msgType,
		ReplyTo:   replyTo,
		Timestamp: now,
	}

	recipients := room.MemberIDs(senderID)
	statuses := make([]domain.DeliveryStatus, 0, len(recipients))
	for _, recipientID := range recipients {
		statuses = append(statuses, domain.DeliveryStatus{
			MessageID:   msg.ID,
			RecipientID: recipientID,
			SenderID:    senderID,
			RoomID:      roomID,
			Status:      domain.DeliverySent,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	s.deliveries.Create(statuses)
	s.rooms.Touch(roomID)

	s.broadcaster.EmitToRoom(roomID, domain.EventMessage, msg, senderID)
	s.typing.Stop(senderID, roomID)

	bg := context.WithoutCancel(ctx)
	s.persist(bg, msg)
	for _, recipientID := range recipients {
		if _, online := s.presence.Get(recipientID); !online {
			s.notifyOffline(bg, recipientID, domain.EventMessage, msg)
		}
	}

	s.metrics.RecordMessageSent(string(msgType))
	return msg, nil
}

// MarkRead moves the reader's delivery record to read and tells the sender.
// It returns false when the record is absent or already read.
func (s *MessageService) MarkRead(messageID, readerID string) (bool, error) {
	if messageID == "" {
		return false, apperror.Validation("messageId is required")
	}

	now := s.clock.Now()
	status, ok := s.deliveries.Advance(messageID, readerID, domain.DeliveryRead, now)
	if !ok {
		return false, nil
	}

	s.broadcaster.EmitToUser(status.SenderID, domain.EventMessageRead, domain.MessageReadPayload{
		MessageID: messageID,
		RoomID:    status.RoomID,
		ReaderID:  readerID,
		ReadAt:    now,
	})
	return true, nil
}

func (s *MessageService) Deliveries(messageID string) []domain.DeliveryStatus {
	return s.deliveries.ForMessage(messageID)
}

// SweepDeliveries drops delivery records created more than olderThan ago.
func (s *MessageService) SweepDeliveries(olderThan time.Duration) int {
	return s.deliveries.DeleteOlderThan(s.clock.Now().Add(-olderThan))
}

// NotifyOffline stores an event for a user that has no live connection.
func (s *MessageService) NotifyOffline(ctx context.Context, userID, event string, payload any) {
	s.notifyOffline(context.WithoutCancel(ctx), userID, event, payload)
}

// Wait blocks until background persistence and notification calls finish.
func (s *MessageService) Wait() {
	s.wg.Wait()
}

func (s *MessageService) persist(ctx context.Context, msg *domain.Message) {
	if s.store == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
		defer cancel()
		if err := s.store.Save(ctx, msg); err != nil {
			s.metrics.RecordPersistFailure()
			s.logger.Warn("Failed to persist message",
				zap.String("messageId", msg.ID),
				zap.String("roomId", msg.RoomID),
				zap.Error(err))
		}
	}()
}

func (s *MessageService) notifyOffline(ctx context.Context, userID, event string, payload any) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
		defer cancel()
		if err := s.notifier.SendOffline(ctx, userID, event, payload); err != nil {
			s.logger.Warn("Failed to queue offline notification",
				zap.String("userId", userID),
				zap.String("event", event),
				zap.Error(err))
		}
	}()
}
