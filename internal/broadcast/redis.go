package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"realtime-service/internal/domain"
)

const publishTimeout = 2 * time.Second

// relay kinds
const (
	kindRooms      = "rooms"
	kindUser       = "user"
	kindConnection = "connection"
	kindDisconnect = "disconnect"
)

// relayMessage is what instances exchange on the shared channel.
type relayMessage struct {
	Origin  string          `json:"origin"`
	Kind    string          `json:"kind"`
	Targets []string        `json:"targets"`
	Frame   json.RawMessage `json:"frame"`
	Exclude []string        `json:"exclude,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis delivers to local sinks first and then relays the frame over Redis
// pub/sub so other instances can reach their own sinks.
// Room subscriptions stay local to the instance holding the connection.
type Redis struct {
	*Local
	client    redis.UniversalClient
	publisher publisher
	channel   string
	origin    string
	logger    *zap.Logger
}

func NewRedis(local *Local, client redis.UniversalClient, channel string, logger *zap.Logger) *Redis {
	return &Redis{
		Local:     local,
		client:    client,
		publisher: client,
		channel:   channel,
		origin:    uuid.NewString(),
		logger:    logger,
	}
}

func (r *Redis) EmitToRoom(roomID, event string, payload any, exclude ...string) {
	r.EmitToRooms([]string{roomID}, event, payload, exclude...)
}

func (r *Redis) EmitToRooms(roomIDs []string, event string, payload any, exclude ...string) {
	frame, ok := r.encode(event, payload)
	if !ok {
		return
	}
	r.deliverToRooms(roomIDs, frame, exclude)
	r.publish(relayMessage{Kind: kindRooms, Targets: roomIDs, Frame: frame, Exclude: exclude})
}

func (r *Redis) EmitToUser(userID, event string, payload any) {
	frame, ok := r.encode(event, payload)
	if !ok {
		return
	}
	r.deliverToUser(userID, frame)
	r.publish(relayMessage{Kind: kindUser, Targets: []string{userID}, Frame: frame})
}

// EmitToConnection only relays when the connection is not local.
func (r *Redis) EmitToConnection(connID, event string, payload any) {
	frame, ok := r.encode(event, payload)
	if !ok {
		return
	}
	if r.deliverToConnection(connID, frame) > 0 {
		return
	}
	r.publish(relayMessage{Kind: kindConnection, Targets: []string{connID}, Frame: frame})
}

func (r *Redis) Disconnect(userID, reason string) {
	r.Local.Disconnect(userID, reason)
	frame, ok := r.encode(domain.EventForceDisconnect, domain.ForceDisconnectPayload{Reason: reason})
	if !ok {
		return
	}
	r.publish(relayMessage{Kind: kindDisconnect, Targets: []string{userID}, Frame: frame})
}

func (r *Redis) publish(msg relayMessage) {
	msg.Origin = r.origin
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("Failed to marshal relay message", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("Failed to publish relay message",
			zap.String("channel", r.channel),
			zap.String("kind", msg.Kind),
			zap.Error(err))
	}
}

// Run subscribes to the relay channel until ctx is cancelled.
func (r *Redis) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("Subscribed to relay channel", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

// handle applies a relayed frame to local sinks. Frames published by this
// instance were already delivered locally.
func (r *Redis) handle(payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("Ignoring malformed relay message", zap.Error(err))
		return
	}
	if msg.Origin == r.origin {
		return
	}

	switch msg.Kind {
	case kindRooms:
		r.deliverToRooms(msg.Targets, msg.Frame, msg.Exclude)
	case kindUser:
		for _, userID := range msg.Targets {
			r.deliverToUser(userID, msg.Frame)
		}
	case kindConnection:
		for _, connID := range msg.Targets {
			r.deliverToConnection(connID, msg.Frame)
		}
	case kindDisconnect:
		for _, userID := range msg.Targets {
			r.disconnectUser(userID, msg.Frame)
		}
	default:
		r.logger.Warn("Ignoring unknown relay kind", zap.String("kind", msg.Kind))
	}
}
