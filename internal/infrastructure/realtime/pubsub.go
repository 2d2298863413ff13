package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const eventChannel = "chat:events"

// Bridge relays push events between nodes over redis pub/sub so members
// connected to different instances still receive invalidation signals.
// Events published on this node carry its Origin id and are skipped when they
// come back around on the subscription.
type Bridge struct {
	client *redis.Client
	router *Router
	node   string
	logger *slog.Logger
}

// NewBridgeFromEnv constructs a Bridge using the REDIS_URL environment variable.
func NewBridgeFromEnv(router *Router, logger *slog.Logger) (*Bridge, error) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		return nil, errors.New("bridge: REDIS_URL environment variable is not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("bridge: parse url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client: redis.NewClient(opt),
		router: router,
		node:   uuid.NewString(),
		logger: logger.With("component", "bridge"),
	}, nil
}

// Publish sends the event to peer nodes. Fire-and-forget: a dropped event
// self-heals on the next pull since the store stays authoritative.
func (b *Bridge) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	ev.Origin = b.node
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("encode event", "error", err)
		return
	}
	if err := b.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		b.logger.Warn("publish event", "error", err, "conversation_id", ev.ConversationID)
	}
}

// Run subscribes to the event channel and dispatches remote events into the
// local router until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	if b == nil {
		return nil
	}
	sub := b.client.Subscribe(ctx, eventChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(msg.Payload)
		}
	}
}

// Close releases the underlying redis client.
func (b *Bridge) Close() error {
	if b == nil {
		return nil
	}
	return b.client.Close()
}

func (b *Bridge) dispatch(payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.logger.Warn("decode event", "error", err)
		return
	}
	if ev.Origin == b.node {
		return
	}
	switch ev.Type {
	case EventMessageCreated:
		b.router.DispatchUsers(ev.ParticipantIDs, ev)
	case EventTyping:
		b.router.DispatchRoom(ev.ConversationID, ev, ev.UserID)
	default:
		b.logger.Debug("unknown event type", "type", string(ev.Type))
	}
}
