package task

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	qport "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/queue/port"
	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/realtime"
	repoAdapter "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/adapter"
)

// NotifyMessageTaskType is the queue task name for offline-notification
// fan-out after a message is persisted.
const NotifyMessageTaskType = "chat:notify_message"

// NotifyMessagePayload is the JSON payload transported via the queue.
// Kept decoupled from domain types to avoid tight coupling with JSON tags.
type NotifyMessagePayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
}

// Notifier delivers a push notification for userID about a new message.
// The platform's push gateway is external; the default used in main logs the
// delivery intent so the pipeline is observable without a provider.
type Notifier func(ctx context.Context, userID string, p NotifyMessagePayload) error

// RegisterNotifyMessageTask binds the notification handler to the queue
// server. Recipients connected to this node already received the realtime
// event and are skipped; muted participants are skipped too.
func RegisterNotifyMessageTask(srv qport.Server, pool *pgxpool.Pool, router *realtime.Router, notify Notifier, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "notify-task")

	srv.Register(NotifyMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p NotifyMessagePayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: retrying will not help
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		repo := repoAdapter.NewPgChatRepository(pool)
		participants, err := repo.ListParticipants(ctx, p.ConversationID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, member := range participants {
			if member.UserID == p.SenderID {
				continue
			}
			if member.Muted(now) {
				continue
			}
			if router != nil && router.Connected(member.UserID) {
				continue
			}
			if notify == nil {
				continue
			}
			if err := notify(ctx, member.UserID, p); err != nil {
				log.Warn("push delivery failed", "error", err, "user_id", member.UserID, "message_id", p.MessageID)
			}
		}
		return nil
	})
}
