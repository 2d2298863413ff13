package fanout

import (
	"context"
	"encoding/json"
	"log/slog"

	qport "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/queue/port"
	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/realtime"
	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/task"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/unread"
	repository "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/port"
)

// Fanout propagates store mutations to everything that listens: locally
// connected sessions, peer nodes over the bridge, the unread cache, and the
// offline-notification queue. Push delivery is best-effort; the store stays
// authoritative and every receiver refetches from it.
type Fanout struct {
	Router  *realtime.Router
	Bridge  *realtime.Bridge // nil when redis is unavailable
	Queue   qport.Client     // nil when the queue backend is unavailable
	Tracker *unread.Tracker
	Repo    repository.ChatRepository
	Logger  *slog.Logger
}

func New(router *realtime.Router, bridge *realtime.Bridge, queue qport.Client,
	tracker *unread.Tracker, repo repository.ChatRepository, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		Router:  router,
		Bridge:  bridge,
		Queue:   queue,
		Tracker: tracker,
		Repo:    repo,
		Logger:  logger.With("component", "fanout"),
	}
}

// MessageCreated runs after a message was persisted. The event carries only
// identifiers: receivers treat it as an invalidation signal and re-pull the
// page and the conversation list from the store.
func (f *Fanout) MessageCreated(ctx context.Context, msg chat.Message) {
	participants, err := f.Repo.ListParticipants(ctx, msg.ConversationID)
	if err != nil {
		f.Logger.Error("list participants for fanout", "error", err, "conversation_id", msg.ConversationID)
		return
	}

	ids := make([]string, 0, len(participants))
	others := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
		if p.UserID != msg.SenderID {
			others = append(others, p.UserID)
		}
	}

	// Counts only move for the other members; the sender's stays put.
	f.Tracker.Invalidate(ctx, msg.ConversationID, others...)

	ev := realtime.Event{
		Type:           realtime.EventMessageCreated,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		ParticipantIDs: ids,
	}
	// The sender's own session is included so it refetches too and renders
	// the persisted message instead of a local echo.
	f.Router.DispatchUsers(ids, ev)
	if f.Bridge != nil {
		f.Bridge.Publish(ctx, ev)
	}

	f.enqueueNotify(ctx, msg)
}

// TypingChanged broadcasts ephemeral typing presence to the conversation room
// and to peer nodes. Fire-and-forget: a dropped signal self-heals on the next
// keystroke or the idle timeout.
func (f *Fanout) TypingChanged(ctx context.Context, conversationID string, userID string, isTyping bool) {
	ev := realtime.Event{
		Type:           realtime.EventTyping,
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	}
	f.Router.DispatchRoom(conversationID, ev, userID)
	if f.Bridge != nil {
		f.Bridge.Publish(ctx, ev)
	}
}

func (f *Fanout) enqueueNotify(ctx context.Context, msg chat.Message) {
	if f.Queue == nil {
		return
	}
	payload, err := json.Marshal(task.NotifyMessagePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
	})
	if err != nil {
		f.Logger.Error("encode notify payload", "error", err)
		return
	}
	opts := qport.EnqueueOption{Queue: "chat", MaxRetry: 10}
	if _, err := f.Queue.Enqueue(ctx, qport.Task{Type: task.NotifyMessageTaskType, Payload: payload}, opts); err != nil {
		f.Logger.Warn("enqueue notify task", "error", err, "message_id", msg.ID)
	}
}
