package repository

import (
	"context"
	"time"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
)

// ChatRepository defines persistence operations for the chat domain.
// The store is the single source of truth: push events never mutate it from
// the client side, they only trigger re-reads through these operations.
type ChatRepository interface {
	CreateConversation(ctx context.Context, c chat.Conversation) (string, error)
	AddParticipant(ctx context.Context, p chat.Participant) error
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
	ListParticipants(ctx context.Context, conversationID string) ([]chat.Participant, error)

	// ListConversations returns the viewer's conversations ordered by most
	// recent activity, with last-message preview and unread count resolved.
	ListConversations(ctx context.Context, viewerID string, limit int) ([]chat.ConversationSummary, error)

	SaveMessage(ctx context.Context, m chat.Message) (string, error)
	// ListMessages returns messages ordered by creation time ascending.
	ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error)
	LastMessageAt(ctx context.Context, conversationID string) (*time.Time, error)

	// MarkRead advances the viewer's read watermark. Idempotent.
	MarkRead(ctx context.Context, conversationID string, userID string, at time.Time) error
	CountUnread(ctx context.Context, conversationID string, userID string) (int, error)
}
