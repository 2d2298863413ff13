package usecase

import (
	"context"
	"fmt"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	repository "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/port"
)

// GetMessagesInput carries parameters to fetch messages of a conversation.
type GetMessagesInput struct {
	ConversationID string
	ViewerID       string
	Limit          int
	Offset         int
}

// GetMessagesUseCase fetches the message page for a conversation, server
// order (creation time ascending).
type GetMessagesUseCase struct {
	Repo repository.ChatRepository
}

func NewGetMessagesUseCase(repo repository.ChatRepository) *GetMessagesUseCase {
	return &GetMessagesUseCase{Repo: repo}
}

// Execute returns messages for the conversation honoring limit/offset. The
// viewer must be a participant.
func (uc *GetMessagesUseCase) Execute(ctx context.Context, in GetMessagesInput) ([]chat.Message, error) {
	if in.ConversationID == "" || in.ViewerID == "" {
		return nil, fmt.Errorf("conversationId and viewer id are required")
	}
	ok, err := uc.Repo.IsParticipant(ctx, in.ConversationID, in.ViewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return nil, chat.ErrNotParticipant
	}
	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID, in.Limit, in.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}
