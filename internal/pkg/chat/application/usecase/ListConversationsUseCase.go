package usecase

import (
	"context"
	"fmt"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	repository "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/port"
)

// ListConversationsInput wraps the viewer identity for a conversation listing.
type ListConversationsInput struct {
	ViewerID string
	Limit    int
}

// ListConversationsUseCase returns the viewer's conversations ordered by most
// recent activity, carrying preview and unread state.
type ListConversationsUseCase struct {
	Repo repository.ChatRepository
}

func NewListConversationsUseCase(repo repository.ChatRepository) *ListConversationsUseCase {
	return &ListConversationsUseCase{Repo: repo}
}

func (uc *ListConversationsUseCase) Execute(ctx context.Context, in ListConversationsInput) ([]chat.ConversationSummary, error) {
	if in.ViewerID == "" {
		return nil, fmt.Errorf("viewer_id is required")
	}
	summaries, err := uc.Repo.ListConversations(ctx, in.ViewerID, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return summaries, nil
}
