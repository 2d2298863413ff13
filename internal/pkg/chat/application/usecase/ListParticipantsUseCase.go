package usecase

import (
	"context"
	"fmt"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	repository "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/port"
)

// ListParticipantsInput identifies the conversation and the viewer asking.
type ListParticipantsInput struct {
	ConversationID string
	ViewerID       string
}

// ListParticipantsUseCase returns all participants in the conversation. The
// roster is only visible to its own members.
type ListParticipantsUseCase struct {
	Repo repository.ChatRepository
}

func NewListParticipantsUseCase(repo repository.ChatRepository) *ListParticipantsUseCase {
	return &ListParticipantsUseCase{Repo: repo}
}

func (uc *ListParticipantsUseCase) Execute(ctx context.Context, in ListParticipantsInput) ([]chat.Participant, error) {
	if in.ConversationID == "" || in.ViewerID == "" {
		return nil, fmt.Errorf("conversation_id and viewer id are required")
	}
	ok, err := uc.Repo.IsParticipant(ctx, in.ConversationID, in.ViewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return nil, chat.ErrNotParticipant
	}

	participants, err := uc.Repo.ListParticipants(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return participants, nil
}
