package usecase

import (
	"context"
	"fmt"
	"time"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	repository "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/port"
)

// ParticipantInput carries member identity plus the denormalized display
// fields the account service resolved for us.
type ParticipantInput struct {
	UserID      string
	DisplayName string
	Email       string
	Role        chat.ParticipantRole
}

// CreateConversationInput carries the required data to open a new conversation.
type CreateConversationInput struct {
	TenantID     string
	Kind         chat.ConversationKind
	Name         *string
	Participants []ParticipantInput
}

// CreateConversationUseCase handles creation of a new conversation and its participants.
// Hexagonal: depends on repository port only.
type CreateConversationUseCase struct {
	Repo repository.ChatRepository
}

func NewCreateConversationUseCase(repo repository.ChatRepository) *CreateConversationUseCase {
	return &CreateConversationUseCase{Repo: repo}
}

// Execute persists a conversation and registers participants.
func (uc *CreateConversationUseCase) Execute(ctx context.Context, in CreateConversationInput) (*chat.Conversation, error) {
	if in.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if len(in.Participants) == 0 {
		return nil, fmt.Errorf("participants must include at least one user id")
	}

	now := time.Now().UTC()
	conv := chat.Conversation{CreatedAt: now, TenantID: in.TenantID, Kind: in.Kind, Name: in.Name}

	members := make([]chat.Participant, 0, len(in.Participants))
	for _, p := range in.Participants {
		if p.UserID == "" {
			continue
		}
		members = append(members, chat.Participant{
			UserID:      p.UserID,
			Role:        p.Role,
			DisplayName: p.DisplayName,
			Email:       p.Email,
		})
	}

	// Kind invariants (individual = exactly two members) live in the aggregate.
	if _, err := chat.NewThread(conv, members); err != nil {
		return nil, err
	}

	id, err := uc.Repo.CreateConversation(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	conv.ID = id

	for _, m := range members {
		m.ConversationID = id
		if err := uc.Repo.AddParticipant(ctx, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	return &conv, nil
}
