package usecase

import (
	"context"
	"fmt"
	"time"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	repository "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries the data needed to send a new message.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Body           *string
	MsgType        chat.MessageType
	AttachmentURL  *string
	AttachmentMeta *string
	DedupeKey      *string
}

// SendMessageUseCase persists a new message after the aggregate validates it.
// Hexagonal: depends on repository port, returns domain entity.
type SendMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewSendMessageUseCase(repo repository.ChatRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo}
}

// Execute sends/persists a new message for a conversation.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return nil, fmt.Errorf("conversationId and senderId are required")
	}

	participants, err := uc.Repo.ListParticipants(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	lastAt, err := uc.Repo.LastMessageAt(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	thread := &chat.Thread{
		Conversation:  chat.Conversation{ID: in.ConversationID},
		Participants:  make(map[string]chat.Participant, len(participants)),
		LastMessageAt: lastAt,
	}
	for _, p := range participants {
		thread.Participants[p.UserID] = p
	}

	msg, err := chat.NewMessage(chat.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		MsgType:        in.MsgType,
		AttachmentURL:  in.AttachmentURL,
		AttachmentMeta: in.AttachmentMeta,
		DedupeKey:      in.DedupeKey,
	})
	if err != nil {
		return nil, err
	}

	posted, err := thread.PostMessage(*msg, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// Persist letting the DB generate the ID.
	id, err := uc.Repo.SaveMessage(ctx, posted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	posted.ID = id
	if sender, ok := thread.Participants[in.SenderID]; ok {
		posted.SenderName = sender.DisplayName
		posted.SenderEmail = sender.Email
	}
	return &posted, nil
}
