package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
)

func strptr(s string) *string { return &s }

// memRepo is an in-memory chat repository for use case tests.
type memRepo struct {
	mu            sync.Mutex
	conversations map[string]chat.Conversation
	participants  map[string][]chat.Participant
	messages      map[string][]chat.Message
	nextID        int

	saveErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		conversations: map[string]chat.Conversation{},
		participants:  map[string][]chat.Participant{},
		messages:      map[string][]chat.Message{},
	}
}

func (r *memRepo) seedConversation(id string, kind chat.ConversationKind, members ...chat.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[id] = chat.Conversation{ID: id, TenantID: "box-1", Kind: kind}
	for i := range members {
		members[i].ConversationID = id
	}
	r.participants[id] = members
}

func (r *memRepo) CreateConversation(ctx context.Context, c chat.Conversation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := "conv-" + time.Now().Format("150405") + "-" + string(rune('a'+r.nextID))
	c.ID = id
	r.conversations[id] = c
	return id, nil
}

func (r *memRepo) AddParticipant(ctx context.Context, p chat.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ConversationID] = append(r.participants[p.ConversationID], p)
	return nil
}

func (r *memRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants[conversationID] {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListParticipants(ctx context.Context, conversationID string) ([]chat.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Participant(nil), r.participants[conversationID]...), nil
}

func (r *memRepo) ListConversations(ctx context.Context, viewerID string, limit int) ([]chat.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.ConversationSummary
	for id, conv := range r.conversations {
		for _, p := range r.participants[id] {
			if p.UserID == viewerID {
				out = append(out, chat.ConversationSummary{Conversation: conv, Participants: r.participants[id]})
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) SaveMessage(ctx context.Context, m chat.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return "", r.saveErr
	}
	r.nextID++
	m.ID = "msg-" + string(rune('a'+r.nextID))
	r.messages[m.ConversationID] = append(r.messages[m.ConversationID], m)
	return m.ID, nil
}

func (r *memRepo) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Message(nil), r.messages[conversationID]...), nil
}

func (r *memRepo) LastMessageAt(ctx context.Context, conversationID string) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	if len(msgs) == 0 {
		return nil, nil
	}
	at := msgs[len(msgs)-1].CreatedAt
	return &at, nil
}

func (r *memRepo) MarkRead(ctx context.Context, conversationID string, userID string, at time.Time) error {
	return nil
}

func (r *memRepo) CountUnread(ctx context.Context, conversationID string, userID string) (int, error) {
	return 0, nil
}

func TestSendMessage_PersistsAndDenormalizesSender(t *testing.T) {
	repo := newMemRepo()
	repo.seedConversation("conv-1", chat.ConversationKindIndividual,
		chat.Participant{UserID: "alice", DisplayName: "Alice", Email: "alice@box.example"},
		chat.Participant{UserID: "bob", DisplayName: "Bob"},
	)
	uc := NewSendMessageUseCase(repo)

	msg, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Body:           strptr("  nice lift!  "),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "nice lift!", *msg.Body)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, "alice@box.example", msg.SenderEmail)
	assert.False(t, msg.CreatedAt.IsZero())

	stored, err := repo.ListMessages(context.Background(), "conv-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSendMessage_RejectsNonParticipant(t *testing.T) {
	repo := newMemRepo()
	repo.seedConversation("conv-1", chat.ConversationKindIndividual,
		chat.Participant{UserID: "alice"},
		chat.Participant{UserID: "bob"},
	)
	uc := NewSendMessageUseCase(repo)

	_, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "mallory",
		Body:           strptr("hi"),
	})
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
	stored, _ := repo.ListMessages(context.Background(), "conv-1", 50, 0)
	assert.Empty(t, stored)
}

func TestSendMessage_RejectsEmptyContent(t *testing.T) {
	repo := newMemRepo()
	repo.seedConversation("conv-1", chat.ConversationKindIndividual,
		chat.Participant{UserID: "alice"},
		chat.Participant{UserID: "bob"},
	)
	uc := NewSendMessageUseCase(repo)

	_, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Body:           strptr("   "),
	})
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestSendMessage_SystemMessageNeedsNoBody(t *testing.T) {
	repo := newMemRepo()
	repo.seedConversation("conv-1", chat.ConversationKindIndividual,
		chat.Participant{UserID: "alice"},
		chat.Participant{UserID: "bob"},
	)
	uc := NewSendMessageUseCase(repo)

	msg, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		MsgType:        chat.MessageTypeSystem,
	})
	require.NoError(t, err)
	assert.Equal(t, chat.MessageTypeSystem, msg.MsgType)
	assert.Nil(t, msg.Body)
}

func TestSendMessage_WrapsPersistenceFailure(t *testing.T) {
	repo := newMemRepo()
	repo.seedConversation("conv-1", chat.ConversationKindIndividual,
		chat.Participant{UserID: "alice"},
		chat.Participant{UserID: "bob"},
	)
	repo.saveErr = errors.New("connection reset")
	uc := NewSendMessageUseCase(repo)

	_, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Body:           strptr("hi"),
	})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestGetMessages_RequiresMembership(t *testing.T) {
	repo := newMemRepo()
	repo.seedConversation("conv-1", chat.ConversationKindIndividual,
		chat.Participant{UserID: "alice"},
		chat.Participant{UserID: "bob"},
	)
	send := NewSendMessageUseCase(repo)
	_, err := send.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Body:           strptr("hi"),
	})
	require.NoError(t, err)
	uc := NewGetMessagesUseCase(repo)

	_, err = uc.Execute(context.Background(), GetMessagesInput{
		ConversationID: "conv-1",
		ViewerID:       "mallory",
	})
	assert.ErrorIs(t, err, chat.ErrNotParticipant)

	msgs, err := uc.Execute(context.Background(), GetMessagesInput{
		ConversationID: "conv-1",
		ViewerID:       "bob",
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestListParticipants_RequiresMembership(t *testing.T) {
	repo := newMemRepo()
	repo.seedConversation("conv-1", chat.ConversationKindGroup,
		chat.Participant{UserID: "coach"},
		chat.Participant{UserID: "alice"},
	)
	uc := NewListParticipantsUseCase(repo)

	_, err := uc.Execute(context.Background(), ListParticipantsInput{
		ConversationID: "conv-1",
		ViewerID:       "mallory",
	})
	assert.ErrorIs(t, err, chat.ErrNotParticipant)

	members, err := uc.Execute(context.Background(), ListParticipantsInput{
		ConversationID: "conv-1",
		ViewerID:       "alice",
	})
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestCreateConversation_IndividualNeedsTwoMembers(t *testing.T) {
	repo := newMemRepo()
	uc := NewCreateConversationUseCase(repo)

	_, err := uc.Execute(context.Background(), CreateConversationInput{
		TenantID:     "box-1",
		Kind:         chat.ConversationKindIndividual,
		Participants: []ParticipantInput{{UserID: "alice"}},
	})
	assert.ErrorIs(t, err, chat.ErrIndividualSize)
}

func TestCreateConversation_RegistersParticipants(t *testing.T) {
	repo := newMemRepo()
	uc := NewCreateConversationUseCase(repo)

	conv, err := uc.Execute(context.Background(), CreateConversationInput{
		TenantID: "box-1",
		Kind:     chat.ConversationKindGroup,
		Name:     strptr("Competition Team"),
		Participants: []ParticipantInput{
			{UserID: "coach", DisplayName: "Coach", Role: chat.ParticipantRoleCoach},
			{UserID: "alice", DisplayName: "Alice"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	members, err := repo.ListParticipants(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, chat.ParticipantRoleCoach, members[0].Role)
	for _, m := range members {
		assert.Equal(t, conv.ID, m.ConversationID)
	}
}
