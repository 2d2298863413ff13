package chat

import (
	"errors"
	"time"
)

// Domain-level errors for chat behaviors
var (
	ErrInvalidConversation = errors.New("chat: conversation/message mismatch")
	ErrNotParticipant      = errors.New("chat: user is not a participant in the conversation")
	ErrBackdatedMessage    = errors.New("chat: message timestamp is backdated")
	ErrEmptyMessage        = errors.New("chat: empty message (no body or attachment)")
	ErrIndividualSize      = errors.New("chat: individual conversation requires exactly two participants")
)

// Thread is the domain aggregate for a conversation and its invariants.
//
// The application layer hydrates it with participants and the last message
// timestamp before invoking its behaviors; persistence stays outside the
// domain.
type Thread struct {
	Conversation  Conversation
	Participants  map[string]Participant // keyed by userID
	LastMessageAt *time.Time             // last persisted message CreatedAt, if known
}

// NewThread validates conversation-level invariants before creation.
// An individual conversation has exactly two participants.
func NewThread(conv Conversation, participants []Participant) (*Thread, error) {
	if conv.Kind == ConversationKindIndividual && len(participants) != 2 {
		return nil, ErrIndividualSize
	}
	byID := make(map[string]Participant, len(participants))
	for _, p := range participants {
		byID[p.UserID] = p
	}
	return &Thread{Conversation: conv, Participants: byID}, nil
}

// HasParticipant tells whether userID is part of this thread.
func (t *Thread) HasParticipant(userID string) bool {
	if t == nil || t.Participants == nil {
		return false
	}
	_, ok := t.Participants[userID]
	return ok
}

// PostMessage applies domain rules and returns a validated message ready to
// persist.
//
// Validations:
// - Conversation/message identity must match
// - Sender must be a participant
// - Message must not be backdated relative to LastMessageAt (if known)
// - Non-system messages must include either body or attachment
//
// Behavior:
// - If m.CreatedAt is zero, it is set to now.
// - On success, t.LastMessageAt is advanced to m.CreatedAt.
func (t *Thread) PostMessage(m Message, now time.Time) (Message, error) {
	if m.ConversationID == "" || t.Conversation.ID == "" || m.ConversationID != t.Conversation.ID {
		return Message{}, ErrInvalidConversation
	}

	if !t.HasParticipant(m.SenderID) {
		return Message{}, ErrNotParticipant
	}

	ts := m.CreatedAt
	if ts.IsZero() {
		if now.IsZero() {
			now = time.Now().UTC()
		}
		ts = now.UTC()
	}

	// Messages are totally ordered by creation timestamp within a conversation.
	if t.LastMessageAt != nil && ts.Before(t.LastMessageAt.UTC()) {
		return Message{}, ErrBackdatedMessage
	}

	if m.MsgType != MessageTypeSystem {
		if m.Body == nil && m.AttachmentURL == nil {
			return Message{}, ErrEmptyMessage
		}
	}

	m.CreatedAt = ts
	t.LastMessageAt = &ts

	return m, nil
}
