package chat

import "time"

// ConversationKind distinguishes 1:1 threads from group threads
// 0=individual, 1=group
type ConversationKind int16

const (
	ConversationKindIndividual ConversationKind = 0
	ConversationKindGroup      ConversationKind = 1
)

// Conversation represents a durable thread of messages between participants
type Conversation struct {
	ID        string           `db:"id"`
	CreatedAt time.Time        `db:"created_at"`
	TenantID  string           `db:"tenant_id"`
	Kind      ConversationKind `db:"kind"`
	Name      *string          `db:"name"` // nil for individual threads; derived from the counterpart
}

// ConversationSummary is the viewer-scoped projection returned by conversation
// listings: the thread plus its members, a denormalized last-message preview
// and the viewer's unread count.
type ConversationSummary struct {
	Conversation
	Participants    []Participant
	LastMessageBody *string
	LastMessageAt   *time.Time
	UnreadCount     int
}

// DisplayName resolves the name shown to viewerID. Group threads use the
// stored name; individual threads derive it from the counterpart participant.
func (s *ConversationSummary) DisplayName(viewerID string) string {
	if s.Kind == ConversationKindGroup {
		if s.Name != nil {
			return *s.Name
		}
		return ""
	}
	for i := range s.Participants {
		p := &s.Participants[i]
		if p.UserID != viewerID {
			if p.DisplayName != "" {
				return p.DisplayName
			}
			return p.Email
		}
	}
	return ""
}
