package chat

import "time"

// ParticipantRole expresses the role within a conversation
// 0 = member (default); extra values reserved for future group roles
type ParticipantRole int16

const (
	ParticipantRoleMember ParticipantRole = 0
	ParticipantRoleCoach  ParticipantRole = 1
)

// Participant captures membership and read/mute state.
// DisplayName and Email are denormalized from the account service for
// rendering; the chat domain does not own them.
// Primary key: (ConversationID, UserID)
type Participant struct {
	ConversationID string          `db:"conversation_id"`
	UserID         string          `db:"user_id"`
	Role           ParticipantRole `db:"role"`
	DisplayName    string          `db:"display_name"`
	Email          string          `db:"email"`
	LastReadMsg    *string         `db:"last_read_msg"`
	LastReadAt     *time.Time      `db:"last_read_at"`
	MutedUntil     *time.Time      `db:"muted_until"`
}

// Muted reports whether notifications for this participant are suppressed at t.
func (p *Participant) Muted(t time.Time) bool {
	return p.MutedUntil != nil && t.Before(*p.MutedUntil)
}
