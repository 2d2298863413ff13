package realtime

// EventType identifies push events flowing through rooms and across nodes.
type EventType string

const (
	// EventMessageCreated notifies that a message was persisted. It is an
	// invalidation signal, not a data payload: receivers refetch from the
	// store instead of appending locally.
	EventMessageCreated EventType = "message.created"
	// EventTyping carries ephemeral typing-presence state. Never persisted,
	// never replayed on reconnect.
	EventTyping EventType = "typing"
)

// Event is the envelope dispatched to connected sessions and published to
// peer nodes. ParticipantIDs carries conversation membership so remote nodes
// can route message events without a store lookup. Origin is the publishing
// node id, used to skip events a node already dispatched locally.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
	ParticipantIDs []string  `json:"participant_ids,omitempty"`
	Origin         string    `json:"origin,omitempty"`
}

// EventHandler receives events dispatched to a session. Handlers run on
// their own goroutine and must be safe for concurrent invocation.
type EventHandler func(Event)
