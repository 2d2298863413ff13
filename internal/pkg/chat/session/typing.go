package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTTL is the idle window after which a remote user's typing
// indicator self-heals. The window is session-local: presence is best-effort
// and never blocks on the network.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	conversationID string
	userID         string
}

// TypingTracker holds the ephemeral set of remote users currently typing.
// At most one live timer exists per (conversation, user) pair; a repeated
// signal resets rather than stacks it. Every entry has exactly one clear
// path: explicit stop, idle expiry, or room leave. Nothing here is persisted
// or replayed on reconnect.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	timers   map[typingKey]*time.Timer
	onExpire func(conversationID string, userID string)
	closed   bool
}

// NewTypingTracker constructs a tracker. onExpire runs outside the tracker
// lock when an entry times out; it is not called for explicit stops or room
// leaves (the caller already knows about those).
func NewTypingTracker(ttl time.Duration, onExpire func(conversationID string, userID string)) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:      ttl,
		timers:   make(map[typingKey]*time.Timer),
		onExpire: onExpire,
	}
}

// Start records that userID is typing in conversationID. Returns true when
// the user was not already in the set; a repeated signal only resets the
// idle timer.
func (t *TypingTracker) Start(conversationID string, userID string) bool {
	key := typingKey{conversationID, userID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.ttl)
		return false
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() { t.expire(key) })
	return true
}

// Stop removes the entry for (conversationID, userID). Returns true when an
// entry was actually removed.
func (t *TypingTracker) Stop(conversationID string, userID string) bool {
	key := typingKey{conversationID, userID}

	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// ClearConversation drops all entries for the conversation, as on room leave.
func (t *TypingTracker) ClearConversation(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		if key.conversationID == conversationID {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}

// Typing returns the users currently typing in the conversation, sorted for
// deterministic output.
func (t *TypingTracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for key := range t.timers {
		if key.conversationID == conversationID {
			out = append(out, key.userID)
		}
	}
	sort.Strings(out)
	return out
}

// Len reports the number of live entries across all conversations.
func (t *TypingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Close stops every timer. Further Start calls are ignored.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

func (t *TypingTracker) expire(key typingKey) {
	t.mu.Lock()
	_, ok := t.timers[key]
	if ok {
		delete(t.timers, key)
	}
	onExpire := t.onExpire
	t.mu.Unlock()

	// The entry may already be gone when an explicit stop raced the timer.
	if ok && onExpire != nil {
		onExpire(key.conversationID, key.userID)
	}
}
