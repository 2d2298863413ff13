package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/realtime"
	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
)

const defaultPageSize = 50

// Store is the slice of the conversation store the controller pulls from.
// It is the single source of truth: push events never feed state directly,
// they only cause re-reads through these calls.
type Store interface {
	ListConversations(ctx context.Context, viewerID string, limit int) ([]chat.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error)
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
}

// ReadMarker advances the viewer's read watermark. Implementations must be
// idempotent: marking an already-read conversation is always safe.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID string, userID string) error
}

// Channel is the realtime surface the controller drives. Join and Leave are
// idempotent; EmitTyping is fire-and-forget with no retry (a dropped signal
// self-heals on the next keystroke or the idle timeout).
type Channel interface {
	Join(conversationID string)
	Leave(conversationID string)
	EmitTyping(conversationID string, isTyping bool)
}

// Sink receives the controller's output: refetched snapshots, typing-state
// changes, and transient errors. Implementations push frames to the client.
type Sink interface {
	Messages(conversationID string, msgs []chat.Message)
	Conversations(convs []chat.ConversationSummary)
	Typing(conversationID string, userID string, isTyping bool)
	Error(code string, message string)
}

// Config wires a Controller. PageSize and TypingTTL fall back to defaults
// when zero.
type Config struct {
	UserID    string
	Store     Store
	Marker    ReadMarker
	Channel   Channel
	Sink      Sink
	Logger    *slog.Logger
	PageSize  int
	TypingTTL time.Duration
}

// Controller owns the per-session conversation lifecycle: which room is
// joined, reconciliation of push events with pull-based refetch, typing
// expiry, and read-state side effects.
//
// States: no conversation selected (active == ""), or Active(id) with the
// session joined to exactly one room. Room membership is mutated
// synchronously inside the transition; only the fetches and the read marker
// run asynchronously, guarded against stale completion by conversation id.
type Controller struct {
	userID   string
	store    Store
	marker   ReadMarker
	channel  Channel
	sink     Sink
	logger   *slog.Logger
	pageSize int

	mu     sync.Mutex
	active string
	closed bool

	typing *TypingTracker

	// wg tracks in-flight refetch goroutines so Close can drain them in tests.
	wg sync.WaitGroup
}

// NewController constructs a Controller in the unselected state.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	c := &Controller{
		userID:   cfg.UserID,
		store:    cfg.Store,
		marker:   cfg.Marker,
		channel:  cfg.Channel,
		sink:     cfg.Sink,
		logger:   logger.With("component", "session", "user_id", cfg.UserID),
		pageSize: pageSize,
	}
	c.typing = NewTypingTracker(cfg.TypingTTL, func(conversationID, userID string) {
		// Idle expiry: the remote peer went silent (or its app died without a
		// stop signal) and the indicator self-heals.
		c.mu.Lock()
		stale := c.closed || c.active != conversationID
		c.mu.Unlock()
		if stale {
			return
		}
		c.sink.Typing(conversationID, userID, false)
	})
	return c
}

// Active returns the currently selected conversation id, or "" when none.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Select makes conversationID the active conversation: leave the old room if
// any, join the new one, then asynchronously fetch the message page and mark
// it read. Join happens before the fetch so a message arriving between the
// fetch snapshot and room membership is not silently missed.
//
// Selecting while a previous fetch is still in flight is allowed; the stale
// result is discarded when it resolves (last selected conversation wins).
func (c *Controller) Select(ctx context.Context, conversationID string) error {
	ok, err := c.store.IsParticipant(ctx, conversationID, c.userID)
	if err != nil {
		return err
	}
	if !ok {
		return chat.ErrNotParticipant
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if prev := c.active; prev != "" && prev != conversationID {
		c.channel.Leave(prev)
		c.typing.ClearConversation(prev)
	}
	c.channel.Join(conversationID)
	c.active = conversationID
	c.mu.Unlock()

	c.spawn(func() {
		// Mark read before the list refetch so the viewer's own badge for
		// this conversation already reads zero in the pushed snapshot.
		c.refreshMessages(ctx, conversationID)
		c.markRead(ctx, conversationID)
		c.refreshConversations(ctx)
	})
	return nil
}

// Deselect leaves the active room, if any.
func (c *Controller) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return
	}
	c.channel.Leave(c.active)
	c.typing.ClearConversation(c.active)
	c.active = ""
}

// HandleEvent reacts to a push event. Message events are invalidation
// signals: the active conversation triggers a full refetch plus another
// mark-read (covering a message that landed a moment after the initial
// mark-read), any other conversation refreshes only the list so its badge
// and preview update. Typing events update the ephemeral typing set.
func (c *Controller) HandleEvent(ctx context.Context, ev realtime.Event) {
	switch ev.Type {
	case realtime.EventMessageCreated:
		c.mu.Lock()
		active := c.active
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if ev.ConversationID == active {
			c.spawn(func() {
				c.refreshMessages(ctx, ev.ConversationID)
				c.refreshConversations(ctx)
				c.markRead(ctx, ev.ConversationID)
			})
		} else {
			c.spawn(func() { c.refreshConversations(ctx) })
		}
	case realtime.EventTyping:
		c.handleTyping(ev)
	}
}

// Reconnected re-establishes room membership after the transport came back.
// Rooms are not assumed to survive a reconnect, so the active room is joined
// again and one refetch reconciles whatever was missed while offline.
func (c *Controller) Reconnected(ctx context.Context) {
	c.mu.Lock()
	active := c.active
	closed := c.closed
	if active != "" {
		c.channel.Join(active)
	}
	c.mu.Unlock()
	if closed {
		return
	}

	if active != "" {
		c.spawn(func() {
			c.refreshMessages(ctx, active)
			c.markRead(ctx, active)
			c.refreshConversations(ctx)
		})
	} else {
		c.spawn(func() { c.refreshConversations(ctx) })
	}
}

// AfterSend runs the post-send side effects for the local user: the typing
// indicator is withdrawn immediately instead of waiting for idle expiry. The
// refetch itself arrives through the message event fan-out, which includes
// the sender's session.
func (c *Controller) AfterSend(conversationID string) {
	c.channel.EmitTyping(conversationID, false)
}

// Close releases the typing timers and leaves the active room. Safe to call
// more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.active != "" {
		c.channel.Leave(c.active)
		c.active = ""
	}
	c.mu.Unlock()
	c.typing.Close()
	c.wg.Wait()
}

func (c *Controller) handleTyping(ev realtime.Event) {
	if ev.UserID == c.userID {
		return
	}

	c.mu.Lock()
	interested := !c.closed && ev.ConversationID == c.active
	c.mu.Unlock()
	if !interested {
		return
	}

	if ev.IsTyping {
		if c.typing.Start(ev.ConversationID, ev.UserID) {
			c.sink.Typing(ev.ConversationID, ev.UserID, true)
		}
		return
	}
	if c.typing.Stop(ev.ConversationID, ev.UserID) {
		c.sink.Typing(ev.ConversationID, ev.UserID, false)
	}
}

func (c *Controller) refreshMessages(ctx context.Context, conversationID string) {
	msgs, err := c.store.ListMessages(ctx, conversationID, c.pageSize, 0)
	if err != nil {
		// Transient: the previously delivered page stays on screen.
		c.sink.Error("fetch_failed", "could not load messages")
		return
	}

	c.mu.Lock()
	stale := c.closed || c.active != conversationID
	c.mu.Unlock()
	if stale {
		// The selection moved on while this fetch was in flight.
		return
	}
	c.sink.Messages(conversationID, msgs)
}

func (c *Controller) refreshConversations(ctx context.Context) {
	convs, err := c.store.ListConversations(ctx, c.userID, c.pageSize)
	if err != nil {
		c.sink.Error("fetch_failed", "could not load conversations")
		return
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.sink.Conversations(convs)
}

func (c *Controller) markRead(ctx context.Context, conversationID string) {
	c.mu.Lock()
	stale := c.closed || c.active != conversationID
	c.mu.Unlock()
	if stale {
		return
	}
	if err := c.marker.MarkRead(ctx, conversationID, c.userID); err != nil {
		c.logger.Warn("mark read failed", "error", err, "conversation_id", conversationID)
	}
}

func (c *Controller) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}
