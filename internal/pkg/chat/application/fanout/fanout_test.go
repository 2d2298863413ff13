package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qport "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/queue/port"
	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/realtime"
	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/task"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/unread"
)

type noopSocket struct{}

func (noopSocket) WriteMessage(int, []byte) error            { return nil }
func (noopSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (noopSocket) SetWriteDeadline(time.Time) error          { return nil }
func (noopSocket) Close() error                              { return nil }

type eventRecorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *eventRecorder) handler() realtime.EventHandler {
	return func(ev realtime.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *eventRecorder) snapshot() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

type fanoutRepo struct {
	participants []chat.Participant
}

func (r *fanoutRepo) ListParticipants(ctx context.Context, conversationID string) ([]chat.Participant, error) {
	return r.participants, nil
}
func (r *fanoutRepo) CreateConversation(ctx context.Context, c chat.Conversation) (string, error) {
	return "", nil
}
func (r *fanoutRepo) AddParticipant(ctx context.Context, p chat.Participant) error { return nil }
func (r *fanoutRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	return false, nil
}
func (r *fanoutRepo) ListConversations(ctx context.Context, viewerID string, limit int) ([]chat.ConversationSummary, error) {
	return nil, nil
}
func (r *fanoutRepo) SaveMessage(ctx context.Context, m chat.Message) (string, error) { return "", nil }
func (r *fanoutRepo) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	return nil, nil
}
func (r *fanoutRepo) LastMessageAt(ctx context.Context, conversationID string) (*time.Time, error) {
	return nil, nil
}
func (r *fanoutRepo) MarkRead(ctx context.Context, conversationID string, userID string, at time.Time) error {
	return nil
}
func (r *fanoutRepo) CountUnread(ctx context.Context, conversationID string, userID string) (int, error) {
	return 0, nil
}

type captureQueue struct {
	mu    sync.Mutex
	tasks []qport.Task
	opts  []qport.EnqueueOption
}

func (q *captureQueue) Enqueue(ctx context.Context, t qport.Task, opts ...qport.EnqueueOption) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	q.opts = append(q.opts, opts...)
	return "task-1", nil
}

func (q *captureQueue) Close() error { return nil }

func (q *captureQueue) enqueued() []qport.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]qport.Task(nil), q.tasks...)
}

func TestMessageCreated_DispatchesToAllParticipantsIncludingSender(t *testing.T) {
	router := realtime.NewRouter()
	defer router.Close()

	aliceRec, bobRec := &eventRecorder{}, &eventRecorder{}
	router.Attach(realtime.NewConnection("alice", noopSocket{}), aliceRec.handler())
	router.Attach(realtime.NewConnection("bob", noopSocket{}), bobRec.handler())

	repo := &fanoutRepo{participants: []chat.Participant{
		{UserID: "alice"}, {UserID: "bob"}, {UserID: "offline-carol"},
	}}
	queue := &captureQueue{}
	f := New(router, nil, queue, unread.NewTracker(repo, nil, nil), repo, nil)

	f.MessageCreated(context.Background(), chat.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "alice",
		SenderName:     "Alice",
	})

	// The sender refetches too: its local echo is replaced by the persisted row.
	require.Eventually(t, func() bool {
		return len(aliceRec.snapshot()) == 1 && len(bobRec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	ev := bobRec.snapshot()[0]
	assert.Equal(t, realtime.EventMessageCreated, ev.Type)
	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.Equal(t, "m1", ev.MessageID)
	assert.ElementsMatch(t, []string{"alice", "bob", "offline-carol"}, ev.ParticipantIDs)

	// Offline participants are reached through the notification queue.
	tasks := queue.enqueued()
	require.Len(t, tasks, 1)
	assert.Equal(t, task.NotifyMessageTaskType, tasks[0].Type)

	var payload task.NotifyMessagePayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &payload))
	assert.Equal(t, "m1", payload.MessageID)
	assert.Equal(t, "Alice", payload.SenderName)
}

func TestMessageCreated_WithoutQueueStillDispatches(t *testing.T) {
	router := realtime.NewRouter()
	defer router.Close()

	bobRec := &eventRecorder{}
	router.Attach(realtime.NewConnection("bob", noopSocket{}), bobRec.handler())

	repo := &fanoutRepo{participants: []chat.Participant{{UserID: "alice"}, {UserID: "bob"}}}
	f := New(router, nil, nil, unread.NewTracker(repo, nil, nil), repo, nil)

	f.MessageCreated(context.Background(), chat.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice"})

	require.Eventually(t, func() bool {
		return len(bobRec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTypingChanged_ReachesRoomMembersExceptOriginator(t *testing.T) {
	router := realtime.NewRouter()
	defer router.Close()

	aliceConn := realtime.NewConnection("alice", noopSocket{})
	bobConn := realtime.NewConnection("bob", noopSocket{})
	aliceRec, bobRec := &eventRecorder{}, &eventRecorder{}
	router.Attach(aliceConn, aliceRec.handler())
	router.Attach(bobConn, bobRec.handler())
	router.Join("conv-1", aliceConn)
	router.Join("conv-1", bobConn)

	repo := &fanoutRepo{}
	f := New(router, nil, nil, unread.NewTracker(repo, nil, nil), repo, nil)

	f.TypingChanged(context.Background(), "conv-1", "alice", true)

	require.Eventually(t, func() bool {
		return len(bobRec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	ev := bobRec.snapshot()[0]
	assert.Equal(t, realtime.EventTyping, ev.Type)
	assert.Equal(t, "alice", ev.UserID)
	assert.True(t, ev.IsTyping)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, aliceRec.snapshot(), "typing never echoes to its originator")
}
