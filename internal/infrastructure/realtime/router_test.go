package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket records writes so tests can observe frames without a network.
type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (s *fakeSocket) SetWriteDeadline(t time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handler() EventHandler {
	return func(ev Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func attach(t *testing.T, r *Router, userID string) (*Connection, *eventRecorder, *fakeSocket) {
	t.Helper()
	sock := &fakeSocket{}
	conn := NewConnection(userID, sock)
	rec := &eventRecorder{}
	r.Attach(conn, rec.handler())
	return conn, rec, sock
}

func TestAttach_ReplacesPreviousSession(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	_, _, firstSock := attach(t, r, "alice")
	second, _, _ := attach(t, r, "alice")

	require.Eventually(t, firstSock.isClosed, time.Second, 5*time.Millisecond,
		"the replaced session must be closed")
	assert.True(t, r.Connected("alice"))

	// Events now land on the new session only.
	assert.True(t, r.DispatchUser("alice", Event{Type: EventMessageCreated}))
	r.Detach(second)
	assert.False(t, r.Connected("alice"))
}

func TestJoinLeave_RoomMembership(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	conn, _, _ := attach(t, r, "alice")

	r.Join("conv-1", conn)
	r.Join("conv-1", conn) // idempotent
	assert.Equal(t, []string{"conv-1"}, r.Rooms(conn))

	r.Leave("conv-1", conn)
	r.Leave("conv-1", conn) // no-op
	assert.Empty(t, r.Rooms(conn))
}

func TestJoin_UnattachedConnectionIsIgnored(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	conn := NewConnection("ghost", &fakeSocket{})
	r.Join("conv-1", conn)
	assert.Empty(t, r.Rooms(conn))
}

func TestDispatchUser_RoutesToHandler(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	_, rec, _ := attach(t, r, "alice")

	assert.True(t, r.DispatchUser("alice", Event{Type: EventMessageCreated, ConversationID: "conv-1"}))
	assert.False(t, r.DispatchUser("nobody", Event{Type: EventMessageCreated}))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatchUsers_CountsOnlyConnected(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	_, aliceRec, _ := attach(t, r, "alice")
	_, bobRec, _ := attach(t, r, "bob")

	n := r.DispatchUsers([]string{"alice", "bob", "offline"}, Event{Type: EventMessageCreated, ConversationID: "conv-1"})
	assert.Equal(t, 2, n)

	require.Eventually(t, func() bool {
		return aliceRec.count() == 1 && bobRec.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchRoom_OnlyJoinedSessionsExcludingSender(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	aliceConn, aliceRec, _ := attach(t, r, "alice")
	bobConn, bobRec, _ := attach(t, r, "bob")
	_, carolRec, _ := attach(t, r, "carol") // connected but not in the room

	r.Join("conv-1", aliceConn)
	r.Join("conv-1", bobConn)

	n := r.DispatchRoom("conv-1", Event{Type: EventTyping, ConversationID: "conv-1", UserID: "alice"}, "alice")
	assert.Equal(t, 1, n, "the originator and non-members are excluded")

	require.Eventually(t, func() bool { return bobRec.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, aliceRec.count())
	assert.Zero(t, carolRec.count())
}

func TestDetach_CleansRoomsAndHandlers(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	conn, rec, _ := attach(t, r, "alice")
	r.Join("conv-1", conn)
	r.Join("conv-2", conn)

	r.Detach(conn)

	assert.False(t, r.Connected("alice"))
	assert.Empty(t, r.Rooms(conn))
	assert.Zero(t, r.DispatchRoom("conv-1", Event{Type: EventTyping, ConversationID: "conv-1"}, ""))
	assert.False(t, r.DispatchUser("alice", Event{Type: EventMessageCreated}))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestConnectionSend_WritesFrame(t *testing.T) {
	sock := &fakeSocket{}
	conn := NewConnection("alice", sock)
	conn.Start()
	defer conn.Close(1000, "test done")

	require.NoError(t, conn.Send([]byte(`{"type":"connected"}`)))
	require.Eventually(t, func() bool { return sock.frameCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestConnectionSend_AfterCloseFails(t *testing.T) {
	sock := &fakeSocket{}
	conn := NewConnection("alice", sock)
	conn.Start()

	conn.Close(1000, "bye")
	// The buffer has free space after the write loop exits, so a closed
	// connection must reject deterministically, not by select-case luck.
	for i := 0; i < 100; i++ {
		require.Error(t, conn.Send([]byte("late")), "send %d after close", i)
	}
	assert.True(t, sock.isClosed())
}
