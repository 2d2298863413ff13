package realtime

import (
	"sync"
)

// Router coordinates websocket sessions and logical rooms (conversations).
// It keeps one active Connection per user and routes push events either to
// every connected participant of a conversation (message events) or to the
// sessions currently joined to its room (typing events).
type Router struct {
	mu           sync.RWMutex
	sessions     map[string]*Connection            // sessionID -> connection
	handlers     map[string]EventHandler           // sessionID -> event handler
	userSessions map[string]string                 // userID -> sessionID
	rooms        map[string]map[string]*Connection // conversationID -> sessionID -> connection
	sessionRooms map[string]map[string]struct{}    // sessionID -> set of conversationIDs
}

// NewRouter constructs an initialized Router.
func NewRouter() *Router {
	return &Router{
		sessions:     make(map[string]*Connection),
		handlers:     make(map[string]EventHandler),
		userSessions: make(map[string]string),
		rooms:        make(map[string]map[string]*Connection),
		sessionRooms: make(map[string]map[string]struct{}),
	}
}

// Attach registers a connection and its event handler for the given user.
// If a previous session exists, it is removed and closed after the swap to
// enforce one active socket per user.
func (r *Router) Attach(conn *Connection, handler EventHandler) {
	var previous *Connection

	r.mu.Lock()
	if existingID, ok := r.userSessions[conn.UserID]; ok {
		if existing := r.sessions[existingID]; existing != nil {
			previous = existing
			r.detachLocked(existingID)
		}
	}

	r.sessions[conn.ID] = conn
	r.handlers[conn.ID] = handler
	r.userSessions[conn.UserID] = conn.ID
	r.sessionRooms[conn.ID] = make(map[string]struct{})
	r.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(4001, "session replaced")
	}
}

// Detach removes a connection if it is still tracked.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	r.detachLocked(conn.ID)
	r.mu.Unlock()
}

// Join adds the connection to the conversation room. Joining a room the
// connection already belongs to is a no-op.
func (r *Router) Join(conversationID string, conn *Connection) {
	r.mu.Lock()
	if _, ok := r.sessions[conn.ID]; !ok {
		r.mu.Unlock()
		return
	}

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Connection)
		r.rooms[conversationID] = room
	}
	room[conn.ID] = conn

	memberships := r.sessionRooms[conn.ID]
	if memberships == nil {
		memberships = make(map[string]struct{})
		r.sessionRooms[conn.ID] = memberships
	}
	memberships[conversationID] = struct{}{}
	r.mu.Unlock()
}

// Leave removes the connection from the conversation room. Leaving a room
// the connection is not in is a no-op.
func (r *Router) Leave(conversationID string, conn *Connection) {
	r.mu.Lock()
	r.leaveLocked(conversationID, conn.ID)
	r.mu.Unlock()
}

// Rooms returns the conversation ids the connection is currently joined to.
func (r *Router) Rooms(conn *Connection) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	memberships := r.sessionRooms[conn.ID]
	out := make([]string, 0, len(memberships))
	for id := range memberships {
		out = append(out, id)
	}
	return out
}

// Connected reports whether the user has an active session on this node.
func (r *Router) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userSessions[userID]
	return ok
}

// DispatchUser delivers the event to the current session of the given user.
// Returns false when the user has no connection on this node.
func (r *Router) DispatchUser(userID string, ev Event) bool {
	r.mu.RLock()
	sessionID, ok := r.userSessions[userID]
	var handler EventHandler
	if ok {
		handler = r.handlers[sessionID]
	}
	r.mu.RUnlock()
	if handler == nil {
		return false
	}
	go handler(ev)
	return true
}

// DispatchUsers delivers the event to every listed user connected on this
// node and reports how many sessions received it.
func (r *Router) DispatchUsers(userIDs []string, ev Event) int {
	delivered := 0
	for _, id := range userIDs {
		if r.DispatchUser(id, ev) {
			delivered++
		}
	}
	return delivered
}

// DispatchRoom delivers the event to all sessions joined to the conversation
// room. excludeUserID, when non-empty, prevents delivering to that user.
func (r *Router) DispatchRoom(conversationID string, ev Event, excludeUserID string) int {
	r.mu.RLock()
	room := r.rooms[conversationID]
	if len(room) == 0 {
		r.mu.RUnlock()
		return 0
	}

	targets := make([]EventHandler, 0, len(room))
	for sessionID, conn := range room {
		if excludeUserID != "" && conn.UserID == excludeUserID {
			continue
		}
		if handler := r.handlers[sessionID]; handler != nil {
			targets = append(targets, handler)
		}
	}
	r.mu.RUnlock()

	for _, handler := range targets {
		go handler(ev)
	}
	return len(targets)
}

// Close terminates all tracked connections and clears router state.
func (r *Router) Close() {
	r.mu.Lock()
	sessions := make([]*Connection, 0, len(r.sessions))
	for _, conn := range r.sessions {
		sessions = append(sessions, conn)
	}
	r.sessions = make(map[string]*Connection)
	r.handlers = make(map[string]EventHandler)
	r.userSessions = make(map[string]string)
	r.rooms = make(map[string]map[string]*Connection)
	r.sessionRooms = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(1001, "router shutdown")
	}
}

func (r *Router) detachLocked(sessionID string) {
	conn, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	delete(r.handlers, sessionID)

	if current, ok := r.userSessions[conn.UserID]; ok && current == sessionID {
		delete(r.userSessions, conn.UserID)
	}

	for roomID := range r.sessionRooms[sessionID] {
		r.leaveLocked(roomID, sessionID)
	}
	delete(r.sessionRooms, sessionID)
}

func (r *Router) leaveLocked(conversationID string, sessionID string) {
	if sessionID == "" {
		return
	}
	room := r.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
	if memberships, ok := r.sessionRooms[sessionID]; ok {
		delete(memberships, conversationID)
	}
}
