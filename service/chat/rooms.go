package chat

import "sync"

// Rooms tracks which connections have a conversation open. Membership is per
// connection, not per user: the same user can view different conversations
// from different devices. Joining twice is a no-op, leaving a room never
// joined is a no-op.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Client // conversationID -> connID -> client
	byConn map[string]map[string]bool    // connID -> conversationID set
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]map[string]*Client),
		byConn: make(map[string]map[string]bool),
	}
}

func (r *Rooms) Join(conversationID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Client)
		r.rooms[conversationID] = room
	}
	room[c.ConnID] = c

	joined := r.byConn[c.ConnID]
	if joined == nil {
		joined = make(map[string]bool)
		r.byConn[c.ConnID] = joined
	}
	joined[conversationID] = true
}

func (r *Rooms) Leave(conversationID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conversationID, connID)
}

// DropConn removes the connection from every room it joined and returns the
// conversation ids it left. Called on disconnect.
func (r *Rooms) DropConn(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for conversationID := range r.byConn[connID] {
		r.leaveLocked(conversationID, connID)
		left = append(left, conversationID)
	}
	return left
}

// Members returns the clients currently viewing the conversation.
func (r *Rooms) Members(conversationID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[conversationID]
	out := make([]*Client, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

func (r *Rooms) MemberCount(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[conversationID])
}

func (r *Rooms) leaveLocked(conversationID, connID string) {
	if room := r.rooms[conversationID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	if joined := r.byConn[connID]; joined != nil {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
}
