package relay

import (
	"log"
	"sync"
)

// callRoom ephemeral group of connections in one video call. Created on
// first join, dropped when the last member leaves; nothing persists.
type callRoom struct {
	id      string
	mu      sync.Mutex
	members map[string]*Client
	closed  bool
}

// CallRooms manages call-room membership and presence notifications
type CallRooms struct {
	mu    sync.RWMutex
	rooms map[string]*callRoom
}

// NewCallRooms creates an empty call-room table
func NewCallRooms() *CallRooms {
	return &CallRooms{
		rooms: make(map[string]*callRoom),
	}
}

func (cr *CallRooms) getOrCreate(roomID string) *callRoom {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if room, exists := cr.rooms[roomID]; exists {
		return room
	}

	room := &callRoom{
		id:      roomID,
		members: make(map[string]*Client),
	}
	cr.rooms[roomID] = room
	log.Printf("[CallRooms] Created room: %s", roomID)
	return room
}

func (cr *CallRooms) get(roomID string) *callRoom {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return cr.rooms[roomID]
}

// removeIfEmpty drops a room once its member set is empty. The closed
// flag and the table delete happen atomically under both locks; a join
// that raced in either lands before the check or observes closed and
// retries against a fresh room.
func (cr *CallRooms) removeIfEmpty(room *callRoom) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	room.mu.Lock()
	defer room.mu.Unlock()

	if len(room.members) > 0 || room.closed || cr.rooms[room.id] != room {
		return
	}
	room.closed = true
	delete(cr.rooms, room.id)
	log.Printf("[CallRooms] Removed empty room: %s", room.id)
}

// Join adds the connection to the room and returns the roster as it was
// immediately before the join, excluding the joiner. Every pre-existing
// member is told about the newcomer before Join returns; the membership
// mutation and the fanout happen under the room lock so a concurrent join
// can neither miss the notice nor see a stale roster. The joiner is always
// the one to send offers, so members only ever answer.
func (cr *CallRooms) Join(roomID string, c *Client) []PeerInfo {
	var room *callRoom
	for {
		room = cr.getOrCreate(roomID)
		room.mu.Lock()
		if !room.closed {
			break
		}
		// lost the race against the empty-room GC; the table no longer
		// holds this room, so fetch a fresh one
		room.mu.Unlock()
	}
	defer room.mu.Unlock()

	roster := make([]PeerInfo, 0, len(room.members))
	notice := PeerInfo{ConnectionID: c.ID, DisplayName: c.Nickname()}
	for id, member := range room.members {
		// a repeated join for the same room must not list or notify the
		// joiner itself
		if id == c.ID {
			continue
		}
		roster = append(roster, PeerInfo{ConnectionID: member.ID, DisplayName: member.Nickname()})
		if err := member.Send(EventUserJoined, notice); err != nil {
			log.Printf("[CallRooms %s] Failed to notify %s of join: %v", roomID, member.ID, err)
		}
	}

	room.members[c.ID] = c
	c.setCallRoom(roomID)
	log.Printf("[CallRooms %s] %s joined, members: %d", roomID, c.ID, len(room.members))
	return roster
}

// Leave removes the connection and notifies the remaining members so each
// can tear down its peer connection. Leaving a room the connection never
// joined is a no-op; disconnect races make that a legitimate call.
func (cr *CallRooms) Leave(roomID, connID string) {
	room := cr.get(roomID)
	if room == nil {
		return
	}

	room.mu.Lock()
	member, exists := room.members[connID]
	if !exists {
		room.mu.Unlock()
		return
	}
	delete(room.members, connID)
	member.setCallRoom("")

	notice := UserLeftPayload{ConnectionID: connID}
	for _, m := range room.members {
		if err := m.Send(EventUserLeft, notice); err != nil {
			log.Printf("[CallRooms %s] Failed to notify %s of leave: %v", roomID, m.ID, err)
		}
	}
	remaining := len(room.members)
	room.mu.Unlock()

	log.Printf("[CallRooms %s] %s left, remaining: %d", roomID, connID, remaining)
	if remaining == 0 {
		cr.removeIfEmpty(room)
	}
}

// MemberCount returns the current size of a room (0 when absent)
func (cr *CallRooms) MemberCount(roomID string) int {
	room := cr.get(roomID)
	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members)
}

// Count returns the number of active call rooms
func (cr *CallRooms) Count() int {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return len(cr.rooms)
}
