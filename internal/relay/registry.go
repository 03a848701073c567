package relay

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"classroom-relay/internal/model"
)

// wsWriter is the slice of the WebSocket connection the relay needs.
// Tests substitute an in-memory implementation.
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client one live duplex connection. Created on transport handshake,
// destroyed on disconnect; a reconnect gets a brand-new id.
type Client struct {
	ID     string
	UserID int64
	Role   model.UserRole

	conn    wsWriter
	writeMu sync.Mutex

	// mutable state: display name and current memberships (at most one
	// room of each kind). The nickname is read by concurrent roster
	// builds, so it shares the guard.
	mu          sync.Mutex
	nickname    string
	callRoomID  string
	boardRoomID string
}

// Send marshals an envelope and writes it. Writes from concurrent
// broadcasts are serialized by the per-connection mutex.
func (c *Client) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// SendRaw writes a pre-encoded frame verbatim
func (c *Client) SendRaw(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Nickname returns the client's current display name
func (c *Client) Nickname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickname
}

// SetNickname replaces the display name (join-call-room may carry one)
func (c *Client) SetNickname(name string) {
	c.mu.Lock()
	c.nickname = name
	c.mu.Unlock()
}

func (c *Client) setCallRoom(id string) {
	c.mu.Lock()
	c.callRoomID = id
	c.mu.Unlock()
}

func (c *Client) setBoardRoom(id string) {
	c.mu.Lock()
	c.boardRoomID = id
	c.mu.Unlock()
}

// CallRoom returns the call room the client is currently in ("" if none)
func (c *Client) CallRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callRoomID
}

// BoardRoom returns the board the client is currently viewing ("" if none)
func (c *Client) BoardRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boardRoomID
}

// Registry owns every live connection. Membership managers hold *Client
// pointers but never outlive the registry entry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register creates a Client with a fresh connection id
func (r *Registry) Register(conn wsWriter, userID int64, nickname string, role model.UserRole) *Client {
	client := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		nickname: nickname,
		Role:     role,
		conn:     conn,
	}

	r.mu.Lock()
	r.clients[client.ID] = client
	total := len(r.clients)
	r.mu.Unlock()

	log.Printf("[Registry] Connection registered: %s (user %d), total: %d", client.ID, userID, total)
	return client
}

// Unregister removes a connection. Unknown ids are no-ops so a racing
// disconnect cleanup can run twice safely.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[connID]; !exists {
		return
	}
	delete(r.clients, connID)
	log.Printf("[Registry] Connection removed: %s, total: %d", connID, len(r.clients))
}

// Lookup returns the client for a connection id
func (r *Registry) Lookup(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[connID]
	return client, ok
}

// RoomsOf returns the room ids a connection is currently in
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	client, ok := r.clients[connID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rooms := make([]string, 0, 2)
	if id := client.CallRoom(); id != "" {
		rooms = append(rooms, id)
	}
	if id := client.BoardRoom(); id != "" {
		rooms = append(rooms, id)
	}
	return rooms
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
