package relay

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"

	"classroom-relay/internal/cache"
	"classroom-relay/internal/model"
)

// Relay ties the registry, call rooms, signaler and board hub behind one
// WebSocket endpoint. Events from one connection are handled in arrival
// order by its read loop; connections run concurrently.
type Relay struct {
	registry *Registry
	rooms    *CallRooms
	signaler *Signaler
	boards   *BoardHub
	redis    *cache.RedisClient
}

// New creates the relay service. redisClient may be nil.
func New(store StrokeStore, redisClient *cache.RedisClient) *Relay {
	registry := NewRegistry()
	return &Relay{
		registry: registry,
		rooms:    NewCallRooms(),
		signaler: NewSignaler(registry),
		boards:   NewBoardHub(store, redisClient),
		redis:    redisClient,
	}
}

// Registry exposes the connection registry (stats, tests)
func (r *Relay) Registry() *Registry { return r.registry }

// CallRooms exposes the call-room manager
func (r *Relay) CallRooms() *CallRooms { return r.rooms }

// Boards exposes the board hub
func (r *Relay) Boards() *BoardHub { return r.boards }

// HandleWebSocket runs one connection's lifecycle: register, announce the
// connection id, pump events, clean up on disconnect.
func (r *Relay) HandleWebSocket(c *websocket.Conn) {
	userID, ok1 := c.Locals("userID").(int64)
	nickname, ok2 := c.Locals("nickname").(string)
	role, ok3 := c.Locals("role").(string)
	if !ok1 || !ok2 || !ok3 {
		c.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","data":{"message":"invalid session"}}`))
		c.Close()
		return
	}

	client := r.registry.Register(c, userID, nickname, model.UserRole(role))

	if err := client.Send(EventConnected, ConnectedPayload{ConnectionID: client.ID}); err != nil {
		log.Printf("[Relay] Failed to send connected to %s: %v", client.ID, err)
	}
	r.trackPresence(client)

	defer func() {
		r.Disconnect(client.ID)
		c.Close()
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// one bad frame must not end an otherwise-healthy session
			continue
		}
		r.Dispatch(client, env)
	}
}

// Dispatch routes one decoded envelope. Malformed payloads are dropped;
// nothing here closes the connection.
func (r *Relay) Dispatch(client *Client, env Envelope) {
	switch env.Event {
	case EventJoinCallRoom:
		var p JoinCallRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		r.joinCallRoom(client, p)

	case EventLeaveCallRoom:
		var p LeaveCallRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		r.rooms.Leave(p.RoomID, client.ID)

	case EventOffer, EventAnswer, EventICECandidate:
		var p SignalPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.To == "" {
			return
		}
		p.From = client.ID
		r.signaler.Forward(env.Event, &p)

	case EventJoinBoard:
		var p JoinBoardPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.BoardID == "" {
			return
		}
		// at most one board per connection; a second join leaves the first
		if prev := client.BoardRoom(); prev != "" && prev != p.BoardID {
			r.boards.Leave(prev, client.ID)
		}
		r.boards.Join(p.BoardID, client)

	case EventLeaveBoard:
		var p LeaveBoardPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.BoardID == "" {
			return
		}
		r.boards.Leave(p.BoardID, client.ID)

	case EventDrawing:
		var p DrawingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.BoardID == "" {
			return
		}
		r.boards.Draw(p.BoardID, client, p.Stroke)

	case EventClearBoard:
		var p ClearBoardPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.BoardID == "" {
			return
		}
		r.boards.Clear(p.BoardID, client)

	default:
		log.Printf("[Relay] Unknown event %q from %s", env.Event, client.ID)
	}
}

func (r *Relay) joinCallRoom(client *Client, p JoinCallRoomPayload) {
	if p.DisplayName != "" {
		client.SetNickname(p.DisplayName)
	}

	// a second join-call-room implicitly leaves the first
	if prev := client.CallRoom(); prev != "" && prev != p.RoomID {
		r.rooms.Leave(prev, client.ID)
	}

	roster := r.rooms.Join(p.RoomID, client)
	if err := client.Send(EventAllUsers, AllUsersPayload{Peers: roster}); err != nil {
		log.Printf("[Relay] Failed to send roster to %s: %v", client.ID, err)
	}

	if r.redis != nil {
		go func(roomID, connID string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.redis.AddRoomMember(ctx, roomID, connID); err != nil {
				log.Printf("[Relay] Failed to mirror membership to Redis: %v", err)
			}
		}(p.RoomID, client.ID)
	}
}

// Disconnect tears one connection down through the normal departure path:
// room leave notifications first, then registry removal. Safe to call for
// ids that are already gone.
func (r *Relay) Disconnect(connID string) {
	client, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}

	if roomID := client.CallRoom(); roomID != "" {
		r.rooms.Leave(roomID, connID)
		if r.redis != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				r.redis.RemoveRoomMember(ctx, roomID, connID)
			}()
		}
	}
	if boardID := client.BoardRoom(); boardID != "" {
		r.boards.Leave(boardID, connID)
	}

	r.registry.Unregister(connID)

	if r.redis != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			r.redis.RemoveConnection(ctx, connID)
		}()
	}
	log.Printf("[Relay] Connection closed: %s", connID)
}

func (r *Relay) trackPresence(client *Client) {
	if r.redis == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := r.redis.SetConnectionOnline(ctx, &cache.ConnectionPresence{
			ConnectionID: client.ID,
			UserID:       client.UserID,
			Nickname:     client.Nickname(),
			ServerID:     "relay-1",
		})
		if err != nil {
			log.Printf("[Relay] Failed to track presence for %s: %v", client.ID, err)
		}
	}()
}
