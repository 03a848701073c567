// Package client is the Go client for the realtime relay: a duplex
// event connection plus the per-peer WebRTC mesh coordinator.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"classroom-relay/internal/relay"
)

// Relay is one client connection to the relay server. Set the On*
// callbacks before calling Run; they fire from the read loop goroutine.
type Relay struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	connID string

	// server→client event callbacks
	OnConnected  func(connectionID string)
	OnAllUsers   func(peers []relay.PeerInfo)
	OnUserJoined func(peer relay.PeerInfo)
	OnUserLeft   func(connectionID string)
	OnSignal     func(event string, msg relay.SignalPayload)
	OnDrawing    func(d relay.DrawingPayload)
	OnClearBoard func(boardID string)
}

// Dial connects to the relay WebSocket endpoint. The access token is
// passed as a query parameter, matching the server's upgrade guard.
func Dial(rawURL, token string) (*Relay, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	return &Relay{conn: conn}, nil
}

// Run pumps incoming events until the connection drops. Callbacks are
// invoked in arrival order, one at a time.
func (r *Relay) Run() error {
	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			return err
		}

		var env relay.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		r.dispatch(env)
	}
}

func (r *Relay) dispatch(env relay.Envelope) {
	switch env.Event {
	case relay.EventConnected:
		var p relay.ConnectedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		r.mu.Lock()
		r.connID = p.ConnectionID
		r.mu.Unlock()
		if r.OnConnected != nil {
			r.OnConnected(p.ConnectionID)
		}

	case relay.EventAllUsers:
		var p relay.AllUsersPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if r.OnAllUsers != nil {
			r.OnAllUsers(p.Peers)
		}

	case relay.EventUserJoined:
		var p relay.PeerInfo
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if r.OnUserJoined != nil {
			r.OnUserJoined(p)
		}

	case relay.EventUserLeft:
		var p relay.UserLeftPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if r.OnUserLeft != nil {
			r.OnUserLeft(p.ConnectionID)
		}

	case relay.EventOffer, relay.EventAnswer, relay.EventICECandidate:
		var p relay.SignalPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if r.OnSignal != nil {
			r.OnSignal(env.Event, p)
		}

	case relay.EventDrawing:
		var p relay.DrawingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if r.OnDrawing != nil {
			r.OnDrawing(p)
		}

	case relay.EventClearBoard:
		var p relay.ClearBoardPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if r.OnClearBoard != nil {
			r.OnClearBoard(p.BoardID)
		}
	}
}

// ConnectionID returns the server-assigned id ("" until connected)
func (r *Relay) ConnectionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connID
}

func (r *Relay) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(relay.Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteMessage(websocket.TextMessage, raw)
}

// JoinCallRoom enters a call room; the roster arrives via OnAllUsers
func (r *Relay) JoinCallRoom(roomID, displayName string) error {
	return r.send(relay.EventJoinCallRoom, relay.JoinCallRoomPayload{RoomID: roomID, DisplayName: displayName})
}

// LeaveCallRoom leaves a call room explicitly
func (r *Relay) LeaveCallRoom(roomID string) error {
	return r.send(relay.EventLeaveCallRoom, relay.LeaveCallRoomPayload{RoomID: roomID})
}

// JoinBoard attaches to a board's live feed. Fetch history through the
// board read API before or while joining.
func (r *Relay) JoinBoard(boardID string) error {
	return r.send(relay.EventJoinBoard, relay.JoinBoardPayload{BoardID: boardID})
}

// LeaveBoard detaches from a board
func (r *Relay) LeaveBoard(boardID string) error {
	return r.send(relay.EventLeaveBoard, relay.LeaveBoardPayload{BoardID: boardID})
}

// Draw submits a stroke
func (r *Relay) Draw(boardID string, stroke relay.Stroke) error {
	return r.send(relay.EventDrawing, relay.DrawingPayload{BoardID: boardID, Stroke: stroke})
}

// ClearBoard wipes a board
func (r *Relay) ClearBoard(boardID string) error {
	return r.send(relay.EventClearBoard, relay.ClearBoardPayload{BoardID: boardID})
}

// SendOffer relays an offer to a peer
func (r *Relay) SendOffer(to string, payload json.RawMessage) error {
	return r.send(relay.EventOffer, relay.SignalPayload{To: to, From: r.ConnectionID(), Payload: payload})
}

// SendAnswer relays an answer to a peer
func (r *Relay) SendAnswer(to string, payload json.RawMessage) error {
	return r.send(relay.EventAnswer, relay.SignalPayload{To: to, From: r.ConnectionID(), Payload: payload})
}

// SendICECandidate relays an ICE candidate to a peer
func (r *Relay) SendICECandidate(to string, payload json.RawMessage) error {
	return r.send(relay.EventICECandidate, relay.SignalPayload{To: to, From: r.ConnectionID(), Payload: payload})
}

// Close closes the transport; the server handles it as a disconnect
func (r *Relay) Close() error {
	return r.conn.Close()
}
