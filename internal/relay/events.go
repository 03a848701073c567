package relay

import "encoding/json"

// Event names carried in the envelope. One duplex WebSocket per client
// multiplexes every event type.
const (
	EventConnected     = "connected"
	EventJoinCallRoom  = "join-call-room"
	EventLeaveCallRoom = "leave-call-room"
	EventAllUsers      = "all-users"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventICECandidate  = "ice-candidate"
	EventJoinBoard     = "join-board"
	EventLeaveBoard    = "leave-board"
	EventDrawing       = "drawing"
	EventClearBoard    = "clear-board"
)

// Envelope wire frame for every relay message
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectedPayload sent to a client right after the transport attaches so
// it knows its own connection id for signaling "from" fields
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// JoinCallRoomPayload client request to enter a call room
type JoinCallRoomPayload struct {
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
}

// LeaveCallRoomPayload explicit call-room leave
type LeaveCallRoomPayload struct {
	RoomID string `json:"room_id"`
}

// PeerInfo one participant as seen by others
type PeerInfo struct {
	ConnectionID string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
}

// AllUsersPayload roster returned to a joiner, excluding the joiner itself.
// The joiner initiates negotiation with every listed peer; existing members
// never offer first. That tie-break is what prevents duplicate offers.
type AllUsersPayload struct {
	Peers []PeerInfo `json:"peers"`
}

// UserLeftPayload departure notice to remaining members
type UserLeftPayload struct {
	ConnectionID string `json:"connection_id"`
}

// SignalPayload targeted WebRTC negotiation message. Payload is an opaque
// blob; the relay forwards it without inspection.
type SignalPayload struct {
	To      string          `json:"to"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// JoinBoardPayload client request to join a board's live feed
type JoinBoardPayload struct {
	BoardID string `json:"board_id"`
}

// LeaveBoardPayload explicit board leave
type LeaveBoardPayload struct {
	BoardID string `json:"board_id"`
}

// Stroke one immutable freehand segment
type Stroke struct {
	X0        float64 `json:"x0"`
	Y0        float64 `json:"y0"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	Color     string  `json:"color"`
	Thickness float64 `json:"thickness"`
	Eraser    bool    `json:"eraser"`
}

// DrawingPayload a stroke event on a board. From is filled in by the
// server on rebroadcast.
type DrawingPayload struct {
	BoardID string `json:"board_id"`
	Stroke  Stroke `json:"stroke"`
	From    string `json:"from,omitempty"`
}

// ClearBoardPayload wipes a board
type ClearBoardPayload struct {
	BoardID string `json:"board_id"`
}
