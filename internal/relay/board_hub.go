package relay

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"classroom-relay/internal/cache"
)

// StrokeStore is the durable side of the whiteboard. The GORM
// implementation lives in internal/storage; tests inject fakes.
type StrokeStore interface {
	AppendStroke(boardID string, authorID int64, s Stroke) error
	ClearStrokes(boardID string) error
}

const boardOpBuffer = 256

type boardOpKind int

const (
	opAppend boardOpKind = iota
	opClear
)

type boardOp struct {
	kind     boardOpKind
	authorID int64
	stroke   Stroke
}

// boardRoom live viewers of one board plus its persister. The ops channel
// is written under the room lock in the same critical section as the
// broadcast, so the durable order always equals the broadcast order.
type boardRoom struct {
	id      string
	mu      sync.Mutex
	members map[string]*Client
	ops     chan boardOp
	closed  bool
}

// BoardHub fans strokes out to live viewers and hands them to the store.
// Broadcast and persistence are decoupled: a slow or failing write never
// stalls the live feed, it only shows up in the failure counter.
type BoardHub struct {
	mu     sync.RWMutex
	boards map[string]*boardRoom

	store    StrokeStore
	redis    *cache.RedisClient
	failures atomic.Int64
}

// NewBoardHub creates a board hub over the given store. redisClient may be
// nil; the failure counter then stays process-local.
func NewBoardHub(store StrokeStore, redisClient *cache.RedisClient) *BoardHub {
	return &BoardHub{
		boards: make(map[string]*boardRoom),
		store:  store,
		redis:  redisClient,
	}
}

func (h *BoardHub) getOrCreate(boardID string) *boardRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.boards[boardID]; exists {
		return room
	}

	room := &boardRoom{
		id:      boardID,
		members: make(map[string]*Client),
		ops:     make(chan boardOp, boardOpBuffer),
	}
	h.boards[boardID] = room
	go h.runPersister(room)
	log.Printf("[BoardHub] Opened board room: %s", boardID)
	return room
}

func (h *BoardHub) get(boardID string) *boardRoom {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.boards[boardID]
}

// Join adds the connection to the board's live feed. History is not sent
// here; late joiners fetch it through the board read API and merge it with
// the live feed themselves.
func (h *BoardHub) Join(boardID string, c *Client) {
	var room *boardRoom
	for {
		room = h.getOrCreate(boardID)
		room.mu.Lock()
		if !room.closed {
			break
		}
		// lost the race against the last leave; the room is already out
		// of the table, so fetch a fresh one
		room.mu.Unlock()
	}
	room.members[c.ID] = c
	c.setBoardRoom(boardID)
	total := len(room.members)
	room.mu.Unlock()

	log.Printf("[BoardHub %s] %s joined, viewers: %d", boardID, c.ID, total)
}

// Draw rebroadcasts a stroke to every other viewer and queues it for the
// persister. Drawing on a board the connection never joined, or without
// edit rights, is a silent no-op.
func (h *BoardHub) Draw(boardID string, c *Client, stroke Stroke) {
	if !c.Role.CanDraw() {
		return
	}
	room := h.get(boardID)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if _, member := room.members[c.ID]; !member {
		return
	}

	payload := DrawingPayload{BoardID: boardID, Stroke: stroke, From: c.ID}
	for id, viewer := range room.members {
		if id == c.ID {
			continue
		}
		if err := viewer.Send(EventDrawing, payload); err != nil {
			log.Printf("[BoardHub %s] Failed to send stroke to %s: %v", boardID, id, err)
		}
	}

	h.enqueue(room, boardOp{kind: opAppend, authorID: c.UserID, stroke: stroke})
}

// Clear rebroadcasts a wipe to all viewers (the sender included, so its
// canvas confirms) and queues the durable clear behind any pending strokes.
func (h *BoardHub) Clear(boardID string, c *Client) {
	if !c.Role.CanDraw() {
		return
	}
	room := h.get(boardID)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if _, member := room.members[c.ID]; !member {
		return
	}

	payload := ClearBoardPayload{BoardID: boardID}
	for id, viewer := range room.members {
		if err := viewer.Send(EventClearBoard, payload); err != nil {
			log.Printf("[BoardHub %s] Failed to send clear to %s: %v", boardID, id, err)
		}
	}

	h.enqueue(room, boardOp{kind: opClear})
}

// enqueue hands an op to the persister. Caller holds room.mu, which is the
// only guard the closed flag needs. A full queue drops the op; the live
// broadcast already went out, so this is counted as a persistence failure.
func (h *BoardHub) enqueue(room *boardRoom, op boardOp) {
	if room.closed {
		h.recordFailure(room.id)
		return
	}
	select {
	case room.ops <- op:
	default:
		log.Printf("[BoardHub %s] Persist queue full, dropping op", room.id)
		h.recordFailure(room.id)
	}
}

// Leave removes a viewer; the last leave closes the room and lets the
// persister drain whatever is still queued.
func (h *BoardHub) Leave(boardID, connID string) {
	room := h.get(boardID)
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
	member.setBoardRoom("")
	remaining := len(room.members)
	room.mu.Unlock()

	log.Printf("[BoardHub %s] %s left, viewers: %d", boardID, connID, remaining)
	if remaining == 0 {
		h.removeIfEmpty(room)
	}
}

func (h *BoardHub) removeIfEmpty(room *boardRoom) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room.mu.Lock()
	defer room.mu.Unlock()

	if len(room.members) > 0 || room.closed || h.boards[room.id] != room {
		return
	}
	room.closed = true
	close(room.ops)
	delete(h.boards, room.id)
	log.Printf("[BoardHub] Closed board room: %s", room.id)
}

// runPersister is the single writer for one board's durable record. Ops
// are applied strictly in queue order, so replay reproduces what live
// viewers saw minus explicitly failed writes.
func (h *BoardHub) runPersister(room *boardRoom) {
	for op := range room.ops {
		var err error
		switch op.kind {
		case opAppend:
			err = h.store.AppendStroke(room.id, op.authorID, op.stroke)
		case opClear:
			err = h.store.ClearStrokes(room.id)
		}
		if err != nil {
			log.Printf("[BoardHub %s] Persist failed: %v", room.id, err)
			h.recordFailure(room.id)
		}
	}
}

func (h *BoardHub) recordFailure(boardID string) {
	h.failures.Add(1)
	if h.redis != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := h.redis.IncrStrokeFailures(ctx, boardID); err != nil {
				log.Printf("[BoardHub %s] Failed to record failure in Redis: %v", boardID, err)
			}
		}()
	}
}

// PersistFailures returns the number of ops lost to persistence errors
func (h *BoardHub) PersistFailures() int64 {
	return h.failures.Load()
}

// ViewerCount returns the live viewer count of a board (0 when absent)
func (h *BoardHub) ViewerCount(boardID string) int {
	room := h.get(boardID)
	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members)
}

// Count returns the number of boards with live viewers
func (h *BoardHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards)
}
