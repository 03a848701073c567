package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn captures frames written to a client so tests can assert on
// delivered envelopes without a real socket.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	failed bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("connection reset")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeConn) fail() {
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}

func (f *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame on fake conn: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) eventsNamed(t *testing.T, event string) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range f.envelopes(t) {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// storeOp one call recorded by the fake store
type storeOp struct {
	kind     string // "append" or "clear"
	boardID  string
	authorID int64
	stroke   Stroke
}

// fakeStore records persistence calls and can fail on demand
type fakeStore struct {
	mu         sync.Mutex
	ops        []storeOp
	failAppend bool
}

func (s *fakeStore) AppendStroke(boardID string, authorID int64, stroke Stroke) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return errors.New("insert failed")
	}
	s.ops = append(s.ops, storeOp{kind: "append", boardID: boardID, authorID: authorID, stroke: stroke})
	return nil
}

func (s *fakeStore) ClearStrokes(boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, storeOp{kind: "clear", boardID: boardID})
	return nil
}

func (s *fakeStore) recorded() []storeOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storeOp, len(s.ops))
	copy(out, s.ops)
	return out
}

// waitFor polls until cond holds or the deadline passes. Persistence runs
// behind a channel, so assertions on the store need a grace period.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
