package relay

import (
	"encoding/json"
	"testing"

	"classroom-relay/internal/model"
)

func TestForwardDeliversVerbatim(t *testing.T) {
	registry := NewRegistry()
	signaler := NewSignaler(registry)

	sender, _ := newTestClient(registry, "A", model.RoleTutor)
	target, targetConn := newTestClient(registry, "B", model.RoleStudent)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	signaler.Forward(EventOffer, &SignalPayload{To: target.ID, From: sender.ID, Payload: sdp})

	offers := targetConn.eventsNamed(t, EventOffer)
	if len(offers) != 1 {
		t.Fatalf("target should have one offer, got %d", len(offers))
	}

	var got SignalPayload
	if err := json.Unmarshal(offers[0].Data, &got); err != nil {
		t.Fatalf("bad signal payload: %v", err)
	}
	if got.From != sender.ID || got.To != target.ID {
		t.Fatalf("addressing mangled: %+v", got)
	}
	if string(got.Payload) != string(sdp) {
		t.Fatalf("payload not forwarded verbatim: %s", got.Payload)
	}
}

func TestForwardToUnknownTargetIsDropped(t *testing.T) {
	registry := NewRegistry()
	signaler := NewSignaler(registry)

	sender, senderConn := newTestClient(registry, "A", model.RoleTutor)

	signaler.Forward(EventICECandidate, &SignalPayload{To: "gone", From: sender.ID, Payload: json.RawMessage(`{}`)})

	// no error frame, no echo back to the sender
	if n := len(senderConn.envelopes(t)); n != 0 {
		t.Fatalf("sender received %d frames for a dropped signal", n)
	}
}

func TestForwardToFailedConnectionDoesNotPanic(t *testing.T) {
	registry := NewRegistry()
	signaler := NewSignaler(registry)

	sender, _ := newTestClient(registry, "A", model.RoleTutor)
	target, targetConn := newTestClient(registry, "B", model.RoleStudent)
	targetConn.fail()

	signaler.Forward(EventAnswer, &SignalPayload{To: target.ID, From: sender.ID, Payload: json.RawMessage(`{}`)})
}
