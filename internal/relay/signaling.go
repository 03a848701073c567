package relay

import "log"

// Signaler is a pure store-and-forward router for WebRTC negotiation
// messages. It never inspects the payload; offers, answers and ICE
// candidates are the peers' business.
type Signaler struct {
	registry *Registry
}

// NewSignaler creates a signaler over the given registry
func NewSignaler(registry *Registry) *Signaler {
	return &Signaler{registry: registry}
}

// Forward delivers a negotiation message to its target connection. A
// missing target is dropped silently: the sender either already received a
// user-left for it or is about to, and will discard its half-open attempt.
// No retry, no buffering.
func (s *Signaler) Forward(event string, p *SignalPayload) {
	target, ok := s.registry.Lookup(p.To)
	if !ok {
		log.Printf("[Signaler] Dropped %s for unknown target %s", event, p.To)
		return
	}

	if err := target.Send(event, p); err != nil {
		// Target is mid-disconnect; the departure path handles it.
		log.Printf("[Signaler] Failed to deliver %s to %s: %v", event, p.To, err)
	}
}
