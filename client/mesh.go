package client

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"classroom-relay/internal/relay"
)

// PeerState one peer connection's negotiation state
type PeerState int

const (
	// PeerNew connection created, no description exchanged yet
	PeerNew PeerState = iota
	// PeerHaveLocalOffer we sent an offer and wait for the answer
	PeerHaveLocalOffer
	// PeerHaveRemoteOffer we received an offer and will answer
	PeerHaveRemoteOffer
	// PeerConnected media/data path established
	PeerConnected
	// PeerClosed terminal; a rejoining peer gets a fresh connection
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerNew:
		return "new"
	case PeerHaveLocalOffer:
		return "have-local-offer"
	case PeerHaveRemoteOffer:
		return "have-remote-offer"
	case PeerConnected:
		return "connected"
	case PeerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignalSender is the slice of the relay connection the mesh needs.
// *Relay implements it; tests substitute a recorder.
type SignalSender interface {
	SendOffer(to string, payload json.RawMessage) error
	SendAnswer(to string, payload json.RawMessage) error
	SendICECandidate(to string, payload json.RawMessage) error
}

type peer struct {
	id          string
	displayName string
	pc          *webrtc.PeerConnection
	state       PeerState
}

// Mesh keeps one peer connection per remote participant in the call
// room. The roster tie-break decides direction: the mesh offers to every
// peer in the all-users roster it received on join, and answers offers
// from peers that joined after it.
type Mesh struct {
	sender SignalSender
	config webrtc.Configuration

	mu    sync.Mutex
	peers map[string]*peer

	localTracks []webrtc.TrackLocal

	// OnTrack fires when a remote track arrives
	OnTrack func(peerID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	// OnPeerConnected fires when a peer reaches the connected state
	OnPeerConnected func(peerID string)
	// OnPeerClosed fires once per peer after teardown
	OnPeerClosed func(peerID string)
}

// NewMesh creates an empty mesh. iceServers may be nil for host-only
// candidates.
func NewMesh(sender SignalSender, iceServers []webrtc.ICEServer) *Mesh {
	return &Mesh{
		sender: sender,
		config: webrtc.Configuration{ICEServers: iceServers},
		peers:  make(map[string]*peer),
	}
}

// AddLocalTrack registers a track to send to every peer. Call before
// joining a room; tracks are attached as peer connections are created.
func (m *Mesh) AddLocalTrack(track webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localTracks = append(m.localTracks, track)
}

// HandleRoster wires the all-users roster: the joiner offers to every
// existing member.
func (m *Mesh) HandleRoster(peers []relay.PeerInfo) {
	for _, info := range peers {
		if err := m.addPeer(info, true); err != nil {
			log.Printf("[Mesh] Failed to offer to %s: %v", info.ConnectionID, err)
		}
	}
}

// HandleUserJoined prepares for a newcomer. The newcomer received us in
// its roster and will offer; we only wait.
func (m *Mesh) HandleUserJoined(info relay.PeerInfo) {
	if err := m.addPeer(info, false); err != nil {
		log.Printf("[Mesh] Failed to prepare for %s: %v", info.ConnectionID, err)
	}
}

// HandleUserLeft tears the departed peer down
func (m *Mesh) HandleUserLeft(connectionID string) {
	m.ClosePeer(connectionID)
}

// HandleSignal routes one forwarded negotiation message
func (m *Mesh) HandleSignal(event string, msg relay.SignalPayload) {
	var err error
	switch event {
	case relay.EventOffer:
		err = m.handleOffer(msg.From, msg.Payload)
	case relay.EventAnswer:
		err = m.handleAnswer(msg.From, msg.Payload)
	case relay.EventICECandidate:
		err = m.handleCandidate(msg.From, msg.Payload)
	}
	if err != nil {
		log.Printf("[Mesh] Failed to handle %s from %s: %v", event, msg.From, err)
	}
}

// addPeer creates the peer connection and, for the initiator side, sends
// the offer. Replaces nothing: an existing live peer wins.
func (m *Mesh) addPeer(info relay.PeerInfo, initiator bool) error {
	m.mu.Lock()
	if existing, ok := m.peers[info.ConnectionID]; ok && existing.state != PeerClosed {
		m.mu.Unlock()
		return nil
	}

	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("create peer connection: %w", err)
	}

	p := &peer{
		id:          info.ConnectionID,
		displayName: info.DisplayName,
		pc:          pc,
		state:       PeerNew,
	}
	m.peers[info.ConnectionID] = p

	for _, track := range m.localTracks {
		if _, err := pc.AddTrack(track); err != nil {
			log.Printf("[Mesh %s] Failed to add local track: %v", p.id, err)
		}
	}
	trackCount := len(m.localTracks)
	m.mu.Unlock()

	peerID := info.ConnectionID

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		payload, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			return
		}
		if err := m.sender.SendICECandidate(peerID, payload); err != nil {
			log.Printf("[Mesh %s] Failed to send ICE candidate: %v", peerID, err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if m.OnTrack != nil {
			m.OnTrack(peerID, track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			m.mu.Lock()
			if m.peers[peerID] != p {
				m.mu.Unlock()
				return
			}
			p.state = PeerConnected
			m.mu.Unlock()
			if m.OnPeerConnected != nil {
				m.OnPeerConnected(peerID)
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			// the closure must tear down this connection only; by the
			// time the event fires the peer may have rejoined with a
			// fresh one under the same id
			m.closePeer(p)
		}
	})

	if !initiator {
		return nil
	}

	// A media-less offer has no m-lines to negotiate; a control channel
	// guarantees the SDP carries at least one section.
	if trackCount == 0 {
		if _, err := pc.CreateDataChannel("control", nil); err != nil {
			return fmt.Errorf("create data channel: %w", err)
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	m.mu.Lock()
	if p, ok := m.peers[peerID]; ok && p.state == PeerNew {
		p.state = PeerHaveLocalOffer
	}
	m.mu.Unlock()

	payload, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return m.sender.SendOffer(peerID, payload)
}

func (m *Mesh) handleOffer(from string, payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}

	m.mu.Lock()
	p, ok := m.peers[from]
	m.mu.Unlock()
	if !ok || p.state == PeerClosed {
		// offer can outrun the user-joined notice
		if err := m.addPeer(relay.PeerInfo{ConnectionID: from}, false); err != nil {
			return err
		}
		m.mu.Lock()
		p = m.peers[from]
		m.mu.Unlock()
	}

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}

	m.mu.Lock()
	if p.state != PeerClosed {
		p.state = PeerHaveRemoteOffer
	}
	m.mu.Unlock()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	raw, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return m.sender.SendAnswer(from, raw)
}

// handleAnswer applies a remote answer. An answer arriving while we are
// not in have-local-offer means our signaling state drifted; rolling back
// the local description first lets the answer apply cleanly instead of
// killing the connection.
func (m *Mesh) handleAnswer(from string, payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}

	m.mu.Lock()
	p, ok := m.peers[from]
	state := PeerClosed
	if ok {
		state = p.state
	}
	m.mu.Unlock()
	if !ok || state == PeerClosed {
		return nil
	}

	if state != PeerHaveLocalOffer {
		rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
		if err := p.pc.SetLocalDescription(rollback); err != nil {
			return fmt.Errorf("rollback local description: %w", err)
		}
	}

	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (m *Mesh) handleCandidate(from string, payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}

	m.mu.Lock()
	p, ok := m.peers[from]
	m.mu.Unlock()
	if !ok || p.state == PeerClosed {
		return nil
	}

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// ClosePeer tears the peer currently tracked under the id down.
// Terminal: the entry is removed so a rejoin creates a fresh connection
// from scratch.
func (m *Mesh) ClosePeer(connectionID string) {
	m.mu.Lock()
	p, ok := m.peers[connectionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.closePeer(p)
}

// closePeer tears one specific connection down. The identity check keeps
// a stale connection's asynchronous close event from removing the fresh
// peer a rejoin created under the same id. Removal happens before
// pc.Close so the state-change callback's re-entry finds nothing to do.
func (m *Mesh) closePeer(p *peer) {
	m.mu.Lock()
	if m.peers[p.id] != p {
		m.mu.Unlock()
		return
	}
	p.state = PeerClosed
	delete(m.peers, p.id)
	m.mu.Unlock()

	if err := p.pc.Close(); err != nil {
		log.Printf("[Mesh %s] Close failed: %v", p.id, err)
	}
	if m.OnPeerClosed != nil {
		m.OnPeerClosed(p.id)
	}
}

// Close tears down every peer connection
func (m *Mesh) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.ClosePeer(id)
	}
}

// Peers returns the ids of the currently tracked peers
func (m *Mesh) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	return ids
}

// State returns a peer's negotiation state (PeerClosed when untracked)
func (m *Mesh) State(connectionID string) PeerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[connectionID]; ok {
		return p.state
	}
	return PeerClosed
}
