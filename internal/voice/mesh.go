// Package voice maintains the peer-to-peer audio mesh. Negotiation
// messages travel through the session transport as a signaling relay;
// media flows directly between peers over WebRTC.
package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/kimk1029/policevsthieves/internal/protocol"
)

// ErrMediaAcquisition is returned by Initialize when the local audio
// stream is unavailable or permission was denied. The mesh stays usable
// for signaling; audio is simply absent.
var ErrMediaAcquisition = errors.New("voice: media acquisition failed")

// SignalSender relays one negotiation envelope to a specific peer.
type SignalSender func(peerID string, sig protocol.Signal) error

// MediaSource acquires the local audio capture track.
type MediaSource interface {
	AudioTrack() (webrtc.TrackLocal, error)
	Close() error
}

// Mesh owns one peer connection per remote player, keyed by player id.
// Peer lifecycles are isolated: a failure on one connection tears down
// that connection only.
type Mesh struct {
	logger *slog.Logger
	send   SignalSender
	source MediaSource
	config webrtc.Configuration

	// OnRemoteTrack is invoked when a remote peer's audio track arrives.
	OnRemoteTrack func(peerID string, track *webrtc.TrackRemote)

	mu           sync.Mutex
	localTrack   webrtc.TrackLocal
	transmitting bool
	peers        map[string]*peer
}

type peer struct {
	id      string
	pc      *webrtc.PeerConnection
	sender  *webrtc.RTPSender
	pending []webrtc.ICECandidateInit // candidates received before the remote description
}

type Option func(*Mesh)

// WithICEServers overrides the default STUN configuration.
func WithICEServers(servers []webrtc.ICEServer) Option {
	return func(m *Mesh) { m.config.ICEServers = servers }
}

func NewMesh(logger *slog.Logger, send SignalSender, source MediaSource, opts ...Option) *Mesh {
	m := &Mesh{
		logger: logger,
		send:   send,
		source: source,
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		},
		peers: make(map[string]*peer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize acquires the local audio capture track, leaves outbound
// transmission disabled, and attaches the track to any peer connections
// created before initialization completed.
func (m *Mesh) Initialize() error {
	if m.source == nil {
		return fmt.Errorf("%w: no media source", ErrMediaAcquisition)
	}
	track, err := m.source.AudioTrack()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.localTrack = track
	m.transmitting = false
	for _, p := range m.peers {
		if p.sender != nil {
			continue
		}
		if err := m.attachLocked(p); err != nil {
			m.logger.Error("attaching local track", "peer", p.id, "error", err)
		}
	}
	return nil
}

// attachLocked adds the local track to the peer connection, muted until
// SetTransmitting(true).
func (m *Mesh) attachLocked(p *peer) error {
	sender, err := p.pc.AddTrack(m.localTrack)
	if err != nil {
		return err
	}
	p.sender = sender
	if !m.transmitting {
		if err := sender.ReplaceTrack(nil); err != nil {
			return err
		}
	}
	return nil
}

// EnsurePeerConnection returns the existing connection for peerID or
// constructs one, wiring candidate, track and state-change callbacks.
func (m *Mesh) EnsurePeerConnection(peerID string) (*webrtc.PeerConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.ensureLocked(peerID)
	if err != nil {
		return nil, err
	}
	return p.pc, nil
}

func (m *Mesh) ensureLocked(peerID string) (*peer, error) {
	if p, ok := m.peers[peerID]; ok {
		return p, nil
	}

	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection for %s: %w", peerID, err)
	}
	p := &peer{id: peerID, pc: pc}

	if m.localTrack != nil {
		if err := m.attachLocked(p); err != nil {
			pc.Close()
			return nil, fmt.Errorf("attaching local track for %s: %w", peerID, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := m.send(peerID, protocol.Signal{Type: protocol.SignalICE, To: peerID, Candidate: data}); err != nil {
			m.logger.Warn("relaying ice candidate", "peer", peerID, "error", err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.logger.Info("remote track", "peer", peerID, "kind", track.Kind().String())
		if m.OnRemoteTrack != nil {
			m.OnRemoteTrack(peerID, track)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.logger.Debug("peer state", "peer", peerID, "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			// Tear down this peer only; the rest of the mesh stays up.
			go m.ClosePeer(peerID)
		}
	})

	m.peers[peerID] = p
	return p, nil
}

// CreateOffer starts negotiation towards peerID and relays the offer.
func (m *Mesh) CreateOffer(peerID string) error {
	m.mu.Lock()
	p, err := m.ensureLocked(peerID)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating offer for %s: %w", peerID, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local offer for %s: %w", peerID, err)
	}
	return m.send(peerID, protocol.Signal{Type: protocol.SignalOffer, To: peerID, SDP: offer.SDP})
}

// HandleOffer applies a remote offer and relays the answer back.
func (m *Mesh) HandleOffer(peerID, sdp string) error {
	m.mu.Lock()
	p, err := m.ensureLocked(peerID)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	err = p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		return fmt.Errorf("setting remote offer from %s: %w", peerID, err)
	}
	m.flushPendingICE(p)

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating answer for %s: %w", peerID, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("setting local answer for %s: %w", peerID, err)
	}
	return m.send(peerID, protocol.Signal{Type: protocol.SignalAnswer, To: peerID, SDP: answer.SDP})
}

// HandleAnswer applies the remote answer to an offer we created.
func (m *Mesh) HandleAnswer(peerID, sdp string) error {
	m.mu.Lock()
	p, ok := m.peers[peerID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("answer from unknown peer %s", peerID)
	}

	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		return fmt.Errorf("setting remote answer from %s: %w", peerID, err)
	}
	m.flushPendingICE(p)
	return nil
}

// HandleICECandidate applies a relayed candidate, buffering it when it
// arrives before the peer's remote description.
func (m *Mesh) HandleICECandidate(peerID string, candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decoding candidate from %s: %w", peerID, err)
	}

	m.mu.Lock()
	p, err := m.ensureLocked(peerID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if p.pc.RemoteDescription() == nil {
		p.pending = append(p.pending, init)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("adding candidate from %s: %w", peerID, err)
	}
	return nil
}

func (m *Mesh) flushPendingICE(p *peer) {
	m.mu.Lock()
	pending := p.pending
	p.pending = nil
	m.mu.Unlock()

	for _, init := range pending {
		if err := p.pc.AddICECandidate(init); err != nil {
			m.logger.Warn("applying buffered candidate", "peer", p.id, "error", err)
		}
	}
}

// HandleSignal dispatches one relayed envelope from peer `from`.
func (m *Mesh) HandleSignal(from string, sig protocol.Signal) error {
	switch sig.Type {
	case protocol.SignalOffer:
		return m.HandleOffer(from, sig.SDP)
	case protocol.SignalAnswer:
		return m.HandleAnswer(from, sig.SDP)
	case protocol.SignalICE:
		return m.HandleICECandidate(from, sig.Candidate)
	default:
		return fmt.Errorf("unknown signal type %q from %s", sig.Type, from)
	}
}

// SetTransmitting toggles outbound audio on every active sender without
// renegotiating any connection.
func (m *Mesh) SetTransmitting(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transmitting = enabled
	for _, p := range m.peers {
		if p.sender == nil {
			continue
		}
		var track webrtc.TrackLocal
		if enabled {
			track = m.localTrack
		}
		if err := p.sender.ReplaceTrack(track); err != nil {
			m.logger.Warn("toggling transmission", "peer", p.id, "error", err)
		}
	}
}

// Transmitting reports whether outbound audio is currently enabled.
func (m *Mesh) Transmitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transmitting
}

// PeerCount reports the number of active peer connections.
func (m *Mesh) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// ClosePeer tears down the connection to one peer. Idempotent.
func (m *Mesh) ClosePeer(peerID string) {
	m.mu.Lock()
	p, ok := m.peers[peerID]
	delete(m.peers, peerID)
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := p.pc.Close(); err != nil {
		m.logger.Warn("closing peer connection", "peer", peerID, "error", err)
	}
	m.logger.Info("peer closed", "peer", peerID)
}

// Cleanup closes every peer connection and releases the local media.
// Safe to call when nothing was ever initialized.
func (m *Mesh) Cleanup() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[string]*peer)
	m.localTrack = nil
	m.transmitting = false
	source := m.source
	m.mu.Unlock()

	for id, p := range peers {
		if err := p.pc.Close(); err != nil {
			m.logger.Warn("closing peer connection", "peer", id, "error", err)
		}
	}
	if source != nil {
		if err := source.Close(); err != nil {
			m.logger.Warn("releasing media source", "error", err)
		}
	}
}
