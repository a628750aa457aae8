// Package media implements MediaRelay and RelayRegistry: the server-side
// peer connection owned per-peer, its RTP fan-out, and the ICE candidate
// buffer gated on "remote description set". Grounded on the internal/sfu
// package's SFUContext (AddTrack/SignalPeerConnections renegotiate loop),
// generalized from a single global track map into one MediaRelay per peer,
// and on original_source/src/media/relay.rs for the buffering and stats
// semantics — trickle ICE candidates arriving before a remote description
// is set are queued rather than discarded.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// ErrNoRemoteDescription names the "remote description not set" condition.
// No function in this package returns it; AddICECandidate buffers instead.
var ErrNoRemoteDescription = errors.New("media: remote description not set")

// ICEConfig configures the ICE servers a MediaRelay's peer connection
// advertises to pion.
type ICEConfig struct {
	StunURLs      []string
	TurnURLs      []string
	TurnUsername  string
	TurnCredential string
}

func (c ICEConfig) iceServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.StunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.StunURLs})
	}
	if len(c.TurnURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TurnURLs,
			Username:   c.TurnUsername,
			Credential: c.TurnCredential,
		})
	}
	return servers
}

// Stats is a snapshot of one relay's RTP counters.
type Stats struct {
	PeerID          string
	PacketsReceived uint64
	BytesReceived   uint64
	PacketsSent     uint64
	BytesSent       uint64
	UpdatedAt       time.Time
}

// Relay owns one server-side peer connection for a single peer: the remote
// track ingress, the local tracks used to fan packets back out to other
// peers in the room, and the ICE candidate buffer.
type Relay struct {
	PeerID string

	log logging.LeveledLogger
	pc  *webrtc.PeerConnection

	mu           sync.Mutex
	remoteSet    bool
	candidateBuf []webrtc.ICECandidateInit

	statsMu sync.Mutex
	stats   Stats

	localTrackMu sync.Mutex
	localAudio   *webrtc.TrackLocalStaticRTP

	onTrack  func(remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP)
	onPacket func(pkt *rtp.Packet)
}

// NewRelay builds a peer connection with default codecs and a sendrecv audio
// transceiver carrying a fresh local track, so every offer/answer the relay
// produces includes an a=sendrecv audio m-line regardless of whether a
// remote track has arrived yet.
func NewRelay(peerID string, cfg ICEConfig, log logging.LeveledLogger) (*Relay, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("media: register default codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.iceServers()})
	if err != nil {
		return nil, fmt.Errorf("media: new peer connection: %w", err)
	}

	localAudio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+peerID, "relay-"+peerID,
	)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("media: new local audio track: %w", err)
	}

	if _, err := pc.AddTransceiverFromTrack(localAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("media: add sendrecv audio transceiver: %w", err)
	}

	r := &Relay{
		PeerID:     peerID,
		log:        log,
		pc:         pc,
		localAudio: localAudio,
		stats:      Stats{PeerID: peerID, UpdatedAt: time.Now()},
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		r.handleRemoteTrack(remote)
	})

	return r, nil
}

// OnTrackForwarded registers a callback invoked whenever a remote track
// starts being forwarded, so the owning Room can fan the new local track out
// to the rest of the room's relays.
func (r *Relay) OnTrackForwarded(fn func(remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP)) {
	r.onTrack = fn
}

// OnPacketForwarded registers a callback invoked with every RTP packet this
// relay reads off its ingress track, before it is fanned out to the local
// track forwarding it elsewhere. Used to feed a recording sink. Must be set
// before the remote track starts producing packets to avoid missing any.
func (r *Relay) OnPacketForwarded(fn func(pkt *rtp.Packet)) {
	r.onPacket = fn
}

func (r *Relay) handleRemoteTrack(remote *webrtc.TrackRemote) {
	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), remote.StreamID())
	if err != nil {
		r.log.Errorf("media: peer %s: create local track for forwarding: %v", r.PeerID, err)
		return
	}

	if r.onTrack != nil {
		r.onTrack(remote, local)
	}

	go r.forwardLoop(remote, local)
}

// forwardLoop reads RTP packets from remote and writes them into local until
// the remote track ends or a read error occurs. No buffering beyond one
// packet in flight; loss under back-pressure is acceptable. Every packet
// read is also handed to onPacket, if set, before the forwarding write.
func (r *Relay) forwardLoop(remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("media: peer %s: recovered panic in forward loop: %v", r.PeerID, rec)
		}
	}()

	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debugf("media: peer %s: remote track read ended: %v", r.PeerID, err)
			}
			return
		}

		raw, err := pkt.Marshal()
		if err != nil {
			r.log.Warnf("media: peer %s: marshal forwarded packet: %v", r.PeerID, err)
			continue
		}

		r.statsMu.Lock()
		r.stats.PacketsReceived++
		r.stats.BytesReceived += uint64(len(raw))
		r.stats.UpdatedAt = time.Now()
		r.statsMu.Unlock()

		if r.onPacket != nil {
			r.onPacket(pkt)
		}

		if err := local.WriteRTP(pkt); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				r.log.Debugf("media: peer %s: forward write failed: %v", r.PeerID, err)
			}
			continue
		}

		r.statsMu.Lock()
		r.stats.PacketsSent++
		r.stats.BytesSent += uint64(len(raw))
		r.statsMu.Unlock()
	}
}

// HandleRemoteOffer sets sdp as the remote description, creates and sets a
// local answer, waits for ICE gathering to complete, drains any buffered
// candidates, and returns the complete local SDP.
func (r *Relay) HandleRemoteOffer(ctx context.Context, sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := r.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("media: set remote description: %w", err)
	}
	r.markRemoteSet()

	answer, err := r.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(r.pc)
	if err := r.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("media: set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.drainCandidateBuffer()

	local := r.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("media: no local description after gathering")
	}
	return local.SDP, nil
}

// ApplyRemoteAnswer sets sdp as the remote description for a relay that
// itself sent the offer (the caller side of an Offer/Answer exchange).
func (r *Relay) ApplyRemoteAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := r.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("media: set remote answer: %w", err)
	}
	r.markRemoteSet()
	r.drainCandidateBuffer()
	return nil
}

func (r *Relay) markRemoteSet() {
	r.mu.Lock()
	r.remoteSet = true
	r.mu.Unlock()
}

// AddICECandidate applies cand immediately if a remote description is
// already set, otherwise buffers it for drainCandidateBuffer.
func (r *Relay) AddICECandidate(cand webrtc.ICECandidateInit) error {
	r.mu.Lock()
	if !r.remoteSet {
		r.candidateBuf = append(r.candidateBuf, cand)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	return r.pc.AddICECandidate(cand)
}

// drainCandidateBuffer empties the buffer in FIFO order. Individual apply
// failures are logged and skipped, never fatal.
func (r *Relay) drainCandidateBuffer() {
	r.mu.Lock()
	buf := r.candidateBuf
	r.candidateBuf = nil
	r.mu.Unlock()

	for _, cand := range buf {
		if err := r.pc.AddICECandidate(cand); err != nil {
			r.log.Warnf("media: peer %s: failed to apply buffered ICE candidate: %v", r.PeerID, err)
		}
	}
}

// AddTrack adds a local track so this relay's offer/answer includes it,
// used by Room.BroadcastTrack to fan another peer's forwarded track out.
func (r *Relay) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return r.pc.AddTrack(track)
}

// ConnectionState reports the underlying peer connection's current state.
func (r *Relay) ConnectionState() webrtc.PeerConnectionState {
	return r.pc.ConnectionState()
}

// RemoteDescriptionSet reports whether SetRemoteDescription has succeeded at
// least once.
func (r *Relay) RemoteDescriptionSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remoteSet
}

// Stats returns a snapshot of this relay's RTP counters.
func (r *Relay) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// Close closes the underlying peer connection. Forwarding goroutines observe
// the resulting read errors and terminate on their own.
func (r *Relay) Close() error {
	return r.pc.Close()
}
