// Package router implements MessageRouter: the protocol semantics of every
// signaling message type, consulting and mutating the directory, relays,
// and state machine it's handed at construction. Grounded on
// internal/handlers.WebsocketHandler's message switch (the "candidate",
// "answer", "chat" case arms), generalized from three ad hoc event names
// into a full tagged message protocol, and on
// original_source/src/signaling/messages.rs for the message shapes
// themselves. Stateless beyond the registries it's given: a single Router
// value is shared by every SignalingSession.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"

	"sfu-conference/internal/audit"
	"sfu-conference/internal/directory"
	"sfu-conference/internal/room"
	"sfu-conference/internal/signaling"
	"sfu-conference/internal/state"
)

// Sentinel error kinds, matched against with errors.Is at call sites that
// care (e.g. deciding whether to reply with MediaError vs just logging).
var (
	ErrProtocolParse    = errors.New("router: malformed message")
	ErrUnknownPeer      = errors.New("router: peer not known to this room")
	ErrIllegalTransition = errors.New("router: illegal state transition")
	ErrNegotiation      = errors.New("router: SDP negotiation failed")
	ErrTransport        = errors.New("router: send-handle write failed")
)

// Recorder is the subset of the recorder package's API the router needs;
// kept as an interface so the router doesn't import internal/recorder
// directly and recording stays optional (nil Recorder disables it).
type Recorder interface {
	StartCallRecording(roomID string, initialParticipants []string)
	AddParticipant(roomID, peerID string)
	WriteRTPPacket(roomID, peerID string, packet *rtp.Packet) error
	StopCallRecording(roomID string)
}

// Router dispatches inbound signaling.Message values against the shared
// directory and state machine, and drives the outbound sends that result.
type Router struct {
	Dir      *directory.Directory
	Recorder Recorder
	Audit    *audit.Trail // nil disables the connection audit trail
	log      logging.LeveledLogger
}

// New returns a Router. recorder may be nil to disable recording; trail may
// be nil to disable the connection audit trail (audit.Trail's methods are
// all safe no-ops on a nil receiver, so it's threaded straight through
// rather than hidden behind another narrow interface).
func New(dir *directory.Directory, recorder Recorder, trail *audit.Trail, log logging.LeveledLogger) *Router {
	return &Router{Dir: dir, Recorder: recorder, Audit: trail, log: log}
}

// Dispatch processes one inbound message. originHandleID is the id (temp or
// peer) the message arrived on, used to rebind on Join.
func (rt *Router) Dispatch(msg signaling.Message, originHandleID string) {
	switch msg.MessageType {
	case signaling.TypeJoin:
		rt.handleJoin(msg, originHandleID)
	case signaling.TypeRequestPeerList:
		rt.handleRequestPeerList(msg)
	case signaling.TypeCallRequest:
		rt.forwardTo(msg.ToPeers, msg)
	case signaling.TypeCallResponse:
		rt.forwardOne(msg.ToPeer, msg)
	case signaling.TypeOffer:
		rt.handleOffer(msg)
	case signaling.TypeAnswer:
		rt.handleAnswer(msg)
	case signaling.TypeIceCandidate:
		rt.handleIceCandidate(msg)
	case signaling.TypeDisconnect, signaling.TypeEndCall, signaling.TypePeerDisconnected:
		rt.handleDisconnect(msg)
	case signaling.TypePeerList, signaling.TypeMediaError, signaling.TypeConnectionError:
		rt.log.Warnf("router: ignoring server-only message_type %s received inbound", msg.MessageType)
	default:
		rt.log.Warnf("router: unknown message_type %q, discarding", msg.MessageType)
	}
}

func (rt *Router) handleJoin(msg signaling.Message, originHandleID string) {
	if msg.RoomID == "" || msg.PeerID == "" {
		rt.log.Errorf("router: %v: Join missing room_id/peer_id", ErrProtocolParse)
		return
	}

	rt.Dir.States.Transition(msg.PeerID, state.New)
	if !rt.Dir.States.Transition(msg.PeerID, state.Joining) {
		rt.log.Warnf("router: %v: peer %s New->Joining", ErrIllegalTransition, msg.PeerID)
	}

	rt.Dir.Rebind(originHandleID, msg.PeerID)

	r, relay, err := rt.Dir.Join(msg.RoomID, msg.PeerID)
	if err != nil {
		if errors.Is(err, room.ErrRoomFull) {
			rt.sendTo(msg.PeerID, signaling.NewMediaError(msg.PeerID, "room_full", "room is at capacity"))
		} else {
			rt.log.Errorf("router: join peer %s room %s: %v", msg.PeerID, msg.RoomID, err)
		}
		return
	}

	rt.Dir.States.Transition(msg.PeerID, state.WaitingForOffer)
	rt.Audit.Record(msg.RoomID, msg.PeerID, audit.EventJoin, "")

	if rt.Recorder != nil && r.RecordingEnabled {
		roomID, peerID := msg.RoomID, msg.PeerID
		if r.Len() == 1 {
			rt.Recorder.StartCallRecording(roomID, []string{peerID})
		} else {
			rt.Recorder.AddParticipant(roomID, peerID)
		}
		relay.OnPacketForwarded(func(pkt *rtp.Packet) {
			if err := rt.Recorder.WriteRTPPacket(roomID, peerID, pkt); err != nil {
				rt.log.Warnf("router: peer %s: write recorded packet: %v", peerID, err)
			}
		})
	}

	rt.broadcastPeerList(msg.RoomID, r)
}

func (rt *Router) handleRequestPeerList(msg signaling.Message) {
	r, ok := rt.Dir.Rooms.Get(msg.RoomID)
	if !ok {
		rt.log.Warnf("router: %v: RequestPeerList for unknown room %s", ErrUnknownPeer, msg.RoomID)
		return
	}
	rt.sendTo(msg.PeerID, signaling.NewPeerList(msg.RoomID, r.PeerIDs()))
}

func (rt *Router) broadcastPeerList(roomID string, r *room.Room) {
	peers := r.PeerIDs()
	out := signaling.NewPeerList(roomID, peers)
	for _, p := range peers {
		rt.sendTo(p, out)
	}
}

// handleOffer sets msg.SDP as the remote offer on to_peer's relay, produces
// an answer, and replies to from_peer with the Answer carrying the roles
// swapped back.
func (rt *Router) handleOffer(msg signaling.Message) {
	relay, ok := rt.Dir.Relays.Get(msg.ToPeer)
	if !ok {
		rt.log.Warnf("router: %v: Offer targets unknown peer %s", ErrUnknownPeer, msg.ToPeer)
		return
	}

	rt.Dir.States.Transition(msg.ToPeer, state.OfferReceived)

	answerSDP, err := relay.HandleRemoteOffer(context.Background(), msg.SDP)
	if err != nil {
		rt.failNegotiation(msg.ToPeer, err)
		return
	}

	rt.Dir.States.Transition(msg.ToPeer, state.AnswerCreated)

	rt.sendTo(msg.FromPeer, signaling.Message{
		MessageType: signaling.TypeAnswer,
		RoomID:      msg.RoomID,
		SDP:         answerSDP,
		FromPeer:    msg.ToPeer,
		ToPeer:      msg.FromPeer,
	})

	rt.Dir.States.Transition(msg.ToPeer, state.Connected)
	if r, ok := rt.Dir.Rooms.Get(msg.RoomID); ok {
		r.MarkConnected(msg.FromPeer, msg.ToPeer)
	}
}

// handleAnswer applies msg.SDP as the remote answer on to_peer's relay —
// to_peer here is the relay that originally sent the offer.
func (rt *Router) handleAnswer(msg signaling.Message) {
	relay, ok := rt.Dir.Relays.Get(msg.ToPeer)
	if !ok {
		rt.log.Warnf("router: %v: Answer targets unknown peer %s", ErrUnknownPeer, msg.ToPeer)
		return
	}

	if err := relay.ApplyRemoteAnswer(msg.SDP); err != nil {
		rt.failNegotiation(msg.ToPeer, err)
		return
	}
	rt.Dir.States.Transition(msg.ToPeer, state.Connected)
}

func (rt *Router) failNegotiation(peerID string, cause error) {
	rt.log.Errorf("router: %v: peer %s: %v", ErrNegotiation, peerID, cause)
	rt.Dir.States.Transition(peerID, state.Failed)
	rt.sendTo(peerID, signaling.NewConnectionError(peerID, cause.Error(), false))
	roomID, _ := rt.Dir.RoomOf(peerID)
	rt.Audit.Record(roomID, peerID, audit.EventFailed, cause.Error())
	rt.disconnectPeer(peerID)
}

// handleIceCandidate forwards the candidate verbatim to to_peer's session
// and attempts to apply it to to_peer's relay, buffering if no remote
// description is set yet. An apply failure is logged and otherwise ignored.
func (rt *Router) handleIceCandidate(msg signaling.Message) {
	rt.sendTo(msg.ToPeer, msg)

	relay, ok := rt.Dir.Relays.Get(msg.ToPeer)
	if !ok {
		return
	}

	cand, err := signaling.DecodeCandidate(msg.Candidate)
	if err != nil {
		rt.log.Warnf("router: %v: %v", ErrProtocolParse, err)
		return
	}

	if err := relay.AddICECandidate(cand); err != nil {
		rt.log.Warnf("router: peer %s: apply ICE candidate: %v", msg.ToPeer, err)
		return
	}
	rt.Dir.Mon.RecordICECandidate(msg.ToPeer, true)
}

// handleDisconnect handles Disconnect, EndCall, and PeerDisconnected
// uniformly via disconnectPeer.
func (rt *Router) handleDisconnect(msg signaling.Message) {
	rt.disconnectPeer(msg.PeerID)
}

// disconnectPeer removes peerID from its room and relay registry, broadcasts
// the updated PeerList to whoever remains, and stops any in-progress
// recording once the room empties out. The standard path every disconnect
// trigger funnels through: an explicit Disconnect/EndCall message, a failed
// negotiation, a send-handle write failure, or a failed liveness ping.
func (rt *Router) disconnectPeer(peerID string) {
	roomID, hadRoom := rt.Dir.Disconnect(peerID)
	if !hadRoom {
		return
	}
	rt.Audit.Record(roomID, peerID, audit.EventLeave, "")
	if r, ok := rt.Dir.Rooms.Get(roomID); ok {
		rt.broadcastPeerList(roomID, r)
		return
	}
	if rt.Recorder != nil {
		rt.Recorder.StopCallRecording(roomID)
	}
}

// StartLivenessValidator begins a ticker-driven sweep, mirroring the relay
// registry's own sweepLoop, that pings every handle registered with the
// directory on interval and disconnects any peer whose ping fails. This is
// independent of each session's own 30s heartbeat: it catches a dead socket
// within one tick instead of waiting on that session's own ping cycle.
// Callers must call the returned stop func exactly once, typically during
// shutdown.
func (rt *Router) StartLivenessValidator(interval time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rt.sweepLiveness()
			case <-stopCh:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
		<-done
	}
}

func (rt *Router) sweepLiveness() {
	for peerID, h := range rt.Dir.Handles() {
		if err := h.Ping(); err != nil {
			rt.log.Warnf("router: %v: peer %s: liveness ping failed: %v", ErrTransport, peerID, err)
			rt.disconnectPeer(peerID)
		}
	}
}

func (rt *Router) forwardOne(toPeer string, msg signaling.Message) {
	rt.sendTo(toPeer, msg)
}

func (rt *Router) forwardTo(toPeers []string, msg signaling.Message) {
	for _, p := range toPeers {
		rt.sendTo(p, msg)
	}
}

// sendTo writes msg to peerID's registered handle. A write failure
// disconnects the affected peer via the standard path; other peers are
// unaffected.
func (rt *Router) sendTo(peerID string, msg signaling.Message) {
	h, ok := rt.Dir.Handle(peerID)
	if !ok {
		rt.log.Debugf("router: no handle registered for %s, dropping message", peerID)
		return
	}
	if err := h.SendJSON(msg); err != nil {
		rt.log.Warnf("router: %v: peer %s: %v", ErrTransport, peerID, err)
		rt.disconnectPeer(peerID)
	}
}
