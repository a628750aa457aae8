// Package room implements Room and RoomRegistry: room membership, capacity
// enforcement, and track broadcast within a room. Grounded on the
// internal/room package's RoomManager (GetOrCreateRoom/AddPeer/RemovePeer),
// generalized from a websocket-keyed peer map into an ordered peer_id list
// carrying a *media.Relay, and extended with a capacity/media-settings model
// RoomManager never had.
package room

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"sfu-conference/internal/media"
)

// ErrRoomFull is returned by AddPeer when the room is already at capacity.
var ErrRoomFull = errors.New("room: at capacity")

// MediaType is one of the media kinds a room may allow.
type MediaType string

const (
	MediaAudio  MediaType = "Audio"
	MediaVideo  MediaType = "Video"
	MediaScreen MediaType = "Screen"
)

// Settings configures what a room allows.
type Settings struct {
	MaxParticipants   int
	AllowedMediaTypes map[MediaType]struct{}
	BandwidthLimit    *int // bits/sec, nil means unlimited
	RecordingEnabled  bool
}

// DefaultSettings is the default room policy: audio and video allowed, no
// bandwidth cap, a generous participant ceiling.
func DefaultSettings() Settings {
	return Settings{
		MaxParticipants: 32,
		AllowedMediaTypes: map[MediaType]struct{}{
			MediaAudio: {},
			MediaVideo: {},
		},
	}
}

// pair is an unordered (peer_a, peer_b) with peer_a < peer_b, tracking which
// negotiations have completed. Bookkeeping only; exposed for telemetry, never
// consulted to gate behavior.
type pair struct {
	a, b string
}

func newPair(x, y string) pair {
	if x < y {
		return pair{x, y}
	}
	return pair{y, x}
}

// Room maps peer_id -> *media.Relay in insertion order and tracks which
// peer pairs have completed negotiation.
type Room struct {
	ID       string
	Settings Settings

	RecordingEnabled bool

	mu             sync.RWMutex
	order          []string
	peers          map[string]*media.Relay
	connectedPairs map[pair]struct{}
}

// New returns an empty room with the given settings.
func New(id string, settings Settings) *Room {
	return &Room{
		ID:               id,
		Settings:         settings,
		RecordingEnabled: settings.RecordingEnabled,
		peers:            make(map[string]*media.Relay),
		connectedPairs:   make(map[pair]struct{}),
	}
}

// AddPeer adds peerID with its relay, in insertion order, rejecting the add
// once the room is at Settings.MaxParticipants.
func (r *Room) AddPeer(peerID string, relay *media.Relay) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[peerID]; exists {
		return nil
	}
	if r.Settings.MaxParticipants > 0 && len(r.peers) >= r.Settings.MaxParticipants {
		return ErrRoomFull
	}

	r.peers[peerID] = relay
	r.order = append(r.order, peerID)
	return nil
}

// RemovePeer removes peerID, if present, and drops any recorded pairs
// involving it.
func (r *Room) RemovePeer(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[peerID]; !exists {
		return
	}
	delete(r.peers, peerID)
	for i, id := range r.order {
		if id == peerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for p := range r.connectedPairs {
		if p.a == peerID || p.b == peerID {
			delete(r.connectedPairs, p)
		}
	}
}

// HasPeer reports whether peerID is a member of the room.
func (r *Room) HasPeer(peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[peerID]
	return ok
}

// PeerIDs returns the room's peers in the order they joined.
func (r *Room) PeerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Relay returns the relay registered for peerID, if any.
func (r *Room) Relay(peerID string) (*media.Relay, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	relay, ok := r.peers[peerID]
	return relay, ok
}

// Len returns the number of peers currently in the room.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// MarkConnected records that fromPeer and toPeer have completed negotiation.
// Bookkeeping only, exposed for telemetry.
func (r *Room) MarkConnected(fromPeer, toPeer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectedPairs[newPair(fromPeer, toPeer)] = struct{}{}
}

// ConnectedPairs returns a snapshot of the (peer_a, peer_b) pairs recorded as
// connected, peer_a < peer_b.
func (r *Room) ConnectedPairs() [][2]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][2]string, 0, len(r.connectedPairs))
	for p := range r.connectedPairs {
		out = append(out, [2]string{p.a, p.b})
	}
	return out
}

// BroadcastTrack adds track to every peer's relay other than fromPeer. Locks
// are released before the AddTrack calls are issued: the lock only collects
// the target relays, the sends happen outside it.
func (r *Room) BroadcastTrack(fromPeer string, track webrtc.TrackLocal, log func(peerID string, err error)) {
	r.mu.RLock()
	targets := make([]*media.Relay, 0, len(r.peers))
	for peerID, relay := range r.peers {
		if peerID == fromPeer {
			continue
		}
		targets = append(targets, relay)
	}
	r.mu.RUnlock()

	for _, relay := range targets {
		if _, err := relay.AddTrack(track); err != nil && log != nil {
			log(relay.PeerID, err)
		}
	}
}
