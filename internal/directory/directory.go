// Package directory composes the Room registry, the Relay registry, the
// peer->room index, and the send-handle table into atomic Join/Disconnect
// operations, so the invariant that a peer in a room's membership always
// has a corresponding relay is enforced in one place instead of trusted to
// every call site. Grounded on how RoomManager and SFUContext are wired
// together inline in internal/handlers/handlers.go, pulled out into its own
// package since MessageRouter must not know about construction order.
package directory

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"sfu-conference/internal/media"
	"sfu-conference/internal/monitor"
	"sfu-conference/internal/room"
	"sfu-conference/internal/state"
	"sfu-conference/internal/transport"
)

// Directory is the single source of truth for "who is where": room
// membership, relays, the peer->room index, and send handles.
type Directory struct {
	Rooms  *room.Registry
	Relays *media.Registry
	States *state.Machine
	Mon    *monitor.Monitor

	log logging.LeveledLogger

	iceConfig       media.ICEConfig
	defaultSettings room.Settings

	mu          sync.RWMutex
	peerRoom    map[string]string
	handles     map[string]transport.Handle // peer_id or temp_<uuid> -> handle
}

// New returns a Directory wired to the given relay registry, room registry,
// state machine, and connection monitor, using cfg for every relay it
// creates and settings for every room it creates.
func New(relays *media.Registry, rooms *room.Registry, states *state.Machine, mon *monitor.Monitor, cfg media.ICEConfig, settings room.Settings, log logging.LeveledLogger) *Directory {
	return &Directory{
		Rooms:           rooms,
		Relays:          relays,
		States:          states,
		Mon:             mon,
		log:             log,
		iceConfig:       cfg,
		defaultSettings: settings,
		peerRoom:        make(map[string]string),
		handles:         make(map[string]transport.Handle),
	}
}

// Handles returns a snapshot of every currently registered send handle,
// keyed by id (a peer id or a pre-Join temp id). Used by the router's
// liveness validator to ping every known handle on its own schedule.
func (d *Directory) Handles() map[string]transport.Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]transport.Handle, len(d.handles))
	for k, v := range d.handles {
		out[k] = v
	}
	return out
}

// RegisterHandle registers h under id (a temp id or a peer id).
func (d *Directory) RegisterHandle(id string, h transport.Handle) {
	d.mu.Lock()
	d.handles[id] = h
	d.mu.Unlock()
}

// UnregisterHandle removes id's handle, if any.
func (d *Directory) UnregisterHandle(id string) {
	d.mu.Lock()
	delete(d.handles, id)
	d.mu.Unlock()
}

// Handle returns the send handle registered under id.
func (d *Directory) Handle(id string) (transport.Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handles[id]
	return h, ok
}

// Rebind moves a handle registered under tempID to peerID, used when a
// session's first Join arrives. No-op if tempID is not registered.
func (d *Directory) Rebind(tempID, peerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handles[tempID]
	if !ok {
		return
	}
	delete(d.handles, tempID)
	d.handles[peerID] = h
}

// RoomOf returns the room_id peerID is currently a member of.
func (d *Directory) RoomOf(peerID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	roomID, ok := d.peerRoom[peerID]
	return roomID, ok
}

// Join creates a new relay for peerID, creates (or reuses) roomID, and
// adds peerID to both the room and the peer->room index. On ErrRoomFull the
// relay is created and then closed, and no membership is recorded.
func (d *Directory) Join(roomID, peerID string) (*room.Room, *media.Relay, error) {
	r := d.Rooms.CreateOrGet(roomID, d.defaultSettings)

	relay, err := d.Relays.Create(peerID, d.iceConfig)
	if err != nil {
		return nil, nil, err
	}

	if err := r.AddPeer(peerID, relay); err != nil {
		d.Relays.Remove(peerID)
		return nil, nil, err
	}

	// Fan every track this peer forwards out to the rest of the room as
	// soon as it starts flowing, so a joining peer's media reaches every
	// other peer already in the room without needing a second signal.
	relay.OnTrackForwarded(func(remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP) {
		r.BroadcastTrack(peerID, local, func(toPeer string, err error) {
			d.log.Warnf("directory: peer %s: forward track to %s: %v", peerID, toPeer, err)
		})
	})

	d.mu.Lock()
	d.peerRoom[peerID] = roomID
	d.mu.Unlock()

	return r, relay, nil
}

// Disconnect removes peerID from its room and from the relay registry,
// drops its peer->room mapping and handle, and removes the room if it is
// now empty. Idempotent: safe to call for a peer already removed.
func (d *Directory) Disconnect(peerID string) (roomID string, hadRoom bool) {
	d.mu.Lock()
	roomID, hadRoom = d.peerRoom[peerID]
	delete(d.peerRoom, peerID)
	delete(d.handles, peerID)
	d.mu.Unlock()

	d.Relays.Remove(peerID)
	d.States.Forget(peerID)
	d.Mon.Unregister(peerID)

	if hadRoom {
		if r, ok := d.Rooms.Get(roomID); ok {
			r.RemovePeer(peerID)
			if r.Len() == 0 {
				d.Rooms.Remove(roomID)
			}
		}
	}
	return roomID, hadRoom
}
