package router

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"

	"sfu-conference/internal/directory"
	"sfu-conference/internal/media"
	"sfu-conference/internal/monitor"
	"sfu-conference/internal/room"
	"sfu-conference/internal/signaling"
	"sfu-conference/internal/state"
)

type recordingHandle struct {
	mu  sync.Mutex
	id  string
	got []signaling.Message
}

func (h *recordingHandle) Send(string) error { return nil }

func (h *recordingHandle) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m signaling.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	h.mu.Lock()
	h.got = append(h.got, m)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandle) Ping() error  { return nil }
func (h *recordingHandle) Close() error { return nil }
func (h *recordingHandle) ID() string   { return h.id }

func (h *recordingHandle) messages() []signaling.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]signaling.Message, len(h.got))
	copy(out, h.got)
	return out
}

func newTestRouter(t *testing.T) (*Router, *directory.Directory) {
	t.Helper()
	log := logging.NewDefaultLoggerFactory().NewLogger("router_test")
	relays := media.NewRegistry(log)
	t.Cleanup(relays.Close)
	rooms := room.NewRegistry()
	states := state.NewMachine()
	mon := monitor.New(60 * time.Second)
	dir := directory.New(relays, rooms, states, mon, media.ICEConfig{}, room.Settings{MaxParticipants: 10}, log)
	return New(dir, nil, nil, log), dir
}

func TestHandleJoinBroadcastsPeerListToJoiner(t *testing.T) {
	rt, dir := newTestRouter(t)
	h := &recordingHandle{id: "h1"}
	dir.RegisterHandle("temp_1", h)

	rt.Dispatch(signaling.Message{MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-1"}, "temp_1")

	if _, ok := dir.Handle("temp_1"); ok {
		t.Fatal("temp handle should be rebound to the peer id after Join")
	}
	got, ok := dir.Handle("peer-1")
	if !ok || got != h {
		t.Fatal("handle should be registered under peer-1 after Join")
	}

	msgs := h.messages()
	if len(msgs) != 1 || msgs[0].MessageType != signaling.TypePeerList {
		t.Fatalf("expected one PeerList message, got %+v", msgs)
	}
	if len(msgs[0].Peers) != 1 || msgs[0].Peers[0] != "peer-1" {
		t.Fatalf("PeerList.Peers = %v; want [peer-1]", msgs[0].Peers)
	}

	relay, _ := dir.Relays.Get("peer-1")
	defer relay.Close()
}

func TestHandleJoinRoomFullSendsMediaError(t *testing.T) {
	rt, dir := newTestRouter(t)
	dir.Rooms.CreateOrGet("room-1", room.Settings{MaxParticipants: 1})

	h1 := &recordingHandle{id: "h1"}
	dir.RegisterHandle("peer-1", h1)
	rt.Dispatch(signaling.Message{MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-1"}, "peer-1")

	h2 := &recordingHandle{id: "h2"}
	dir.RegisterHandle("peer-2", h2)
	rt.Dispatch(signaling.Message{MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-2"}, "peer-2")

	msgs := h2.messages()
	if len(msgs) != 1 || msgs[0].MessageType != signaling.TypeMediaError || msgs[0].ErrorType != "room_full" {
		t.Fatalf("expected a room_full MediaError, got %+v", msgs)
	}
	if dir.Rooms.Snapshot()["room-1"] != 1 {
		t.Fatalf("rejected joiner must not be added to the room")
	}

	for _, id := range []string{"peer-1"} {
		if r, ok := dir.Relays.Get(id); ok {
			defer r.Close()
		}
	}
}

func TestHandleIceCandidateForwardsAndBuffers(t *testing.T) {
	rt, dir := newTestRouter(t)
	dir.RegisterHandle("peer-1", &recordingHandle{id: "h1"})
	rt.Dispatch(signaling.Message{MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-1"}, "peer-1")

	h2 := &recordingHandle{id: "h2"}
	dir.RegisterHandle("peer-2", h2)
	rt.Dispatch(signaling.Message{MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-2"}, "peer-2")
	h2.mu.Lock()
	h2.got = nil
	h2.mu.Unlock()

	candJSON, _ := json.Marshal(map[string]string{"candidate": "candidate:1 1 UDP 1 10.0.0.1 1 typ host"})
	rt.Dispatch(signaling.Message{
		MessageType: signaling.TypeIceCandidate,
		RoomID:      "room-1",
		FromPeer:    "peer-1",
		ToPeer:      "peer-2",
		Candidate:   candJSON,
	}, "peer-1")

	msgs := h2.messages()
	if len(msgs) != 1 || msgs[0].MessageType != signaling.TypeIceCandidate {
		t.Fatalf("expected the candidate to be forwarded to peer-2, got %+v", msgs)
	}

	relay, _ := dir.Relays.Get("peer-2")
	if relay.RemoteDescriptionSet() {
		t.Fatal("no offer/answer exchanged yet, candidate should be buffered not applied")
	}

	r1, _ := dir.Relays.Get("peer-1")
	defer r1.Close()
	defer relay.Close()
}

func TestHandleDisconnectBroadcastsUpdatedPeerList(t *testing.T) {
	rt, dir := newTestRouter(t)
	dir.RegisterHandle("peer-1", &recordingHandle{id: "h1"})
	rt.Dispatch(signaling.Message{MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-1"}, "peer-1")

	h2 := &recordingHandle{id: "h2"}
	dir.RegisterHandle("peer-2", h2)
	rt.Dispatch(signaling.Message{MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-2"}, "peer-2")
	h2.mu.Lock()
	h2.got = nil
	h2.mu.Unlock()

	rt.Dispatch(signaling.Message{MessageType: signaling.TypeDisconnect, RoomID: "room-1", PeerID: "peer-1"}, "peer-1")

	msgs := h2.messages()
	if len(msgs) != 1 || msgs[0].MessageType != signaling.TypePeerList || len(msgs[0].Peers) != 1 {
		t.Fatalf("expected peer-2 to receive an updated one-member PeerList, got %+v", msgs)
	}

	if _, ok := dir.Relays.Get("peer-1"); ok {
		t.Fatal("peer-1's relay should be gone after disconnect")
	}
	r2, _ := dir.Relays.Get("peer-2")
	defer r2.Close()
}
