package room

import (
	"testing"

	"github.com/pion/logging"

	"sfu-conference/internal/media"
)

func newTestRelay(t *testing.T, peerID string) *media.Relay {
	t.Helper()
	r, err := media.NewRelay(peerID, media.ICEConfig{}, logging.NewDefaultLoggerFactory().NewLogger("room_test"))
	if err != nil {
		t.Fatalf("media.NewRelay(%s) error = %v", peerID, err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestAddPeerRejectsOverCapacity(t *testing.T) {
	r := New("room-1", Settings{MaxParticipants: 1})

	if err := r.AddPeer("peer-1", newTestRelay(t, "peer-1")); err != nil {
		t.Fatalf("first AddPeer() error = %v", err)
	}
	if err := r.AddPeer("peer-2", newTestRelay(t, "peer-2")); err != ErrRoomFull {
		t.Fatalf("AddPeer() at capacity = %v; want ErrRoomFull", err)
	}
}

func TestPeerIDsPreservesInsertionOrder(t *testing.T) {
	r := New("room-2", Settings{MaxParticipants: 10})
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		if err := r.AddPeer(id, newTestRelay(t, id)); err != nil {
			t.Fatalf("AddPeer(%s) error = %v", id, err)
		}
	}

	got := r.PeerIDs()
	for i, id := range ids {
		if got[i] != id {
			t.Fatalf("PeerIDs()[%d] = %s; want %s (got %v)", i, got[i], id, got)
		}
	}
}

func TestRemovePeerDropsConnectedPairs(t *testing.T) {
	r := New("room-3", Settings{MaxParticipants: 10})
	r.AddPeer("a", newTestRelay(t, "a"))
	r.AddPeer("b", newTestRelay(t, "b"))
	r.MarkConnected("a", "b")

	if len(r.ConnectedPairs()) != 1 {
		t.Fatalf("expected one connected pair before removal")
	}
	r.RemovePeer("a")
	if len(r.ConnectedPairs()) != 0 {
		t.Fatalf("expected connected pairs involving removed peer to be dropped")
	}
}

func TestRemovePeerUnknownPeerIsNoop(t *testing.T) {
	r := New("room-4", Settings{MaxParticipants: 10})
	r.RemovePeer("does-not-exist")
	if r.Len() != 0 {
		t.Fatalf("Len() = %d; want 0", r.Len())
	}
}
