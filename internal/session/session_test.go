package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"

	"sfu-conference/internal/directory"
	"sfu-conference/internal/media"
	"sfu-conference/internal/monitor"
	"sfu-conference/internal/room"
	"sfu-conference/internal/router"
	"sfu-conference/internal/signaling"
	"sfu-conference/internal/state"
)

type fakeHandle struct {
	mu  sync.Mutex
	id  string
	got []signaling.Message
}

func (h *fakeHandle) Send(string) error { return nil }

func (h *fakeHandle) SendJSON(v any) error {
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

func (h *fakeHandle) Ping() error  { return nil }
func (h *fakeHandle) Close() error { return nil }
func (h *fakeHandle) ID() string   { return h.id }

// fakeReader replays a fixed sequence of frames and then blocks until
// closed, mimicking a WebSocket that goes idle after its scripted traffic.
type fakeReader struct {
	mu     sync.Mutex
	frames []string
	i      int
	closed chan struct{}
}

func newFakeReader(frames ...string) *fakeReader {
	return &fakeReader{frames: frames, closed: make(chan struct{})}
}

func (r *fakeReader) ReadText() (string, error) {
	r.mu.Lock()
	if r.i < len(r.frames) {
		f := r.frames[r.i]
		r.i++
		r.mu.Unlock()
		return f, nil
	}
	r.mu.Unlock()
	<-r.closed
	return "", errors.New("fakeReader: closed")
}

func (r *fakeReader) close() {
	close(r.closed)
}

func newTestRouter(t *testing.T) *router.Router {
	t.Helper()
	log := logging.NewDefaultLoggerFactory().NewLogger("session_test")
	relays := media.NewRegistry(log)
	t.Cleanup(relays.Close)
	rooms := room.NewRegistry()
	states := state.NewMachine()
	mon := monitor.New(60 * time.Second)
	dir := directory.New(relays, rooms, states, mon, media.ICEConfig{}, room.Settings{MaxParticipants: 10}, log)
	return router.New(dir, nil, nil, log)
}

func TestSessionRebindsHandleOnJoin(t *testing.T) {
	rt := newTestRouter(t)
	log := logging.NewDefaultLoggerFactory().NewLogger("session_test")

	joinFrame, _ := json.Marshal(signaling.Message{
		MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-1",
	})
	reader := newFakeReader(string(joinFrame))
	handle := &fakeHandle{id: "h1"}

	s := New(handle, reader, rt, log)
	tempID := s.TempID()

	if _, ok := rt.Dir.Handle(tempID); !ok {
		t.Fatal("handle should be registered under the temp id immediately after New")
	}

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// Give the read loop a moment to process the Join frame, then close the
	// reader so Run returns.
	time.Sleep(20 * time.Millisecond)
	reader.close()
	<-done

	if _, ok := rt.Dir.Handle(tempID); ok {
		t.Fatal("temp id should no longer be registered once Join rebinds it")
	}

	if r, ok := rt.Dir.Relays.Get("peer-1"); ok {
		r.Close()
	}
}

func TestSessionSynthesizesDisconnectOnReadError(t *testing.T) {
	rt := newTestRouter(t)
	log := logging.NewDefaultLoggerFactory().NewLogger("session_test")

	joinFrame, _ := json.Marshal(signaling.Message{
		MessageType: signaling.TypeJoin, RoomID: "room-1", PeerID: "peer-2",
	})
	reader := newFakeReader(string(joinFrame))
	handle := &fakeHandle{id: "h2"}

	s := New(handle, reader, rt, log)
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	reader.close()
	<-done

	if _, ok := rt.Dir.Relays.Get("peer-2"); ok {
		t.Fatal("peer-2's relay should be gone: read loop ending must synthesize a Disconnect")
	}
	if roomID, ok := rt.Dir.RoomOf("peer-2"); ok {
		t.Fatalf("peer-2 should no longer be mapped to a room, got %s", roomID)
	}
}
