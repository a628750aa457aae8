// Package session implements SignalingSession: one goroutine per WebSocket,
// owning a temporary id until Join, then rebinding to the peer id and
// dispatching inbound frames to the router. Grounded on the read loop in
// internal/handlers.WebsocketHandler, generalized from a single inline
// switch over ad hoc event names to read-parse-dispatch over the router
// package, and from a single gorilla-specific connection to the
// transport.Handle capability so either supported WebSocket library can
// back a session.
package session

import (
	"github.com/google/uuid"
	"github.com/pion/logging"

	"sfu-conference/internal/keepalive"
	"sfu-conference/internal/router"
	"sfu-conference/internal/signaling"
	"sfu-conference/internal/transport"
)

// Reader is the read side of a transport.Handle; both GorillaHandle and
// NhooyrHandle implement ReadText directly, so either handle is passed to
// New as its own Reader.
type Reader interface {
	ReadText() (string, error)
}

// Session owns one WebSocket's lifecycle: temp id allocation, Join
// rebinding, the read loop, and the heartbeat.
type Session struct {
	handle  transport.Handle
	reader  Reader
	router  *router.Router
	log     logging.LeveledLogger
	monitor *keepalive.Monitor

	tempID      string
	currentPeer string
	currentRoom string
}

// New allocates a temp_<uuid> id, registers handle under it with the
// router's directory, and returns a Session ready to Run.
func New(handle transport.Handle, reader Reader, rt *router.Router, log logging.LeveledLogger) *Session {
	tempID := "temp_" + uuid.NewString()
	rt.Dir.RegisterHandle(tempID, handle)

	s := &Session{
		handle: handle,
		reader: reader,
		router: rt,
		log:    log,
		tempID: tempID,
	}
	s.monitor = keepalive.NewMonitor(handle, log, keepalive.DefaultConfig(), s.onHeartbeatFailure)
	return s
}

// Run reads frames until the socket closes or a terminal error occurs, then
// synthesizes a Disconnect for whatever peer/room this session last knew
// about. Recovers from panics in the loop body so one bad frame can never
// take the process down.
func (s *Session) Run() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("session: recovered panic in read loop: %v", r)
		}
		s.teardown()
	}()

	s.monitor.Start()

	for {
		text, err := s.reader.ReadText()
		if err != nil {
			s.log.Debugf("session: read loop ending: %v", err)
			return
		}

		msg, err := signaling.Decode([]byte(text))
		if err != nil {
			s.log.Warnf("session: %v: %v", router.ErrProtocolParse, err)
			continue
		}

		if msg.MessageType == signaling.TypeJoin {
			s.currentPeer = msg.PeerID
			s.currentRoom = msg.RoomID
		}

		origin := s.currentHandleID()
		s.router.Dispatch(msg, origin)
	}
}

func (s *Session) currentHandleID() string {
	if s.currentPeer != "" {
		return s.currentPeer
	}
	return s.tempID
}

func (s *Session) onHeartbeatFailure() {
	s.log.Warnf("session: heartbeat failed for %s, synthesizing disconnect", s.currentHandleID())
	s.synthesizeDisconnect()
	_ = s.handle.Close()
}

// teardown runs once, when the read loop returns for any reason: socket
// close, read error, or an unrecoverable panic.
func (s *Session) teardown() {
	s.monitor.Stop()
	s.synthesizeDisconnect()
}

func (s *Session) synthesizeDisconnect() {
	if s.currentPeer == "" {
		s.router.Dir.UnregisterHandle(s.tempID)
		return
	}
	s.router.Dispatch(signaling.Message{
		MessageType: signaling.TypeDisconnect,
		RoomID:      s.currentRoom,
		PeerID:      s.currentPeer,
	}, s.currentPeer)
}

// TempID returns the session's temporary id, for tests and diagnostics.
func (s *Session) TempID() string { return s.tempID }
