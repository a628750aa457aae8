// Package stunserver implements the embedded STUN responder: UDP on a
// configured port, answering Binding Requests with the source address as an
// XOR-MAPPED-ADDRESS. Grounded on original_source/src/signaling/stun.rs's
// StunService, translated from the stun-rs Message API to pion/stun/v3.
package stunserver

import (
	"net"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

// Server answers STUN Binding Requests on a UDP socket.
type Server struct {
	conn net.PacketConn
	log  logging.LeveledLogger
	done chan struct{}
}

// Start binds addr (host:port) and begins serving in a background
// goroutine.
func Start(addr string, log logging.LeveledLogger) (*Server, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{conn: conn, log: log, done: make(chan struct{})}
	go s.serve()
	log.Infof("stunserver: listening on %s", addr)
	return s, nil
}

func (s *Server) serve() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("stunserver: recovered panic in listener loop: %v", r)
		}
	}()

	buf := make([]byte, 1024)
	for {
		n, src, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.Errorf("stunserver: read error: %v", err)
				return
			}
		}
		s.handlePacket(buf[:n], src)
	}
}

func (s *Server) handlePacket(data []byte, src net.Addr) {
	msg := &stun.Message{Raw: append([]byte(nil), data...)}
	if err := msg.Decode(); err != nil {
		s.log.Debugf("stunserver: failed to decode STUN message: %v", err)
		return
	}
	if msg.Type != stun.BindingRequest {
		s.log.Debugf("stunserver: ignoring non-binding-request message type %s", msg.Type)
		return
	}

	udpAddr, ok := src.(*net.UDPAddr)
	if !ok {
		return
	}

	response, err := stun.Build(msg, stun.BindingSuccess,
		&stun.XORMappedAddress{IP: udpAddr.IP, Port: udpAddr.Port},
		stun.Fingerprint,
	)
	if err != nil {
		s.log.Errorf("stunserver: build response: %v", err)
		return
	}

	if _, err := s.conn.WriteTo(response.Raw, src); err != nil {
		s.log.Errorf("stunserver: send response to %s: %v", src, err)
	}
}

// Close stops the server and its listener.
func (s *Server) Close() error {
	close(s.done)
	return s.conn.Close()
}
