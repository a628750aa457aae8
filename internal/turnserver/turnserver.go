// Package turnserver runs the embedded TURN relay used when no external TURN
// service is configured. Grounded on
// original_source/src/signaling/turn.rs's TurnServer (a turn-rs
// Server wrapping a long-term-credential AuthHandler backed by a static
// username/password map), translated to pion/turn/v4's equivalent
// LongTermAuthHandler + RelayAddressGeneratorStatic construction.
package turnserver

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"github.com/pion/turn/v4"
)

// Config configures the embedded TURN server.
type Config struct {
	ListenAddr string // e.g. "0.0.0.0"
	Port       int
	PublicIP   string // relay address advertised to clients
	Realm      string
	Username   string
	Password   string
}

// Server wraps a running pion/turn/v4 server instance.
type Server struct {
	turn *turn.Server
	conn net.PacketConn
}

// credentialMap implements the turn package's long-term credential lookup
// over a single static username/password pair; this server only ever
// configures one.
func credentialMap(cfg Config) map[string][]byte {
	key := turn.GenerateAuthKey(cfg.Username, cfg.Realm, cfg.Password)
	return map[string][]byte{cfg.Username: key}
}

// Start binds the UDP listener and launches the TURN server.
func Start(cfg Config, log logging.LeveledLogger) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.Port)
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("turnserver: listen %s: %w", addr, err)
	}

	creds := credentialMap(cfg)

	publicIP := net.ParseIP(cfg.PublicIP)
	if publicIP == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("turnserver: invalid public IP %q", cfg.PublicIP)
	}

	s, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			key, ok := creds[username]
			return key, ok
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: conn,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: publicIP,
					Address:      "0.0.0.0",
				},
			},
		},
		LoggerFactory: turnLoggerFactory{log},
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("turnserver: new server: %w", err)
	}

	log.Infof("turnserver: listening on %s, realm %s", addr, cfg.Realm)
	return &Server{turn: s, conn: conn}, nil
}

// Close shuts down the TURN server and its listener.
func (s *Server) Close() error {
	return s.turn.Close()
}

// turnLoggerFactory adapts a single pion/logging.LeveledLogger into the
// per-scope LoggerFactory pion/turn expects.
type turnLoggerFactory struct {
	log logging.LeveledLogger
}

func (f turnLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return f.log
}
