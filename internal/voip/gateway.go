// Package voip is a minimal stand-in for an external VoIP gateway contract
// (SIP_BIND_ADDRESS, SIP_PORT, SIP_DOMAIN) that never specifies beyond
// "enable it". original_source/src/voip/* implements
// a full SIP dialog stack (INVITE/BYE handling, RTP media bridging) built on
// the Rust rsip crate; no SIP parsing library exists anywhere in the
// retrieved corpus, so this is intentionally not a SIP stack — it satisfies
// the bind/port/domain contract and logs what arrives, as a placeholder for
// a real implementation once a SIP library is available.
package voip

import (
	"net"
	"strconv"

	"github.com/pion/logging"
)

// Config is the SIP_* environment contract.
type Config struct {
	BindAddress string
	Port        int
	Domain      string
}

// Gateway listens on Config.BindAddress:Config.Port and logs the datagrams
// it receives, without parsing them as SIP.
type Gateway struct {
	conn   net.PacketConn
	log    logging.LeveledLogger
	domain string
	done   chan struct{}
}

// Start binds the UDP socket and begins the accept loop in the background.
func Start(cfg Config, log logging.LeveledLogger) (*Gateway, error) {
	addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port))
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, err
	}

	g := &Gateway{conn: conn, log: log, domain: cfg.Domain, done: make(chan struct{})}
	log.Infof("voip: listening on %s for domain %s (gateway is a stub, no SIP dialog handling)", addr, cfg.Domain)
	go g.serve()
	return g, nil
}

func (g *Gateway) serve() {
	buf := make([]byte, 8192)
	for {
		n, src, err := g.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-g.done:
				return
			default:
				g.log.Errorf("voip: read error: %v", err)
				return
			}
		}
		g.log.Debugf("voip: received %d bytes from %s for domain %s, discarding (no SIP parser wired)", n, src, g.domain)
	}
}

// Close stops the gateway.
func (g *Gateway) Close() error {
	close(g.done)
	return g.conn.Close()
}
