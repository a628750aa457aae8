// Package turncred generates the credentials served from
// /api/turn-credentials: either a fixed static username/password pair, or
// short-lived HMAC-SHA1 credentials in the shared-secret REST API style
// (username = "<expiry_unix>:<user>", password = base64(HMAC-SHA1(secret,
// username))). Grounded on the credential map construction in
// original_source/src/signaling/turn.rs's TurnServer::new, generalized from
// a static map-only scheme into both modes.
package turncred

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// TTL is the validity window of HMAC-SHA1 generated credentials.
const TTL = 12 * time.Hour

// Credentials is the shape served by /api/turn-credentials.
type Credentials struct {
	StunServer string `json:"stun_server"`
	StunPort   int    `json:"stun_port"`
	TurnServer string `json:"turn_server"`
	TurnPort   int    `json:"turn_port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// Generator produces Credentials for a given ICE endpoint configuration.
// Exactly one of StaticUsername/StaticPassword or Secret should be set; if
// Secret is non-empty, HMAC credentials are generated, otherwise the static
// pair is returned verbatim.
type Generator struct {
	StunServer string
	StunPort   int
	TurnServer string
	TurnPort   int

	StaticUsername string
	StaticPassword string

	Secret string // non-empty enables HMAC-SHA1 time-limited credentials
	User   string // the "user" half of the HMAC username, e.g. "webrtc"
}

// Generate returns a fresh Credentials value. For HMAC mode, now is used as
// the generation time so tests can pin it.
func (g Generator) Generate(now time.Time) Credentials {
	username, password := g.StaticUsername, g.StaticPassword
	if g.Secret != "" {
		username, password = g.hmacCredentials(now)
	}

	return Credentials{
		StunServer: g.StunServer,
		StunPort:   g.StunPort,
		TurnServer: g.TurnServer,
		TurnPort:   g.TurnPort,
		Username:   username,
		Password:   password,
	}
}

func (g Generator) hmacCredentials(now time.Time) (username, password string) {
	expiry := now.Add(TTL).Unix()
	username = fmt.Sprintf("%d:%s", expiry, g.User)

	mac := hmac.New(sha1.New, []byte(g.Secret))
	mac.Write([]byte(username))
	password = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return username, password
}
