package media

import (
	"testing"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("media_test")
}

func TestNewRelayHasSendrecvAudioTransceiver(t *testing.T) {
	r, err := NewRelay("peer-1", ICEConfig{}, testLogger())
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	defer r.Close()

	trs := r.pc.GetTransceivers()
	if len(trs) != 1 || trs[0].Kind() != webrtc.RTPCodecTypeAudio || trs[0].Direction() != webrtc.RTPTransceiverDirectionSendrecv {
		t.Fatalf("expected exactly one sendrecv audio transceiver, got %d transceivers", len(trs))
	}

	if r.RemoteDescriptionSet() {
		t.Fatal("a freshly constructed relay must not report a remote description set")
	}
}

func TestAddICECandidateBuffersUntilRemoteDescriptionSet(t *testing.T) {
	r, err := NewRelay("peer-2", ICEConfig{}, testLogger())
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	defer r.Close()

	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 2122252543 10.0.0.1 54321 typ host"}
	if err := r.AddICECandidate(cand); err != nil {
		t.Fatalf("AddICECandidate() before remote description set should buffer, not error: %v", err)
	}

	r.mu.Lock()
	buffered := len(r.candidateBuf)
	r.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("expected candidate to be buffered, candidateBuf len = %d", buffered)
	}
}

func TestICEConfigIncludesStunAndTurn(t *testing.T) {
	cfg := ICEConfig{
		StunURLs:       []string{"stun:stun.example.com:3478"},
		TurnURLs:       []string{"turn:turn.example.com:3478"},
		TurnUsername:   "user",
		TurnCredential: "pass",
	}

	servers := cfg.iceServers()
	if len(servers) != 2 {
		t.Fatalf("expected 2 ICE servers (stun + turn), got %d", len(servers))
	}
	if servers[1].Username != "user" || servers[1].Credential != "pass" {
		t.Fatalf("turn server missing credentials: %+v", servers[1])
	}
}
