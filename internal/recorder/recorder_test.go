package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/logging"
	"github.com/pion/rtp"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("recorder_test")
}

func TestStartCallRecordingCreatesPerParticipantFiles(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, testLogger())

	r.StartCallRecording("room-1", []string{"peer-1", "peer-2"})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	var rtpFiles, jsonFiles int
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".rtp":
			rtpFiles++
		case ".json":
			jsonFiles++
		}
	}
	if rtpFiles != 2 {
		t.Fatalf("expected 2 .rtp files (one per participant), got %d", rtpFiles)
	}
	if jsonFiles != 1 {
		t.Fatalf("expected 1 metadata sidecar, got %d", jsonFiles)
	}
}

func TestAddParticipantAfterStartOpensItsOwnFile(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, testLogger())

	r.StartCallRecording("room-1", []string{"peer-1"})
	r.AddParticipant("room-1", "peer-2")

	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1}, Payload: []byte{1, 2, 3}}
	if err := r.WriteRTPPacket("room-1", "peer-2", pkt); err != nil {
		t.Fatalf("WriteRTPPacket() error = %v", err)
	}

	r.StopCallRecording("room-1")

	entries, _ := os.ReadDir(dir)
	var rtpFiles int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".rtp" {
			rtpFiles++
		}
	}
	if rtpFiles != 2 {
		t.Fatalf("expected 2 .rtp files after AddParticipant, got %d", rtpFiles)
	}
}

func TestWriteRTPPacketOnUnknownRoomIsNoop(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, testLogger())

	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1}}
	if err := r.WriteRTPPacket("does-not-exist", "peer-1", pkt); err != nil {
		t.Fatalf("WriteRTPPacket() on unknown room should be a no-op, got error %v", err)
	}
}
