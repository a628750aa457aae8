// Package recorder implements per-participant RTP recording: one append-only
// .rtp file per participant plus one JSON metadata sidecar per call. Adapted
// from original_source/src/media/recording.rs's RecordingManager, which
// recorded one file per room; here recording is scoped to one file per
// participant, so the keying changes from room_id to (room_id, peer_id) and
// each participant gets its own *os.File instead of sharing the room's. The
// sidecar is written once, when the call starts, and lists only the initial
// participants.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/rtp"
)

type participantFile struct {
	file *os.File
	mu   sync.Mutex
}

type callMetadata struct {
	RoomID       string   `json:"room_id"`
	Participants []string `json:"participants"`
	StartTime    string   `json:"start_time"`
	CallID       string   `json:"call_id"`
}

// Recorder manages the active recordings for every room with
// RecordingEnabled set.
type Recorder struct {
	path string
	log  logging.LeveledLogger

	mu      sync.Mutex
	calls   map[string]string                      // room_id -> call_id
	parts   map[string]map[string]*participantFile  // room_id -> peer_id -> file
}

// New returns a Recorder writing into path, creating the directory if
// necessary. Construction never fails the caller: a directory creation
// error is logged and subsequent writes for that room are silently skipped.
func New(path string, log logging.LeveledLogger) *Recorder {
	if err := os.MkdirAll(path, 0o755); err != nil {
		log.Errorf("recorder: failed to create recording directory %s: %v", path, err)
	}
	return &Recorder{
		path:  path,
		log:   log,
		calls: make(map[string]string),
		parts: make(map[string]map[string]*participantFile),
	}
}

// StartCallRecording begins a new recording for roomID with the given
// initial participants, each getting its own .rtp file, and writes one JSON
// metadata sidecar for the call. A no-op if a recording is already active
// for roomID.
func (r *Recorder) StartCallRecording(roomID string, initialParticipants []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.calls[roomID]; exists {
		return
	}

	callID := uuid.NewString()
	r.calls[roomID] = callID
	r.parts[roomID] = make(map[string]*participantFile)

	stamp := time.Now().UTC().Format("20060102_150405")
	meta := callMetadata{
		RoomID:       roomID,
		Participants: initialParticipants,
		StartTime:    time.Now().UTC().Format(time.RFC3339),
		CallID:       callID,
	}
	metaPath := filepath.Join(r.path, fmt.Sprintf("call_%s_%s.json", stamp, callID))
	if b, err := json.MarshalIndent(meta, "", "  "); err != nil {
		r.log.Errorf("recorder: marshal metadata for room %s: %v", roomID, err)
	} else if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		r.log.Errorf("recorder: write metadata for room %s: %v", roomID, err)
	}

	for _, peerID := range initialParticipants {
		r.openParticipantLocked(roomID, callID, stamp, peerID)
	}

	r.log.Infof("recorder: started recording for room %s, call_id %s", roomID, callID)
}

// AddParticipant opens a recording file for peerID within roomID's active
// call, if one is running. A no-op if roomID has no active recording or
// peerID already has a file.
func (r *Recorder) AddParticipant(roomID, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	callID, ok := r.calls[roomID]
	if !ok {
		return
	}
	if _, exists := r.parts[roomID][peerID]; exists {
		return
	}
	r.openParticipantLocked(roomID, callID, time.Now().UTC().Format("20060102_150405"), peerID)
}

func (r *Recorder) openParticipantLocked(roomID, callID, stamp, peerID string) {
	filename := fmt.Sprintf("call_%s_%s_%s.rtp", stamp, callID, peerID)
	f, err := os.Create(filepath.Join(r.path, filename))
	if err != nil {
		r.log.Errorf("recorder: create participant file for %s/%s: %v", roomID, peerID, err)
		return
	}
	r.parts[roomID][peerID] = &participantFile{file: f}
}

// WriteRTPPacket appends packet's wire encoding to peerID's file within
// roomID's active recording. A no-op if no such file is open.
func (r *Recorder) WriteRTPPacket(roomID, peerID string, packet *rtp.Packet) error {
	r.mu.Lock()
	pf, ok := r.parts[roomID][peerID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	buf, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("recorder: marshal packet: %w", err)
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()
	_, err = pf.file.Write(buf)
	return err
}

// StopCallRecording closes every participant file for roomID and forgets
// the call.
func (r *Recorder) StopCallRecording(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for peerID, pf := range r.parts[roomID] {
		if err := pf.file.Close(); err != nil {
			r.log.Warnf("recorder: close file for %s/%s: %v", roomID, peerID, err)
		}
	}
	delete(r.parts, roomID)
	delete(r.calls, roomID)
}
