package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DecodeCandidate tolerates both wire shapes clients are observed to send:
// a JSON object, or a JSON string containing an encoded JSON object
// (double-encoded). webrtc.ICECandidateInit.ToJSON must always be used when
// serializing server-originated candidates; candidate.Marshal would produce
// a payload missing sdpMid.
func DecodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var init webrtc.ICECandidateInit
	if len(raw) == 0 {
		return init, fmt.Errorf("signaling: empty candidate payload")
	}

	if err := json.Unmarshal(raw, &init); err == nil && init.Candidate != "" {
		return init, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return init, fmt.Errorf("signaling: candidate is neither an object nor a JSON string: %w", err)
	}

	if err := json.Unmarshal([]byte(asString), &init); err != nil {
		return init, fmt.Errorf("signaling: failed to decode double-encoded candidate: %w", err)
	}
	return init, nil
}

// EncodeCandidate serializes an ICE candidate as the single-encoded JSON
// object wire format the server emits.
func EncodeCandidate(c webrtc.ICECandidateInit) (json.RawMessage, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
