// Package signaling defines the wire protocol exchanged over the WebSocket
// endpoint: a single tagged message type discriminated by message_type, and
// the JSON quirks the field clients are observed to produce.
package signaling

import "encoding/json"

// Type is the message_type discriminator carried by every frame.
type Type string

const (
	TypeJoin              Type = "Join"
	TypeRequestPeerList   Type = "RequestPeerList"
	TypePeerList          Type = "PeerList"
	TypeCallRequest       Type = "CallRequest"
	TypeCallResponse      Type = "CallResponse"
	TypeOffer             Type = "Offer"
	TypeAnswer             Type = "Answer"
	TypeIceCandidate      Type = "IceCandidate"
	TypeDisconnect        Type = "Disconnect"
	TypeEndCall           Type = "EndCall"
	TypePeerDisconnected  Type = "PeerDisconnected"
	TypeMediaError        Type = "MediaError"
	TypeConnectionError   Type = "ConnectionError"
)

// Message is the envelope every inbound/outbound frame is decoded into. Only
// the fields relevant to MessageType are meaningful; unused fields are left
// zero. This mirrors the flat, message_type-tagged enum the original
// implementation serializes (types.rs's SignalingMessage), rather than a
// family of Go types behind an interface — one struct keeps decode/encode a
// single json.Unmarshal/Marshal call, which is what the wire format wants.
type Message struct {
	MessageType Type   `json:"message_type"`
	RoomID      string `json:"room_id,omitempty"`
	PeerID      string `json:"peer_id,omitempty"`

	FromPeer string `json:"from_peer,omitempty"`
	ToPeer   string `json:"to_peer,omitempty"`
	ToPeers  []string `json:"to_peers,omitempty"`

	SDP       string `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	Peers []string `json:"peers,omitempty"`

	Accepted bool    `json:"accepted,omitempty"`
	Reason   *string `json:"reason,omitempty"`

	ErrorType   string `json:"error_type,omitempty"`
	Description string `json:"description,omitempty"`

	Error       string `json:"error,omitempty"`
	ShouldRetry bool   `json:"should_retry,omitempty"`
}

// PeerIDForLog returns the peer_id that best identifies the originator of a
// message, for logging and for synthesizing a Disconnect on transport
// failure. Mirrors SignalingMessage::get_peer_id in the original source.
func (m Message) PeerIDForLog() string {
	switch m.MessageType {
	case TypeJoin, TypeDisconnect, TypeEndCall, TypePeerDisconnected, TypeMediaError, TypeConnectionError:
		return m.PeerID
	case TypeCallRequest, TypeCallResponse, TypeOffer, TypeAnswer, TypeIceCandidate:
		return m.FromPeer
	default:
		return ""
	}
}

// Decode parses a single WebSocket text frame into a Message.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Encode serializes a Message back into a wire frame.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func ptr(s string) *string { return &s }

// NewMediaError builds a server->client MediaError frame.
func NewMediaError(peerID, errType, description string) Message {
	return Message{
		MessageType: TypeMediaError,
		PeerID:      peerID,
		ErrorType:   errType,
		Description: description,
	}
}

// NewConnectionError builds a server->client ConnectionError frame.
func NewConnectionError(peerID, errText string, shouldRetry bool) Message {
	return Message{
		MessageType: TypeConnectionError,
		PeerID:      peerID,
		Error:       errText,
		ShouldRetry: shouldRetry,
	}
}

// NewPeerList builds a server->client PeerList frame.
func NewPeerList(roomID string, peers []string) Message {
	return Message{
		MessageType: TypePeerList,
		RoomID:      roomID,
		Peers:       peers,
	}
}
