package session

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Frame kinds broadcast by the backend.
const (
	FrameSnapshot = "snapshot"
	FrameEnding   = "ending"
)

// PlayerSnapshot is the per-player slice of a backend snapshot. The
// game-specific body (hand, bets) stays opaque in Data and is handed
// to the adapter untouched.
type PlayerSnapshot struct {
	PlayerID    string          `json:"playerId"`
	DisplayName string          `json:"displayName"`
	AvatarURL   string          `json:"avatarUrl"`
	Order       int             `json:"order"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Frame is the envelope of one backend broadcast: either a
// progress-bearing state snapshot or a terminal ending payload.
type Frame struct {
	Kind     string           `json:"kind"`
	Progress Progress         `json:"progress"`
	Players  []PlayerSnapshot `json:"players,omitempty"`
	Data     json.RawMessage  `json:"data,omitempty"`
}

// DecodeFrame parses a raw backend frame. A decode failure is a
// payload error: the caller logs it and drops the single frame.
func DecodeFrame(raw []byte) (*Frame, error) {
	var frame Frame
	err := jsoniter.Unmarshal(raw, &frame)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to decode backend frame")
	}
	if frame.Kind != FrameSnapshot && frame.Kind != FrameEnding {
		return nil, errors.Errorf("Unknown frame kind [%s]", frame.Kind)
	}
	return &frame, nil
}

// OutboundRequest is one queued player action awaiting relay to the
// backend. Kind declares the game request kind; Payload is the opaque
// body forwarded as-is.
type OutboundRequest struct {
	OriginatorID string          `json:"originatorId"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// EncodeRequest frames an outbound request for the wire.
func EncodeRequest(req OutboundRequest) ([]byte, error) {
	data, err := jsoniter.Marshal(&req)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to encode outbound request")
	}
	return data, nil
}
