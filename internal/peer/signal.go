package peer

import (
	"encoding/json"
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// Signal types carried in SignalPayload.Type.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalPayload is the opaque object exchanged over the signaling channel.
type SignalPayload struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// ParseSignal decodes a signaling object.
func ParseSignal(raw json.RawMessage) (*SignalPayload, error) {
	var p SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse signal: %w", err)
	}
	switch p.Type {
	case SignalOffer, SignalAnswer:
		if p.SDP == "" {
			return nil, fmt.Errorf("%w: %s without sdp", ErrUnexpectedSignal, p.Type)
		}
	case SignalCandidate:
		if p.Candidate == nil {
			return nil, fmt.Errorf("%w: candidate without body", ErrUnexpectedSignal)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedSignal, p.Type)
	}
	return &p, nil
}
