package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the JSON frame exchanged with the relay.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// client → relay
	MessageTypeJoin  = "join"
	MessageTypeLeave = "leave"

	// both directions
	MessageTypeMessage = "message"

	// relay → client
	MessageTypePeerJoined       = "peer_joined"
	MessageTypePeerDisconnected = "peer_disconnected"
	MessageTypeError            = "error"
)

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Envelope is the body of a room message: either a control string or an
// opaque signaling object owned by the peer connection.
type Envelope struct {
	Text   string
	Signal json.RawMessage
}

// Text wraps a control string.
func Text(s string) Envelope { return Envelope{Text: s} }

// Signal wraps an opaque signaling payload.
func Signal(raw json.RawMessage) Envelope { return Envelope{Signal: raw} }

// IsControl reports whether e carries a control string.
func (e Envelope) IsControl() bool { return e.Signal == nil }

// MarshalJSON writes a control string as a JSON string and a signal as the
// object it already is.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.IsControl() {
		return json.Marshal(e.Text)
	}
	if !json.Valid(e.Signal) {
		return nil, errors.New("signal payload is not valid JSON")
	}
	return e.Signal, nil
}

// UnmarshalJSON accepts either form.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty envelope")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = Text(s)
	case '{':
		*e = Signal(append(json.RawMessage(nil), data...))
	default:
		return fmt.Errorf("unexpected envelope payload %q", data)
	}
	return nil
}
