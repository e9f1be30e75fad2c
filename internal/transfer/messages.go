package transfer

import "github.com/vmihailenco/msgpack/v5"

// FileMetadata announces a file before its first chunk.
type FileMetadata struct {
	Name string `msgpack:"name"`
	Size uint64 `msgpack:"size"`
	Type string `msgpack:"type"`
}

// ChunkPayload is one slice of a file.
type ChunkPayload struct {
	Offset uint64 `msgpack:"offset"`
	Bytes  []byte `msgpack:"bytes"`
	Final  bool   `msgpack:"final"`
}

// Message is the binary envelope. FileID ties it to the offer that
// started the transfer.
type Message struct {
	Type    string             `msgpack:"type"`
	FileID  string             `msgpack:"fileId"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// DecodePayload decodes the message payload into v.
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// EncodeMessage frames payload for the wire.
func EncodeMessage(msgType, fileID string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, NewError("marshal payload", err)
	}
	data, err := msgpack.Marshal(Message{Type: msgType, FileID: fileID, Payload: b})
	if err != nil {
		return nil, NewError("marshal message", err)
	}
	return data, nil
}

// ParseMessage decodes one binary message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, WrapError("parse message", ErrBadMessage, err.Error())
	}
	if msg.FileID == "" {
		return nil, WrapError("parse message", ErrBadMessage, "missing file id")
	}
	return &msg, nil
}
