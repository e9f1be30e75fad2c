package peer

import "errors"

var (
	ErrChannelNotOpen   = errors.New("data channel not open")
	ErrChannelClosed    = errors.New("data channel closed")
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrClosed           = errors.New("peer session closed")
)
