package session

import "errors"

var (
	// ErrNotConnected is returned by commands that need an open data channel.
	ErrNotConnected = errors.New("not connected")

	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("session stopped")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("session already running")
)

// End reasons for sessions stopped from this side.
const (
	ReasonDisconnected = "disconnected locally"
	ReasonCancelled    = "cancelled"
)

// EndedError is returned by Controller.Run once the session is over.
type EndedError struct {
	Reason string
}

func (e *EndedError) Error() string {
	return "connection ended: " + e.Reason
}

// Local reports whether the session was ended from this side rather than by
// the peer or a failure.
func (e *EndedError) Local() bool {
	return e.Reason == ReasonDisconnected || e.Reason == ReasonCancelled
}
