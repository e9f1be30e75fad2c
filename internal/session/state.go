// Package session orchestrates one remote-desktop session on either side of
// the connection. The host answers incoming controllers and shares its
// screen; the controller connects to a host and drives it.
package session

// State is a step in a session's lifecycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingPermission
	StateAwaitingPassword
	StateConnecting
	StateConnected
	StateTearingDown
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPermission:
		return "awaiting permission"
	case StateAwaitingPassword:
		return "awaiting password"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTearingDown:
		return "tearing down"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MediaState reports which optional local devices are switched on.
type MediaState struct {
	Camera     bool
	Microphone bool
}
