package media

import pion "github.com/pion/webrtc/v4"

// RemoteTrack is an incoming track together with the slot it was given.
type RemoteTrack struct {
	Slot  Slot
	Track *pion.TrackRemote
}

// Sink consumes remote media. Consume owns reading the track until it ends;
// Show is called with the rebuilt composite after every arrival.
type Sink interface {
	Consume(track RemoteTrack)
	Show(composite Composite[RemoteTrack])
}
