// Package media holds local track handles and the ordinal classification of
// remote tracks.
package media

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Kind is the media type of a track.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// KindOf converts a pion codec type.
func KindOf(t pion.RTPCodecType) Kind {
	if t == pion.RTPCodecTypeAudio {
		return KindAudio
	}
	return KindVideo
}

// Source says which capture produced a local track.
type Source string

const (
	SourceScreen Source = "screen"
	SourceCamera Source = "camera"
)

// ErrTrackStopped is returned when writing to a stopped track.
var ErrTrackStopped = errors.New("track stopped")

// LocalTrack is an outgoing track. Muting flips an enabled flag; the track
// stays attached to the connection so no renegotiation happens.
type LocalTrack struct {
	Kind   Kind
	Source Source

	track   *pion.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool

	stopOnce sync.Once
	onStop   func()
}

// NewLocalTrack creates an enabled track. onStop releases the capture device
// and may be nil.
func NewLocalTrack(kind Kind, source Source, streamID string, onStop func()) (*LocalTrack, error) {
	codec := pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8, ClockRate: 90000}
	if kind == KindAudio {
		codec = pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}

	track, err := pion.NewTrackLocalStaticSample(codec, string(source)+"-"+string(kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}

	t := &LocalTrack{Kind: kind, Source: source, track: track, onStop: onStop}
	t.enabled.Store(true)
	return t, nil
}

// Local exposes the pion track for AddTrack.
func (t *LocalTrack) Local() pion.TrackLocal { return t.track }

// ID is the pion track id.
func (t *LocalTrack) ID() string { return t.track.ID() }

// SetEnabled mutes or unmutes the track.
func (t *LocalTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Enabled reports whether samples are currently forwarded.
func (t *LocalTrack) Enabled() bool { return t.enabled.Load() && !t.stopped.Load() }

// Stopped reports whether Stop has run.
func (t *LocalTrack) Stopped() bool { return t.stopped.Load() }

// WriteSample forwards a captured sample. Samples written while muted are
// dropped silently.
func (t *LocalTrack) WriteSample(s pionmedia.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(s)
}

// Stop disables the track for good and releases its capture source. It is
// safe to call more than once.
func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		t.enabled.Store(false)
		if t.onStop != nil {
			t.onStop()
		}
	})
}

// Capture is the result of one capture request: at most one video and one
// audio track.
type Capture struct {
	Video *LocalTrack
	Audio *LocalTrack
}

// Tracks returns the present tracks, video first.
func (c *Capture) Tracks() []*LocalTrack {
	if c == nil {
		return nil
	}
	var tracks []*LocalTrack
	if c.Video != nil {
		tracks = append(tracks, c.Video)
	}
	if c.Audio != nil {
		tracks = append(tracks, c.Audio)
	}
	return tracks
}

// SetEnabled mutes or unmutes every track of the capture.
func (c *Capture) SetEnabled(enabled bool) {
	for _, t := range c.Tracks() {
		t.SetEnabled(enabled)
	}
}

// Stop stops every track of the capture.
func (c *Capture) Stop() {
	for _, t := range c.Tracks() {
		t.Stop()
	}
}
