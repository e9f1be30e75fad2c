package media

import "sync"

// Slot is the role a remote track is assumed to play.
type Slot int

const (
	SlotNone Slot = iota
	SlotScreenVideo
	SlotScreenAudio
	SlotCameraVideo
	SlotMicAudio
)

func (s Slot) String() string {
	switch s {
	case SlotScreenVideo:
		return "screen-video"
	case SlotScreenAudio:
		return "screen-audio"
	case SlotCameraVideo:
		return "camera-video"
	case SlotMicAudio:
		return "mic-audio"
	default:
		return "none"
	}
}

// Classifier assigns remote tracks to slots purely by arrival order: the
// first video is the screen and the second the camera; the first audio is
// system audio and the second the microphone. Track labels and stream ids
// are never consulted, since the sender does not tag track roles.
type Classifier[T any] struct {
	mu     sync.Mutex
	videos int
	audios int
	set    Set[T]
}

// Assign records one arriving track and returns the slot it fills. Tracks
// beyond the fourth role are reported as SlotNone and not recorded.
func (c *Classifier[T]) Assign(kind Kind, track T) Slot {
	_, slot := c.Place(kind, func(Slot) T { return track })
	return slot
}

// Place is Assign for values that carry their own slot: build is called
// with the chosen slot and its result is recorded.
func (c *Classifier[T]) Place(kind Kind, build func(Slot) T) (T, Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var slot Slot
	switch kind {
	case KindVideo:
		c.videos++
		switch c.videos {
		case 1:
			slot = SlotScreenVideo
		case 2:
			slot = SlotCameraVideo
		}
	case KindAudio:
		c.audios++
		switch c.audios {
		case 1:
			slot = SlotScreenAudio
		case 2:
			slot = SlotMicAudio
		}
	}

	track := build(slot)
	if slot != SlotNone {
		c.set.put(slot, track)
	}
	return track, slot
}

// Snapshot returns the tracks assigned so far.
func (c *Classifier[T]) Snapshot() Set[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set
}

// Reset forgets every assignment.
func (c *Classifier[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos, c.audios = 0, 0
	c.set = Set[T]{}
}

// Set holds the track for each slot.
type Set[T any] struct {
	ScreenVideo, ScreenAudio, CameraVideo, MicAudio T
	present                                         [5]bool
}

func (s *Set[T]) put(slot Slot, track T) {
	switch slot {
	case SlotScreenVideo:
		s.ScreenVideo = track
	case SlotScreenAudio:
		s.ScreenAudio = track
	case SlotCameraVideo:
		s.CameraVideo = track
	case SlotMicAudio:
		s.MicAudio = track
	}
	s.present[slot] = true
}

// Has reports whether slot has been filled.
func (s Set[T]) Has(slot Slot) bool { return s.present[slot] }

// Get returns the track in slot.
func (s Set[T]) Get(slot Slot) (T, bool) {
	var zero T
	switch slot {
	case SlotScreenVideo:
		return s.ScreenVideo, s.present[slot]
	case SlotScreenAudio:
		return s.ScreenAudio, s.present[slot]
	case SlotCameraVideo:
		return s.CameraVideo, s.present[slot]
	case SlotMicAudio:
		return s.MicAudio, s.present[slot]
	}
	return zero, false
}

// Composite is what a viewer renders: the main stream (screen video with the
// screen and mic audio mixed in) and the camera picture-in-picture.
type Composite[T any] struct {
	Main   []T
	Camera []T
}

// Composite rebuilds the display streams from the current assignment.
func (s Set[T]) Composite() Composite[T] {
	var c Composite[T]
	for _, slot := range []Slot{SlotScreenVideo, SlotScreenAudio, SlotMicAudio} {
		if t, ok := s.Get(slot); ok {
			c.Main = append(c.Main, t)
		}
	}
	if t, ok := s.Get(SlotCameraVideo); ok {
		c.Camera = append(c.Camera, t)
	}
	return c
}
