// Package bridge defines the local OS capabilities a session drives: input
// injection, media capture, the clipboard and display metrics.
package bridge

import (
	"context"
	"errors"

	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/protocol"
)

// ErrDeviceAccess is returned when a camera or microphone cannot be opened.
var ErrDeviceAccess = errors.New("failed to access media device")

// ScrollStep is the number of wheel units one Scroll frame moves.
const ScrollStep = 50

// Input injects remote input events into the local OS.
type Input interface {
	InjectKey(ev protocol.KeyEvent) error
	InjectMouse(ev protocol.Mouse) error
	InjectScroll(dir protocol.ScrollDirection) error
}

// Capturer opens local media sources.
type Capturer interface {
	// CaptureScreen returns one video track and optionally system audio.
	CaptureScreen(ctx context.Context) (*media.Capture, error)

	// CaptureCameraMic may fail with ErrDeviceAccess.
	CaptureCameraMic(ctx context.Context, wantVideo, wantAudio bool) (*media.Capture, error)
}

// Clipboard reads, writes and watches the system clipboard.
type Clipboard interface {
	ReadClipboard() (string, error)
	WriteClipboard(text string) error

	// ClipboardChanges yields the new text after every local change until
	// ctx is done.
	ClipboardChanges(ctx context.Context) <-chan string
}

// Display reports the primary display size in logical pixels together with
// its scale factor.
type Display interface {
	ScreenSize() (width, height int, scaleFactor float64, err error)
}

// Host bundles everything the host side needs.
type Host interface {
	Input
	Capturer
	Clipboard
	Display
}
