package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/protocol"
)

// HeadlessOptions configures a Headless bridge.
type HeadlessOptions struct {
	Width       int
	Height      int
	ScaleFactor float64

	// DenyCamera makes every camera/microphone request fail.
	DenyCamera bool

	// NoSystemAudio leaves the screen capture without an audio track.
	NoSystemAudio bool

	Logger *slog.Logger
}

// InjectStats counts what a Headless bridge has injected.
type InjectStats struct {
	Keys    int
	Unknown int
	Mouse   int
	Scrolls int
	CursorX int
	CursorY int
}

// Headless implements Host without touching the OS. Injected input is
// logged, the clipboard lives in memory, and captures produce real but idle
// WebRTC tracks so negotiation behaves as it would with live devices.
type Headless struct {
	opts   HeadlessOptions
	logger *slog.Logger

	mu        sync.Mutex
	clipboard string
	watchers  map[chan string]struct{}
	stats     InjectStats
}

var _ Host = (*Headless)(nil)

// NewHeadless creates a bridge. A zero size defaults to 1920x1080 at 1x.
func NewHeadless(opts HeadlessOptions) *Headless {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1920, 1080
	}
	if opts.ScaleFactor <= 0 {
		opts.ScaleFactor = 1
	}
	return &Headless{
		opts:     opts,
		logger:   logging.Component(opts.Logger, "bridge"),
		watchers: make(map[chan string]struct{}),
	}
}

func (h *Headless) InjectKey(ev protocol.KeyEvent) error {
	stroke, ok := ResolveKey(ev)

	h.mu.Lock()
	defer h.mu.Unlock()
	if !ok {
		h.stats.Unknown++
		h.logger.Warn("unknown key", "key", ev.Key, "code", ev.Code)
		return nil
	}
	h.stats.Keys++
	h.logger.Debug("inject key", "text", stroke.Text, "key", stroke.Key, "modifiers", stroke.Modifiers)
	return nil
}

func (h *Headless) InjectMouse(ev protocol.Mouse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Mouse++
	if ev.Action == protocol.MouseMove {
		h.stats.CursorX, h.stats.CursorY = ev.X, ev.Y
	}
	h.logger.Debug("inject mouse", "action", ev.Action, "x", ev.X, "y", ev.Y, "button", ev.Button)
	return nil
}

func (h *Headless) InjectScroll(dir protocol.ScrollDirection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Scrolls++
	h.logger.Debug("inject scroll", "direction", dir, "amount", ScrollStep)
	return nil
}

// Stats returns a copy of the injection counters.
func (h *Headless) Stats() InjectStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Headless) CaptureScreen(ctx context.Context) (*media.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	video, err := media.NewLocalTrack(media.KindVideo, media.SourceScreen, "screen", nil)
	if err != nil {
		return nil, err
	}
	capture := &media.Capture{Video: video}
	if !h.opts.NoSystemAudio {
		audio, err := media.NewLocalTrack(media.KindAudio, media.SourceScreen, "screen", nil)
		if err != nil {
			video.Stop()
			return nil, err
		}
		capture.Audio = audio
	}
	return capture, nil
}

func (h *Headless) CaptureCameraMic(ctx context.Context, wantVideo, wantAudio bool) (*media.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.opts.DenyCamera {
		return nil, ErrDeviceAccess
	}
	if !wantVideo && !wantAudio {
		return nil, errors.New("nothing to capture")
	}

	capture := &media.Capture{}
	if wantVideo {
		video, err := media.NewLocalTrack(media.KindVideo, media.SourceCamera, "camera", nil)
		if err != nil {
			return nil, err
		}
		capture.Video = video
	}
	if wantAudio {
		audio, err := media.NewLocalTrack(media.KindAudio, media.SourceCamera, "camera", nil)
		if err != nil {
			capture.Stop()
			return nil, err
		}
		capture.Audio = audio
	}
	return capture, nil
}

func (h *Headless) ReadClipboard() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clipboard, nil
}

// WriteClipboard stores text and notifies watchers when it changed.
func (h *Headless) WriteClipboard(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if text == h.clipboard {
		return nil
	}
	h.clipboard = text
	for ch := range h.watchers {
		select {
		case ch <- text:
		default:
			h.logger.Debug("clipboard watcher lagging, change dropped")
		}
	}
	return nil
}

func (h *Headless) ClipboardChanges(ctx context.Context) <-chan string {
	ch := make(chan string, 8)
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.watchers, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func (h *Headless) ScreenSize() (int, int, float64, error) {
	return h.opts.Width, h.opts.Height, h.opts.ScaleFactor, nil
}
