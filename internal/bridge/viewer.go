package bridge

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/media"
)

// LogViewer is a media.Sink that drains remote tracks and logs what a real
// viewer would render.
type LogViewer struct {
	logger *slog.Logger

	mu        sync.Mutex
	bytes     map[media.Slot]int64
	composite media.Composite[media.RemoteTrack]
}

var _ media.Sink = (*LogViewer)(nil)

func NewLogViewer(logger *slog.Logger) *LogViewer {
	return &LogViewer{
		logger: logging.Component(logger, "viewer"),
		bytes:  make(map[media.Slot]int64),
	}
}

// Consume reads track until it ends.
func (v *LogViewer) Consume(track media.RemoteTrack) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				v.logger.Debug("remote track ended", "slot", track.Slot, "error", err)
			}
			return
		}
		v.mu.Lock()
		v.bytes[track.Slot] += int64(n)
		v.mu.Unlock()
	}
}

func (v *LogViewer) Show(composite media.Composite[media.RemoteTrack]) {
	v.mu.Lock()
	v.composite = composite
	v.mu.Unlock()
	v.logger.Info("remote media updated", "main_tracks", len(composite.Main), "camera", len(composite.Camera) > 0)
}

// Received returns the bytes received per slot.
func (v *LogViewer) Received() map[media.Slot]int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[media.Slot]int64, len(v.bytes))
	for slot, n := range v.bytes {
		out[slot] = n
	}
	return out
}
