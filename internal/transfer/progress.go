package transfer

import (
	"time"

	"github.com/BioHazard786/deskwarp/internal/utils"
)

// Direction says which way a file moves.
type Direction string

const (
	Sending   Direction = "send"
	Receiving Direction = "receive"
)

// Progress is a snapshot of one running transfer.
type Progress struct {
	FileID      string
	Name        string
	Direction   Direction
	Size        int64
	Transferred int64
	Started     time.Time
}

// Percent is the completed share in [0, 100].
func (p Progress) Percent() float64 {
	if p.Size <= 0 {
		return 100
	}
	return min(100, float64(p.Transferred)*100/float64(p.Size))
}

// Speed is the average rate since the transfer started.
func (p Progress) Speed() float64 {
	elapsed := time.Since(p.Started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.Transferred) / elapsed
}

// Result describes a finished transfer.
type Result struct {
	FileID    string
	Name      string
	Path      string
	Direction Direction
	Size      int64
	Duration  time.Duration
}

// Summary is a one-line human description.
func (r Result) Summary() string {
	verb := "Sent"
	if r.Direction == Receiving {
		verb = "Received"
	}
	speed := 0.0
	if secs := r.Duration.Seconds(); secs > 0 {
		speed = float64(r.Size) / secs
	}
	return verb + " " + r.Name + " (" + utils.FormatSize(r.Size) + " in " +
		utils.FormatTimeDuration(r.Duration) + ", " + utils.FormatSpeed(speed) + ")"
}
