package transfer

import (
	"sync"
	"time"
)

// ChunkSizeController sizes chunks from the measured throughput.
type ChunkSizeController struct {
	mu      sync.Mutex
	size    int
	pending int64
	since   time.Time
	speed   float64
	now     func() time.Time
}

func NewChunkSizeController() *ChunkSizeController {
	return &ChunkSizeController{size: DefaultChunkSize, since: time.Now(), now: time.Now}
}

// ChunkSize returns the size to read next.
func (c *ChunkSizeController) ChunkSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Speed is the smoothed throughput in bytes per second.
func (c *ChunkSizeController) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Record accounts n sent bytes and resizes every 500ms or every ten
// chunks, whichever comes first.
func (c *ChunkSizeController) Record(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending += n
	elapsed := c.now().Sub(c.since)
	if elapsed < 500*time.Millisecond && c.pending < int64(c.size*10) {
		return
	}
	if elapsed <= 0 {
		return
	}

	measured := float64(c.pending) / elapsed.Seconds()
	if c.speed > 0 {
		c.speed = 0.7*c.speed + 0.3*measured
	} else {
		c.speed = measured
	}

	// Step a quarter of the way to the target so the size does not oscillate.
	target := targetChunkSize(c.speed)
	next := c.size + int(float64(target-c.size)*0.25)
	if gap := target - next; gap < MinChunkSize && gap > -MinChunkSize {
		next = target
	}
	c.size = max(MinChunkSize, min(MaxChunkSize, next))
	c.pending = 0
	c.since = c.now()
}

func targetChunkSize(speed float64) int {
	switch {
	case speed < SpeedVerySlowThreshold:
		return MinChunkSize
	case speed < SpeedSlowThreshold:
		return 8 * 1024
	case speed < SpeedMediumThreshold:
		return 16 * 1024
	case speed < SpeedFastThreshold:
		return 32 * 1024
	default:
		return MaxChunkSize
	}
}
