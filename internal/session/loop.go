package session

import (
	"context"
	"log/slog"
	"sync"
)

// loop runs closures one at a time on a single goroutine. post never
// blocks, so pion callbacks and channel pumps can hand events over freely.
type loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	quitOnce sync.Once
}

func newLoop() *loop {
	return &loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// post queues fn and reports whether the loop will still run it.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the loop and waits for its result.
func (l *loop) call(fn func() error) error {
	reply := make(chan error, 1)
	if !l.post(func() { reply <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	}
}

// stop makes run return once the current closure finishes.
func (l *loop) stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

func (l *loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// run processes closures until ctx is done or stop is called. Closures
// still queued at that point are discarded.
func (l *loop) run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		default:
		}

		if fn, ok := l.next(); ok {
			fn()
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		case <-l.wake:
		}
	}
}

// isolate runs one cleanup step. A panic is logged and swallowed so the
// remaining steps still run.
func isolate(logger *slog.Logger, step string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cleanup step panicked", "step", step, "panic", r)
		}
	}()
	f()
}
