package signaling

import (
	"sync"
	"sync/atomic"
)

type subscription[T any] struct {
	ch     chan T
	cancel chan struct{}
	once   sync.Once
}

func (s *subscription[T]) stop() {
	s.once.Do(func() { close(s.cancel) })
}

// listener holds the single active subscription for one event kind.
// Subscribing again closes the previous channel, so a consumer that
// resubscribes never sees an event twice.
type listener[T any] struct {
	mu  sync.Mutex
	cur atomic.Pointer[subscription[T]]
}

func (l *listener[T]) subscribe(size int) <-chan T {
	next := &subscription[T]{ch: make(chan T, size), cancel: make(chan struct{})}
	l.replace(next)
	return next.ch
}

func (l *listener[T]) close() {
	l.replace(nil)
}

func (l *listener[T]) replace(next *subscription[T]) {
	// Unblock a pending deliver before waiting for the lock it holds.
	if old := l.cur.Load(); old != nil {
		old.stop()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if old := l.cur.Load(); old != nil {
		old.stop()
		close(old.ch)
	}
	l.cur.Store(next)
}

// deliver blocks until the subscriber takes v, the subscription is replaced,
// or done is closed. It reports false when v was not delivered.
func (l *listener[T]) deliver(v T, done <-chan struct{}) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.cur.Load()
	if s == nil {
		return false
	}
	select {
	case s.ch <- v:
		return true
	case <-s.cancel:
		return false
	case <-done:
		return false
	}
}

// offer delivers v only if the subscriber has room for it.
func (l *listener[T]) offer(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.cur.Load()
	if s == nil {
		return false
	}
	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}
