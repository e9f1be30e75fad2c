package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking-free line spinner for waits that have no progress
// to report.
type Spinner struct {
	spinner  spinner.Spinner
	interval time.Duration

	mu      sync.Mutex
	message string
	done    chan struct{}
	stopped bool
}

// NewSpinner creates a spinner for short local work (Dot style).
func NewSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Dot, 80*time.Millisecond)
}

// NewConnectionSpinner creates a spinner for relay and peer connects (Globe
// style).
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

// NewWaitingSpinner creates a spinner for waits on the other side (Points
// style).
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Points, 100*time.Millisecond)
}

func newSpinner(message string, s spinner.Spinner, interval time.Duration) *Spinner {
	return &Spinner{
		message:  message,
		spinner:  s,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	go func() {
		frames := s.spinner.Frames
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			if s.stopped {
				s.mu.Unlock()
				return
			}
			fmt.Fprintf(Output, "\r\033[K%s %s", SpinnerStyle.Render(frames[i%len(frames)]), s.message)
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop clears the spinner line. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	fmt.Fprint(Output, "\r\033[K")
}

func (s *Spinner) Success(message string) {
	s.Stop()
	PrintSuccess(message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	PrintError(message)
}

func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// RunConnectionSpinner starts a connection spinner and returns its stop
// function.
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}
