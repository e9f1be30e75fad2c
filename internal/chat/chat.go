// Package chat keeps the in-session chat history.
package chat

import (
	"sync"
	"time"

	"github.com/BioHazard786/deskwarp/internal/protocol"
)

// DefaultLimit bounds how many messages a Log keeps.
const DefaultLimit = 500

// Origin says who wrote a message.
type Origin string

const (
	Local  Origin = "local"
	Remote Origin = "remote"
)

// Message is one chat line.
type Message struct {
	Pane   protocol.Pane
	Origin Origin
	Text   string
	At     time.Time
}

// Label is the speaker shown next to the text.
func (m Message) Label() string {
	if m.Origin == Local {
		return "You"
	}
	if m.Pane == protocol.PaneHost {
		return "Host"
	}
	return "Remote"
}

// Frame is the data-channel frame for m.
func (m Message) Frame() protocol.Chat {
	return protocol.Chat{Pane: m.Pane, Text: m.Text}
}

// Log is a bounded, goroutine-safe history.
type Log struct {
	mu       sync.Mutex
	limit    int
	messages []Message
	onAppend func(Message)
	now      func() time.Time
}

// NewLog creates a log holding at most limit messages. A limit of zero or
// less means DefaultLimit.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{limit: limit, now: time.Now}
}

// Subscribe sets the callback run after every append. Passing nil removes
// it.
func (l *Log) Subscribe(f func(Message)) {
	l.mu.Lock()
	l.onAppend = f
	l.mu.Unlock()
}

// Append records a message and returns it with its timestamp set.
func (l *Log) Append(pane protocol.Pane, origin Origin, text string) Message {
	msg := Message{Pane: pane, Origin: origin, Text: text}

	l.mu.Lock()
	msg.At = l.now()
	l.messages = append(l.messages, msg)
	if over := len(l.messages) - l.limit; over > 0 {
		l.messages = append(l.messages[:0:0], l.messages[over:]...)
	}
	f := l.onAppend
	l.mu.Unlock()

	if f != nil {
		f(msg)
	}
	return msg
}

// Receive records a frame that arrived from the peer.
func (l *Log) Receive(frame protocol.Chat) Message {
	return l.Append(frame.Pane, Remote, frame.Text)
}

// Messages returns a copy of the history, oldest first.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

// Len is the number of messages held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Clear drops the history.
func (l *Log) Clear() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
}
