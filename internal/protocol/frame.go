package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	prefixFileOffer = "file-"
	prefixFileStart = "start-"
	prefixClipboard = "clipboard-"
	prefixChat      = "chat-"
)

// ErrMalformedFrame wraps every decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameKind names a frame variant for logging and dispatch.
type FrameKind string

const (
	KindFileOffer FrameKind = "file-offer"
	KindFileStart FrameKind = "file-start"
	KindClipboard FrameKind = "clipboard"
	KindChat      FrameKind = "chat"
	KindKey       FrameKind = "key"
	KindScroll    FrameKind = "scroll"
	KindMouse     FrameKind = "mouse"
)

// Frame is one text message on the data channel.
type Frame interface {
	Kind() FrameKind
	Encode() string
}

// FileOffer announces a file the sender wants to push.
type FileOffer struct{ ID string }

// FileStart tells the sender of FileOffer ID to begin streaming.
type FileStart struct{ ID string }

// Clipboard carries remote clipboard text.
type Clipboard struct{ Text string }

// Pane is the chat column a message belongs to.
type Pane string

const (
	PaneHost Pane = "host"
	PaneUser Pane = "user"
)

// Chat is a chat line tagged with the pane of its author.
type Chat struct {
	Pane Pane
	Text string
}

// KeyEvent is a keyboard event as captured on the controller.
type KeyEvent struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Shift   bool   `json:"shift"`
	Control bool   `json:"control"`
	Alt     bool   `json:"alt"`
	Meta    bool   `json:"meta"`
}

// ScrollDirection is the wheel direction of a Scroll frame.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// Scroll is one wheel step.
type Scroll struct{ Direction ScrollDirection }

// MouseAction is the verb of a Mouse frame.
type MouseAction string

const (
	MouseDown        MouseAction = "md"
	MouseUp          MouseAction = "mu"
	MouseMove        MouseAction = "mm"
	MouseDoubleClick MouseAction = "dc"
)

// Mouse is a pointer event in host screen coordinates.
type Mouse struct {
	Action MouseAction
	X      int
	Y      int
	Button int
}

func (FileOffer) Kind() FrameKind { return KindFileOffer }
func (FileStart) Kind() FrameKind { return KindFileStart }
func (Clipboard) Kind() FrameKind { return KindClipboard }
func (Chat) Kind() FrameKind      { return KindChat }
func (KeyEvent) Kind() FrameKind  { return KindKey }
func (Scroll) Kind() FrameKind    { return KindScroll }
func (Mouse) Kind() FrameKind     { return KindMouse }

func (f FileOffer) Encode() string { return prefixFileOffer + f.ID }
func (f FileStart) Encode() string { return prefixFileStart + f.ID }
func (f Clipboard) Encode() string { return prefixClipboard + f.Text }
func (f Chat) Encode() string      { return prefixChat + string(f.Pane) + "-" + f.Text }
func (f Scroll) Encode() string    { return "s," + string(f.Direction) }

func (f KeyEvent) Encode() string {
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (f Mouse) Encode() string {
	if f.Action == MouseMove {
		return fmt.Sprintf("%s,%d,%d", f.Action, f.X, f.Y)
	}
	return fmt.Sprintf("%s,%d,%d,%d", f.Action, f.X, f.Y, f.Button)
}

// DecodeFrame turns a data-channel text message into a typed frame. Prefixes
// are tried in a fixed order: file offer, file start, clipboard, chat, then
// key (JSON), scroll and finally mouse.
func DecodeFrame(text string) (Frame, error) {
	switch {
	case strings.HasPrefix(text, prefixFileOffer):
		return FileOffer{ID: text[len(prefixFileOffer):]}, nil
	case strings.HasPrefix(text, prefixFileStart):
		return FileStart{ID: text[len(prefixFileStart):]}, nil
	case strings.HasPrefix(text, prefixClipboard):
		return Clipboard{Text: text[len(prefixClipboard):]}, nil
	case strings.HasPrefix(text, prefixChat+string(PaneHost)+"-"):
		return Chat{Pane: PaneHost, Text: text[len(prefixChat)+len(PaneHost)+1:]}, nil
	case strings.HasPrefix(text, prefixChat+string(PaneUser)+"-"):
		return Chat{Pane: PaneUser, Text: text[len(prefixChat)+len(PaneUser)+1:]}, nil
	case strings.HasPrefix(text, "{"):
		return decodeKey(text)
	case strings.HasPrefix(text, "s"):
		return decodeScroll(text)
	default:
		return decodeMouse(text)
	}
}

func decodeKey(text string) (Frame, error) {
	var ev KeyEvent
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return nil, fmt.Errorf("%w: key event: %v", ErrMalformedFrame, err)
	}
	if ev.Key == "" && ev.Code == "" {
		return nil, fmt.Errorf("%w: key event without key or code", ErrMalformedFrame)
	}
	return ev, nil
}

func decodeScroll(text string) (Frame, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 || parts[0] != "s" {
		return nil, fmt.Errorf("%w: scroll %q", ErrMalformedFrame, text)
	}
	switch dir := ScrollDirection(parts[1]); dir {
	case ScrollUp, ScrollDown:
		return Scroll{Direction: dir}, nil
	default:
		return nil, fmt.Errorf("%w: scroll direction %q", ErrMalformedFrame, parts[1])
	}
}

func decodeMouse(text string) (Frame, error) {
	parts := strings.Split(text, ",")
	if len(parts) < 3 || len(parts) > 4 {
		return nil, fmt.Errorf("%w: mouse %q", ErrMalformedFrame, text)
	}

	action := MouseAction(parts[0])
	switch action {
	case MouseDown, MouseUp, MouseMove, MouseDoubleClick:
	default:
		return nil, fmt.Errorf("%w: mouse action %q", ErrMalformedFrame, parts[0])
	}

	x, errX := strconv.Atoi(parts[1])
	y, errY := strconv.Atoi(parts[2])
	if errX != nil || errY != nil {
		return nil, fmt.Errorf("%w: mouse coordinates %q", ErrMalformedFrame, text)
	}

	// A missing or garbled button means the primary one.
	button := 0
	if len(parts) == 4 {
		if b, err := strconv.Atoi(parts[3]); err == nil {
			button = b
		}
	}

	return Mouse{Action: action, X: x, Y: y, Button: button}, nil
}
