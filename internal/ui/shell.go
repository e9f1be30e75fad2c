package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/session"
)

// Terminal is the session.Shell for a plain terminal: window operations
// become status lines and notices become styled messages.
type Terminal struct {
	out io.Writer

	mu        sync.Mutex
	status    room.ID
	minimized bool
}

var _ session.Shell = (*Terminal)(nil)

// NewTerminal writes to out, or stdout when out is nil.
func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{out: out}
}

// BringToFront rings the bell.
func (t *Terminal) BringToFront() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minimized = false
	fmt.Fprint(t.out, "\a")
}

func (t *Terminal) Minimize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minimized = true
}

func (t *Terminal) Restore() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minimized = false
}

// Minimized reports whether the last window call was Minimize.
func (t *Terminal) Minimized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minimized
}

func (t *Terminal) ShowStatusWindow(id room.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = id
	fmt.Fprintln(t.out, StatusBox(id))
}

func (t *Terminal) CloseStatusWindow() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == "" {
		return
	}
	t.status = ""
	fmt.Fprintln(t.out, MutedStyle.Render("Remote control stopped"))
}

// RemoveOverlays has nothing to remove in a terminal.
func (t *Terminal) RemoveOverlays() {}

func (t *Terminal) Notify(n session.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, RenderNotice(n))
}

// StatusBox is shown while this machine is being controlled.
func StatusBox(id room.ID) string {
	return SuccessBoxStyle.Render(fmt.Sprintf("%s  %s\n\n%s Room: %s",
		IconScreen, StatusStyle.Render("Controlled remotely"),
		IconRoom, BoldStyle.Render(id.Grouped()),
	))
}

// RenderNotice formats a notice with the icon and color of its level.
func RenderNotice(n session.Notice) string {
	text := n.Text
	if n.Detail != "" && n.Detail != n.Text {
		text += ": " + n.Detail
	}
	switch n.Level {
	case session.LevelError:
		return ErrorStyle.Render(IconError + " " + text)
	case session.LevelWarn:
		return WarningStyle.Render(IconWarning + " " + text)
	default:
		return IconInfo + " " + text
	}
}
