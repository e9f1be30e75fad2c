package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/ui"
)

// remote is what the REPL drives. *session.Controller implements it.
type remote interface {
	SetSurfaceSize(width, height int) error
	Mouse(action protocol.MouseAction, x, y float64, button int) error
	Scroll(deltaY float64) error
	Key(ev protocol.KeyEvent) error
	Paste(text string) error
	SendChat(text string) error
	SendFile(path string) error
	StartVideoCall() error
	EndCall() error
	Disconnect() error
}

var errQuit = errors.New("quit")

const replHelp = `Commands:
  move X Y           move the pointer (host pixels unless surface is set)
  click [BUTTON]     click at the pointer, button 0 left, 1 middle, 2 right
  dblclick           double click at the pointer
  key KEY [MODS...]  press a key, e.g. "key c ctrl" or "key Enter"
  type TEXT          press one key per character
  scroll up|down|N   scroll the wheel
  paste TEXT         put TEXT on the host clipboard
  chat TEXT          send a chat message
  file PATH          offer a file to the host
  surface W H        set the local surface size used to map coordinates
  call / hangup      start or end the video call
  help               show this text
  quit               disconnect`

// repl reads commands line by line and forwards them to a remote.
type repl struct {
	r   remote
	out io.Writer

	// Last pointer position, reused by clicks.
	x, y float64
}

func newREPL(r remote, out io.Writer) *repl {
	return &repl{r: r, out: out}
}

// run reads until quit or EOF, then disconnects.
func (p *repl) run(in io.Reader) {
	defer p.r.Disconnect()
	readCommands(in, p.out, p.exec)
}

// readCommands feeds each line of in to exec until EOF or errQuit. It
// reports whether the loop ended on quit.
func readCommands(in io.Reader, out io.Writer, exec func(string) error) bool {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, ui.MutedStyle.Render("> "))
		if !scanner.Scan() {
			return false
		}
		err := exec(scanner.Text())
		if errors.Is(err, errQuit) {
			return true
		}
		if err != nil {
			fmt.Fprintln(out, ui.ErrorStyle.Render(ui.IconError+" "+err.Error()))
		}
	}
}

// exec runs one command line.
func (p *repl) exec(line string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "help", "?":
		fmt.Fprintln(p.out, replHelp)
		return nil
	case "quit", "exit":
		return errQuit
	case "move":
		x, y, err := twoFloats(args)
		if err != nil {
			return err
		}
		p.x, p.y = x, y
		return p.r.Mouse(protocol.MouseMove, x, y, 0)
	case "click":
		button := 0
		if len(args) > 0 {
			b, err := strconv.Atoi(args[0])
			if err != nil || b < 0 || b > 2 {
				return fmt.Errorf("button must be 0, 1 or 2")
			}
			button = b
		}
		if err := p.r.Mouse(protocol.MouseDown, p.x, p.y, button); err != nil {
			return err
		}
		return p.r.Mouse(protocol.MouseUp, p.x, p.y, button)
	case "dblclick":
		return p.r.Mouse(protocol.MouseDoubleClick, p.x, p.y, 0)
	case "key":
		if len(args) == 0 {
			return errors.New("usage: key KEY [ctrl|shift|alt|meta...]")
		}
		ev, err := keyEvent(args[0], args[1:])
		if err != nil {
			return err
		}
		return p.r.Key(ev)
	case "type":
		for _, r := range rest {
			if err := p.r.Key(protocol.KeyEvent{Key: string(r)}); err != nil {
				return err
			}
		}
		return nil
	case "scroll":
		if len(args) != 1 {
			return errors.New("usage: scroll up|down|N")
		}
		switch args[0] {
		case "up":
			return p.r.Scroll(-1)
		case "down":
			return p.r.Scroll(1)
		}
		delta, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid scroll amount %q", args[0])
		}
		return p.r.Scroll(delta)
	case "paste":
		return p.r.Paste(rest)
	case "chat":
		if rest == "" {
			return errors.New("usage: chat TEXT")
		}
		return p.r.SendChat(rest)
	case "file":
		if rest == "" {
			return errors.New("usage: file PATH")
		}
		return p.r.SendFile(rest)
	case "surface":
		w, h, err := twoFloats(args)
		if err != nil {
			return err
		}
		return p.r.SetSurfaceSize(int(w), int(h))
	case "call":
		return p.r.StartVideoCall()
	case "hangup":
		return p.r.EndCall()
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func twoFloats(args []string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, errors.New("expected two numbers")
	}
	a, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", args[0])
	}
	b, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", args[1])
	}
	return a, b, nil
}

func keyEvent(key string, mods []string) (protocol.KeyEvent, error) {
	ev := protocol.KeyEvent{Key: key}
	for _, m := range mods {
		switch strings.ToLower(m) {
		case "ctrl", "control":
			ev.Control = true
		case "shift":
			ev.Shift = true
		case "alt":
			ev.Alt = true
		case "meta", "cmd", "super":
			ev.Meta = true
		default:
			return ev, fmt.Errorf("unknown modifier %q", m)
		}
	}
	return ev, nil
}
