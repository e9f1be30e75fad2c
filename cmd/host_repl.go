package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BioHazard786/deskwarp/internal/session"
)

// hosted is what the host command loop drives. *session.Host implements it.
type hosted interface {
	Disconnect() error
	SetCamera(on bool) error
	SetMicrophone(on bool) error
	SendChat(text string) error
	SendFile(path string) error
	MediaState() session.MediaState
}

var _ hosted = (*session.Host)(nil)

const hostHelp = `Commands:
  disconnect         end the current session and wait for the next controller
  camera on|off      share or stop the local camera
  mic on|off         share or stop the local microphone
  media              show what is being shared
  chat TEXT          send a chat message
  file PATH          offer a file to the controller
  help               show this text
  quit               stop hosting`

type hostREPL struct {
	h    hosted
	out  io.Writer
	stop func()
}

func newHostREPL(h hosted, out io.Writer, stop func()) *hostREPL {
	return &hostREPL{h: h, out: out, stop: stop}
}

// run reads commands until quit, which stops hosting. EOF only ends the
// loop so a host without a terminal keeps serving.
func (p *hostREPL) run(in io.Reader) {
	if readCommands(in, p.out, p.exec) {
		p.stop()
	}
}

func (p *hostREPL) exec(line string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "help", "?":
		fmt.Fprintln(p.out, hostHelp)
		return nil
	case "quit", "exit":
		return errQuit
	case "disconnect":
		return p.h.Disconnect()
	case "camera", "cam":
		on, err := onOff(rest)
		if err != nil {
			return err
		}
		return p.h.SetCamera(on)
	case "mic", "microphone":
		on, err := onOff(rest)
		if err != nil {
			return err
		}
		return p.h.SetMicrophone(on)
	case "media":
		m := p.h.MediaState()
		fmt.Fprintf(p.out, "camera %s, microphone %s\n", onOffLabel(m.Camera), onOffLabel(m.Microphone))
		return nil
	case "chat":
		if rest == "" {
			return errors.New("usage: chat TEXT")
		}
		return p.h.SendChat(rest)
	case "file":
		if rest == "" {
			return errors.New("usage: file PATH")
		}
		return p.h.SendFile(rest)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func onOff(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, errors.New("expected on or off")
}

func onOffLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
