package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/deskwarp/internal/bridge"
	"github.com/BioHazard786/deskwarp/internal/chat"
	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/peer"
	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/signaling"
	"github.com/BioHazard786/deskwarp/internal/transfer"
)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Room room.ID

	Channel  SignalChannel
	Peer     PeerFactory
	Prompter ControllerPrompter
	Shell    Shell
	Chat     *chat.Log

	// Capturer opens the local camera and microphone for video calls. Nil
	// disables calls.
	Capturer bridge.Capturer

	// Clipboard is kept in sync with the host's when set.
	Clipboard bridge.Clipboard

	// Credentials pre-fills the password prompt and remembers the host.
	// Optional.
	Credentials CredentialStore

	DownloadDir     string
	OnProgress      func(transfer.Progress)
	OnComplete      func(transfer.Result)
	OnTransferError func(fileID string, err error)
	OnStateChange   func(State)

	Logger *slog.Logger
}

// Controller connects to one host and forwards local input to it. It never
// retries: once the session ends the Controller is spent.
type Controller struct {
	opts   ControllerOptions
	logger *slog.Logger
	loop   *loop

	running atomic.Bool

	// Owned by the loop goroutine.
	ctx       context.Context
	state     State
	link      *link
	peer      PeerSession
	transfers *transfer.Manager
	local     *media.Capture
	host      protocol.ScreenSize
	surface   protocol.ScreenSize

	pending      *Credential
	prompt       int
	promptCancel context.CancelFunc
	clipCancel   context.CancelFunc

	lastRemoteClipboard string

	ended  bool
	reason string

	mu        sync.Mutex
	snapState State
	snapHost  protocol.ScreenSize
	snapCall  bool
}

func NewController(opts ControllerOptions) (*Controller, error) {
	if err := room.Validate(string(opts.Room)); err != nil {
		return nil, err
	}
	if opts.Channel == nil || opts.Peer == nil || opts.Prompter == nil {
		return nil, errors.New("controller needs a channel, a peer factory and a prompter")
	}
	if opts.Shell == nil {
		opts.Shell = NopShell{}
	}
	if opts.Chat == nil {
		opts.Chat = chat.NewLog(0)
	}
	return &Controller{
		opts:   opts,
		logger: logging.Component(opts.Logger, "controller").With("room", opts.Room),
		loop:   newLoop(),
	}, nil
}

// Run connects to the host and drives the session until it ends. It always
// returns an error; a session that ran its course yields *EndedError.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx
	c.setState(StateConnecting)

	if c.opts.Capturer != nil {
		capture, err := c.opts.Capturer.CaptureCameraMic(ctx, true, true)
		if err != nil {
			c.logger.Warn("camera and microphone unavailable", "error", err)
		} else {
			capture.SetEnabled(false)
			c.local = capture
		}
	}

	p, err := c.opts.Peer(peer.RoleAnswerer, c.peerHandlers())
	if err != nil {
		c.local.Stop()
		return fmt.Errorf("create peer: %w", err)
	}
	c.peer = p
	c.transfers = transfer.NewManager(p, transfer.Options{
		DownloadDir: c.opts.DownloadDir,
		Logger:      c.opts.Logger,
		OnProgress:  c.opts.OnProgress,
		OnComplete:  c.opts.OnComplete,
		OnError:     c.opts.OnTransferError,
	})

	if err := p.AddTracks(c.local.Tracks()...); err != nil {
		c.logger.Warn("attach local tracks failed", "error", err)
	}
	if err := p.Start(); err != nil {
		c.end(fmt.Sprintf("peer setup failed: %v", err))
		return &EndedError{Reason: c.reason}
	}

	c.link = openLink(ctx, c.loop, c.opts.Channel, c.opts.Room, linkHandlers{
		envelope: c.onEnvelope,
		peerLeft: func(lk *link) {
			if lk == c.link {
				c.end("host left")
			}
		},
		lost: func(lk *link, err error) {
			if lk == c.link {
				c.end(fmt.Sprintf("relay connection lost: %v", err))
			}
		},
	})
	c.send(protocol.Hello())
	c.logger.Info("connecting to host")

	c.loop.run(ctx)
	if !c.ended {
		c.end(ReasonCancelled)
	}
	return &EndedError{Reason: c.reason}
}

// State reports where the session is.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapState
}

// HostScreen is the size the host announced, zero until then.
func (c *Controller) HostScreen() protocol.ScreenSize {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapHost
}

// InCall reports whether the local camera and microphone are live.
func (c *Controller) InCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapCall
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state", "from", c.state, "to", s)
	c.state = s

	c.mu.Lock()
	c.snapState = s
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Controller) send(ctrl protocol.Control) {
	if c.link == nil {
		return
	}
	if err := c.link.sendControl(ctrl); err != nil {
		c.logger.Warn("send control failed", "message", ctrl.Kind, "error", err)
	}
}

// Inbound

func (c *Controller) onEnvelope(lk *link, env signaling.Envelope) {
	if lk != c.link || c.ended {
		return
	}
	if !env.IsControl() {
		if err := c.peer.HandleSignal(env.Signal); err != nil {
			c.logger.Warn("signal rejected", "error", err)
		}
		return
	}

	ctrl, err := protocol.ParseControl(env.Text)
	if err != nil {
		c.logger.Warn("ignoring control message", "error", err)
		return
	}
	switch ctrl.Kind {
	case protocol.ControlScreenSize:
		c.host = ctrl.Size
		c.mu.Lock()
		c.snapHost = ctrl.Size
		c.mu.Unlock()
	case protocol.ControlPasswordRequest:
		saved := ""
		if c.opts.Credentials != nil {
			pw, ok, err := c.opts.Credentials.GetPassword(c.opts.Room)
			if err != nil {
				c.logger.Warn("saved password unavailable", "error", err)
			} else if ok {
				saved = pw
			}
		}
		c.askPassword(saved)
	case protocol.ControlPasswordWrong:
		c.pending = nil
		c.opts.Shell.Notify(Notice{Level: LevelWarn, Text: NoticePasswordIncorrect})
		c.askPassword("")
	case protocol.ControlDecline:
		c.end(NoticeConnectionDeclined)
	default:
		c.logger.Debug("ignoring control message", "message", ctrl.Kind)
	}
}

func (c *Controller) askPassword(saved string) {
	if c.promptCancel != nil {
		c.promptCancel()
	}
	c.prompt++
	seq := c.prompt
	ctx, cancel := context.WithCancel(c.ctx)
	c.promptCancel = cancel
	c.setState(StateAwaitingPassword)

	go func() {
		cred, ok, err := c.opts.Prompter.AskPassword(ctx, c.opts.Room, saved)
		if err != nil {
			c.logger.Info("password prompt ended without an answer", "error", err)
			ok = false
		}
		c.loop.post(func() { c.onPassword(seq, cred, ok) })
	}()
}

func (c *Controller) onPassword(seq int, cred Credential, ok bool) {
	if c.ended || seq != c.prompt {
		return
	}
	c.promptCancel()
	c.promptCancel = nil

	if !ok {
		c.send(protocol.Decline())
		c.end("password entry cancelled")
		return
	}
	c.pending = &cred
	c.send(protocol.PasswordAnswer(cred.Password))
	c.setState(StateConnecting)
}

func (c *Controller) peerHandlers() peer.Handlers {
	return peer.Handlers{
		OnSignal: func(raw json.RawMessage) {
			c.loop.post(func() {
				if c.ended || c.link == nil {
					return
				}
				if err := c.link.ch.Send(signaling.Signal(raw)); err != nil {
					c.logger.Warn("send signal failed", "error", err)
				}
			})
		},
		OnConnected: func() { c.loop.post(c.onPeerConnected) },
		OnClosed: func(err error) {
			c.loop.post(func() {
				if err != nil {
					c.end(fmt.Sprintf("connection failed: %v", err))
					return
				}
				c.end("connection closed by host")
			})
		},
		OnFrame:  func(f protocol.Frame) { c.loop.post(func() { c.onFrame(f) }) },
		OnBinary: func(data []byte) { c.loop.post(func() { c.onBinary(data) }) },
	}
}

func (c *Controller) onPeerConnected() {
	if c.ended || c.state == StateConnected {
		return
	}

	cred := c.pending
	c.pending = nil
	if c.opts.Credentials != nil {
		if cred != nil && cred.Remember {
			if err := c.opts.Credentials.SavePassword(c.opts.Room, cred.Password); err != nil {
				c.logger.Warn("remember password failed", "error", err)
			}
		}
		if _, err := c.opts.Credentials.Add(c.opts.Room); err != nil {
			c.logger.Warn("address book update failed", "error", err)
		}
	}

	if c.opts.Clipboard != nil {
		ctx, cancel := context.WithCancel(c.ctx)
		c.clipCancel = cancel
		changes := c.opts.Clipboard.ClipboardChanges(ctx)
		go func() {
			for text := range changes {
				c.loop.post(func() { c.onLocalClipboard(text) })
			}
		}()
	}

	c.setState(StateConnected)
	c.logger.Info("connected to host")
}

func (c *Controller) onLocalClipboard(text string) {
	if c.ended || c.state != StateConnected {
		return
	}
	if c.lastRemoteClipboard != "" && text == c.lastRemoteClipboard {
		c.lastRemoteClipboard = ""
		return
	}
	if err := c.peer.Send(protocol.Clipboard{Text: text}); err != nil {
		c.logger.Warn("clipboard sync failed", "error", err)
	}
}

func (c *Controller) onFrame(f protocol.Frame) {
	if c.ended {
		return
	}

	var err error
	switch f := f.(type) {
	case protocol.FileOffer:
		if err = c.transfers.Accept(f.ID); err == nil {
			err = c.peer.Send(protocol.FileStart{ID: f.ID})
		}
	case protocol.FileStart:
		err = c.transfers.Start(f.ID)
	case protocol.Clipboard:
		if c.opts.Clipboard != nil {
			c.lastRemoteClipboard = f.Text
			err = c.opts.Clipboard.WriteClipboard(f.Text)
		}
	case protocol.Chat:
		c.opts.Chat.Receive(f)
	default:
		c.logger.Debug("ignoring frame", "kind", f.Kind())
	}
	if err != nil {
		c.logger.Warn("frame handling failed", "kind", f.Kind(), "error", err)
	}
}

func (c *Controller) onBinary(data []byte) {
	if c.ended {
		return
	}
	if err := c.transfers.HandleBinary(data); err != nil {
		c.logger.Warn("transfer message rejected", "error", err)
	}
}

// Input

func (c *Controller) sendFrame(f protocol.Frame) error {
	if c.ended {
		return ErrStopped
	}
	if c.state != StateConnected {
		return ErrNotConnected
	}
	return c.peer.Send(f)
}

// SetSurfaceSize records the size of the local surface pointer positions
// are measured against. Until it is set, every position maps to the host's
// origin.
func (c *Controller) SetSurfaceSize(width, height int) error {
	return c.loop.call(func() error {
		c.surface = protocol.ScreenSize{Width: width, Height: height}
		return nil
	})
}

// Mouse sends a pointer event. x and y are surface coordinates and are
// mapped onto the host screen. Events before the host has announced its
// screen are dropped.
func (c *Controller) Mouse(action protocol.MouseAction, x, y float64, button int) error {
	return c.loop.call(func() error {
		if !c.host.Known() {
			c.logger.Debug("pointer event dropped, host screen unknown", "action", action)
			return nil
		}
		hx, hy := protocol.MapPoint(x, y, c.surface, c.host)
		return c.sendFrame(protocol.Mouse{Action: action, X: hx, Y: hy, Button: button})
	})
}

// Scroll sends one wheel step. Negative deltas scroll up, positive down and
// zero is ignored.
func (c *Controller) Scroll(deltaY float64) error {
	if deltaY == 0 {
		return nil
	}
	dir := protocol.ScrollDown
	if deltaY < 0 {
		dir = protocol.ScrollUp
	}
	return c.loop.call(func() error { return c.sendFrame(protocol.Scroll{Direction: dir}) })
}

func (c *Controller) Key(ev protocol.KeyEvent) error {
	return c.loop.call(func() error { return c.sendFrame(ev) })
}

// Paste pushes text onto the host clipboard.
func (c *Controller) Paste(text string) error {
	if text == "" {
		return nil
	}
	return c.loop.call(func() error { return c.sendFrame(protocol.Clipboard{Text: text}) })
}

func (c *Controller) SendChat(text string) error {
	return c.loop.call(func() error {
		msg := c.opts.Chat.Append(protocol.PaneUser, chat.Local, text)
		return c.sendFrame(msg.Frame())
	})
}

func (c *Controller) SendFile(path string) error {
	return c.loop.call(func() error {
		if c.state != StateConnected {
			return ErrNotConnected
		}
		id, err := c.transfers.Offer(path)
		if err != nil {
			return err
		}
		return c.sendFrame(protocol.FileOffer{ID: id})
	})
}

// StartVideoCall unmutes the local camera and microphone.
func (c *Controller) StartVideoCall() error {
	return c.loop.call(func() error { return c.setCall(true) })
}

// EndCall mutes them again.
func (c *Controller) EndCall() error {
	return c.loop.call(func() error { return c.setCall(false) })
}

func (c *Controller) setCall(on bool) error {
	if c.local == nil {
		if on {
			c.opts.Shell.Notify(Notice{Level: LevelError, Text: NoticeCameraFailed})
			return bridge.ErrDeviceAccess
		}
		return nil
	}
	c.local.SetEnabled(on)
	c.mu.Lock()
	c.snapCall = on
	c.mu.Unlock()
	return nil
}

// Disconnect ends the session.
func (c *Controller) Disconnect() error {
	return c.loop.call(func() error {
		c.end(ReasonDisconnected)
		return nil
	})
}

// end tears the session down once and stops the loop.
func (c *Controller) end(reason string) {
	if c.ended {
		return
	}
	c.ended = true
	c.reason = reason
	c.pending = nil
	c.logger.Info("session ended", "reason", reason)
	c.setState(StateEnded)
	c.opts.Shell.Notify(Notice{Level: LevelInfo, Text: NoticeConnectionEnded, Detail: reason})

	step := func(name string, f func()) { isolate(c.logger, name, f) }
	step("stop tracks", func() { c.local.Stop() })
	step("cancel prompts", func() {
		if c.promptCancel != nil {
			c.promptCancel()
		}
		if c.clipCancel != nil {
			c.clipCancel()
		}
	})
	step("close transfers", func() {
		if c.transfers != nil {
			if err := c.transfers.Close(); err != nil {
				c.logger.Warn("close transfers", "error", err)
			}
		}
	})
	step("close peer", func() {
		if c.peer != nil {
			if err := c.peer.Close(); err != nil {
				c.logger.Warn("close peer", "error", err)
			}
		}
	})
	step("remove overlays", c.opts.Shell.RemoveOverlays)
	step("destroy channel", func() {
		if c.link != nil {
			c.link.close()
		}
	})

	c.mu.Lock()
	c.snapCall = false
	c.mu.Unlock()
	c.loop.stop()
}
