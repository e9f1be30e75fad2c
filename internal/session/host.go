package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/deskwarp/internal/bridge"
	"github.com/BioHazard786/deskwarp/internal/chat"
	"github.com/BioHazard786/deskwarp/internal/config"
	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/peer"
	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/signaling"
	"github.com/BioHazard786/deskwarp/internal/transfer"
)

// HostOptions configures a Host.
type HostOptions struct {
	Room room.ID

	// Hidden gates every connection behind the access password instead of
	// asking the local user.
	Hidden bool

	Channel   ChannelFactory
	Peer      PeerFactory
	Bridge    bridge.Host
	Prompter  HostPrompter
	Shell     Shell
	Passwords PasswordVerifier
	Chat      *chat.Log

	DownloadDir     string
	OnProgress      func(transfer.Progress)
	OnComplete      func(transfer.Result)
	OnTransferError func(fileID string, err error)

	// OnStateChange is called from the session goroutine and must not
	// block.
	OnStateChange func(State)

	ReconnectDelay time.Duration
	PromptTimeout  time.Duration

	// GOOS selects the display scaling rule. Empty means runtime.GOOS.
	GOOS string

	Logger *slog.Logger
}

// hostSession is everything that belongs to one controller. It is replaced
// wholesale on teardown, so events tagged with an old one are ignored.
type hostSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	peer      PeerSession
	transfers *transfer.Manager
	screen    *media.Capture

	camera, mic device

	lastRemoteClipboard string
}

// device is an optional camera or microphone track. on is the user's switch;
// the track only exists once a capture succeeded.
type device struct {
	track   *media.LocalTrack
	on      bool
	pending bool
}

func (s *hostSession) device(kind media.Kind) *device {
	if kind == media.KindAudio {
		return &s.mic
	}
	return &s.camera
}

// Host waits in a room for controllers and serves one at a time.
type Host struct {
	opts   HostOptions
	logger *slog.Logger
	loop   *loop

	running atomic.Bool

	// Owned by the loop goroutine.
	ctx        context.Context
	state      State
	link       *link
	sess       *hostSession
	challenged bool
	reconnect  *time.Timer

	mu        sync.Mutex
	snapState State
	snapMedia MediaState
}

// NewHost validates opts and fills in defaults.
func NewHost(opts HostOptions) (*Host, error) {
	if err := room.Validate(string(opts.Room)); err != nil {
		return nil, err
	}
	if opts.Channel == nil || opts.Peer == nil || opts.Bridge == nil {
		return nil, errors.New("host needs a channel factory, a peer factory and a bridge")
	}
	if opts.Hidden && opts.Passwords == nil {
		return nil, errors.New("hidden access needs a password verifier")
	}
	if !opts.Hidden && opts.Prompter == nil {
		return nil, errors.New("host needs a prompter unless hidden access is on")
	}
	if opts.Shell == nil {
		opts.Shell = NopShell{}
	}
	if opts.Chat == nil {
		opts.Chat = chat.NewLog(0)
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = config.DefaultReconnectDelay
	}
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = config.DefaultPromptTimeout
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}

	return &Host{
		opts:   opts,
		logger: logging.Component(opts.Logger, "host").With("room", opts.Room),
		loop:   newLoop(),
	}, nil
}

// Run joins the room and serves controllers until ctx is done. Lost
// connections are torn down and the room is joined again; Run only returns
// on cancellation.
func (h *Host) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	h.ctx = ctx
	h.openLink()
	h.setState(StateIdle)
	h.logger.Info("waiting for controllers")

	h.loop.run(ctx)
	h.shutdown()
	return nil
}

// Disconnect ends the current session. The host stays in the room.
func (h *Host) Disconnect() error {
	return h.loop.call(func() error {
		h.teardown(ReasonDisconnected)
		return nil
	})
}

// SendChat records text in the chat log and sends it to the controller.
func (h *Host) SendChat(text string) error {
	return h.loop.call(func() error {
		msg := h.opts.Chat.Append(protocol.PaneHost, chat.Local, text)
		s := h.connected()
		if s == nil {
			h.logger.Warn("chat not delivered, no controller connected")
			return ErrNotConnected
		}
		return s.peer.Send(msg.Frame())
	})
}

// SendFile offers a local file to the controller.
func (h *Host) SendFile(path string) error {
	return h.loop.call(func() error {
		s := h.connected()
		if s == nil {
			return ErrNotConnected
		}
		id, err := s.transfers.Offer(path)
		if err != nil {
			return err
		}
		return s.peer.Send(protocol.FileOffer{ID: id})
	})
}

// SetCamera switches the local camera. The first switch-on captures the
// device and attaches the track; later toggles only mute it.
func (h *Host) SetCamera(on bool) error {
	return h.loop.call(func() error { return h.setDevice(media.KindVideo, on) })
}

// SetMicrophone is SetCamera for the microphone.
func (h *Host) SetMicrophone(on bool) error {
	return h.loop.call(func() error { return h.setDevice(media.KindAudio, on) })
}

// Snapshot returns the current state and the room being served.
func (h *Host) Snapshot() (State, room.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapState, h.opts.Room
}

// MediaState returns the camera and microphone switches.
func (h *Host) MediaState() MediaState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapMedia
}

func (h *Host) setState(s State) {
	if h.state == s {
		return
	}
	h.logger.Debug("state", "from", h.state, "to", s)
	h.state = s

	h.mu.Lock()
	h.snapState = s
	h.mu.Unlock()

	if h.opts.OnStateChange != nil {
		h.opts.OnStateChange(s)
	}
}

func (h *Host) publishMedia() {
	var m MediaState
	if s := h.sess; s != nil {
		m = MediaState{Camera: s.camera.on, Microphone: s.mic.on}
	}
	h.mu.Lock()
	h.snapMedia = m
	h.mu.Unlock()
}

func (h *Host) connected() *hostSession {
	if h.state != StateConnected || h.sess == nil || h.sess.peer == nil {
		return nil
	}
	return h.sess
}

// Signaling

func (h *Host) openLink() {
	h.link = openLink(h.ctx, h.loop, h.opts.Channel(), h.opts.Room, linkHandlers{
		envelope: h.onEnvelope,
		peerLeft: h.onPeerLeft,
		lost:     h.onLinkLost,
	})
}

func (h *Host) sendControl(c protocol.Control) {
	if h.link == nil {
		return
	}
	if err := h.link.sendControl(c); err != nil {
		h.logger.Warn("send control failed", "message", c.Kind, "error", err)
	}
}

func (h *Host) onEnvelope(lk *link, env signaling.Envelope) {
	if lk != h.link {
		return
	}
	if !env.IsControl() {
		h.onRemoteSignal(env.Signal)
		return
	}

	ctrl, err := protocol.ParseControl(env.Text)
	if err != nil {
		h.logger.Warn("ignoring control message", "error", err)
		return
	}
	switch ctrl.Kind {
	case protocol.ControlHello:
		h.onHello()
	case protocol.ControlPasswordAnswer:
		h.onPasswordAnswer(ctrl.Secret)
	case protocol.ControlDecline:
		h.onDecline()
	default:
		h.logger.Debug("ignoring control message", "message", ctrl.Kind)
	}
}

func (h *Host) onRemoteSignal(raw json.RawMessage) {
	if h.sess == nil || h.sess.peer == nil {
		h.logger.Warn("signal dropped, no active peer")
		return
	}
	if err := h.sess.peer.HandleSignal(raw); err != nil {
		h.logger.Warn("signal rejected", "error", err)
	}
}

func (h *Host) onPeerLeft(lk *link) {
	if lk != h.link {
		return
	}
	if h.sess == nil {
		h.challenged = false
		return
	}
	h.teardown("controller left")
}

func (h *Host) onLinkLost(lk *link, err error) {
	if lk != h.link {
		return
	}
	h.logger.Warn("relay connection lost", "error", err)
	h.teardown("relay connection lost")
}

// Admission

func (h *Host) beginSession() *hostSession {
	ctx, cancel := context.WithCancel(h.ctx)
	h.sess = &hostSession{ctx: ctx, cancel: cancel}
	h.publishMedia()
	return h.sess
}

// dropSession discards a session that never got past admission.
func (h *Host) dropSession() {
	if h.sess != nil {
		h.sess.cancel()
		h.sess = nil
	}
	h.publishMedia()
	h.setState(StateIdle)
}

func (h *Host) screenSize() protocol.ScreenSize {
	w, ht, scale, err := h.opts.Bridge.ScreenSize()
	if err != nil {
		h.logger.Warn("screen size unavailable", "error", err)
		return protocol.ScreenSize{}
	}
	return protocol.HostScreenSize(w, ht, scale, h.opts.GOOS)
}

func (h *Host) onHello() {
	if h.state != StateIdle {
		h.logger.Debug("hello ignored", "state", h.state)
		return
	}
	h.logger.Info("controller wants to connect")
	h.sendControl(protocol.ScreenSizeMessage(h.screenSize()))

	s := h.beginSession()
	if h.opts.Hidden {
		h.challenged = true
		h.sendControl(protocol.PasswordRequest())
		h.setState(StateAwaitingPassword)
		return
	}

	h.opts.Shell.BringToFront()
	h.setState(StateAwaitingPermission)

	ctx, cancel := context.WithTimeout(s.ctx, h.opts.PromptTimeout)
	go func() {
		defer cancel()
		ok, err := h.opts.Prompter.ConfirmConnection(ctx, h.opts.Room)
		if err != nil {
			h.logger.Info("connection prompt ended without an answer", "error", err)
			ok = false
		}
		h.loop.post(func() { h.onPermission(s, ok) })
	}()
}

func (h *Host) onPermission(s *hostSession, ok bool) {
	if s != h.sess || h.state != StateAwaitingPermission {
		return
	}
	if !ok {
		h.logger.Info("connection declined")
		h.sendControl(protocol.Decline())
		h.dropSession()
		return
	}
	h.connect(s)
}

func (h *Host) onPasswordAnswer(secret string) {
	switch {
	case h.state == StateAwaitingPassword:
	case h.state == StateIdle && h.opts.Hidden && h.challenged:
		h.beginSession()
	default:
		h.logger.Debug("password answer ignored", "state", h.state)
		return
	}

	if !h.opts.Passwords.VerifyPassword(secret) {
		h.logger.Warn("wrong access password")
		h.sendControl(protocol.PasswordWrong())
		h.dropSession()
		return
	}
	h.connect(h.sess)
}

func (h *Host) onDecline() {
	switch h.state {
	case StateAwaitingPassword:
		h.dropSession()
		h.challenged = false
	case StateIdle:
		h.challenged = false
	}
}

// Connection

func (h *Host) connect(s *hostSession) {
	h.setState(StateConnecting)
	go func() {
		screen, err := h.opts.Bridge.CaptureScreen(s.ctx)
		if !h.loop.post(func() { h.onScreen(s, screen, err) }) {
			screen.Stop()
		}
	}()
}

func (h *Host) onScreen(s *hostSession, screen *media.Capture, err error) {
	if s != h.sess || h.state != StateConnecting {
		screen.Stop()
		return
	}
	if err != nil {
		h.logger.Error("screen capture failed", "error", err)
		h.teardown("screen capture failed")
		return
	}
	s.screen = screen

	p, err := h.opts.Peer(peer.RoleOfferer, h.peerHandlers(s))
	if err != nil {
		h.logger.Error("create peer failed", "error", err)
		h.teardown("peer setup failed")
		return
	}
	s.peer = p
	s.transfers = transfer.NewManager(p, transfer.Options{
		DownloadDir: h.opts.DownloadDir,
		Logger:      h.opts.Logger,
		OnProgress:  h.opts.OnProgress,
		OnComplete:  h.opts.OnComplete,
		OnError:     h.opts.OnTransferError,
	})

	if err := p.AddTracks(screen.Tracks()...); err != nil {
		h.logger.Error("attach screen failed", "error", err)
		h.teardown("peer setup failed")
		return
	}
	if err := p.Start(); err != nil {
		h.logger.Error("start peer failed", "error", err)
		h.teardown("peer setup failed")
	}
}

func (h *Host) peerHandlers(s *hostSession) peer.Handlers {
	return peer.Handlers{
		OnSignal: func(raw json.RawMessage) {
			h.loop.post(func() {
				if s == h.sess && h.link != nil {
					if err := h.link.ch.Send(signaling.Signal(raw)); err != nil {
						h.logger.Warn("send signal failed", "error", err)
					}
				}
			})
		},
		OnConnected: func() { h.loop.post(func() { h.onPeerConnected(s) }) },
		OnClosed: func(err error) {
			h.loop.post(func() {
				if s != h.sess {
					return
				}
				if err != nil {
					h.logger.Warn("peer failed", "error", err)
					h.teardown("connection failed")
					return
				}
				h.teardown("connection closed")
			})
		},
		OnFrame:  func(f protocol.Frame) { h.loop.post(func() { h.onFrame(s, f) }) },
		OnBinary: func(data []byte) { h.loop.post(func() { h.onBinary(s, data) }) },
	}
}

func (h *Host) onPeerConnected(s *hostSession) {
	if s != h.sess || h.state != StateConnecting {
		return
	}
	h.setState(StateConnected)
	h.logger.Info("controller connected")

	changes := h.opts.Bridge.ClipboardChanges(s.ctx)
	go func() {
		for text := range changes {
			h.loop.post(func() { h.onLocalClipboard(s, text) })
		}
	}()

	h.opts.Shell.ShowStatusWindow(h.opts.Room)
	h.opts.Shell.Minimize()
}

func (h *Host) onLocalClipboard(s *hostSession, text string) {
	if s != h.connected() {
		return
	}
	if s.lastRemoteClipboard != "" && text == s.lastRemoteClipboard {
		s.lastRemoteClipboard = ""
		return
	}
	if err := s.peer.Send(protocol.Clipboard{Text: text}); err != nil {
		h.logger.Warn("clipboard sync failed", "error", err)
	}
}

func (h *Host) onFrame(s *hostSession, f protocol.Frame) {
	if s != h.sess || s.peer == nil {
		return
	}

	var err error
	switch f := f.(type) {
	case protocol.FileOffer:
		if err = s.transfers.Accept(f.ID); err == nil {
			err = s.peer.Send(protocol.FileStart{ID: f.ID})
		}
	case protocol.FileStart:
		err = s.transfers.Start(f.ID)
	case protocol.Clipboard:
		s.lastRemoteClipboard = f.Text
		err = h.opts.Bridge.WriteClipboard(f.Text)
	case protocol.Chat:
		h.opts.Chat.Receive(f)
	case protocol.KeyEvent:
		err = h.opts.Bridge.InjectKey(f)
	case protocol.Mouse:
		err = h.opts.Bridge.InjectMouse(f)
	case protocol.Scroll:
		err = h.opts.Bridge.InjectScroll(f.Direction)
	}
	if err != nil {
		h.logger.Warn("frame handling failed", "kind", f.Kind(), "error", err)
	}
}

func (h *Host) onBinary(s *hostSession, data []byte) {
	if s != h.sess || s.transfers == nil {
		return
	}
	if err := s.transfers.HandleBinary(data); err != nil {
		h.logger.Warn("transfer message rejected", "error", err)
	}
}

// Camera and microphone

func (h *Host) setDevice(kind media.Kind, on bool) error {
	s := h.sess
	if s == nil || s.peer == nil {
		return ErrNotConnected
	}

	d := s.device(kind)
	d.on = on
	h.publishMedia()
	if d.track != nil {
		d.track.SetEnabled(on)
		return nil
	}
	if !on || d.pending {
		return nil
	}

	d.pending = true
	go func() {
		capture, err := h.opts.Bridge.CaptureCameraMic(s.ctx, kind == media.KindVideo, kind == media.KindAudio)
		if !h.loop.post(func() { h.onDevice(s, kind, capture, err) }) {
			capture.Stop()
		}
	}()
	return nil
}

func (h *Host) onDevice(s *hostSession, kind media.Kind, capture *media.Capture, err error) {
	if s != h.sess || s.peer == nil {
		capture.Stop()
		return
	}

	d := s.device(kind)
	d.pending = false

	var t *media.LocalTrack
	if err == nil {
		t = capture.Video
		if kind == media.KindAudio {
			t = capture.Audio
		}
		if t == nil {
			capture.Stop()
			err = bridge.ErrDeviceAccess
		} else if err = s.peer.AddTracks(t); err != nil {
			capture.Stop()
		}
	}
	if err != nil {
		h.logger.Warn("device capture failed", "kind", kind, "error", err)
		d.on = false
		h.publishMedia()
		h.opts.Shell.Notify(Notice{Level: LevelError, Text: NoticeCameraFailed, Detail: err.Error()})
		return
	}

	d.track = t
	t.SetEnabled(d.on)
}

// Teardown

func (h *Host) releaseSession(s *hostSession) {
	step := func(name string, f func()) { isolate(h.logger, name, f) }

	step("stop tracks", func() {
		for _, t := range []*media.LocalTrack{s.camera.track, s.mic.track} {
			if t != nil {
				t.Stop()
			}
		}
		s.screen.Stop()
	})
	step("remove overlays", h.opts.Shell.RemoveOverlays)
	step("close status window", h.opts.Shell.CloseStatusWindow)
	step("restore window", h.opts.Shell.Restore)
	step("close transfers", func() {
		if s.transfers != nil {
			if err := s.transfers.Close(); err != nil {
				h.logger.Warn("close transfers", "error", err)
			}
		}
	})
	step("close peer", func() {
		s.cancel()
		if s.peer != nil {
			if err := s.peer.Close(); err != nil {
				h.logger.Warn("close peer", "error", err)
			}
		}
	})
}

func (h *Host) closeLink() {
	if h.link == nil {
		return
	}
	lk := h.link
	h.link = nil
	isolate(h.logger, "destroy channel", lk.close)
}

// teardown releases the session and the channel, then rejoins the same room
// after the reconnect delay. It is a no-op while a rejoin is pending.
func (h *Host) teardown(reason string) {
	if h.state == StateTearingDown {
		return
	}
	h.logger.Info("tearing down", "reason", reason)
	h.setState(StateTearingDown)

	if s := h.sess; s != nil {
		h.sess = nil
		h.releaseSession(s)
	}
	h.publishMedia()
	h.closeLink()
	h.challenged = false

	h.reconnect = time.AfterFunc(h.opts.ReconnectDelay, func() {
		h.loop.post(h.rejoin)
	})
}

func (h *Host) rejoin() {
	if h.state != StateTearingDown {
		return
	}
	h.reconnect = nil
	h.openLink()
	h.setState(StateIdle)
	h.logger.Debug("rejoined room")
}

func (h *Host) shutdown() {
	if h.reconnect != nil {
		h.reconnect.Stop()
		h.reconnect = nil
	}
	if s := h.sess; s != nil {
		h.sess = nil
		h.releaseSession(s)
	}
	h.publishMedia()
	h.closeLink()
	h.setState(StateEnded)
	h.logger.Info("host stopped")
}
