package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/deskwarp/internal/bridge"
	"github.com/BioHazard786/deskwarp/internal/chat"
	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/peer"
	"github.com/BioHazard786/deskwarp/internal/protocol"
)

type controllerFixture struct {
	ctrl     *Controller
	channel  *fakeChannel
	peers    *peers
	prompter *controllerPrompter
	shell    *fakeShell
	creds    *fakeCredentials
	chat     *chat.Log
	done     chan error
}

func startController(t *testing.T, configure func(*ControllerOptions)) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		channel:  newFakeChannel(),
		peers:    &peers{},
		prompter: newControllerPrompter(),
		shell:    &fakeShell{},
		creds:    newFakeCredentials(),
		chat:     chat.NewLog(0),
		done:     make(chan error, 1),
	}
	opts := ControllerOptions{
		Room:        testRoom,
		Channel:     f.channel,
		Peer:        f.peers.factory,
		Prompter:    f.prompter,
		Shell:       f.shell,
		Credentials: f.creds,
		Chat:        f.chat,
		Capturer:    bridge.NewHeadless(bridge.HeadlessOptions{Logger: logging.Discard()}),
		DownloadDir: t.TempDir(),
		Logger:      logging.Discard(),
	}
	if configure != nil {
		configure(&opts)
	}

	ctrl, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	f.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	go func() { f.done <- ctrl.Run(ctx) }()
	t.Cleanup(cancel)

	eventually(t, "hi", func() bool { return f.channel.count("hi") == 1 })
	return f
}

func (f *controllerFixture) peer(t *testing.T) *fakePeer {
	t.Helper()
	eventually(t, "peer", func() bool { return f.peers.len() == 1 })
	return f.peers.get(0)
}

func (f *controllerFixture) ended(t *testing.T) *EndedError {
	t.Helper()
	select {
	case err := <-f.done:
		var ended *EndedError
		if !errors.As(err, &ended) {
			t.Fatalf("Run = %v, want *EndedError", err)
		}
		return ended
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// connect opens the data channel after the host size is known.
func (f *controllerFixture) connect(t *testing.T) *fakePeer {
	t.Helper()
	f.channel.deliver("screenSize,1920,1080")
	eventually(t, "host screen", func() bool { return f.ctrl.HostScreen().Known() })
	p := f.peer(t)
	p.open()
	eventually(t, "connected", func() bool { return f.ctrl.State() == StateConnected })
	return p
}

func TestControllerStartup(t *testing.T) {
	f := startController(t, nil)
	p := f.peer(t)

	if p.role != peer.RoleAnswerer {
		t.Fatalf("role = %v, want answerer", p.role)
	}
	if got := f.channel.joined(); got != string(testRoom) {
		t.Fatalf("joined %q, want %q", got, testRoom)
	}

	tracks := p.trackList()
	if len(tracks) != 2 {
		t.Fatalf("local tracks = %d, want camera and microphone", len(tracks))
	}
	for _, tr := range tracks {
		if tr.Enabled() {
			t.Fatalf("%s track attached enabled", tr.Kind)
		}
	}
}

func TestControllerToleratesMissingCamera(t *testing.T) {
	f := startController(t, func(o *ControllerOptions) {
		o.Capturer = bridge.NewHeadless(bridge.HeadlessOptions{DenyCamera: true, Logger: logging.Discard()})
	})
	p := f.connect(t)
	if len(p.trackList()) != 0 {
		t.Fatal("tracks attached without a camera")
	}
	if err := f.ctrl.StartVideoCall(); !errors.Is(err, bridge.ErrDeviceAccess) {
		t.Fatalf("StartVideoCall = %v, want ErrDeviceAccess", err)
	}
	if !f.shell.noticed(NoticeCameraFailed) {
		t.Fatal("no camera notice")
	}
}

func TestControllerPasswordFlow(t *testing.T) {
	f := startController(t, nil)
	f.creds.SavePassword(testRoom, "old")

	f.channel.deliver("pwRequest")
	eventually(t, "prompt", func() bool { return len(f.prompter.prefills()) == 1 })
	if got := f.prompter.prefills()[0]; got != "old" {
		t.Fatalf("prefill = %q, want saved password", got)
	}
	if f.ctrl.State() != StateAwaitingPassword {
		t.Fatalf("state = %v", f.ctrl.State())
	}

	f.prompter.answers <- passwordAnswer{cred: Credential{Password: "guess", Remember: true}, ok: true}
	eventually(t, "answer", func() bool { return f.channel.count("pwAnswer:guess") == 1 })

	f.channel.deliver("pwWrong")
	eventually(t, "re-prompt", func() bool { return len(f.prompter.prefills()) == 2 })
	if got := f.prompter.prefills()[1]; got != "" {
		t.Fatalf("re-prompt prefill = %q, want empty", got)
	}
	if !f.shell.noticed(NoticePasswordIncorrect) {
		t.Fatal("no password notice")
	}

	f.prompter.answers <- passwordAnswer{cred: Credential{Password: "secret", Remember: true}, ok: true}
	eventually(t, "answer", func() bool { return f.channel.count("pwAnswer:secret") == 1 })

	f.connect(t)
	pw, ok, _ := f.creds.GetPassword(testRoom)
	if !ok || pw != "secret" {
		t.Fatalf("saved password = %q, %v", pw, ok)
	}
	if added := f.creds.addedIDs(); len(added) != 1 || added[0] != testRoom {
		t.Fatalf("address book = %v", added)
	}
}

func TestControllerForgetsUnrememberedPassword(t *testing.T) {
	f := startController(t, nil)

	f.channel.deliver("pwRequest")
	f.prompter.answers <- passwordAnswer{cred: Credential{Password: "secret"}, ok: true}
	eventually(t, "answer", func() bool { return f.channel.count("pwAnswer:secret") == 1 })

	f.connect(t)
	if _, ok, _ := f.creds.GetPassword(testRoom); ok {
		t.Fatal("password saved without remember")
	}
}

func TestControllerPromptCancelDeclines(t *testing.T) {
	f := startController(t, nil)

	f.channel.deliver("pwRequest")
	f.prompter.answers <- passwordAnswer{ok: false}

	ended := f.ended(t)
	if ended.Reason == "" {
		t.Fatal("empty end reason")
	}
	if f.channel.count("decline") != 1 {
		t.Fatalf("sent = %v, want a decline", f.channel.texts())
	}
}

func TestControllerDeclined(t *testing.T) {
	f := startController(t, nil)
	p := f.peer(t)

	f.channel.deliver("decline")
	ended := f.ended(t)

	if ended.Reason != NoticeConnectionDeclined {
		t.Fatalf("reason = %q", ended.Reason)
	}
	if !f.shell.noticed(NoticeConnectionEnded) {
		t.Fatal("no end notice")
	}
	if !p.isClosed() || !f.channel.isDestroyed() {
		t.Fatal("peer or channel left open")
	}
	for _, tr := range p.trackList() {
		if !tr.Stopped() {
			t.Fatal("local track still running")
		}
	}
	if err := f.ctrl.Disconnect(); !errors.Is(err, ErrStopped) {
		t.Fatalf("Disconnect after end = %v, want ErrStopped", err)
	}
}

func TestControllerEndsWhenHostLeaves(t *testing.T) {
	f := startController(t, nil)
	f.connect(t)

	f.channel.peerLeft()
	f.ended(t)
	if f.ctrl.State() != StateEnded {
		t.Fatalf("state = %v", f.ctrl.State())
	}
}

func TestControllerInput(t *testing.T) {
	f := startController(t, nil)

	if err := f.ctrl.Mouse(protocol.MouseMove, 1, 1, 0); err != nil {
		t.Fatalf("Mouse before screenSize = %v, want it dropped", err)
	}

	p := f.connect(t)
	if len(p.sentFrames()) != 0 {
		t.Fatalf("sent %v before the host screen was known", p.sentFrames())
	}
	if err := f.ctrl.SetSurfaceSize(960, 540); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name string
		do   func() error
		want string
	}{
		{"move", func() error { return f.ctrl.Mouse(protocol.MouseMove, 480, 270, 0) }, "mm,960,540"},
		{"down", func() error { return f.ctrl.Mouse(protocol.MouseDown, 50, 100, 0) }, "md,100,200,0"},
		{"scroll up", func() error { return f.ctrl.Scroll(-3) }, "s,up"},
		{"scroll down", func() error { return f.ctrl.Scroll(1.5) }, "s,down"},
		{"paste", func() error { return f.ctrl.Paste("hello") }, "clipboard-hello"},
		{"chat", func() error { return f.ctrl.SendChat("hey") }, "chat-user-hey"},
	}
	for _, step := range steps {
		if err := step.do(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if !p.sent(step.want) {
			t.Fatalf("%s: sent %v, want %q", step.name, p.sentFrames(), step.want)
		}
	}

	before := len(p.sentFrames())
	if err := f.ctrl.Scroll(0); err != nil {
		t.Fatal(err)
	}
	if len(p.sentFrames()) != before {
		t.Fatal("zero scroll sent a frame")
	}
}

func TestControllerInputWithoutSurface(t *testing.T) {
	f := startController(t, nil)
	p := f.connect(t)

	if err := f.ctrl.Mouse(protocol.MouseMove, 480, 270, 0); err != nil {
		t.Fatal(err)
	}
	if !p.sent("mm,0,0") {
		t.Fatalf("sent %v, want the pointer pinned to the origin", p.sentFrames())
	}
}

func TestControllerDropsPendingPasswordOnFailure(t *testing.T) {
	f := startController(t, nil)

	f.channel.deliver("pwRequest")
	f.prompter.answers <- passwordAnswer{cred: Credential{Password: "secret", Remember: true}, ok: true}
	eventually(t, "answer", func() bool { return f.channel.count("pwAnswer:secret") == 1 })

	f.channel.peerLeft()
	f.ended(t)

	if f.ctrl.pending != nil {
		t.Fatal("pending credential kept after the session failed")
	}
	if _, ok, _ := f.creds.GetPassword(testRoom); ok {
		t.Fatal("password saved for a session that never connected")
	}
}

func TestControllerVideoCall(t *testing.T) {
	f := startController(t, nil)
	p := f.connect(t)

	if err := f.ctrl.StartVideoCall(); err != nil {
		t.Fatal(err)
	}
	for _, tr := range p.trackList() {
		if !tr.Enabled() {
			t.Fatalf("%s not enabled by call", tr.Kind)
		}
	}
	if !f.ctrl.InCall() {
		t.Fatal("InCall = false")
	}

	if err := f.ctrl.EndCall(); err != nil {
		t.Fatal(err)
	}
	for _, tr := range p.trackList() {
		if tr.Enabled() {
			t.Fatalf("%s still enabled", tr.Kind)
		}
	}
}

func TestControllerFrames(t *testing.T) {
	clip := bridge.NewHeadless(bridge.HeadlessOptions{Logger: logging.Discard()})
	f := startController(t, func(o *ControllerOptions) { o.Clipboard = clip })
	p := f.connect(t)

	p.h.OnFrame(protocol.Chat{Pane: protocol.PaneHost, Text: "welcome"})
	eventually(t, "chat", func() bool { return f.chat.Len() == 1 })
	if got := f.chat.Messages()[0].Label(); got != "Host" {
		t.Fatalf("label = %q", got)
	}

	p.h.OnFrame(protocol.Clipboard{Text: "from host"})
	eventually(t, "clipboard", func() bool {
		text, _ := clip.ReadClipboard()
		return text == "from host"
	})

	p.h.OnFrame(protocol.FileOffer{ID: "f1"})
	eventually(t, "accept", func() bool { return p.sent("start-f1") })

	// Input frames are never injected on the controller side.
	p.h.OnFrame(protocol.Mouse{Action: protocol.MouseDown})
	if st := clip.Stats(); st.Mouse != 0 {
		t.Fatal("controller injected input")
	}

	if err := clip.WriteClipboard("mine"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "clipboard sync", func() bool { return p.sent("clipboard-mine") })
	if p.sent("clipboard-from host") {
		t.Fatal("host clipboard echoed back")
	}
}

func TestControllerDisconnectIsLocal(t *testing.T) {
	f := startController(t, nil)
	f.connect(t)

	if err := f.ctrl.Disconnect(); err != nil {
		t.Fatal(err)
	}
	ended := f.ended(t)
	if !ended.Local() {
		t.Fatalf("reason %q not reported as local", ended.Reason)
	}
	if f.ctrl.State() != StateEnded {
		t.Fatalf("state = %v", f.ctrl.State())
	}
}
