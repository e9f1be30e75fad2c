package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/peer"
	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/signaling"
)

const testRoom room.ID = "123456789"

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// settle gives goroutines a moment to act on events that should be ignored.
func settle() { time.Sleep(100 * time.Millisecond) }

type fakeChannel struct {
	mu         sync.Mutex
	room       string
	sent       []signaling.Envelope
	connected  bool
	destroyed  bool
	connectErr error

	msgs chan signaling.Envelope
	left chan struct{}
	lost chan error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		msgs: make(chan signaling.Envelope, 64),
		left: make(chan struct{}, 1),
		lost: make(chan error, 1),
	}
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeChannel) JoinRoom(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.room = id
}

func (f *fakeChannel) Send(env signaling.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeChannel) Messages() <-chan signaling.Envelope { return f.msgs }
func (f *fakeChannel) PeerDisconnected() <-chan struct{}   { return f.left }
func (f *fakeChannel) Disconnected() <-chan error          { return f.lost }

func (f *fakeChannel) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	close(f.msgs)
	close(f.left)
	close(f.lost)
}

// deliver hands a control string to the session as if the relay sent it.
func (f *fakeChannel) deliver(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.destroyed {
		f.msgs <- signaling.Text(text)
	}
}

func (f *fakeChannel) deliverSignal(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.destroyed {
		f.msgs <- signaling.Signal(json.RawMessage(raw))
	}
}

func (f *fakeChannel) peerLeft() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.destroyed {
		f.left <- struct{}{}
	}
}

// count returns how many sent control strings start with prefix.
func (f *fakeChannel) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.sent {
		if env.IsControl() && strings.HasPrefix(env.Text, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeChannel) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, env := range f.sent {
		if env.IsControl() {
			out = append(out, env.Text)
		}
	}
	return out
}

func (f *fakeChannel) isDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *fakeChannel) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.room
}

// channels is a ChannelFactory that remembers everything it built.
type channels struct {
	mu   sync.Mutex
	list []*fakeChannel
}

func (c *channels) factory() SignalChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := newFakeChannel()
	c.list = append(c.list, ch)
	return ch
}

func (c *channels) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

func (c *channels) current() *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list[len(c.list)-1]
}

type fakePeer struct {
	role peer.Role
	h    peer.Handlers

	mu        sync.Mutex
	started   bool
	closed    bool
	connected bool
	signals   []json.RawMessage
	tracks    []*media.LocalTrack
	frames    []protocol.Frame
}

func (p *fakePeer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *fakePeer) HandleSignal(raw json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, raw)
	return nil
}

func (p *fakePeer) AddTracks(tracks ...*media.LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, tracks...)
	return nil
}

func (p *fakePeer) Send(frame protocol.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return peer.ErrChannelNotOpen
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) SendBinary([]byte) error              { return nil }
func (p *fakePeer) BufferedAmount() uint64               { return 0 }
func (p *fakePeer) SetBufferedAmountLowThreshold(uint64) {}
func (p *fakePeer) OnBufferedAmountLow(func())           {}

func (p *fakePeer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.connected = false
	return nil
}

// open simulates the data channel opening.
func (p *fakePeer) open() {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	p.h.OnConnected()
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) trackList() []*media.LocalTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*media.LocalTrack(nil), p.tracks...)
}

func (p *fakePeer) sentFrames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.frames))
	for i, f := range p.frames {
		out[i] = f.Encode()
	}
	return out
}

func (p *fakePeer) sent(encoded string) bool {
	for _, f := range p.sentFrames() {
		if f == encoded {
			return true
		}
	}
	return false
}

type peers struct {
	mu   sync.Mutex
	list []*fakePeer
}

func (ps *peers) factory(role peer.Role, h peer.Handlers) (PeerSession, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p := &fakePeer{role: role, h: h}
	ps.list = append(ps.list, p)
	return p, nil
}

func (ps *peers) len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.list)
}

func (ps *peers) get(i int) *fakePeer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.list[i]
}

type hostPrompter struct {
	mu      sync.Mutex
	asked   int
	answers chan bool
}

func newHostPrompter() *hostPrompter {
	return &hostPrompter{answers: make(chan bool, 4)}
}

func (p *hostPrompter) ConfirmConnection(ctx context.Context, _ room.ID) (bool, error) {
	p.mu.Lock()
	p.asked++
	p.mu.Unlock()
	select {
	case ok := <-p.answers:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *hostPrompter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asked
}

type passwordAnswer struct {
	cred Credential
	ok   bool
}

type controllerPrompter struct {
	mu      sync.Mutex
	saved   []string
	answers chan passwordAnswer
}

func newControllerPrompter() *controllerPrompter {
	return &controllerPrompter{answers: make(chan passwordAnswer, 4)}
}

func (p *controllerPrompter) AskPassword(ctx context.Context, _ room.ID, saved string) (Credential, bool, error) {
	p.mu.Lock()
	p.saved = append(p.saved, saved)
	p.mu.Unlock()
	select {
	case a := <-p.answers:
		return a.cred, a.ok, nil
	case <-ctx.Done():
		return Credential{}, false, ctx.Err()
	}
}

func (p *controllerPrompter) prefills() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.saved...)
}

type fakeShell struct {
	mu      sync.Mutex
	calls   []string
	notices []Notice
}

func (s *fakeShell) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeShell) BringToFront()            { s.record("front") }
func (s *fakeShell) Minimize()                { s.record("minimize") }
func (s *fakeShell) Restore()                 { s.record("restore") }
func (s *fakeShell) ShowStatusWindow(room.ID) { s.record("status") }
func (s *fakeShell) CloseStatusWindow()       { s.record("close-status") }
func (s *fakeShell) RemoveOverlays()          { s.record("remove-overlays") }

func (s *fakeShell) Notify(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *fakeShell) called(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (s *fakeShell) noticed(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notices {
		if n.Text == text {
			return true
		}
	}
	return false
}

type staticPassword string

func (p staticPassword) VerifyPassword(pw string) bool { return pw != "" && pw == string(p) }

type fakeCredentials struct {
	mu        sync.Mutex
	passwords map[room.ID]string
	added     []room.ID
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{passwords: make(map[room.ID]string)}
}

func (c *fakeCredentials) GetPassword(id room.ID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pw, ok := c.passwords[id]
	return pw, ok, nil
}

func (c *fakeCredentials) SavePassword(id room.ID, pw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passwords[id] = pw
	return nil
}

func (c *fakeCredentials) Add(id room.ID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, id)
	return true, nil
}

func (c *fakeCredentials) addedIDs() []room.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]room.ID(nil), c.added...)
}
