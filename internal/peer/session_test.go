package peer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/protocol"
)

type endpoint struct {
	s         *Session
	signals   chan json.RawMessage
	connected chan struct{}
	closed    chan error
	frames    chan protocol.Frame
	binary    chan []byte
}

func newEndpoint(t *testing.T, role Role) *endpoint {
	t.Helper()
	e := &endpoint{
		signals:   make(chan json.RawMessage, 64),
		connected: make(chan struct{}, 1),
		closed:    make(chan error, 1),
		frames:    make(chan protocol.Frame, 16),
		binary:    make(chan []byte, 16),
	}
	s, err := New(Config{Role: role, IncludeLoopback: true, Logger: logging.Discard()}, Handlers{
		OnSignal:    func(raw json.RawMessage) { e.signals <- raw },
		OnConnected: func() { e.connected <- struct{}{} },
		OnClosed:    func(err error) { e.closed <- err },
		OnFrame:     func(f protocol.Frame) { e.frames <- f },
		OnBinary:    func(b []byte) { e.binary <- b },
	})
	if err != nil {
		t.Fatalf("New(%s): %v", role, err)
	}
	e.s = s
	t.Cleanup(func() { s.Close() })
	return e
}

// pipe forwards every signal from one endpoint to the other in order.
func pipe(t *testing.T, from, to *endpoint) {
	go func() {
		for raw := range from.signals {
			if err := to.s.HandleSignal(raw); err != nil && !errors.Is(err, ErrClosed) {
				t.Errorf("HandleSignal: %v", err)
			}
		}
	}()
}

func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(20 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func connectPair(t *testing.T) (*endpoint, *endpoint) {
	t.Helper()
	offerer := newEndpoint(t, RoleOfferer)
	answerer := newEndpoint(t, RoleAnswerer)
	pipe(t, offerer, answerer)
	pipe(t, answerer, offerer)

	if err := answerer.s.Start(); err != nil {
		t.Fatalf("answerer Start: %v", err)
	}
	if err := offerer.s.Start(); err != nil {
		t.Fatalf("offerer Start: %v", err)
	}

	wait(t, offerer.connected, "offerer connected")
	wait(t, answerer.connected, "answerer connected")
	return offerer, answerer
}

func TestSessionsExchangeFrames(t *testing.T) {
	offerer, answerer := connectPair(t)

	if err := answerer.s.Send(protocol.Mouse{Action: protocol.MouseMove, X: 960, Y: 540}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := wait(t, offerer.frames, "mouse frame")
	if got.Encode() != "mm,960,540" {
		t.Fatalf("frame = %q, want mm,960,540", got.Encode())
	}

	if err := offerer.s.Send(protocol.Clipboard{Text: "a,b-c"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	clip, ok := wait(t, answerer.frames, "clipboard frame").(protocol.Clipboard)
	if !ok || clip.Text != "a,b-c" {
		t.Fatalf("clipboard = %+v", clip)
	}

	if err := offerer.s.SendBinary([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendBinary: %v", err)
	}
	if b := wait(t, answerer.binary, "binary"); len(b) != 3 || b[2] != 3 {
		t.Fatalf("binary = %v", b)
	}
}

func TestMalformedTextFrameDropped(t *testing.T) {
	offerer, answerer := connectPair(t)

	dc, err := answerer.s.channel()
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	dc.SendText("zz,1")
	answerer.s.Send(protocol.Scroll{Direction: protocol.ScrollDown})

	got := wait(t, offerer.frames, "scroll frame")
	if got.Kind() != protocol.KindScroll {
		t.Fatalf("first delivered frame = %v, want scroll", got.Kind())
	}
}

func TestSendBeforeOpen(t *testing.T) {
	e := newEndpoint(t, RoleOfferer)
	if err := e.s.Send(protocol.Scroll{Direction: protocol.ScrollUp}); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("Send = %v, want ErrChannelNotOpen", err)
	}
}

func TestAddTracksRenegotiates(t *testing.T) {
	offerer, answerer := connectPair(t)

	video, err := media.NewLocalTrack(media.KindVideo, media.SourceCamera, "camera", nil)
	if err != nil {
		t.Fatalf("NewLocalTrack: %v", err)
	}
	if err := offerer.s.AddTracks(video); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		offerer.s.mu.Lock()
		negotiating := offerer.s.negotiating
		offerer.s.mu.Unlock()
		if !negotiating {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := len(answerer.s.pc.GetTransceivers()); got == 0 {
		t.Fatal("answerer has no transceivers after renegotiation")
	}
	if !offerer.s.Connected() || !answerer.s.Connected() {
		t.Fatal("renegotiation dropped the data channel")
	}
}

func TestCloseIsIdempotentAndRemoteSeesEnd(t *testing.T) {
	offerer, answerer := connectPair(t)

	if err := offerer.s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := offerer.s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case err := <-offerer.closed:
		t.Fatalf("local Close reported OnClosed(%v)", err)
	default:
	}

	select {
	case <-answerer.closed:
	case <-time.After(40 * time.Second):
		t.Fatal("answerer never reported the end of the session")
	}
	if err := answerer.s.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after end = %v, want ErrClosed", err)
	}
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{`{"type":"offer","sdp":"v=0"}`, false},
		{`{"type":"answer","sdp":"v=0"}`, false},
		{`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 5000 typ host"}}`, false},
		{`{"type":"offer"}`, true},
		{`{"type":"candidate"}`, true},
		{`{"type":"bye"}`, true},
		{`not json`, true},
	}
	for _, tt := range tests {
		_, err := ParseSignal(json.RawMessage(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSignal(%s) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
