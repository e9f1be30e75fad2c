package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/deskwarp/internal/bridge"
	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/peer"
	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/relay"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/signaling"
)

type acceptAll struct{}

func (acceptAll) ConfirmConnection(context.Context, room.ID) (bool, error) { return true, nil }

func loopbackPeers(role peer.Role, h peer.Handlers) (PeerSession, error) {
	return peer.New(peer.Config{Role: role, IncludeLoopback: true, Logger: logging.Discard()}, h)
}

// TestEndToEnd runs a host and a controller against an in-process relay with
// real peer connections and checks that a pointer move lands on the host.
func TestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := relay.NewHub(logging.Discard())
	go hub.Run(ctx)
	srv := httptest.NewServer(relay.NewHandler(hub, logging.Discard()))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	desk := bridge.NewHeadless(bridge.HeadlessOptions{Width: 1920, Height: 1080, Logger: logging.Discard()})
	host, err := NewHost(HostOptions{
		Room: testRoom,
		Channel: func() SignalChannel {
			return signaling.NewClient(wsURL, logging.Discard())
		},
		Peer:           loopbackPeers,
		Bridge:         desk,
		Prompter:       acceptAll{},
		DownloadDir:    t.TempDir(),
		ReconnectDelay: 50 * time.Millisecond,
		GOOS:           "linux",
		Logger:         logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	hostDone := make(chan error, 1)
	go func() { hostDone <- host.Run(ctx) }()
	defer func() {
		cancel()
		<-hostDone
	}()

	// The host has to be in the room before the controller says hi.
	time.Sleep(200 * time.Millisecond)

	shell := &fakeShell{}
	ctrl, err := NewController(ControllerOptions{
		Room:        testRoom,
		Channel:     signaling.NewClient(wsURL, logging.Discard()),
		Peer:        loopbackPeers,
		Prompter:    newControllerPrompter(),
		Shell:       shell,
		DownloadDir: t.TempDir(),
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	ctrlCtx, stopCtrl := context.WithCancel(ctx)
	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(ctrlCtx) }()

	deadline := time.Now().Add(15 * time.Second)
	for ctrl.State() != StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("controller never connected, state %v", ctrl.State())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := ctrl.HostScreen(); got != (protocol.ScreenSize{Width: 1920, Height: 1080}) {
		t.Fatalf("host screen = %+v", got)
	}
	eventually(t, "host connected", func() bool {
		s, _ := host.Snapshot()
		return s == StateConnected
	})

	if err := ctrl.SetSurfaceSize(960, 540); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Mouse(protocol.MouseMove, 480, 270, 0); err != nil {
		t.Fatalf("Mouse: %v", err)
	}
	eventually(t, "cursor moved", func() bool {
		st := desk.Stats()
		return st.CursorX == 960 && st.CursorY == 540
	})

	if err := ctrl.Paste("hello"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "host clipboard", func() bool {
		text, _ := desk.ReadClipboard()
		return text == "hello"
	})

	stopCtrl()
	var ended *EndedError
	if err := <-ctrlDone; !errors.As(err, &ended) {
		t.Fatalf("controller Run = %v", err)
	}

	// The host notices the controller is gone and waits in the same room.
	eventually(t, "host back to idle", func() bool {
		s, id := host.Snapshot()
		return s == StateIdle && id == testRoom
	})
}
