package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/signaling"
	"github.com/gorilla/websocket"
)

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logging.Discard())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, logging.Discard()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg signaling.Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// joinFirst joins conn and gives the hub time to process it, so a second
// member's join is observed after it.
func joinFirst(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	send(t, conn, signaling.Message{Type: signaling.MessageTypeJoin, RoomID: room})
	time.Sleep(100 * time.Millisecond)
}

func expect(t *testing.T, conn *websocket.Conn, wantType string) signaling.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg signaling.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read (want %s): %v", wantType, err)
	}
	if msg.Type != wantType {
		t.Fatalf("type = %q, want %q", msg.Type, wantType)
	}
	return msg
}

func TestHealth(t *testing.T) {
	srv := startRelay(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "healthy") {
		t.Fatalf("body = %q", body)
	}
}

func TestRelayBetweenTwoMembers(t *testing.T) {
	srv := startRelay(t)
	host := dial(t, srv)
	ctrl := dial(t, srv)

	joinFirst(t, host, "123456789")
	send(t, ctrl, signaling.Message{Type: signaling.MessageTypeJoin, RoomID: "123456789"})
	joined := expect(t, host, signaling.MessageTypePeerJoined)
	if joined.RoomID != "123456789" {
		t.Fatalf("peer_joined room = %q", joined.RoomID)
	}

	send(t, ctrl, signaling.Message{Type: signaling.MessageTypeMessage, Payload: json.RawMessage(`"hi"`)})
	got := expect(t, host, signaling.MessageTypeMessage)
	if string(got.Payload) != `"hi"` {
		t.Fatalf("payload = %s, want \"hi\"", got.Payload)
	}

	signal := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	send(t, host, signaling.Message{Type: signaling.MessageTypeMessage, Payload: signal})
	got = expect(t, ctrl, signaling.MessageTypeMessage)
	if string(got.Payload) != string(signal) {
		t.Fatalf("payload = %s, want %s", got.Payload, signal)
	}
}

func TestThirdMemberRejected(t *testing.T) {
	srv := startRelay(t)
	a, b, c := dial(t, srv), dial(t, srv), dial(t, srv)

	joinFirst(t, a, "111222333")
	send(t, b, signaling.Message{Type: signaling.MessageTypeJoin, RoomID: "111222333"})
	expect(t, a, signaling.MessageTypePeerJoined)

	send(t, c, signaling.Message{Type: signaling.MessageTypeJoin, RoomID: "111222333"})
	msg := expect(t, c, signaling.MessageTypeError)

	var payload signaling.ErrorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if payload.Error != ErrTextRoomFull {
		t.Fatalf("error = %q, want %q", payload.Error, ErrTextRoomFull)
	}
}

func TestLeaveAndDisconnectNotifyCounterpart(t *testing.T) {
	srv := startRelay(t)
	a, b := dial(t, srv), dial(t, srv)

	joinFirst(t, a, "555666777")
	send(t, b, signaling.Message{Type: signaling.MessageTypeJoin, RoomID: "555666777"})
	expect(t, a, signaling.MessageTypePeerJoined)

	send(t, b, signaling.Message{Type: signaling.MessageTypeLeave, RoomID: "555666777"})
	expect(t, a, signaling.MessageTypePeerDisconnected)

	send(t, b, signaling.Message{Type: signaling.MessageTypeJoin, RoomID: "555666777"})
	expect(t, a, signaling.MessageTypePeerJoined)

	b.Close()
	expect(t, a, signaling.MessageTypePeerDisconnected)
}

func TestMessageWithoutRoom(t *testing.T) {
	srv := startRelay(t)
	a := dial(t, srv)

	send(t, a, signaling.Message{Type: signaling.MessageTypeMessage, Payload: json.RawMessage(`"hi"`)})
	msg := expect(t, a, signaling.MessageTypeError)

	var payload signaling.ErrorPayload
	json.Unmarshal(msg.Payload, &payload)
	if payload.Error != ErrTextNoRoom {
		t.Fatalf("error = %q, want %q", payload.Error, ErrTextNoRoom)
	}
}

func TestServerShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer("127.0.0.1:0", logging.Discard())

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ListenAndServe = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
