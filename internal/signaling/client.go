package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/deskwarp/internal/dns"
	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	messageBuffer = 64
)

// ErrClosedByRelay is reported on Disconnected when the relay hangs up
// cleanly.
var ErrClosedByRelay = errors.New("relay closed the connection")

// ErrDestroyed is returned by Connect once Destroy has been called.
var ErrDestroyed = errors.New("signaling client destroyed")

// connection is one live websocket. It is replaced on every Connect.
type connection struct {
	ws     *websocket.Conn
	joined string
	stop   chan string
	exited chan struct{}
}

// Client is a relay connection scoped to at most one room. It never
// reconnects on its own: after a transport failure it reports once on
// Disconnected and waits for its owner to call Connect again or Destroy it.
type Client struct {
	serverURL string
	logger    *slog.Logger
	dialer    *websocket.Dialer

	mu        sync.Mutex
	conn      *connection
	destroyed bool
	room      string
	pending   []*Message
	wake      chan struct{}
	done      chan struct{}

	messages     listener[Envelope]
	peerLeft     listener[struct{}]
	disconnected listener[error]
}

// NewClient creates a client for the relay at serverURL.
func NewClient(serverURL string, logger *slog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		logger:    logging.Component(logger, "signaling"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: writeWait,
			NetDialContext:   dns.DialContext,
		},
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Connect dials the relay. It is a no-op while connected. Once the socket
// is up the desired room is joined before anything queued is flushed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	connected, destroyed := c.conn != nil, c.destroyed
	c.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	if connected {
		return nil
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	ws, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	conn := &connection{
		ws:     ws,
		stop:   make(chan string, 1),
		exited: make(chan struct{}),
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		ws.Close()
		return ErrDestroyed
	}
	if c.conn != nil {
		c.mu.Unlock()
		ws.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump(conn)
	go c.writePump(conn)
	c.notify()

	c.logger.Debug("connected to relay", "url", c.serverURL)
	return nil
}

// Connected reports whether a transport is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// JoinRoom makes roomID the desired room. It is sent now if connected and
// again after every reconnect.
func (c *Client) JoinRoom(roomID string) {
	c.mu.Lock()
	if c.room == roomID {
		c.mu.Unlock()
		return
	}
	c.room = roomID
	c.mu.Unlock()
	c.notify()
}

// Room returns the desired room.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Send queues env for the room. Messages sent before Connect are held and
// flushed in order once connected.
func (c *Client) Send(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.Lock()
	c.pending = append(c.pending, &Message{Type: MessageTypeMessage, Payload: payload})
	c.mu.Unlock()
	c.notify()
	return nil
}

// Pending returns the number of queued messages.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Messages subscribes to room messages, replacing any earlier subscription.
func (c *Client) Messages() <-chan Envelope {
	return c.messages.subscribe(messageBuffer)
}

// PeerDisconnected subscribes to the relay's notice that the counterpart
// left, replacing any earlier subscription.
func (c *Client) PeerDisconnected() <-chan struct{} {
	return c.peerLeft.subscribe(1)
}

// Disconnected subscribes to transport loss, replacing any earlier
// subscription.
func (c *Client) Disconnected() <-chan error {
	return c.disconnected.subscribe(1)
}

// Destroy leaves the room if connected, closes every subscription and the
// transport, and forgets the room and queue. It can be called any number of
// times. A dial still in flight is closed when it completes.
func (c *Client) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	conn := c.conn
	if conn != nil {
		select {
		case conn.stop <- conn.joined:
		default:
		}
	}
	c.conn = nil
	c.room = ""
	c.pending = nil
	done := c.done
	c.done = make(chan struct{})
	c.mu.Unlock()

	close(done)

	if conn != nil {
		select {
		case <-conn.exited:
		case <-time.After(writeWait):
		}
		conn.ws.Close()
	}

	c.messages.close()
	c.peerLeft.close()
	c.disconnected.close()
}

func (c *Client) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// doneFor returns the lifetime channel if conn is still the live transport.
func (c *Client) doneFor(conn *connection) (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done, c.conn == conn
}

// fail drops conn after a transport error and reports it once.
func (c *Client) fail(conn *connection, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	conn.ws.Close()
	c.logger.Warn("relay connection lost", "error", err)
	c.disconnected.offer(err)
}

func (c *Client) readPump(conn *connection) {
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrClosedByRelay
			}
			c.fail(conn, err)
			return
		}
		done, ok := c.doneFor(conn)
		if !ok {
			return
		}
		c.dispatch(&msg, done)
	}
}

func (c *Client) dispatch(msg *Message, done <-chan struct{}) {
	switch msg.Type {
	case MessageTypeMessage:
		var env Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			c.logger.Warn("dropping malformed room message", "error", err)
			return
		}
		if !c.messages.deliver(env, done) {
			c.logger.Debug("room message dropped, no listener")
		}

	case MessageTypePeerDisconnected:
		c.peerLeft.offer(struct{}{})

	case MessageTypePeerJoined:
		c.logger.Debug("peer joined room")

	case MessageTypeError:
		var payload ErrorPayload
		_ = json.Unmarshal(msg.Payload, &payload)
		c.logger.Warn("relay error", "error", payload.Error)

	default:
		c.logger.Debug("unknown relay message", "type", msg.Type)
	}
}

// nextBatch takes everything that should go out on conn: a join when the
// desired room changed, then the queued messages. It reports false once conn
// is no longer the live transport.
func (c *Client) nextBatch(conn *connection) ([]*Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return nil, false
	}

	var batch []*Message
	if c.room != "" && conn.joined != c.room {
		batch = append(batch, &Message{Type: MessageTypeJoin, RoomID: c.room})
		conn.joined = c.room
	}
	batch = append(batch, c.pending...)
	c.pending = nil
	return batch, true
}

func (c *Client) requeue(msgs []*Message) {
	var keep []*Message
	for _, m := range msgs {
		if m.Type == MessageTypeMessage {
			keep = append(keep, m)
		}
	}
	c.mu.Lock()
	c.pending = append(keep, c.pending...)
	c.mu.Unlock()
}

func (c *Client) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(conn.exited)
	}()

	for {
		batch, alive := c.nextBatch(conn)
		if !alive {
			select {
			case room := <-conn.stop:
				c.closeGracefully(conn, room)
			default:
			}
			return
		}
		for i, msg := range batch {
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteJSON(msg); err != nil {
				c.requeue(batch[i:])
				c.fail(conn, err)
				return
			}
		}

		select {
		case <-c.wake:

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(conn, err)
				return
			}

		case room := <-conn.stop:
			c.closeGracefully(conn, room)
			return
		}
	}
}

func (c *Client) closeGracefully(conn *connection, room string) {
	conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if room != "" {
		conn.ws.WriteJSON(&Message{Type: MessageTypeLeave, RoomID: room})
	}
	conn.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
