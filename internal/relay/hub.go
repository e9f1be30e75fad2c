package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/signaling"
)

// Relay error texts sent to clients.
const (
	ErrTextRoomFull   = "room is full"
	ErrTextNoRoom     = "join a room first"
	ErrTextBadRequest = "room id is required"
)

type inbound struct {
	from *Client
	msg  *signaling.Message
}

// Hub owns every room and client. All state is touched only by Run.
type Hub struct {
	logger *slog.Logger

	rooms   map[string]*Room
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan inbound
	done       chan struct{}
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logging.Component(logger, "relay"),
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan inbound),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until ctx is done. Remaining clients are
// disconnected on exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
		h.clients = nil
		h.rooms = nil
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			c.logger.Debug("client registered", "remote", c.conn.RemoteAddr())

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			h.leave(c)
			delete(h.clients, c)
			close(c.send)
			c.logger.Debug("client unregistered")

		case in := <-h.broadcast:
			h.handle(in.from, in.msg)
		}
	}
}

// Register hands a connected client to the hub. It reports false if the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch msg.Type {
	case signaling.MessageTypeJoin:
		h.join(c, msg.RoomID)

	case signaling.MessageTypeLeave:
		h.leave(c)

	case signaling.MessageTypeMessage:
		room, ok := h.rooms[c.roomID]
		if !ok {
			h.sendError(c, ErrTextNoRoom)
			return
		}
		target := room.other(c)
		if target == nil {
			h.logger.Debug("no counterpart, message dropped", "room", room.ID)
			return
		}
		h.deliver(target, &signaling.Message{Type: signaling.MessageTypeMessage, Payload: msg.Payload})

	default:
		h.logger.Warn("unknown message type", "type", msg.Type, "client", c.ID)
	}
}

func (h *Hub) join(c *Client, roomID string) {
	if roomID == "" {
		h.sendError(c, ErrTextBadRequest)
		return
	}
	if c.roomID == roomID {
		return
	}

	room, ok := h.rooms[roomID]
	if ok && room.full() {
		h.logger.Info("join rejected, room full", "room", roomID, "client", c.ID)
		h.sendError(c, ErrTextRoomFull)
		return
	}

	h.leave(c)

	if !ok {
		room = &Room{ID: roomID}
		h.rooms[roomID] = room
		h.logger.Debug("room created", "room", roomID)
	}
	room.Members = append(room.Members, c)
	c.roomID = roomID
	h.logger.Info("client joined room", "room", roomID, "client", c.ID)

	if other := room.other(c); other != nil {
		h.deliver(other, &signaling.Message{Type: signaling.MessageTypePeerJoined, RoomID: roomID})
	}
}

func (h *Hub) leave(c *Client) {
	if c.roomID == "" {
		return
	}
	room, ok := h.rooms[c.roomID]
	c.roomID = ""
	if !ok || !room.has(c) {
		return
	}

	room.remove(c)
	if len(room.Members) == 0 {
		delete(h.rooms, room.ID)
		h.logger.Debug("room deleted", "room", room.ID)
		return
	}
	for _, m := range room.Members {
		h.deliver(m, &signaling.Message{Type: signaling.MessageTypePeerDisconnected, RoomID: room.ID})
	}
}

func (h *Hub) sendError(c *Client, text string) {
	payload, _ := json.Marshal(signaling.ErrorPayload{Error: text})
	h.deliver(c, &signaling.Message{Type: signaling.MessageTypeError, Payload: payload})
}

// deliver never blocks the hub. A client that cannot keep up is dropped.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("client send buffer full, disconnecting", "client", c.ID)
		h.leave(c)
		delete(h.clients, c)
		close(c.send)
	}
}
