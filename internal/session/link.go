package session

import (
	"context"

	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/signaling"
)

// link is one signal channel plus the goroutine pumping its events into a
// loop. Handlers receive the link so they can drop events from a channel
// that has since been replaced.
type link struct {
	ch     SignalChannel
	cancel context.CancelFunc
}

type linkHandlers struct {
	envelope func(lk *link, env signaling.Envelope)
	peerLeft func(lk *link)
	lost     func(lk *link, err error)
}

// openLink subscribes, joins the room and connects in the background.
func openLink(ctx context.Context, l *loop, ch SignalChannel, id room.ID, h linkHandlers) *link {
	ctx, cancel := context.WithCancel(ctx)
	lk := &link{ch: ch, cancel: cancel}

	msgs, left, lost := ch.Messages(), ch.PeerDisconnected(), ch.Disconnected()
	ch.JoinRoom(string(id))
	go lk.pump(ctx, l, msgs, left, lost, h)
	return lk
}

func (lk *link) pump(ctx context.Context, l *loop, msgs <-chan signaling.Envelope, left <-chan struct{}, lost <-chan error, h linkHandlers) {
	if err := lk.ch.Connect(ctx); err != nil {
		if ctx.Err() == nil {
			l.post(func() { h.lost(lk, err) })
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-msgs:
			if !ok {
				return
			}
			l.post(func() { h.envelope(lk, env) })
		case _, ok := <-left:
			if !ok {
				return
			}
			l.post(func() { h.peerLeft(lk) })
		case err, ok := <-lost:
			if !ok {
				return
			}
			l.post(func() { h.lost(lk, err) })
		}
	}
}

func (lk *link) sendControl(c protocol.Control) error {
	return lk.ch.Send(signaling.Text(c.String()))
}

func (lk *link) close() {
	lk.cancel()
	lk.ch.Destroy()
}
