package transfer

import (
	"context"
	"errors"
	"io"
	"time"
)

// Channel is the binary side of the shared data channel.
type Channel interface {
	SendBinary(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(n uint64)
	OnBufferedAmountLow(f func())
	Connected() bool
}

// ChunkSender writes chunks while keeping the channel's send queue between
// the low and high water marks.
type ChunkSender struct {
	channel     Channel
	controller  *ChunkSizeController
	buffer      []byte
	sendTimeout time.Duration
}

func NewChunkSender(ch Channel) *ChunkSender {
	ch.SetBufferedAmountLowThreshold(LowWaterMark)
	return &ChunkSender{
		channel:     ch,
		controller:  NewChunkSizeController(),
		buffer:      make([]byte, MaxChunkSize),
		sendTimeout: SendTimeout,
	}
}

// WaitForWindow blocks while the queue is above the high water mark.
func (s *ChunkSender) WaitForWindow(ctx context.Context) error {
	buffered := s.channel.BufferedAmount()
	if buffered < HighWaterMark {
		return nil
	}

	low := make(chan struct{}, 1)
	s.channel.OnBufferedAmountLow(func() {
		select {
		case low <- struct{}{}:
		default:
		}
	})

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	select {
	case <-low:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if s.channel.BufferedAmount() < buffered {
			return nil
		}
		return WrapError("send", ErrBufferTimeout, "buffer not draining")
	}
}

// WaitForDrain waits until everything queued has left, the channel closes,
// or DrainTimeout passes.
func (s *ChunkSender) WaitForDrain(ctx context.Context) {
	deadline := time.Now().Add(DrainTimeout)
	for s.channel.BufferedAmount() > 0 && time.Now().Before(deadline) {
		if !s.channel.Connected() || ctx.Err() != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// SendFile streams r as chunk messages for fileID. The last chunk is marked
// final; onProgress gets the running byte count.
func (s *ChunkSender) SendFile(ctx context.Context, fileID string, r io.Reader, size int64, onProgress func(sent int64)) error {
	if !s.channel.Connected() {
		return ErrChannelNotOpen
	}

	var offset uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.channel.Connected() {
			return ErrChannelClosed
		}
		if err := s.WaitForWindow(ctx); err != nil {
			return err
		}

		n, readErr := io.ReadFull(r, s.buffer[:s.controller.ChunkSize()])
		if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			return NewError("read", readErr)
		}
		eof := readErr != nil
		final := eof || offset+uint64(n) >= uint64(size)

		if n == 0 && !final {
			continue
		}

		data, err := EncodeMessage(MessageTypeChunk, fileID, ChunkPayload{
			Offset: offset,
			Bytes:  s.buffer[:n],
			Final:  final,
		})
		if err != nil {
			return err
		}
		if err := s.channel.SendBinary(data); err != nil {
			return NewError("send chunk", err)
		}

		offset += uint64(n)
		s.controller.Record(int64(n))
		if onProgress != nil {
			onProgress(int64(offset))
		}

		if final {
			s.WaitForDrain(ctx)
			return nil
		}
	}
}

// Speed reports the measured send rate in bytes per second.
func (s *ChunkSender) Speed() float64 {
	return s.controller.Speed()
}
