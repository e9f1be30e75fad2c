// Package transfer moves files over the session's data channel. A file is
// offered with a text frame, accepted with another, and then streamed as
// msgpack binary messages.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/google/uuid"
)

// Options configures a Manager. Callbacks run on transfer goroutines.
type Options struct {
	DownloadDir string
	Logger      *slog.Logger

	OnProgress func(Progress)
	OnComplete func(Result)
	OnError    func(fileID string, err error)
}

type incoming struct {
	writer  *FileWriter
	started time.Time
}

// Manager tracks the files offered and accepted on one channel.
type Manager struct {
	ch     Channel
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	outgoing map[string]FileInfo
	accepted map[string]bool
	incoming map[string]*incoming
}

func NewManager(ch Channel, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ch:       ch,
		opts:     opts,
		logger:   logging.Component(opts.Logger, "transfer"),
		ctx:      ctx,
		cancel:   cancel,
		outgoing: make(map[string]FileInfo),
		accepted: make(map[string]bool),
		incoming: make(map[string]*incoming),
	}
}

// Offer registers a local file and returns the id to announce.
func (m *Manager) Offer(path string) (string, error) {
	info, err := ValidateFile(path)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrManagerClosed
	}
	id := uuid.NewString()
	m.outgoing[id] = info
	m.logger.Debug("file offered", "id", id, "name", info.Name, "size", info.Size)
	return id, nil
}

// Accept allows the file announced as id to be received.
func (m *Manager) Accept(id string) error {
	if id == "" {
		return WrapError("accept", ErrUnknownFile, "empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	m.accepted[id] = true
	return nil
}

// Start streams the offered file id in the background. Failures are
// reported through OnError.
func (m *Manager) Start(id string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	info, ok := m.outgoing[id]
	if ok {
		delete(m.outgoing, id)
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if !ok {
		return WrapError("start", ErrUnknownFile, id)
	}

	go func() {
		defer m.wg.Done()
		if err := m.send(m.ctx, id, info); err != nil {
			m.logger.Warn("send failed", "id", id, "name", info.Name, "error", err)
			if m.opts.OnError != nil {
				m.opts.OnError(id, err)
			}
		}
	}()
	return nil
}

func (m *Manager) send(ctx context.Context, id string, info FileInfo) error {
	file, err := os.Open(info.Path)
	if err != nil {
		return NewFileError("open", info.Name, err)
	}
	defer file.Close()

	meta, err := EncodeMessage(MessageTypeFileMetadata, id, info.Metadata())
	if err != nil {
		return err
	}
	if err := m.ch.SendBinary(meta); err != nil {
		return NewFileError("send metadata", info.Name, err)
	}

	progress := Progress{FileID: id, Name: info.Name, Direction: Sending, Size: info.Size, Started: time.Now()}
	sender := NewChunkSender(m.ch)
	err = sender.SendFile(ctx, id, file, info.Size, func(sent int64) {
		progress.Transferred = sent
		if m.opts.OnProgress != nil {
			m.opts.OnProgress(progress)
		}
	})
	if err != nil {
		return err
	}

	if m.opts.OnComplete != nil {
		m.opts.OnComplete(Result{
			FileID:    id,
			Name:      info.Name,
			Path:      info.Path,
			Direction: Sending,
			Size:      info.Size,
			Duration:  time.Since(progress.Started),
		})
	}
	return nil
}

// HandleBinary consumes one binary message from the channel.
func (m *Manager) HandleBinary(data []byte) error {
	msg, err := ParseMessage(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}

	switch msg.Type {
	case MessageTypeFileMetadata:
		return m.beginReceive(msg)
	case MessageTypeChunk:
		return m.receiveChunk(msg)
	default:
		return WrapError("handle message", ErrBadMessage, "unknown type "+msg.Type)
	}
}

func (m *Manager) beginReceive(msg *Message) error {
	if !m.accepted[msg.FileID] {
		return WrapError("receive", ErrNotAccepted, msg.FileID)
	}
	delete(m.accepted, msg.FileID)

	var meta FileMetadata
	if err := msg.DecodePayload(&meta); err != nil {
		return WrapError("receive", ErrBadMessage, err.Error())
	}

	writer, err := NewFileWriter(m.opts.DownloadDir, meta)
	if err != nil {
		return err
	}
	m.incoming[msg.FileID] = &incoming{writer: writer, started: time.Now()}
	m.logger.Debug("receiving file", "id", msg.FileID, "name", meta.Name, "path", writer.Path)
	return nil
}

func (m *Manager) receiveChunk(msg *Message) error {
	in, ok := m.incoming[msg.FileID]
	if !ok {
		return WrapError("receive chunk", ErrUnknownFile, msg.FileID)
	}

	var chunk ChunkPayload
	if err := msg.DecodePayload(&chunk); err != nil {
		return WrapError("receive chunk", ErrBadMessage, err.Error())
	}

	w := in.writer
	if _, err := w.WriteAt(chunk.Bytes, chunk.Offset); err != nil {
		w.Close()
		delete(m.incoming, msg.FileID)
		return err
	}

	if m.opts.OnProgress != nil {
		m.opts.OnProgress(Progress{
			FileID:      msg.FileID,
			Name:        w.Metadata.Name,
			Direction:   Receiving,
			Size:        int64(w.Metadata.Size),
			Transferred: int64(w.Received),
			Started:     in.started,
		})
	}

	if !chunk.Final && !w.IsComplete() {
		return nil
	}

	delete(m.incoming, msg.FileID)
	if err := w.Close(); err != nil {
		return NewFileError("close", w.Metadata.Name, err)
	}
	if m.opts.OnComplete != nil {
		m.opts.OnComplete(Result{
			FileID:    msg.FileID,
			Name:      w.Metadata.Name,
			Path:      w.Path,
			Direction: Receiving,
			Size:      int64(w.Received),
			Duration:  time.Since(in.started),
		})
	}
	return nil
}

// Active reports how many files are being received.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incoming)
}

// Close stops sends in flight, closes partial downloads and rejects further
// use. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pending := m.incoming
	m.incoming = nil
	m.outgoing = nil
	m.accepted = nil
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	var firstErr error
	for id, in := range pending {
		m.logger.Debug("closing partial download", "id", id, "path", in.writer.Path)
		if err := in.writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", in.writer.Path, err)
		}
	}
	return firstErr
}
