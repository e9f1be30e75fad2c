// Package peer wraps one WebRTC peer connection carrying media tracks and a
// single ordered data channel.
package peer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/protocol"
	pion "github.com/pion/webrtc/v4"
)

// ChannelLabel names the one data channel every session uses.
const ChannelLabel = "deskwarp"

// Role fixes which side creates the offer.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func (r Role) String() string {
	if r == RoleOfferer {
		return "offerer"
	}
	return "answerer"
}

// Config describes one session.
type Config struct {
	Role       Role
	ICEServers []pion.ICEServer
	Policy     pion.ICETransportPolicy

	// IncludeLoopback gathers 127.0.0.1 over UDP4 only. Tests use it to
	// connect two sessions inside one process.
	IncludeLoopback bool

	Logger *slog.Logger
	Sink   media.Sink
}

// Handlers receive session events. They are called from pion goroutines and
// must not block for long. Any of them may be nil.
type Handlers struct {
	OnSignal      func(raw json.RawMessage)
	OnConnected   func()
	OnClosed      func(err error)
	OnFrame       func(frame protocol.Frame)
	OnBinary      func(data []byte)
	OnRemoteMedia func(composite media.Composite[media.RemoteTrack])
}

// Session is one peer connection. The session never retries: once it has
// reported OnClosed it is finished.
type Session struct {
	cfg    Config
	h      Handlers
	logger *slog.Logger
	pc     *pion.PeerConnection

	mu          sync.Mutex
	dc          *pion.DataChannel
	started     bool
	negotiating bool
	renegotiate bool
	candidates  []pion.ICECandidateInit

	classifier media.Classifier[media.RemoteTrack]

	connectedOnce sync.Once
	closedOnce    sync.Once
	ended         atomic.Bool
	closeCalled   atomic.Bool
}

// New creates a session. Nothing is negotiated until Start.
func New(cfg Config, h Handlers) (*Session, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := pion.SettingEngine{}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]pion.NetworkType{pion.NetworkTypeUDP4})
	}

	api := pion.NewAPI(pion.WithMediaEngine(m), pion.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:         cfg.ICEServers,
		ICETransportPolicy: cfg.Policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &Session{
		cfg:    cfg,
		h:      h,
		logger: logging.Component(cfg.Logger, "peer").With("role", cfg.Role.String()),
		pc:     pc,
	}
	s.setupHandlers()
	return s, nil
}

func (s *Session) setupHandlers() {
	s.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		s.emit(&SignalPayload{Type: SignalCandidate, Candidate: &init})
	})

	s.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.logger.Debug("connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed:
			s.finish(ErrConnectionFailed)
		case pion.PeerConnectionStateClosed:
			s.finish(nil)
		}
	})

	s.pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ChannelLabel {
			s.logger.Warn("ignoring unexpected data channel", "label", dc.Label())
			return
		}
		s.attachChannel(dc)
	})

	s.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		remote, slot := s.classifier.Place(media.KindOf(track.Kind()), func(slot media.Slot) media.RemoteTrack {
			return media.RemoteTrack{Slot: slot, Track: track}
		})
		if slot == media.SlotNone {
			s.logger.Debug("ignoring extra remote track", "kind", track.Kind().String(), "id", track.ID())
			return
		}
		s.logger.Debug("remote track", "slot", slot.String(), "id", track.ID())

		composite := s.classifier.Snapshot().Composite()
		if s.cfg.Sink != nil {
			go s.cfg.Sink.Consume(remote)
			s.cfg.Sink.Show(composite)
		}
		if s.h.OnRemoteMedia != nil {
			s.h.OnRemoteMedia(composite)
		}
	})
}

func (s *Session) attachChannel(dc *pion.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.connectedOnce.Do(func() {
			s.logger.Debug("data channel open")
			if s.h.OnConnected != nil {
				s.h.OnConnected()
			}
		})
	})

	dc.OnClose(func() {
		s.finish(ErrChannelClosed)
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if !msg.IsString {
			if s.h.OnBinary != nil {
				s.h.OnBinary(msg.Data)
			}
			return
		}

		frame, err := protocol.DecodeFrame(string(msg.Data))
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			return
		}
		if s.h.OnFrame != nil {
			s.h.OnFrame(frame)
		}
	})
}

// Start begins negotiation. The offerer opens the data channel and sends
// an offer; the answerer waits for one.
func (s *Session) Start() error {
	if s.done() {
		return ErrClosed
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.cfg.Role != RoleOfferer {
		return nil
	}

	ordered := true
	dc, err := s.pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	s.attachChannel(dc)
	return s.negotiate()
}

// negotiate sends a fresh offer, or marks one as due if an offer is already
// waiting for its answer.
func (s *Session) negotiate() error {
	s.mu.Lock()
	if s.negotiating {
		s.renegotiate = true
		s.mu.Unlock()
		return nil
	}
	s.negotiating = true
	s.renegotiate = false
	s.mu.Unlock()

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	s.emit(&SignalPayload{Type: SignalOffer, SDP: offer.SDP})
	return nil
}

// HandleSignal applies a signaling object from the remote side. Candidates
// that arrive before the remote description are held until it is set.
func (s *Session) HandleSignal(raw json.RawMessage) error {
	if s.done() {
		return ErrClosed
	}

	p, err := ParseSignal(raw)
	if err != nil {
		return err
	}

	switch p.Type {
	case SignalOffer:
		if s.cfg.Role != RoleAnswerer {
			return fmt.Errorf("%w: offer sent to offerer", ErrUnexpectedSignal)
		}
		if err := s.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: p.SDP}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		s.flushCandidates()

		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		s.emit(&SignalPayload{Type: SignalAnswer, SDP: answer.SDP})

	case SignalAnswer:
		if s.cfg.Role != RoleOfferer {
			return fmt.Errorf("%w: answer sent to answerer", ErrUnexpectedSignal)
		}
		if err := s.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: p.SDP}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		s.flushCandidates()

		s.mu.Lock()
		s.negotiating = false
		again := s.renegotiate
		s.mu.Unlock()
		if again {
			return s.negotiate()
		}

	case SignalCandidate:
		s.mu.Lock()
		if s.pc.RemoteDescription() == nil {
			s.candidates = append(s.candidates, *p.Candidate)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		if err := s.pc.AddICECandidate(*p.Candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	return nil
}

func (s *Session) flushCandidates() {
	s.mu.Lock()
	pending := s.candidates
	s.candidates = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.logger.Warn("failed to add buffered candidate", "error", err)
		}
	}
}

// AddTracks attaches local tracks in order. An offerer that has already
// started renegotiates; otherwise the tracks ride on the first offer or
// answer.
func (s *Session) AddTracks(tracks ...*media.LocalTrack) error {
	if s.done() {
		return ErrClosed
	}
	for _, t := range tracks {
		sender, err := s.pc.AddTrack(t.Local())
		if err != nil {
			return fmt.Errorf("add %s %s track: %w", t.Source, t.Kind, err)
		}
		go drainRTCP(sender)
	}

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started && s.cfg.Role == RoleOfferer && len(tracks) > 0 {
		return s.negotiate()
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep working.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (s *Session) channel() (*pion.DataChannel, error) {
	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()
	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return nil, ErrChannelNotOpen
	}
	return dc, nil
}

// Send writes one text frame.
func (s *Session) Send(frame protocol.Frame) error {
	dc, err := s.channel()
	if err != nil {
		return err
	}
	return dc.SendText(frame.Encode())
}

// SendBinary writes one binary message.
func (s *Session) SendBinary(data []byte) error {
	dc, err := s.channel()
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// BufferedAmount is the number of bytes queued on the data channel.
func (s *Session) BufferedAmount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc == nil {
		return 0
	}
	return s.dc.BufferedAmount()
}

// SetBufferedAmountLowThreshold sets the level below which OnBufferedAmountLow
// fires.
func (s *Session) SetBufferedAmountLowThreshold(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc != nil {
		s.dc.SetBufferedAmountLowThreshold(n)
	}
}

// OnBufferedAmountLow registers f to run when the queue drains below the
// threshold.
func (s *Session) OnBufferedAmountLow(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dc != nil {
		s.dc.OnBufferedAmountLow(f)
	}
}

// Connected reports whether the data channel is open.
func (s *Session) Connected() bool {
	_, err := s.channel()
	return err == nil
}

// Close tears the connection down. It does not invoke OnClosed and is safe
// to call more than once.
func (s *Session) Close() error {
	if !s.closeCalled.CompareAndSwap(false, true) {
		return nil
	}
	s.closedOnce.Do(func() { s.ended.Store(true) })
	return s.pc.Close()
}

func (s *Session) done() bool {
	return s.ended.Load() || s.closeCalled.Load()
}

// finish reports the end of the session exactly once.
func (s *Session) finish(err error) {
	s.closedOnce.Do(func() {
		s.ended.Store(true)
		if err != nil {
			s.logger.Info("peer session ended", "error", err)
		}
		if s.h.OnClosed != nil {
			s.h.OnClosed(err)
		}
	})
}

func (s *Session) emit(p *SignalPayload) {
	if s.done() || s.h.OnSignal == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("failed to encode signal", "error", err)
		return
	}
	s.h.OnSignal(raw)
}
