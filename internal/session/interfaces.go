package session

import (
	"context"
	"encoding/json"

	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/peer"
	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/signaling"
	"github.com/BioHazard786/deskwarp/internal/transfer"
)

// SignalChannel is the relay connection for one room. Subscriptions must be
// taken before Connect so nothing is missed.
type SignalChannel interface {
	Connect(ctx context.Context) error
	JoinRoom(roomID string)
	Send(env signaling.Envelope) error
	Messages() <-chan signaling.Envelope
	PeerDisconnected() <-chan struct{}
	Disconnected() <-chan error
	Destroy()
}

// ChannelFactory builds a fresh channel. The host asks for a new one after
// every teardown.
type ChannelFactory func() SignalChannel

// PeerSession is one WebRTC connection with its data channel.
type PeerSession interface {
	transfer.Channel

	Start() error
	HandleSignal(raw json.RawMessage) error
	AddTracks(tracks ...*media.LocalTrack) error
	Send(frame protocol.Frame) error
	Close() error
}

// PeerFactory creates a peer session for the given role.
type PeerFactory func(role peer.Role, h peer.Handlers) (PeerSession, error)

var (
	_ SignalChannel = (*signaling.Client)(nil)
	_ PeerSession   = (*peer.Session)(nil)
)

// HostPrompter asks the local user whether a controller may connect.
type HostPrompter interface {
	// ConfirmConnection blocks until the user answers or ctx is done.
	ConfirmConnection(ctx context.Context, from room.ID) (bool, error)
}

// Credential is what the user typed into the password prompt.
type Credential struct {
	Password string
	Remember bool
}

// ControllerPrompter asks for the host's password.
type ControllerPrompter interface {
	// AskPassword returns ok=false when the user cancels. saved pre-fills
	// the field and may be empty.
	AskPassword(ctx context.Context, host room.ID, saved string) (Credential, bool, error)
}

// Level grades a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is a user-facing message.
type Notice struct {
	Level  Level
	Text   string
	Detail string
}

const (
	NoticeConnectionEnded    = "connection ended"
	NoticePasswordIncorrect  = "password incorrect"
	NoticeCameraFailed       = "failed to access camera"
	NoticeConnectionDeclined = "connection declined"
)

// Shell is the window surface around a session.
type Shell interface {
	BringToFront()
	Minimize()
	Restore()
	ShowStatusWindow(id room.ID)
	CloseStatusWindow()
	RemoveOverlays()
	Notify(n Notice)
}

// PasswordVerifier checks the hidden-access password.
type PasswordVerifier interface {
	VerifyPassword(password string) bool
}

// CredentialStore remembers hosts and their passwords.
type CredentialStore interface {
	GetPassword(id room.ID) (string, bool, error)
	SavePassword(id room.ID, password string) error
	Add(id room.ID) (bool, error)
}

// NopShell ignores every call.
type NopShell struct{}

func (NopShell) BringToFront()            {}
func (NopShell) Minimize()                {}
func (NopShell) Restore()                 {}
func (NopShell) ShowStatusWindow(room.ID) {}
func (NopShell) CloseStatusWindow()       {}
func (NopShell) RemoveOverlays()          {}
func (NopShell) Notify(Notice)            {}
