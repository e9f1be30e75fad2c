// Package protocol defines the two wire vocabularies of a session: control
// strings exchanged over the signaling relay, and the frames multiplexed on
// the peer data channel.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	msgHello           = "hi"
	msgDecline         = "decline"
	msgPasswordRequest = "pwRequest"
	msgPasswordAnswer  = "pwAnswer:"
	msgPasswordWrong   = "pwWrong"
	msgScreenSize      = "screenSize"
)

// ErrUnknownControl is returned for control strings outside the vocabulary.
var ErrUnknownControl = errors.New("unknown control message")

// ControlKind discriminates Control values.
type ControlKind int

const (
	ControlHello ControlKind = iota + 1
	ControlDecline
	ControlPasswordRequest
	ControlPasswordAnswer
	ControlPasswordWrong
	ControlScreenSize
)

func (k ControlKind) String() string {
	switch k {
	case ControlHello:
		return "hello"
	case ControlDecline:
		return "decline"
	case ControlPasswordRequest:
		return "password-request"
	case ControlPasswordAnswer:
		return "password-answer"
	case ControlPasswordWrong:
		return "password-wrong"
	case ControlScreenSize:
		return "screen-size"
	default:
		return "unknown"
	}
}

// ScreenSize is a display size in physical pixels.
type ScreenSize struct {
	Width  int
	Height int
}

// Known reports whether both dimensions are positive.
func (s ScreenSize) Known() bool { return s.Width > 0 && s.Height > 0 }

// Control is one signaling control message.
type Control struct {
	Kind ControlKind

	// Secret is set for ControlPasswordAnswer.
	Secret string

	// Size is set for ControlScreenSize.
	Size ScreenSize
}

func Hello() Control                   { return Control{Kind: ControlHello} }
func Decline() Control                 { return Control{Kind: ControlDecline} }
func PasswordRequest() Control         { return Control{Kind: ControlPasswordRequest} }
func PasswordWrong() Control           { return Control{Kind: ControlPasswordWrong} }
func PasswordAnswer(pw string) Control { return Control{Kind: ControlPasswordAnswer, Secret: pw} }

func ScreenSizeMessage(size ScreenSize) Control {
	return Control{Kind: ControlScreenSize, Size: size}
}

// String encodes c in its wire form.
func (c Control) String() string {
	switch c.Kind {
	case ControlHello:
		return msgHello
	case ControlDecline:
		return msgDecline
	case ControlPasswordRequest:
		return msgPasswordRequest
	case ControlPasswordAnswer:
		return msgPasswordAnswer + c.Secret
	case ControlPasswordWrong:
		return msgPasswordWrong
	case ControlScreenSize:
		return fmt.Sprintf("%s,%d,%d", msgScreenSize, c.Size.Width, c.Size.Height)
	default:
		return ""
	}
}

// ParseControl decodes a control string. Everything after the "pwAnswer:"
// prefix is the secret, colons included.
func ParseControl(s string) (Control, error) {
	switch {
	case s == msgHello:
		return Hello(), nil
	case strings.HasPrefix(s, msgPasswordAnswer):
		return PasswordAnswer(s[len(msgPasswordAnswer):]), nil
	case strings.HasPrefix(s, msgPasswordRequest):
		return PasswordRequest(), nil
	case strings.HasPrefix(s, msgPasswordWrong):
		return PasswordWrong(), nil
	case strings.HasPrefix(s, msgDecline):
		return Decline(), nil
	case strings.HasPrefix(s, msgScreenSize+","):
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return Control{}, fmt.Errorf("malformed screen size %q", s)
		}
		w, errW := strconv.Atoi(parts[1])
		h, errH := strconv.Atoi(parts[2])
		if errW != nil || errH != nil || w < 0 || h < 0 {
			return Control{}, fmt.Errorf("malformed screen size %q", s)
		}
		return ScreenSizeMessage(ScreenSize{Width: w, Height: h}), nil
	default:
		return Control{}, fmt.Errorf("%w: %q", ErrUnknownControl, s)
	}
}
