package bridge

import (
	"unicode/utf8"

	"github.com/BioHazard786/deskwarp/internal/protocol"
)

// Key names a non-printable key the injector can press.
type Key string

const (
	KeyEscape       Key = "Escape"
	KeyTab          Key = "Tab"
	KeyCapsLock     Key = "CapsLock"
	KeyLeftShift    Key = "LeftShift"
	KeyRightShift   Key = "RightShift"
	KeyLeftControl  Key = "LeftControl"
	KeyRightControl Key = "RightControl"
	KeyLeftAlt      Key = "LeftAlt"
	KeyRightAlt     Key = "RightAlt"
	KeyLeftSuper    Key = "LeftSuper"
	KeyRightSuper   Key = "RightSuper"
	KeyEnter        Key = "Enter"
	KeyBackspace    Key = "Backspace"
	KeySpace        Key = "Space"
	KeyUp           Key = "Up"
	KeyDown         Key = "Down"
	KeyLeft         Key = "Left"
	KeyRight        Key = "Right"
	KeyDelete       Key = "Delete"
	KeyInsert       Key = "Insert"
	KeyHome         Key = "Home"
	KeyEnd          Key = "End"
	KeyPageUp       Key = "PageUp"
	KeyPageDown     Key = "PageDown"
)

var specialKeys = map[string]Key{
	"Escape":   KeyEscape,
	"Tab":      KeyTab,
	"CapsLock": KeyCapsLock,

	"ShiftLeft":    KeyLeftShift,
	"ShiftRight":   KeyRightShift,
	"ControlLeft":  KeyLeftControl,
	"ControlRight": KeyRightControl,
	"AltLeft":      KeyLeftAlt,
	"AltRight":     KeyRightAlt,
	"MetaLeft":     KeyLeftSuper,
	"MetaRight":    KeyRightSuper,

	"Enter":     KeyEnter,
	"Backspace": KeyBackspace,
	"Space":     KeySpace,

	"ArrowUp":    KeyUp,
	"ArrowDown":  KeyDown,
	"ArrowLeft":  KeyLeft,
	"ArrowRight": KeyRight,

	"Delete":   KeyDelete,
	"Insert":   KeyInsert,
	"Home":     KeyHome,
	"End":      KeyEnd,
	"PageUp":   KeyPageUp,
	"PageDown": KeyPageDown,

	"F1": "F1", "F2": "F2", "F3": "F3", "F4": "F4",
	"F5": "F5", "F6": "F6", "F7": "F7", "F8": "F8",
	"F9": "F9", "F10": "F10", "F11": "F11", "F12": "F12",
}

// Stroke is a resolved key press: either a character to type or a special
// key to tap, with modifiers held around it.
type Stroke struct {
	Text      string
	Key       Key
	Modifiers []Key
}

// ResolveKey turns a remote key event into a stroke. Single characters are
// typed as-is; everything else must be in the special key table, looked up
// by physical code first and then by key name.
func ResolveKey(ev protocol.KeyEvent) (Stroke, bool) {
	var modifiers []Key
	if ev.Shift {
		modifiers = append(modifiers, KeyLeftShift)
	}
	if ev.Control {
		modifiers = append(modifiers, KeyLeftControl)
	}
	if ev.Alt {
		modifiers = append(modifiers, KeyLeftAlt)
	}
	if ev.Meta {
		modifiers = append(modifiers, KeyLeftSuper)
	}

	if ev.Key != "" && utf8.RuneCountInString(ev.Key) == 1 {
		return Stroke{Text: ev.Key, Modifiers: modifiers}, true
	}

	code := ev.Code
	if code == "" {
		code = ev.Key
	}
	if key, ok := specialKeys[code]; ok {
		return Stroke{Key: key, Modifiers: modifiers}, true
	}
	if key, ok := specialKeys[ev.Key]; ok {
		return Stroke{Key: key, Modifiers: modifiers}, true
	}
	return Stroke{}, false
}
