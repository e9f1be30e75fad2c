package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/protocol"
)

func TestResolveKeyPrintable(t *testing.T) {
	stroke, ok := ResolveKey(protocol.KeyEvent{Key: "A", Code: "KeyA", Shift: true, Meta: true})
	if !ok {
		t.Fatal("printable key not resolved")
	}
	if stroke.Text != "A" || stroke.Key != "" {
		t.Fatalf("stroke = %+v", stroke)
	}
	if len(stroke.Modifiers) != 2 || stroke.Modifiers[0] != KeyLeftShift || stroke.Modifiers[1] != KeyLeftSuper {
		t.Fatalf("modifiers = %v", stroke.Modifiers)
	}

	stroke, ok = ResolveKey(protocol.KeyEvent{Key: "é", Code: "KeyE"})
	if !ok || stroke.Text != "é" {
		t.Fatalf("multibyte character: %+v, %v", stroke, ok)
	}
}

func TestResolveKeySpecial(t *testing.T) {
	tests := []struct {
		ev   protocol.KeyEvent
		want Key
	}{
		{protocol.KeyEvent{Key: "Shift", Code: "ShiftRight"}, KeyRightShift},
		{protocol.KeyEvent{Key: "Enter", Code: "NumpadEnter"}, KeyEnter},
		{protocol.KeyEvent{Key: "ArrowLeft", Code: "ArrowLeft"}, KeyLeft},
		{protocol.KeyEvent{Key: "F11", Code: "F11"}, Key("F11")},
		{protocol.KeyEvent{Key: "PageDown"}, KeyPageDown},
	}
	for _, tt := range tests {
		stroke, ok := ResolveKey(tt.ev)
		if !ok || stroke.Key != tt.want {
			t.Errorf("ResolveKey(%+v) = %+v, %v, want %s", tt.ev, stroke, ok, tt.want)
		}
	}
}

func TestResolveKeyUnknown(t *testing.T) {
	if _, ok := ResolveKey(protocol.KeyEvent{Key: "AudioVolumeUp", Code: "AudioVolumeUp"}); ok {
		t.Fatal("unknown key resolved")
	}
}

func TestHeadlessInjectUnknownKeyIsNotFatal(t *testing.T) {
	h := NewHeadless(HeadlessOptions{Logger: logging.Discard()})
	if err := h.InjectKey(protocol.KeyEvent{Key: "Dead", Code: "Quote"}); err != nil {
		t.Fatalf("InjectKey: %v", err)
	}
	if err := h.InjectMouse(protocol.Mouse{Action: protocol.MouseMove, X: 10, Y: 20}); err != nil {
		t.Fatal(err)
	}
	stats := h.Stats()
	if stats.Unknown != 1 || stats.Keys != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.CursorX != 10 || stats.CursorY != 20 {
		t.Fatalf("cursor = (%d,%d)", stats.CursorX, stats.CursorY)
	}
}

func TestHeadlessClipboardChanges(t *testing.T) {
	h := NewHeadless(HeadlessOptions{Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	changes := h.ClipboardChanges(ctx)

	if err := h.WriteClipboard("copied"); err != nil {
		t.Fatal(err)
	}
	if err := h.WriteClipboard("copied"); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changes:
		if got != "copied" {
			t.Fatalf("change = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no clipboard change delivered")
	}

	select {
	case got := <-changes:
		t.Fatalf("unchanged write delivered %q", got)
	default:
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("watcher not closed after cancel")
	}
}

func TestHeadlessCapture(t *testing.T) {
	h := NewHeadless(HeadlessOptions{Logger: logging.Discard()})
	screen, err := h.CaptureScreen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if screen.Video == nil || screen.Audio == nil {
		t.Fatalf("screen capture = %+v", screen)
	}

	cam, err := h.CaptureCameraMic(context.Background(), true, false)
	if err != nil {
		t.Fatal(err)
	}
	if cam.Video == nil || cam.Audio != nil {
		t.Fatalf("camera capture = %+v", cam)
	}

	denied := NewHeadless(HeadlessOptions{DenyCamera: true, Logger: logging.Discard()})
	if _, err := denied.CaptureCameraMic(context.Background(), true, true); !errors.Is(err, ErrDeviceAccess) {
		t.Fatalf("err = %v, want ErrDeviceAccess", err)
	}
}
