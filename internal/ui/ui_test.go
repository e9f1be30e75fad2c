package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/deskwarp/internal/addressbook"
	"github.com/BioHazard786/deskwarp/internal/chat"
	"github.com/BioHazard786/deskwarp/internal/protocol"
	"github.com/BioHazard786/deskwarp/internal/session"
	"github.com/BioHazard786/deskwarp/internal/transfer"
)

func TestRenderNotice(t *testing.T) {
	got := RenderNotice(session.Notice{Level: session.LevelError, Text: "connection ended", Detail: "connection declined"})
	if !strings.Contains(got, "connection ended: connection declined") {
		t.Fatalf("notice = %q", got)
	}

	got = RenderNotice(session.Notice{Level: session.LevelInfo, Text: "same", Detail: "same"})
	if strings.Count(got, "same") != 1 {
		t.Fatalf("detail repeated: %q", got)
	}
}

func TestTerminalShell(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.Minimize()
	if !term.Minimized() {
		t.Fatal("not minimized")
	}
	term.BringToFront()
	if term.Minimized() {
		t.Fatal("still minimized after BringToFront")
	}

	term.CloseStatusWindow()
	if buf.Len() != 1 {
		t.Fatalf("closing a missing status window wrote %q", buf.String())
	}

	term.ShowStatusWindow("123456789")
	if !strings.Contains(buf.String(), "123 456 789") {
		t.Fatalf("status window = %q", buf.String())
	}
	term.CloseStatusWindow()
	if !strings.Contains(buf.String(), "Remote control stopped") {
		t.Fatalf("output = %q", buf.String())
	}

	term.Notify(session.Notice{Level: session.LevelWarn, Text: session.NoticeCameraFailed})
	if !strings.Contains(buf.String(), session.NoticeCameraFailed) {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestBookTable(t *testing.T) {
	if got := BookTable(nil); !strings.Contains(got, "empty") {
		t.Fatalf("empty table = %q", got)
	}

	got := BookTable([]addressbook.Entry{
		{ID: "123456789", Name: "Office"},
		{ID: "987654321", Name: "Laptop", Password: "sealed"},
	})
	for _, want := range []string{"Office", "123 456 789", "Laptop", "987 654 321", "saved"} {
		if !strings.Contains(got, want) {
			t.Errorf("table is missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "saved") != 1 {
		t.Fatalf("password column wrong:\n%s", got)
	}
}

func TestProgressLine(t *testing.T) {
	view := NewTransferView(nil)
	line := ProgressLine(transfer.Progress{
		FileID:      "f1",
		Name:        "report.pdf",
		Direction:   transfer.Receiving,
		Size:        2048,
		Transferred: 1024,
		Started:     time.Now().Add(-time.Second),
	}, view.bar)
	for _, want := range []string{IconReceive, "report.pdf", "50.0%"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q is missing %q", line, want)
		}
	}
}

func TestTransferViewThrottles(t *testing.T) {
	var buf bytes.Buffer
	view := NewTransferView(&buf)
	p := transfer.Progress{FileID: "f1", Name: "a.txt", Size: 100, Started: time.Now()}

	for i := range 10 {
		p.Transferred = int64(i)
		view.Progress(p)
	}
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("printed %d lines, want 1", n)
	}

	p.Transferred = 100
	view.Progress(p)
	view.Complete(transfer.Result{FileID: "f1", Name: "a.txt", Size: 100, Direction: transfer.Sending})
	view.Failed("f2", errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"100.0%", "Sent a.txt", "f2 failed: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
}

func TestChatLine(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	got := ChatLine(chat.Message{Pane: protocol.PaneHost, Origin: chat.Remote, Text: "hi", At: at})
	for _, want := range []string{"09:30", "Host:", "hi"} {
		if !strings.Contains(got, want) {
			t.Errorf("line %q is missing %q", got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"abcdef", 2, "ab"},
	}
	for _, c := range cases {
		if got := truncate(c.in, c.n); got != c.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}
