package ui

import (
	"fmt"
	"strings"

	"github.com/BioHazard786/deskwarp/internal/addressbook"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// BookTable renders the address book.
func BookTable(entries []addressbook.Entry) string {
	if len(entries) == 0 {
		return MutedStyle.Render("Address book is empty")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.AppendHeader(table.Row{"#", "Name", "Room", "Password"})
	for i, e := range entries {
		saved := ""
		if e.HasPassword() {
			saved = IconLock + " saved"
		}
		t.AppendRow(table.Row{i + 1, truncate(e.Name, 40), e.ID.Grouped(), saved})
	}
	return t.Render()
}

// HostInfo is the box printed when a host is ready for connections.
type HostInfo struct {
	Room    room.ID
	Relay   string
	Hidden  bool
	Network string
}

func (h HostInfo) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Ready for connections\n\n", IconSuccess)
	fmt.Fprintf(&b, "%s Room ID:  %s\n", IconRoom, BoldStyle.Foreground(Primary).Render(h.Room.Grouped()))
	fmt.Fprintf(&b, "%s Relay:    %s", IconConnect, MutedStyle.Render(h.Relay))
	if h.Network != "" {
		fmt.Fprintf(&b, "\n%s Network:  %s", IconInfo, MutedStyle.Render(h.Network))
	}
	if h.Hidden {
		fmt.Fprintf(&b, "\n%s Password required", IconLock)
	}
	return SuccessBoxStyle.Render(b.String())
}
