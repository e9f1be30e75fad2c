package ui

import (
	"fmt"

	"github.com/BioHazard786/deskwarp/internal/chat"
)

// ChatLine renders one chat message as "15:04 Label: text".
func ChatLine(m chat.Message) string {
	style := RemoteSpeakerStyle
	if m.Origin == chat.Local {
		style = LocalSpeakerStyle
	}
	return fmt.Sprintf("%s %s %s",
		MutedStyle.Render(m.At.Format("15:04")),
		style.Render(m.Label()+":"),
		m.Text,
	)
}
