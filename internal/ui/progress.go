package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/BioHazard786/deskwarp/internal/transfer"
	"github.com/BioHazard786/deskwarp/internal/utils"
	"github.com/charmbracelet/bubbles/progress"
)

// TransferView prints a progress line per transfer update, at most once per
// interval for a given file.
type TransferView struct {
	out      io.Writer
	bar      progress.Model
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewTransferView writes to out, or stdout when out is nil.
func NewTransferView(out io.Writer) *TransferView {
	if out == nil {
		out = os.Stdout
	}
	return &TransferView{
		out: out,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(25),
			progress.WithoutPercentage(),
		),
		interval: 500 * time.Millisecond,
		last:     make(map[string]time.Time),
	}
}

// Progress is a transfer.Manager progress callback.
func (v *TransferView) Progress(p transfer.Progress) {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := time.Now()
	if prev, ok := v.last[p.FileID]; ok && now.Sub(prev) < v.interval && p.Transferred < p.Size {
		return
	}
	v.last[p.FileID] = now
	fmt.Fprintln(v.out, ProgressLine(p, v.bar))
}

// Complete is a transfer.Manager completion callback.
func (v *TransferView) Complete(r transfer.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.last, r.FileID)
	fmt.Fprintf(v.out, "%s %s\n", SuccessStyle.Render(IconSuccess), r.Summary())
	if r.Path != "" {
		fmt.Fprintln(v.out, MutedStyle.Render("   saved to "+r.Path))
	}
}

// Failed is a transfer.Manager error callback.
func (v *TransferView) Failed(fileID string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.last, fileID)
	fmt.Fprintln(v.out, ErrorStyle.Render(fmt.Sprintf("%s transfer %s failed: %v", IconError, fileID, err)))
}

// ProgressLine renders one transfer as icon, name, bar, percent, speed and
// sizes.
func ProgressLine(p transfer.Progress, bar progress.Model) string {
	icon := IconSend
	if p.Direction == transfer.Receiving {
		icon = IconReceive
	}
	line := fmt.Sprintf("%s %-30s %s %5.1f%%", icon, truncate(p.Name, 30), bar.ViewAs(p.Percent()/100), p.Percent())
	if p.Transferred < p.Size {
		if speed := p.Speed(); speed > 0 {
			line += MutedStyle.Render(" " + utils.FormatSpeed(speed))
		}
	}
	return line + MutedStyle.Render(fmt.Sprintf(" (%s/%s)", utils.FormatSize(p.Transferred), utils.FormatSize(p.Size)))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
