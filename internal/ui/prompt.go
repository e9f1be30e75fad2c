package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/session"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type confirmTickMsg time.Time

func confirmTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return confirmTickMsg(t)
	})
}

// ConfirmModel asks a yes/no question and declines on its own once the
// deadline passes.
type ConfirmModel struct {
	title    string
	detail   string
	deadline time.Time
	left     time.Duration

	answered bool
	accepted bool
}

// NewConfirmModel builds a confirm prompt. A zero timeout waits forever.
func NewConfirmModel(title, detail string, timeout time.Duration) ConfirmModel {
	m := ConfirmModel{title: title, detail: detail}
	if timeout > 0 {
		m.deadline = time.Now().Add(timeout)
		m.left = timeout
	}
	return m
}

func (m ConfirmModel) Init() tea.Cmd {
	return confirmTick()
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y":
			m.answered, m.accepted = true, true
			return m, tea.Quit
		case "n", "N", "q", "esc", "ctrl+c":
			m.answered = true
			return m, tea.Quit
		}
	case confirmTickMsg:
		if m.deadline.IsZero() {
			return m, confirmTick()
		}
		m.left = m.deadline.Sub(time.Time(msg))
		if m.left <= 0 {
			m.answered = true
			return m, tea.Quit
		}
		return m, confirmTick()
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	if m.answered {
		return ""
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	if m.detail != "" {
		b.WriteString("\n\n" + m.detail)
	}
	b.WriteString("\n\n" + BoldStyle.Render("[y]") + " allow   " + BoldStyle.Render("[n]") + " deny")
	if !m.deadline.IsZero() {
		secs := int(m.left.Round(time.Second) / time.Second)
		b.WriteString(MutedStyle.Render(fmt.Sprintf("   denied in %ds", max(secs, 0))))
	}
	return BoxStyle.Render(b.String()) + "\n"
}

// Answered reports whether the user (or the deadline) settled the prompt.
func (m ConfirmModel) Answered() bool { return m.answered }

// Accepted is true only for an explicit yes.
func (m ConfirmModel) Accepted() bool { return m.accepted }

// PasswordModel reads a password, optionally with a remember toggle.
type PasswordModel struct {
	title    string
	input    textinput.Model
	toggle   bool
	remember bool

	done bool
	ok   bool
}

// NewPasswordModel asks for the password of host, prefilled with saved.
func NewPasswordModel(host room.ID, saved string) PasswordModel {
	m := NewSecretModel(fmt.Sprintf("Device %s needs a password", host.Grouped()))
	m.input.SetValue(saved)
	m.toggle, m.remember = true, true
	return m
}

// NewSecretModel asks for a single hidden value.
func NewSecretModel(title string) PasswordModel {
	in := textinput.New()
	in.Placeholder = "password"
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.CharLimit = 128
	in.Width = 32
	in.Focus()
	return PasswordModel{title: title, input: in}
}

func (m PasswordModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m PasswordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			if m.input.Value() == "" {
				return m, nil
			}
			m.done, m.ok = true, true
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		case "tab":
			if m.toggle {
				m.remember = !m.remember
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PasswordModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n%s\n\n", IconLock, TitleStyle.Render(m.title), m.input.View())
	if m.toggle {
		box := "[ ]"
		if m.remember {
			box = "[x]"
		}
		b.WriteString(BoldStyle.Render(box) + " remember   " + MutedStyle.Render("tab toggle, enter confirm, esc cancel"))
	} else {
		b.WriteString(MutedStyle.Render("enter confirm, esc cancel"))
	}
	return BoxStyle.Render(b.String()) + "\n"
}

// Credential returns what was entered. ok is false when the user cancelled.
func (m PasswordModel) Credential() (session.Credential, bool) {
	if !m.ok {
		return session.Credential{}, false
	}
	return session.Credential{Password: m.input.Value(), Remember: m.remember}, true
}

// Prompter asks the local user through bubbletea programs, one at a time.
// When Source is set each prompt borrows its input from there instead of In.
type Prompter struct {
	In     io.Reader
	Out    io.Writer
	Source InputSource

	mu sync.Mutex
}

var (
	_ session.HostPrompter       = (*Prompter)(nil)
	_ session.ControllerPrompter = (*Prompter)(nil)
)

func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stdout}
}

func (p *Prompter) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	in := p.In
	if p.Source != nil {
		r, release := p.Source.Acquire()
		defer release()
		in = r
	}

	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(p.Out))
	final, err := prog.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return final, nil
}

// ConfirmConnection shows an allow/deny box. The countdown follows the
// context deadline.
func (p *Prompter) ConfirmConnection(ctx context.Context, id room.ID) (bool, error) {
	var timeout time.Duration
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	m := NewConfirmModel(
		IconPeer+" Incoming connection",
		fmt.Sprintf("Someone wants to control this device (%s).", id.Grouped()),
		timeout,
	)
	final, err := p.run(ctx, m)
	if err != nil {
		return false, err
	}
	return final.(ConfirmModel).Accepted(), nil
}

// AskPassword reads the host password, offering saved as the default.
func (p *Prompter) AskPassword(ctx context.Context, host room.ID, saved string) (session.Credential, bool, error) {
	final, err := p.run(ctx, NewPasswordModel(host, saved))
	if err != nil {
		return session.Credential{}, false, err
	}
	cred, ok := final.(PasswordModel).Credential()
	return cred, ok, nil
}

// AskSecret reads one hidden value. ok is false when the user cancelled.
func (p *Prompter) AskSecret(ctx context.Context, title string) (string, bool, error) {
	final, err := p.run(ctx, NewSecretModel(title))
	if err != nil {
		return "", false, err
	}
	cred, ok := final.(PasswordModel).Credential()
	return cred.Password, ok, nil
}
