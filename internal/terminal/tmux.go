package terminal

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Tmux is the Backend for agents running in local tmux sessions. All
// operations shell out to the tmux binary; each call is a single bounded
// subprocess with no retries.
type Tmux struct {
	// Socket optionally scopes commands to a named tmux socket
	// (tmux -L), isolating muster's sessions from the user's own
	// server. Empty means the default socket.
	Socket string
}

// NewTmux returns a Backend on the default tmux socket.
func NewTmux() *Tmux {
	return &Tmux{}
}

var _ Backend = (*Tmux)(nil)

func (t *Tmux) HasSession(session string) (bool, error) {
	// `tmux has-session` exits 1 for a missing session and also when no
	// server is running; both mean "not there".
	cmd := t.command("has-session", "-t", "="+session)
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, fmt.Errorf("tmux has-session: %w", err)
	}
	return true, nil
}

func (t *Tmux) CapturePane(session string, lines int) (string, error) {
	if lines <= 0 {
		lines = 50
	}
	// -p prints to stdout, -S selects the start line relative to the
	// visible pane bottom.
	out, err := t.command("capture-pane", "-p", "-t", session, "-S", "-"+strconv.Itoa(lines)).Output()
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane %s: %w", session, err)
	}
	return trimCapture(string(out), lines), nil
}

func (t *Tmux) SendText(session string, text string) error {
	if err := t.command("send-keys", "-t", session, text).Run(); err != nil {
		return fmt.Errorf("tmux send-keys %s: %w", session, err)
	}
	return nil
}

func (t *Tmux) KillSession(session string) error {
	if err := t.command("kill-session", "-t", "="+session).Run(); err != nil {
		return fmt.Errorf("tmux kill-session %s: %w", session, err)
	}
	return nil
}

func (t *Tmux) command(args ...string) *exec.Cmd {
	return exec.Command("tmux", t.args(args...)...)
}

// args prepends the socket selector when one is configured.
func (t *Tmux) args(args ...string) []string {
	if t.Socket == "" {
		return args
	}
	return append([]string{"-L", t.Socket}, args...)
}

// trimCapture normalizes a capture: trailing blank lines go (tmux pads
// the pane to full height) and the line cap is enforced even if tmux
// returned more.
func trimCapture(out string, lines int) string {
	all := strings.Split(strings.TrimRight(out, "\n"), "\n")
	for len(all) > 0 && strings.TrimSpace(all[len(all)-1]) == "" {
		all = all[:len(all)-1]
	}
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.Join(all, "\n")
}
