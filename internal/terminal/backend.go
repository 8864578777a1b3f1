// Package terminal abstracts the terminal sessions agents run in.
//
// The watchdog and recovery paths only ever need four operations:
// existence, bounded output capture, text input, and termination. The
// Backend interface keeps them decoupled from tmux so tests run against
// an in-memory double.
package terminal

// Backend provides terminal observation and control for agent sessions.
type Backend interface {
	// HasSession checks whether a terminal session exists.
	HasSession(session string) (bool, error)

	// CapturePane returns up to the last N lines of the session's
	// visible output.
	CapturePane(session string, lines int) (string, error)

	// SendText queues text input (including key names such as "C-c")
	// to the session.
	SendText(session string, text string) error

	// KillSession force-terminates the session and everything in it.
	KillSession(session string) error
}
