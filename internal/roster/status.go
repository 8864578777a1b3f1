package roster

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is an agent's place in the coordination state machine. The wire
// format is a bare integer (0=idle, 1=working, 2=stalled) for
// compatibility with every tool that reads roster.json; in code the type
// is closed and transitions are validated, so an out-of-range value can
// exist neither in memory nor on disk.
type Status int

const (
	// StatusIdle means registered but not assigned work. Idle agents may
	// be closed but never recovered.
	StatusIdle Status = iota
	// StatusWorking means actively on a task; the watchdog observes
	// Working agents each sweep.
	StatusWorking
	// StatusStalled is set by the watchdog when a Working agent's output
	// freezes past the stall timeout. Stalled agents leave the roster
	// only through recovery.
	StatusStalled
)

// IsValid reports whether s is one of the defined states.
func (s Status) IsValid() bool {
	return s == StatusIdle || s == StatusWorking || s == StatusStalled
}

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWorking:
		return "working"
	case StatusStalled:
		return "stalled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalJSON emits the wire integer.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid status %d", int(s))
	}
	return json.Marshal(int(s))
}

// UnmarshalJSON accepts only the defined wire integers.
func (s *Status) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("status must be an integer: %w", err)
	}
	v := Status(n)
	if !v.IsValid() {
		return fmt.Errorf("unknown status %d", n)
	}
	*s = v
	return nil
}

// ParseStatus maps CLI input to a Status. Accepts the names and, for
// scripting convenience, the wire integers.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle", "0":
		return StatusIdle, nil
	case "working", "1":
		return StatusWorking, nil
	case "stalled", "2":
		return StatusStalled, nil
	default:
		return 0, fmt.Errorf("unknown status %q (want idle, working, or stalled)", s)
	}
}

// validTransition encodes the roster state machine. Self-transitions are
// allowed as liveness refreshes. Stalled is terminal until removal.
func validTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusIdle:
		return to == StatusWorking
	case StatusWorking:
		return to == StatusIdle || to == StatusStalled
	default:
		return false
	}
}
