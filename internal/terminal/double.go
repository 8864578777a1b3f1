package terminal

import (
	"fmt"
	"sync"
)

// Double is a FAKE with SPY capabilities for the Backend interface: a
// working in-memory implementation that also records the text and kill
// calls it receives, so tests can script terminal behavior and verify
// what the watchdog and recovery paths did.
//
// For error injection set FailCapture/FailExists on a session.
type Double struct {
	mu       sync.RWMutex
	sessions map[string]*doubleSession
}

type doubleSession struct {
	buffer      []string // successive capture snapshots, consumed in order
	bufferIdx   int
	exists      bool
	sentLog     []string
	killed      bool
	failExists  error
	failCapture error
}

// NewDouble creates an empty in-memory Backend double.
func NewDouble() *Double {
	return &Double{sessions: make(map[string]*doubleSession)}
}

var _ Backend = (*Double)(nil)

func (d *Double) HasSession(session string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[session]
	if !ok {
		return false, nil
	}
	if s.failExists != nil {
		return false, s.failExists
	}
	return s.exists, nil
}

// CapturePane returns the session's current snapshot. When a script of
// snapshots was queued with SetSnapshots, each call consumes the next
// one, holding on the last.
func (d *Double) CapturePane(session string, lines int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[session]
	if !ok || !s.exists {
		return "", fmt.Errorf("session not found: %s", session)
	}
	if s.failCapture != nil {
		return "", s.failCapture
	}
	if len(s.buffer) == 0 {
		return "", nil
	}
	out := s.buffer[s.bufferIdx]
	if s.bufferIdx < len(s.buffer)-1 {
		s.bufferIdx++
	}
	return out, nil
}

func (d *Double) SendText(session string, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[session]
	if !ok || !s.exists {
		return fmt.Errorf("session not found: %s", session)
	}
	s.sentLog = append(s.sentLog, text)
	return nil
}

func (d *Double) KillSession(session string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[session]
	if !ok || !s.exists {
		return fmt.Errorf("session not found: %s", session)
	}
	s.killed = true
	s.exists = false
	return nil
}

// --- Test helpers (not part of the Backend interface) ---

// AddSession registers a live session with a fixed snapshot.
func (d *Double) AddSession(session string, snapshot string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessions[session] = &doubleSession{
		buffer: []string{snapshot},
		exists: true,
	}
}

// SetSnapshots scripts the sequence of captures the session will return.
// The last snapshot repeats once the script runs out.
func (d *Double) SetSnapshots(session string, snapshots ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[session]
	if !ok {
		s = &doubleSession{exists: true}
		d.sessions[session] = s
	}
	s.buffer = snapshots
	s.bufferIdx = 0
}

// SetExists flips session existence (simulates a crash when false).
func (d *Double) SetExists(session string, exists bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[session]; ok {
		s.exists = exists
		return
	}
	d.sessions[session] = &doubleSession{exists: exists}
}

// FailExists makes HasSession return err for the session.
func (d *Double) FailExists(session string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[session]; ok {
		s.failExists = err
		return
	}
	d.sessions[session] = &doubleSession{exists: true, failExists: err}
}

// FailCapture makes CapturePane return err for the session.
func (d *Double) FailCapture(session string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[session]; ok {
		s.failCapture = err
		return
	}
	d.sessions[session] = &doubleSession{exists: true, failCapture: err}
}

// SentLog returns a copy of the text sent to the session.
func (d *Double) SentLog(session string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[session]
	if !ok {
		return nil
	}
	out := make([]string, len(s.sentLog))
	copy(out, s.sentLog)
	return out
}

// Killed reports whether KillSession was called on the session.
func (d *Double) Killed(session string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[session]
	return ok && s.killed
}
