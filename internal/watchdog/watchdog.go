// Package watchdog watches working agents for stalls and crashes.
//
// Every sweep it captures each working agent's pane and compares the
// snapshot against the previous sweep. Changed output counts as progress;
// output frozen past the stall timeout triggers stall recovery; a missing
// session triggers crash recovery. The sweep-to-sweep bookkeeping lives in
// State and is advanced by a pure function, so the judgment logic is
// testable without a terminal or a clock.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/steveyegge/muster/internal/journal"
	"github.com/steveyegge/muster/internal/recovery"
	"github.com/steveyegge/muster/internal/roster"
	"github.com/steveyegge/muster/internal/terminal"
	"github.com/steveyegge/muster/internal/workspace"
)

const (
	DefaultCheckInterval = 30 * time.Second
	DefaultStallTimeout  = 5 * time.Minute
	DefaultCaptureLines  = 50
)

// ErrAlreadyRunning means another process holds the watchdog lock.
var ErrAlreadyRunning = errors.New("watchdog already running")

// AgentSource is the roster slice the watchdog reads and refreshes.
type AgentSource interface {
	ListByStatus(roster.Status) ([]roster.Agent, error)
	Touch(name string) error
}

// Recoverer tears down agents the watchdog has given up on.
type Recoverer interface {
	RecoverStalled(ctx context.Context, agentName string) recovery.Report
	RecoverCrashed(ctx context.Context, agentName string) recovery.Report
}

// Config holds the watchdog's tunables.
type Config struct {
	// Root is the workspace root; the lock and pid files live under its
	// state directory.
	Root          string
	CheckInterval time.Duration
	StallTimeout  time.Duration
	CaptureLines  int
}

// Watchdog runs the sweep loop. One per workspace; Run enforces that with
// a file lock.
type Watchdog struct {
	cfg     Config
	agents  AgentSource
	term    terminal.Backend
	rec     Recoverer
	journal *journal.Journal
	log     *slog.Logger
	state   State
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithJournal enables event journaling.
func WithJournal(j *journal.Journal) Option {
	return func(w *Watchdog) {
		w.journal = j
	}
}

// New builds a Watchdog. Zero config fields fall back to defaults.
func New(cfg Config, agents AgentSource, term terminal.Backend, rec Recoverer, logger *slog.Logger, opts ...Option) *Watchdog {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = DefaultStallTimeout
	}
	if cfg.CaptureLines <= 0 {
		cfg.CaptureLines = DefaultCaptureLines
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watchdog{
		cfg:    cfg,
		agents: agents,
		term:   term,
		rec:    rec,
		log:    logger.With("component", "watchdog"),
		state:  NewState(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LockFile returns the watchdog's single-instance lock path.
func LockFile(root string) string {
	return filepath.Join(workspace.StateDir(root), "watchdog.lock")
}

// PidFile returns the watchdog's pid file path.
func PidFile(root string) string {
	return filepath.Join(workspace.StateDir(root), "watchdog.pid")
}

// LogFile returns where a detached watchdog writes its log.
func LogFile(root string) string {
	return filepath.Join(workspace.StateDir(root), "watchdog.log")
}

// ReadPid returns the recorded watchdog pid, or 0 when no pid file exists.
func ReadPid(root string) (int, error) {
	data, err := os.ReadFile(PidFile(root))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether a watchdog holds the lock, and its pid when
// one is recorded.
func IsRunning(root string) (bool, int, error) {
	fl := flock.New(LockFile(root))
	locked, err := fl.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("probing watchdog lock: %w", err)
	}
	if !locked {
		pid, _ := ReadPid(root)
		return true, pid, nil
	}
	_ = fl.Unlock()
	return false, 0, nil
}

// Stop signals the running watchdog with SIGTERM and escalates to SIGKILL
// if it has not released the lock after a short wait.
func Stop(root string) error {
	running, pid, err := IsRunning(root)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("watchdog is not running")
	}
	if pid <= 0 {
		return fmt.Errorf("watchdog lock is held but no pid is recorded")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to %d: %w", pid, err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		still, _, err := IsRunning(root)
		if err != nil || !still {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Signal(syscall.SIGKILL)
	_ = os.Remove(PidFile(root))
	return nil
}

// Run sweeps until ctx is canceled. It refuses to start when another
// watchdog already holds the workspace's lock, so a cron job and a manual
// start cannot double-recover the same agents.
func (w *Watchdog) Run(ctx context.Context) error {
	if err := os.MkdirAll(workspace.StateDir(w.cfg.Root), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	fl := flock.New(LockFile(w.cfg.Root))
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring watchdog lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() { _ = fl.Unlock() }()

	pidFile := PidFile(w.cfg.Root)
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer os.Remove(pidFile)

	w.log.Info("watchdog started",
		"pid", os.Getpid(),
		"interval", w.cfg.CheckInterval,
		"stall_timeout", w.cfg.StallTimeout,
		"capture_lines", w.cfg.CaptureLines)
	w.record(ctx, journal.WatchdogStarted, "", fmt.Sprintf("pid %d", os.Getpid()))
	defer w.record(context.Background(), journal.WatchdogStopped, "", "")

	w.Sweep(ctx)

	timer := time.NewTimer(w.cfg.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watchdog stopping")
			return nil
		case <-timer.C:
			w.Sweep(ctx)
			timer.Reset(w.cfg.CheckInterval)
		}
	}
}

// Sweep performs one observation pass over all working agents and applies
// the verdicts. Exposed for the CLI's one-shot mode.
func (w *Watchdog) Sweep(ctx context.Context) []Outcome {
	working, err := w.agents.ListByStatus(roster.StatusWorking)
	if err != nil {
		w.log.Error("listing working agents failed", "error", err)
		return nil
	}

	observations := make([]Observation, 0, len(working))
	for _, ag := range working {
		observations = append(observations, w.observe(ag))
	}

	var outcomes []Outcome
	w.state, outcomes = Advance(w.state, time.Now(), w.cfg.StallTimeout, observations)

	for _, oc := range outcomes {
		w.apply(ctx, oc)
	}
	return outcomes
}

// observe captures one agent's liveness evidence. Errors are carried in
// the observation rather than returned; one broken agent must not hide
// the rest of the sweep.
func (w *Watchdog) observe(ag roster.Agent) Observation {
	obs := Observation{Agent: ag.Name, Session: ag.SessionID}

	alive, err := w.term.HasSession(ag.SessionID)
	if err != nil {
		obs.Err = fmt.Errorf("checking session %s: %w", ag.SessionID, err)
		return obs
	}
	if !alive {
		return obs
	}
	obs.Exists = true

	snapshot, err := w.term.CapturePane(ag.SessionID, w.cfg.CaptureLines)
	if err != nil {
		obs.Err = fmt.Errorf("capturing pane %s: %w", ag.SessionID, err)
		return obs
	}
	obs.Snapshot = snapshot
	return obs
}

func (w *Watchdog) apply(ctx context.Context, oc Outcome) {
	switch oc.Verdict {
	case VerdictBaseline:
		w.log.Debug("tracking agent", "agent", oc.Agent)

	case VerdictProgress:
		if err := w.agents.Touch(oc.Agent); err != nil {
			w.log.Warn("activity refresh failed", "agent", oc.Agent, "error", err)
		}

	case VerdictQuiet:
		w.log.Debug("agent quiet", "agent", oc.Agent, "idle", oc.Idle.Round(time.Second))

	case VerdictStalled:
		w.log.Warn("agent stalled", "agent", oc.Agent, "idle", oc.Idle.Round(time.Second))
		rep := w.rec.RecoverStalled(ctx, oc.Agent)
		w.log.Info("recovery finished", "agent", oc.Agent, "summary", rep.Summary())

	case VerdictCrashed:
		w.log.Warn("agent session missing", "agent", oc.Agent)
		rep := w.rec.RecoverCrashed(ctx, oc.Agent)
		w.log.Info("recovery finished", "agent", oc.Agent, "summary", rep.Summary())

	case VerdictError:
		w.log.Warn("agent unobservable, skipping", "agent", oc.Agent, "error", oc.Err)
	}
}

func (w *Watchdog) record(ctx context.Context, kind journal.Kind, agent, detail string) {
	if w.journal == nil {
		return
	}
	if err := w.journal.Append(ctx, kind, agent, detail); err != nil {
		w.log.Warn("journal append failed", "kind", kind, "error", err)
	}
}
