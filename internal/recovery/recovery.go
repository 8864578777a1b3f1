// Package recovery returns wedged agents to a clean slate.
//
// Recovery is best-effort and idempotent. Every step that can fail is
// logged and skipped rather than aborted: a half-recovered agent is still
// better than a wedged one squatting on locks. Running recovery twice for
// the same agent is safe; the second pass finds nothing left to do.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/steveyegge/muster/internal/journal"
	"github.com/steveyegge/muster/internal/lock"
	"github.com/steveyegge/muster/internal/notify"
	"github.com/steveyegge/muster/internal/roster"
	"github.com/steveyegge/muster/internal/terminal"
)

// DefaultGracePeriod is how long a stalled agent gets to exit after the
// interrupt before its session is killed outright.
const DefaultGracePeriod = 2 * time.Second

// Coordinator tears down stalled and crashed agents.
type Coordinator struct {
	locks    *lock.Manager
	roster   *roster.Roster
	term     terminal.Backend
	notifier notify.Notifier
	journal  *journal.Journal
	log      *slog.Logger
	grace    time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGracePeriod overrides the interrupt-to-kill delay.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		c.grace = d
	}
}

// WithJournal enables event journaling. Without it recovery only logs.
func WithJournal(j *journal.Journal) Option {
	return func(c *Coordinator) {
		c.journal = j
	}
}

// New builds a Coordinator over the shared coordination state.
func New(locks *lock.Manager, ros *roster.Roster, term terminal.Backend, n notify.Notifier, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = notify.Discard{}
	}
	c := &Coordinator{
		locks:    locks,
		roster:   ros,
		term:     term,
		notifier: n,
		log:      logger.With("component", "recovery"),
		grace:    DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report describes what one recovery pass actually did.
type Report struct {
	Agent         string
	Reason        string
	Session       string
	Terminated    bool
	LocksReleased int
	Removed       bool
	Notified      bool
	Errs          []error
}

func (r *Report) addErr(step string, err error) {
	r.Errs = append(r.Errs, fmt.Errorf("%s: %w", step, err))
}

// Summary renders the report as a single human-readable line.
func (r *Report) Summary() string {
	var steps []string
	if r.Terminated {
		steps = append(steps, "terminated session "+r.Session)
	}
	steps = append(steps, fmt.Sprintf("released %d locks", r.LocksReleased))
	if r.Removed {
		steps = append(steps, "removed from roster")
	}
	if r.Notified {
		steps = append(steps, "notified")
	}
	line := fmt.Sprintf("%s (%s): %s", r.Agent, r.Reason, strings.Join(steps, ", "))
	if len(r.Errs) > 0 {
		line += fmt.Sprintf(" [%d errors]", len(r.Errs))
	}
	return line
}

// RecoverStalled recovers an agent whose session is alive but inert:
// interrupt, wait out the grace period, kill the session, release the
// agent's locks, drop it from the roster, then notify. Errors along the
// way are collected in the report, never returned.
func (c *Coordinator) RecoverStalled(ctx context.Context, agentName string) Report {
	rep := Report{Agent: agentName, Reason: "stalled"}

	ag, err := c.roster.Find(agentName)
	if err != nil {
		if errors.Is(err, roster.ErrAgentNotFound) {
			c.log.Debug("agent already gone", "agent", agentName)
			return rep
		}
		rep.addErr("looking up agent", err)
		c.log.Error("roster lookup failed", "agent", agentName, "error", err)
		return rep
	}
	rep.Session = ag.SessionID

	// Mark the roster first so a concurrent observer sees the agent as
	// stalled rather than working while teardown runs.
	if err := c.roster.UpdateStatus(agentName, roster.StatusStalled); err != nil {
		rep.addErr("marking stalled", err)
		c.log.Warn("could not mark agent stalled", "agent", agentName, "error", err)
	}

	c.terminate(ctx, &rep)
	c.releaseAndRemove(ctx, &rep)

	msg := fmt.Sprintf("agent %s stalled; %s", agentName, rep.Summary())
	c.notifyEvent(ctx, &rep, notify.EventAgentStalled, msg)
	c.record(ctx, journal.AgentStalled, agentName, rep.Summary())

	c.log.Info("stalled agent recovered", "agent", agentName, "summary", rep.Summary())
	return rep
}

// RecoverCrashed recovers an agent whose session no longer exists. The
// session id is looked up before the roster entry goes away; there is
// nothing to terminate.
func (c *Coordinator) RecoverCrashed(ctx context.Context, agentName string) Report {
	rep := Report{Agent: agentName, Reason: "crashed"}

	ag, err := c.roster.Find(agentName)
	if err != nil {
		if errors.Is(err, roster.ErrAgentNotFound) {
			c.log.Debug("agent already gone", "agent", agentName)
			return rep
		}
		rep.addErr("looking up agent", err)
		c.log.Error("roster lookup failed", "agent", agentName, "error", err)
		return rep
	}
	rep.Session = ag.SessionID

	c.releaseAndRemove(ctx, &rep)

	msg := fmt.Sprintf("agent %s crashed; %s", agentName, rep.Summary())
	c.notifyEvent(ctx, &rep, notify.EventAgentCrashed, msg)
	c.record(ctx, journal.AgentCrashed, agentName, rep.Summary())

	c.log.Info("crashed agent cleaned up", "agent", agentName, "summary", rep.Summary())
	return rep
}

// terminate shuts down the agent's session, politely first.
func (c *Coordinator) terminate(ctx context.Context, rep *Report) {
	alive, err := c.term.HasSession(rep.Session)
	if err != nil {
		rep.addErr("checking session", err)
		c.log.Warn("session check failed", "session", rep.Session, "error", err)
	} else if !alive {
		return
	}

	if err := c.term.SendText(rep.Session, "C-c"); err != nil {
		rep.addErr("interrupting session", err)
		c.log.Warn("interrupt failed", "session", rep.Session, "error", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(c.grace):
	}

	if err := c.term.KillSession(rep.Session); err != nil {
		// The interrupt may have landed and taken the session with it.
		if alive, herr := c.term.HasSession(rep.Session); herr == nil && !alive {
			rep.Terminated = true
			return
		}
		rep.addErr("killing session", err)
		c.log.Warn("kill failed", "session", rep.Session, "error", err)
		return
	}
	rep.Terminated = true
}

// releaseAndRemove frees the agent's locks before dropping its roster
// entry, so no window exists where the agent is gone but still holds locks
// nobody can attribute.
func (c *Coordinator) releaseAndRemove(ctx context.Context, rep *Report) {
	n, err := c.locks.ReleaseAll(rep.Session)
	if err != nil {
		rep.addErr("releasing locks", err)
		c.log.Warn("lock release failed", "session", rep.Session, "error", err)
	}
	rep.LocksReleased = n
	if n > 0 {
		c.record(ctx, journal.LocksReleased, rep.Agent, fmt.Sprintf("released %d locks held by session %s", n, rep.Session))
	}

	removed, err := c.roster.Remove(rep.Agent)
	if err != nil {
		rep.addErr("removing from roster", err)
		c.log.Warn("roster removal failed", "agent", rep.Agent, "error", err)
	}
	rep.Removed = removed
	if removed {
		c.record(ctx, journal.AgentRemoved, rep.Agent, "removed by recovery")
	}
}

func (c *Coordinator) notifyEvent(ctx context.Context, rep *Report, t notify.EventType, msg string) {
	rep.Notified = c.notifier.Notify(ctx, notify.NewEvent(t, rep.Agent, msg))
	if rep.Notified {
		c.record(ctx, journal.NotifySent, rep.Agent, string(t))
		return
	}
	// An unconfigured channel is silence, not failure.
	if _, quiet := c.notifier.(notify.Discard); !quiet {
		c.record(ctx, journal.NotifyFailed, rep.Agent, string(t))
	}
}

func (c *Coordinator) record(ctx context.Context, kind journal.Kind, agent, detail string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Append(ctx, kind, agent, detail); err != nil {
		c.log.Warn("journal append failed", "kind", kind, "error", err)
	}
}
