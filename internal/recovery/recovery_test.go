package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/muster/internal/journal"
	"github.com/steveyegge/muster/internal/lock"
	"github.com/steveyegge/muster/internal/notify"
	"github.com/steveyegge/muster/internal/roster"
	"github.com/steveyegge/muster/internal/terminal"
)

// notifierSpy records events and reports a scripted delivery outcome.
type notifierSpy struct {
	events  []notify.Event
	deliver bool
}

func (s *notifierSpy) Notify(_ context.Context, e notify.Event) bool {
	s.events = append(s.events, e)
	return s.deliver
}

type fixture struct {
	coord  *Coordinator
	roster *roster.Roster
	locks  *lock.Manager
	term   *terminal.Double
	spy    *notifierSpy
	root   string
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		roster: roster.New(root),
		locks:  lock.NewManager(filepath.Join(root, ".muster", "locks")),
		term:   terminal.NewDouble(),
		spy:    &notifierSpy{deliver: true},
		root:   root,
	}
	opts = append([]Option{WithGracePeriod(time.Millisecond)}, opts...)
	f.coord = New(f.locks, f.roster, f.term, f.spy, testLogger(), opts...)
	return f
}

// workingAgent registers an agent and moves it to Working.
func (f *fixture) workingAgent(t *testing.T, name, session string) {
	t.Helper()
	if _, err := f.roster.Create(name, session); err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	if err := f.roster.UpdateStatus(name, roster.StatusWorking); err != nil {
		t.Fatalf("UpdateStatus(%s): %v", name, err)
	}
}

func (f *fixture) holdLock(t *testing.T, session, file string) {
	t.Helper()
	res, err := f.locks.Acquire(filepath.Join(f.root, file), session, "edit")
	if err != nil || !res.Granted {
		t.Fatalf("Acquire(%s, %s): granted=%v err=%v", file, session, res.Granted, err)
	}
}

func TestRecoverStalledFullSequence(t *testing.T) {
	f := newFixture(t)
	f.workingAgent(t, "crux", "mu-crux")
	f.term.AddSession("mu-crux", "$ waiting")
	f.holdLock(t, "mu-crux", "a.go")
	f.holdLock(t, "mu-crux", "b.go")
	f.holdLock(t, "mu-hawk", "c.go")

	rep := f.coord.RecoverStalled(context.Background(), "crux")

	if len(rep.Errs) != 0 {
		t.Fatalf("Errs = %v, want none", rep.Errs)
	}
	if !rep.Terminated {
		t.Error("report says session was not terminated")
	}
	if !f.term.Killed("mu-crux") {
		t.Error("session was not killed")
	}
	sent := f.term.SentLog("mu-crux")
	if len(sent) != 1 || sent[0] != "C-c" {
		t.Errorf("SentLog = %v, want one interrupt", sent)
	}
	if rep.LocksReleased != 2 {
		t.Errorf("LocksReleased = %d, want 2", rep.LocksReleased)
	}
	remaining, err := f.locks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].OwnerSessionID != "mu-hawk" {
		t.Errorf("remaining locks = %+v, want only mu-hawk's", remaining)
	}
	if !rep.Removed {
		t.Error("agent was not removed from roster")
	}
	if _, err := f.roster.Find("crux"); !errors.Is(err, roster.ErrAgentNotFound) {
		t.Errorf("Find after recovery = %v, want ErrAgentNotFound", err)
	}
	if !rep.Notified {
		t.Error("report says notification was not delivered")
	}
	if len(f.spy.events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(f.spy.events))
	}
	ev := f.spy.events[0]
	if ev.Type != notify.EventAgentStalled {
		t.Errorf("event type = %s, want %s", ev.Type, notify.EventAgentStalled)
	}
	if ev.AgentName != "crux" {
		t.Errorf("event agent = %s, want crux", ev.AgentName)
	}
}

func TestRecoverStalledIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.workingAgent(t, "crux", "mu-crux")
	f.term.AddSession("mu-crux", "")

	first := f.coord.RecoverStalled(context.Background(), "crux")
	if !first.Removed {
		t.Fatal("first pass did not remove the agent")
	}

	second := f.coord.RecoverStalled(context.Background(), "crux")
	if len(second.Errs) != 0 {
		t.Errorf("second pass Errs = %v, want none", second.Errs)
	}
	if second.Removed || second.Terminated || second.LocksReleased != 0 {
		t.Errorf("second pass did work: %+v", second)
	}
	if len(f.spy.events) != 1 {
		t.Errorf("len(events) = %d, want 1 (no duplicate notifications)", len(f.spy.events))
	}
}

func TestRecoverCrashedSkipsTermination(t *testing.T) {
	f := newFixture(t)
	f.workingAgent(t, "crux", "mu-crux")
	f.holdLock(t, "mu-crux", "a.go")
	// No session registered with the double: it crashed.

	rep := f.coord.RecoverCrashed(context.Background(), "crux")

	if len(rep.Errs) != 0 {
		t.Fatalf("Errs = %v, want none", rep.Errs)
	}
	if rep.Session != "mu-crux" {
		t.Errorf("Session = %q, want mu-crux (looked up before removal)", rep.Session)
	}
	if rep.Terminated {
		t.Error("crash recovery attempted termination")
	}
	if got := f.term.SentLog("mu-crux"); len(got) != 0 {
		t.Errorf("SentLog = %v, want none", got)
	}
	if rep.LocksReleased != 1 {
		t.Errorf("LocksReleased = %d, want 1", rep.LocksReleased)
	}
	if !rep.Removed {
		t.Error("agent was not removed")
	}
	if len(f.spy.events) != 1 || f.spy.events[0].Type != notify.EventAgentCrashed {
		t.Errorf("events = %+v, want one agent_crashed", f.spy.events)
	}
}

func TestRecoverStalledSessionAlreadyGone(t *testing.T) {
	f := newFixture(t)
	f.workingAgent(t, "crux", "mu-crux")
	// Session died between the stall verdict and recovery running.

	rep := f.coord.RecoverStalled(context.Background(), "crux")

	if len(rep.Errs) != 0 {
		t.Fatalf("Errs = %v, want none", rep.Errs)
	}
	if rep.Terminated {
		t.Error("Terminated = true for a session that never existed")
	}
	if !rep.Removed {
		t.Error("agent was not removed despite missing session")
	}
}

func TestRecoverStalledContinuesPastErrors(t *testing.T) {
	f := newFixture(t)
	f.workingAgent(t, "crux", "mu-crux")
	f.term.AddSession("mu-crux", "")
	f.term.FailExists("mu-crux", errors.New("tmux server unreachable"))
	f.holdLock(t, "mu-crux", "a.go")

	rep := f.coord.RecoverStalled(context.Background(), "crux")

	if len(rep.Errs) == 0 {
		t.Fatal("expected the session check error to be collected")
	}
	if rep.LocksReleased != 1 {
		t.Errorf("LocksReleased = %d, want 1 (teardown must continue)", rep.LocksReleased)
	}
	if !rep.Removed {
		t.Error("agent was not removed despite terminal errors")
	}
	if !rep.Notified {
		t.Error("notification was skipped after terminal errors")
	}
}

func TestRecoverStalledLeavesIdleAgents(t *testing.T) {
	f := newFixture(t)
	if _, err := f.roster.Create("crux", "mu-crux"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.term.AddSession("mu-crux", "")

	rep := f.coord.RecoverStalled(context.Background(), "crux")

	if rep.Removed {
		t.Error("recovery removed an idle agent")
	}
	if _, err := f.roster.Find("crux"); err != nil {
		t.Errorf("idle agent disappeared from roster: %v", err)
	}
	if len(rep.Errs) == 0 {
		t.Error("expected transition errors for an idle agent")
	}
}

func TestRecoverReportsFailedNotification(t *testing.T) {
	f := newFixture(t)
	f.spy.deliver = false
	f.workingAgent(t, "crux", "mu-crux")

	rep := f.coord.RecoverCrashed(context.Background(), "crux")

	if rep.Notified {
		t.Error("Notified = true despite delivery failure")
	}
	if !rep.Removed {
		t.Error("delivery failure must not block removal")
	}
}

func TestRecoveryWritesJournal(t *testing.T) {
	root := t.TempDir()
	j, err := journal.Open(filepath.Join(root, ".muster", "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()

	f := &fixture{
		roster: roster.New(root),
		locks:  lock.NewManager(filepath.Join(root, ".muster", "locks")),
		term:   terminal.NewDouble(),
		spy:    &notifierSpy{deliver: true},
		root:   root,
	}
	f.coord = New(f.locks, f.roster, f.term, f.spy, testLogger(),
		WithGracePeriod(time.Millisecond), WithJournal(j))

	f.workingAgent(t, "crux", "mu-crux")
	f.term.AddSession("mu-crux", "")
	f.holdLock(t, "mu-crux", "a.go")

	f.coord.RecoverStalled(context.Background(), "crux")

	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	kinds := make(map[journal.Kind]bool, len(entries))
	for _, e := range entries {
		kinds[e.Kind] = true
	}
	for _, want := range []journal.Kind{
		journal.LocksReleased, journal.AgentRemoved, journal.NotifySent, journal.AgentStalled,
	} {
		if !kinds[want] {
			t.Errorf("journal missing %s entry (got %v)", want, kinds)
		}
	}
}

func TestRecoveryJournalsFailedDelivery(t *testing.T) {
	root := t.TempDir()
	j, err := journal.Open(filepath.Join(root, ".muster", "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()

	f := &fixture{
		roster: roster.New(root),
		locks:  lock.NewManager(filepath.Join(root, ".muster", "locks")),
		term:   terminal.NewDouble(),
		spy:    &notifierSpy{deliver: false},
		root:   root,
	}
	f.coord = New(f.locks, f.roster, f.term, f.spy, testLogger(),
		WithGracePeriod(time.Millisecond), WithJournal(j))

	f.workingAgent(t, "crux", "mu-crux")
	f.term.AddSession("mu-crux", "")

	f.coord.RecoverStalled(context.Background(), "crux")

	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var sawFailed bool
	for _, e := range entries {
		if e.Kind == journal.NotifySent {
			t.Error("journal records notify_sent for a failed delivery")
		}
		if e.Kind == journal.NotifyFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Errorf("journal missing notify_failed entry")
	}
}

func TestReportSummary(t *testing.T) {
	rep := Report{
		Agent:         "crux",
		Reason:        "stalled",
		Session:       "mu-crux",
		Terminated:    true,
		LocksReleased: 2,
		Removed:       true,
		Notified:      true,
	}
	got := rep.Summary()
	for _, want := range []string{"crux", "stalled", "terminated session mu-crux", "released 2 locks", "removed", "notified"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}
}
