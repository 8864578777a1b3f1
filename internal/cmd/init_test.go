package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/muster/internal/workspace"
)

func TestInitScaffoldsWorkspace(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	out, err := runCapture(t, runInit, initCmd, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Initialized muster workspace") {
		t.Errorf("output = %q", out)
	}

	for _, p := range []string{
		filepath.Join(root, workspace.Marker),
		locksDir(root),
		journalPath(root),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}

	if !workspace.IsWorkspace(root) {
		t.Error("IsWorkspace = false after init")
	}
}

func TestInitRefusesExistingWorkspace(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	if _, err := runCapture(t, runInit, initCmd, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := runCapture(t, runInit, initCmd, nil); err == nil {
		t.Fatal("second init succeeded, want error")
	}
}

func TestCommandsOutsideWorkspaceFail(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := runCapture(t, runList, listCmd, nil); err == nil {
		t.Fatal("list outside a workspace succeeded")
	}
}

func TestHistoryRecordsRegistryEvents(t *testing.T) {
	initWorkspace(t)

	if _, err := runCapture(t, runAgentCreate, agentCreateCmd, []string{"fixer", "session-a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := runCapture(t, runAgentClose, agentCloseCmd, []string{"fixer"}); err != nil {
		t.Fatalf("close: %v", err)
	}

	out, err := runCapture(t, runHistory, historyCmd, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"agent_created", "agent_closed", "fixer"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryFiltersByAgent(t *testing.T) {
	initWorkspace(t)

	for _, a := range [][]string{{"alpha", "s1"}, {"beta", "s2"}} {
		if _, err := runCapture(t, runAgentCreate, agentCreateCmd, a); err != nil {
			t.Fatalf("create %v: %v", a, err)
		}
	}

	historyAgent = "alpha"
	defer func() { historyAgent = "" }()

	out, err := runCapture(t, runHistory, historyCmd, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "alpha") || strings.Contains(out, "beta") {
		t.Errorf("filtered history wrong:\n%s", out)
	}
}

func TestHistoryEmptyJournal(t *testing.T) {
	initWorkspace(t)

	out, err := runCapture(t, runHistory, historyCmd, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No events recorded") {
		t.Errorf("output = %q", out)
	}
}
