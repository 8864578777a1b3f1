package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/steveyegge/muster/internal/config"
	"github.com/steveyegge/muster/internal/journal"
	"github.com/steveyegge/muster/internal/lock"
	"github.com/steveyegge/muster/internal/roster"
	"github.com/steveyegge/muster/internal/workspace"
)

// env bundles the handles most commands need once the workspace is found.
type env struct {
	Root   string
	Config *config.Config
	Roster *roster.Roster
	Locks  *lock.Manager
}

// openEnv locates the enclosing workspace and opens its coordination state.
func openEnv() (*env, error) {
	root, err := workspace.FindFromCwd()
	if err != nil {
		return nil, err
	}
	return openEnvAt(root)
}

// openEnvAt opens the workspace rooted at root without searching.
func openEnvAt(root string) (*env, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &env{
		Root:   root,
		Config: cfg,
		Roster: roster.New(root),
		Locks:  lock.NewManager(locksDir(root), lock.WithExpiry(cfg.LockExpiry())),
	}, nil
}

// locksDir returns the lock sentinel directory for a workspace root.
func locksDir(root string) string {
	return filepath.Join(workspace.StateDir(root), "locks")
}

// journalPath returns the event journal location for a workspace root.
func journalPath(root string) string {
	return filepath.Join(workspace.StateDir(root), "journal.db")
}

// openJournal opens the workspace's event journal.
func (e *env) openJournal() (*journal.Journal, error) {
	return journal.Open(journalPath(e.Root))
}

// cliLogger returns the logger commands hand to the coordination packages.
// Warnings and errors only; routine progress stays off the terminal so
// command output remains scriptable.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}
