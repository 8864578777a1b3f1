// Package workspace locates the muster workspace root for a directory tree.
//
// A workspace is any directory whose root contains a .muster/ directory
// with a config file. All coordination state (locks, roster, journal,
// watchdog runtime) lives under that directory.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound indicates no muster workspace was found.
var ErrNotFound = errors.New("not in a muster workspace (run 'mu init' at the project root)")

// Dir is the name of the state directory at the workspace root.
const Dir = ".muster"

// Marker is the file that identifies a workspace. A bare .muster/
// directory is not enough; it could be leftover from anything.
const Marker = ".muster/config.toml"

// Find locates the workspace root by walking up from startDir.
// Does not resolve symlinks, to stay consistent with os.Getwd().
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, Marker)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// FindFromCwd locates the workspace root from the current working directory.
func FindFromCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return Find(cwd)
}

// StateDir returns the .muster directory for a workspace root.
func StateDir(root string) string {
	return filepath.Join(root, Dir)
}

// IsWorkspace reports whether dir is itself a workspace root.
func IsWorkspace(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, Marker))
	return err == nil
}
