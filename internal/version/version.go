// Package version records the build identity of the mu binary.
package version

import "fmt"

// Version is the semantic version. Overridden at release time with
//
//	go build -ldflags "-X github.com/steveyegge/muster/internal/version.Version=v0.3.0"
var Version = "v0.1.0-dev"

// Commit is the git commit the binary was built from, set via ldflags.
var Commit = ""

// String renders the version, with the short commit when one is recorded.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, ShortCommit(Commit))
}

// ShortCommit truncates a commit hash to 12 characters for display.
func ShortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
