package version

import (
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	tests := []struct {
		name   string
		hash   string
		expect string
	}{
		{"full SHA", "abcdef1234567890abcdef1234567890abcdef12", "abcdef123456"},
		{"exactly 12", "abcdef123456", "abcdef123456"},
		{"short hash", "abcdef", "abcdef"},
		{"empty", "", ""},
		{"13 chars", "abcdef1234567", "abcdef123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShortCommit(tt.hash); got != tt.expect {
				t.Errorf("ShortCommit(%q) = %q, want %q", tt.hash, got, tt.expect)
			}
		})
	}
}

func TestString(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	Version, Commit = "v0.2.0", ""
	if got := String(); got != "v0.2.0" {
		t.Errorf("String() = %q, want bare version without commit", got)
	}

	Commit = "abcdef1234567890"
	got := String()
	if !strings.HasPrefix(got, "v0.2.0 (") || !strings.Contains(got, "abcdef123456") {
		t.Errorf("String() = %q, want version with short commit", got)
	}
}
