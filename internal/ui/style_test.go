package ui

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/muster/internal/roster"
)

func TestStatusBadgeLabels(t *testing.T) {
	tests := []struct {
		status roster.Status
		want   string
	}{
		{roster.StatusIdle, "Idle"},
		{roster.StatusWorking, "Working"},
		{roster.StatusStalled, "Stalled"},
	}
	for _, tt := range tests {
		if got := stripAnsi(StatusBadge(tt.status)); got != tt.want {
			t.Errorf("StatusBadge(%v) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "never"},
		{"seconds", now.Add(-30 * time.Second), "30s ago"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
		{"days", now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelativeTime(tt.t); got != tt.want {
				t.Errorf("RelativeTime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShortenPath(t *testing.T) {
	if got := ShortenPath("/a/b", 20); got != "/a/b" {
		t.Errorf("short path altered: %q", got)
	}
	got := ShortenPath("/very/long/path/to/some/file.go", 15)
	if len(got) != 15 || !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "file.go") {
		t.Errorf("ShortenPath = %q, want 15-char tail with ellipsis", got)
	}
}

func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestShouldUseColorEnvOverrides(t *testing.T) {
	unset(t, "NO_COLOR")
	unset(t, "CLICOLOR")
	unset(t, "CLICOLOR_FORCE")

	t.Setenv("CLICOLOR_FORCE", "1")
	if !ShouldUseColor() {
		t.Error("CLICOLOR_FORCE should enable color without a TTY")
	}

	// NO_COLOR wins even against the force flag.
	t.Setenv("NO_COLOR", "1")
	if ShouldUseColor() {
		t.Error("NO_COLOR should disable color")
	}
}

func TestShouldUseEmojiOverride(t *testing.T) {
	t.Setenv("MU_NO_EMOJI", "1")
	if ShouldUseEmoji() {
		t.Error("MU_NO_EMOJI should disable emoji")
	}
}

func TestIsAgentMode(t *testing.T) {
	unset(t, "MU_AGENT_MODE")
	unset(t, "CLAUDE_CODE")
	if IsAgentMode() {
		t.Error("agent mode on without any trigger")
	}

	t.Setenv("MU_AGENT_MODE", "1")
	if !IsAgentMode() {
		t.Error("MU_AGENT_MODE=1 should enable agent mode")
	}

	unset(t, "MU_AGENT_MODE")
	t.Setenv("CLAUDE_CODE", "1")
	if !IsAgentMode() {
		t.Error("CLAUDE_CODE should enable agent mode")
	}
}
