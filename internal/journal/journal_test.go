package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), ".muster", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalAppendAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for _, kind := range []Kind{AgentCreated, AgentStalled, AgentRemoved} {
		if err := j.Append(ctx, kind, "crux", "step"); err != nil {
			t.Fatalf("Append(%s): %v", kind, err)
		}
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].Kind != AgentRemoved {
		t.Errorf("newest entry kind = %s, want %s", entries[0].Kind, AgentRemoved)
	}
	if entries[2].Kind != AgentCreated {
		t.Errorf("oldest entry kind = %s, want %s", entries[2].Kind, AgentCreated)
	}
	for _, e := range entries {
		if e.ID == "" {
			t.Error("entry has empty id")
		}
		if e.Agent != "crux" {
			t.Errorf("entry agent = %q, want crux", e.Agent)
		}
		if time.Since(e.CreatedAt) > time.Minute {
			t.Errorf("entry CreatedAt %v is stale", e.CreatedAt)
		}
	}
}

func TestJournalRecentHonorsLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := j.Append(ctx, NotifySent, "crux", ""); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}

	// Non-positive limits fall back to the default rather than erroring.
	entries, err = j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent(0): %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("len(entries) = %d, want 5", len(entries))
	}
}

func TestJournalRecentForAgent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.Append(ctx, AgentStalled, "crux", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append(ctx, AgentCrashed, "hawk", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append(ctx, AgentRemoved, "crux", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := j.RecentForAgent(ctx, "crux", 10)
	if err != nil {
		t.Fatalf("RecentForAgent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Agent != "crux" {
			t.Errorf("entry agent = %q, want crux", e.Agent)
		}
	}
}

func TestJournalPrune(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.Append(ctx, AgentCreated, "old", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append(ctx, AgentCreated, "new", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	backdated := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339Nano)
	if _, err := j.db.Exec(`UPDATE events SET created_at = ? WHERE agent = ?`, backdated, "old"); err != nil {
		t.Fatalf("backdating entry: %v", err)
	}

	pruned, err := j.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Agent != "new" {
		t.Errorf("surviving entries = %+v, want just agent new", entries)
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Append(ctx, WatchdogStarted, "", "pid 1234"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != WatchdogStarted || entries[0].Detail != "pid 1234" {
		t.Errorf("entries after reopen = %+v", entries)
	}
}
