package terminal

import (
	"errors"
	"testing"
)

func TestDoubleSessionLifecycle(t *testing.T) {
	d := NewDouble()

	if ok, err := d.HasSession("mu-a"); err != nil || ok {
		t.Errorf("HasSession(unknown) = %v, %v", ok, err)
	}

	d.AddSession("mu-a", "> waiting")
	if ok, err := d.HasSession("mu-a"); err != nil || !ok {
		t.Errorf("HasSession = %v, %v", ok, err)
	}

	if err := d.KillSession("mu-a"); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	if !d.Killed("mu-a") {
		t.Error("kill not recorded")
	}
	if ok, _ := d.HasSession("mu-a"); ok {
		t.Error("killed session still exists")
	}
}

func TestDoubleScriptedSnapshots(t *testing.T) {
	d := NewDouble()
	d.AddSession("mu-a", "")
	d.SetSnapshots("mu-a", "one", "two", "three")

	want := []string{"one", "two", "three", "three", "three"}
	for i, w := range want {
		got, err := d.CapturePane("mu-a", 50)
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		if got != w {
			t.Errorf("capture %d = %q, want %q", i, got, w)
		}
	}
}

func TestDoubleRecordsSentText(t *testing.T) {
	d := NewDouble()
	d.AddSession("mu-a", "")

	if err := d.SendText("mu-a", "C-c"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	log := d.SentLog("mu-a")
	if len(log) != 1 || log[0] != "C-c" {
		t.Errorf("sent log = %v", log)
	}
}

func TestDoubleErrorInjection(t *testing.T) {
	d := NewDouble()
	d.AddSession("mu-a", "out")

	boom := errors.New("boom")
	d.FailCapture("mu-a", boom)
	if _, err := d.CapturePane("mu-a", 10); !errors.Is(err, boom) {
		t.Errorf("capture err = %v, want boom", err)
	}

	d.FailExists("mu-a", boom)
	if _, err := d.HasSession("mu-a"); !errors.Is(err, boom) {
		t.Errorf("exists err = %v, want boom", err)
	}
}

func TestTmuxArgsSocketScoping(t *testing.T) {
	plain := NewTmux()
	got := plain.args("has-session", "-t", "=mu-a")
	if len(got) != 3 || got[0] != "has-session" {
		t.Errorf("default socket args = %v", got)
	}

	scoped := &Tmux{Socket: "muster"}
	got = scoped.args("kill-session", "-t", "=mu-a")
	if len(got) != 5 || got[0] != "-L" || got[1] != "muster" {
		t.Errorf("scoped args = %v", got)
	}
}

func TestTrimCapture(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		lines int
		want  string
	}{
		{"strips pane padding", "a\nb\n\n\n\n", 10, "a\nb"},
		{"enforces line cap", "a\nb\nc\nd\n", 2, "c\nd"},
		{"plain", "only\n", 5, "only"},
		{"empty", "\n\n", 5, ""},
	}
	for _, tt := range tests {
		if got := trimCapture(tt.in, tt.lines); got != tt.want {
			t.Errorf("%s: trimCapture = %q, want %q", tt.name, got, tt.want)
		}
	}
}
