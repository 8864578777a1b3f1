package ui

import (
	"strings"
	"testing"
)

func TestNewTable(t *testing.T) {
	tbl := NewTable(
		Column{Name: "Name", Width: 10},
		Column{Name: "Value", Width: 20},
	)
	if tbl == nil {
		t.Fatal("NewTable() returned nil")
	}
	if len(tbl.columns) != 2 {
		t.Errorf("columns = %d, want 2", len(tbl.columns))
	}
	if !tbl.headerSep {
		t.Error("headerSep should default to true")
	}
	if tbl.indent != "  " {
		t.Errorf("indent = %q, want %q", tbl.indent, "  ")
	}
}

func TestTableAddRow(t *testing.T) {
	tbl := NewTable(
		Column{Name: "A", Width: 5},
		Column{Name: "B", Width: 5},
	)

	t.Run("exact columns", func(t *testing.T) {
		tbl.AddRow("x", "y")
		if len(tbl.rows) != 1 {
			t.Fatalf("rows = %d, want 1", len(tbl.rows))
		}
		if tbl.rows[0][0] != "x" || tbl.rows[0][1] != "y" {
			t.Errorf("row = %v, want [x y]", tbl.rows[0])
		}
	})

	t.Run("fewer columns padded", func(t *testing.T) {
		tbl.AddRow("only-one")
		last := tbl.rows[len(tbl.rows)-1]
		if len(last) != 2 {
			t.Fatalf("row len = %d, want 2 (padded)", len(last))
		}
		if last[1] != "" {
			t.Errorf("padded value = %q, want empty", last[1])
		}
	})

	t.Run("chaining", func(t *testing.T) {
		if ret := tbl.AddRow("a", "b"); ret != tbl {
			t.Error("AddRow should return the table for chaining")
		}
	})
}

func TestTableRenderEmpty(t *testing.T) {
	if result := NewTable().Render(); result != "" {
		t.Errorf("Render() with no columns = %q, want empty", result)
	}
}

func TestTableRenderBasic(t *testing.T) {
	tbl := NewTable(
		Column{Name: "ID", Width: 5},
		Column{Name: "Name", Width: 10},
	)
	tbl.SetHeaderSeparator(false)
	tbl.SetIndent("")
	tbl.AddRow("1", "alice")
	tbl.AddRow("2", "bob")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (header + 2 rows), got %d: %v", len(lines), lines)
	}
	if row := stripAnsi(lines[1]); !strings.Contains(row, "1") || !strings.Contains(row, "alice") {
		t.Errorf("row 1 missing data: %q", row)
	}
	if row := stripAnsi(lines[2]); !strings.Contains(row, "2") || !strings.Contains(row, "bob") {
		t.Errorf("row 2 missing data: %q", row)
	}
}

func TestTableRenderWithSeparator(t *testing.T) {
	tbl := NewTable(Column{Name: "X", Width: 5})
	tbl.SetIndent("")
	tbl.AddRow("val")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (header + sep + row), got %d", len(lines))
	}
	if sep := stripAnsi(lines[1]); !strings.Contains(sep, "─") {
		t.Errorf("separator line doesn't look like a rule: %q", sep)
	}
}

func TestTableRenderWithIndent(t *testing.T) {
	tbl := NewTable(Column{Name: "A", Width: 5})
	tbl.SetIndent(">>>")
	tbl.AddRow("x")

	for _, line := range strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n") {
		if !strings.HasPrefix(line, ">>>") {
			t.Errorf("line missing indent: %q", line)
		}
	}
}

func TestTableRenderTruncation(t *testing.T) {
	tbl := NewTable(Column{Name: "N", Width: 8})
	tbl.SetHeaderSeparator(false)
	tbl.SetIndent("")
	tbl.AddRow("this-is-way-too-long-for-the-column")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	if len(lines) < 2 {
		t.Fatal("expected at least 2 lines")
	}
	row := strings.TrimSpace(stripAnsi(lines[1]))
	if !strings.HasSuffix(row, "...") {
		t.Errorf("truncated row should end with '...': %q", row)
	}
	if len(row) > 8 {
		t.Errorf("truncated row too wide: %d chars", len(row))
	}
}

func TestTablePad(t *testing.T) {
	tbl := &Table{}
	if got := tbl.pad("hi", "hi", 10, AlignLeft); got != "hi        " {
		t.Errorf("pad left = %q", got)
	}
	if got := tbl.pad("hi", "hi", 10, AlignRight); got != "        hi" {
		t.Errorf("pad right = %q", got)
	}
	if got := tbl.pad("hi", "hi", 10, AlignCenter); got != "    hi    " {
		t.Errorf("pad center = %q", got)
	}
	if got := tbl.pad("hello", "hello", 5, AlignLeft); got != "hello" {
		t.Errorf("pad exact = %q", got)
	}
	// At or beyond the width, the styled text passes through untouched.
	if got := tbl.pad("toolong", "toolong", 3, AlignLeft); got != "toolong" {
		t.Errorf("pad overflow = %q", got)
	}
}

func TestStripAnsi(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no ansi", "hello", "hello"},
		{"bold", "\x1b[1mhello\x1b[0m", "hello"},
		{"color", "\x1b[31mred\x1b[0m", "red"},
		{"multiple", "\x1b[1m\x1b[31mbold red\x1b[0m", "bold red"},
		{"empty", "", ""},
		{"mixed", "before\x1b[32mgreen\x1b[0mafter", "beforegreenafter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripAnsi(tt.input); got != tt.want {
				t.Errorf("stripAnsi(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
