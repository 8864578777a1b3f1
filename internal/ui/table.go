package ui

import (
	"regexp"
	"strings"
)

// Alignment controls horizontal placement within a column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Column describes one table column. Width is the content width in cells;
// values wider than that are truncated with an ellipsis.
type Column struct {
	Name  string
	Width int
	Align Alignment
}

// Table renders rows as fixed-width columns. Cell values may carry ANSI
// styling; widths are measured on the stripped text.
type Table struct {
	columns   []Column
	rows      [][]string
	headerSep bool
	indent    string
}

// NewTable creates a table with the given columns, a header separator,
// and a two-space indent.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:   columns,
		headerSep: true,
		indent:    "  ",
	}
}

// SetIndent sets the per-line prefix. Returns the table for chaining.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the rule under the header. Returns the table
// for chaining.
func (t *Table) SetHeaderSeparator(on bool) *Table {
	t.headerSep = on
	return t
}

// AddRow appends a row. Missing cells are padded with empty strings,
// extra cells are dropped. Returns the table for chaining.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return t
}

// Render produces the table as a newline-terminated string. A table with
// no columns renders as empty.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	var b strings.Builder

	header := make([]string, len(t.columns))
	for i, col := range t.columns {
		header[i] = t.cell(Header.Render(col.Name), col.Name, col)
	}
	b.WriteString(t.indent + strings.Join(header, "  ") + "\n")

	if t.headerSep {
		sep := make([]string, len(t.columns))
		for i, col := range t.columns {
			sep[i] = strings.Repeat("─", col.Width)
		}
		b.WriteString(t.indent + Muted.Render(strings.Join(sep, "  ")) + "\n")
	}

	for _, row := range t.rows {
		cells := make([]string, len(t.columns))
		for i, col := range t.columns {
			cells[i] = t.cell(row[i], stripAnsi(row[i]), col)
		}
		b.WriteString(t.indent + strings.Join(cells, "  ") + "\n")
	}

	return b.String()
}

// cell truncates then pads one value to its column width.
func (t *Table) cell(styled, plain string, col Column) string {
	if len(plain) > col.Width && col.Width > 3 {
		plain = plain[:col.Width-3] + "..."
		styled = plain
	}
	return t.pad(styled, plain, col.Width, col.Align)
}

// pad aligns styled text within width, measuring the plain form so ANSI
// codes don't count toward the width.
func (t *Table) pad(styled, plain string, width int, align Alignment) string {
	gap := width - len(plain)
	if gap <= 0 {
		return styled
	}
	switch align {
	case AlignRight:
		return strings.Repeat(" ", gap) + styled
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", gap-left)
	default:
		return styled + strings.Repeat(" ", gap)
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripAnsi removes ANSI SGR sequences.
func stripAnsi(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
