package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/steveyegge/muster/internal/roster"
)

// Color palette
var (
	colorGreen  = lipgloss.Color("76")
	colorOrange = lipgloss.Color("214")
	colorRed    = lipgloss.Color("196")
	colorBlue   = lipgloss.Color("12")
	colorGray   = lipgloss.Color("242")
)

var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Header  = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	Muted   = lipgloss.NewStyle().Foreground(colorGray)
	Success = lipgloss.NewStyle().Foreground(colorGreen)
	Warning = lipgloss.NewStyle().Foreground(colorOrange)
	Danger  = lipgloss.NewStyle().Foreground(colorRed)
)

// ConfigureColor pins lipgloss to plain output when color is off, so
// every style in the palette degrades to bare text at once.
func ConfigureColor() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Pass, Warn, and Fail are the three status markers. Emoji when the
// terminal supports it, plain ASCII when piped.
func Pass() string {
	if ShouldUseEmoji() {
		return "✅"
	}
	return Success.Render("ok")
}

func Warn() string {
	if ShouldUseEmoji() {
		return "⚠️"
	}
	return Warning.Render("!!")
}

func Fail() string {
	if ShouldUseEmoji() {
		return "❌"
	}
	return Danger.Render("xx")
}

var titleCaser = cases.Title(language.English)

// StatusBadge renders an agent status as a colored, title-cased label.
func StatusBadge(st roster.Status) string {
	label := titleCaser.String(st.String())
	switch st {
	case roster.StatusIdle:
		return Muted.Render(label)
	case roster.StatusWorking:
		return Success.Render(label)
	case roster.StatusStalled:
		return Danger.Render(label)
	default:
		return label
	}
}

// RelativeTime renders how long ago t was, coarsely.
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// ShortenPath keeps the tail of a long path, prefixed with an ellipsis.
func ShortenPath(path string, max int) string {
	if max <= 3 || len(path) <= max {
		return path
	}
	return "..." + path[len(path)-(max-3):]
}
