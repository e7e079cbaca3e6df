// Package tui implements the Bubble Tea chat client for parley.
package tui

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/parley/internal/styles"
)

var (
	colorGreen  = styles.ColorGreen
	colorYellow = styles.ColorYellow
	colorBlue   = styles.ColorBlue
	colorGray   = styles.ColorGray
	colorWhite  = styles.ColorWhite
	colorRed    = styles.ColorRed
)

var (
	// Pane title.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			PaddingLeft(1)

	// Pane borders; the focused pane gets the accent color.
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray)

	focusedPaneStyle = paneStyle.
				BorderForeground(colorBlue)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	normalStyle = lipgloss.NewStyle()

	bodyStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	selectedBorderStyle = lipgloss.NewStyle().
				Foreground(colorBlue)

	unreadStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	favoriteStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	dayStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Bold(true)

	mentionStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	replyStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	pinStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	typingStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true).
			PaddingLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			PaddingLeft(1)

	reconnectingStyle = lipgloss.NewStyle().
				Background(colorYellow).
				Foreground(lipgloss.Color("#1a1b26")).
				Bold(true).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			PaddingLeft(1)
)

// Icons and symbols.
const (
	iconDot     = "•"
	iconStar    = "★"
	iconPin     = "📌"
	iconPending = "…"
	iconReply   = "↳"
)

// senderPalette is cycled by ColorForString.
var senderPalette = []lipgloss.Color{
	"#7aa2f7",
	"#9ece6a",
	"#e0af68",
	"#bb9af7",
	"#7dcfff",
	"#f7768e",
	"#73daca",
	"#ff9e64",
}

// ColorForString returns a stable palette color for s.
func ColorForString(s string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return senderPalette[h.Sum32()%uint32(len(senderPalette))]
}

// senderStyle colors a sender name.
func senderStyle(id string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorForString(id)).Bold(true)
}
