package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Sidebar is the conversation list. It keeps the directory order and
// tracks a cursor, a scroll offset and an optional name filter.
type Sidebar struct {
	selfID     string
	convs      []chat.Conversation
	favorites  map[string]bool
	activeID   string
	cursor     int
	width      int
	height     int
	offset     int
	filtering  bool
	filter     string
	filteredAt []int
	now        func() time.Time
}

// NewSidebar creates an empty sidebar for selfID.
func NewSidebar(selfID string) *Sidebar {
	return &Sidebar{
		selfID:     selfID,
		favorites:  map[string]bool{},
		filteredAt: make([]int, 0),
		now:        time.Now,
	}
}

// SetConversations replaces the list, keeping the cursor on the same
// conversation when it is still present.
func (s *Sidebar) SetConversations(convs []chat.Conversation, favorites map[string]bool) {
	selected := ""
	if c := s.Selected(); c != nil {
		selected = c.ID
	}

	s.convs = convs
	s.favorites = favorites
	s.applyFilter()

	if selected != "" {
		for i, idx := range s.filteredAt {
			if s.convs[idx].ID == selected {
				s.cursor = i
				break
			}
		}
	}
	s.clampOffset()
}

// SetActive marks the conversation shown in the timeline.
func (s *Sidebar) SetActive(id string) {
	s.activeID = id
}

// SetSize sets the viewport dimensions.
func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.clampOffset()
}

func (s *Sidebar) visibleLines() int {
	// title (1) + filter line when shown
	reserved := 1
	if s.filtering || s.filter != "" {
		reserved++
	}
	return max(s.height-reserved, 1)
}

// clampOffset keeps the cursor visible.
func (s *Sidebar) clampOffset() {
	visible := s.visibleLines()
	total := len(s.filteredAt)

	if s.cursor >= total {
		s.cursor = max(total-1, 0)
	}
	if s.cursor < s.offset {
		s.offset = s.cursor
	} else if s.cursor >= s.offset+visible {
		s.offset = s.cursor - visible + 1
	}

	s.offset = max(min(s.offset, total-visible), 0)
}

// MoveUp moves the cursor up.
func (s *Sidebar) MoveUp() {
	if s.cursor > 0 {
		s.cursor--
		s.clampOffset()
	}
}

// MoveDown moves the cursor down.
func (s *Sidebar) MoveDown() {
	if s.cursor < len(s.filteredAt)-1 {
		s.cursor++
		s.clampOffset()
	}
}

// Selected returns the conversation under the cursor, or nil.
func (s *Sidebar) Selected() *chat.Conversation {
	if s.cursor >= len(s.filteredAt) {
		return nil
	}
	return &s.convs[s.filteredAt[s.cursor]]
}

// StartFilter begins filter input mode.
func (s *Sidebar) StartFilter() {
	s.filtering = true
}

// IsFiltering reports whether filter input is active.
func (s *Sidebar) IsFiltering() bool {
	return s.filtering
}

// AddFilterRune appends r to the filter.
func (s *Sidebar) AddFilterRune(r rune) {
	s.filter += string(r)
	s.applyFilter()
}

// DeleteFilterRune removes the last rune of the filter.
func (s *Sidebar) DeleteFilterRune() {
	if r := []rune(s.filter); len(r) > 0 {
		s.filter = string(r[:len(r)-1])
		s.applyFilter()
	}
}

// ConfirmFilter leaves filter mode keeping the filter.
func (s *Sidebar) ConfirmFilter() {
	s.filtering = false
}

// CancelFilter leaves filter mode and clears the filter.
func (s *Sidebar) CancelFilter() {
	s.filtering = false
	s.filter = ""
	s.applyFilter()
}

func (s *Sidebar) applyFilter() {
	s.filteredAt = s.filteredAt[:0]
	filter := strings.ToLower(s.filter)

	for i, c := range s.convs {
		if filter == "" || strings.Contains(strings.ToLower(c.DisplayName(s.selfID)), filter) {
			s.filteredAt = append(s.filteredAt, i)
		}
	}
	s.clampOffset()
}

// View renders the sidebar.
func (s *Sidebar) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Conversations"))
	b.WriteString("\n")

	if s.filtering {
		b.WriteString(" " + selectedStyle.Render("Filter: ") + s.filter + "▎\n")
	} else if s.filter != "" {
		b.WriteString(" " + mutedStyle.Render("Filter: "+s.filter) + "\n")
	}

	if len(s.filteredAt) == 0 {
		msg := "No conversations"
		if len(s.convs) > 0 {
			msg = "No matches"
		}
		b.WriteString(mutedStyle.Render("  " + msg))
		return b.String()
	}

	end := min(s.offset+s.visibleLines(), len(s.filteredAt))
	lines := make([]string, 0, end-s.offset)
	for i := s.offset; i < end; i++ {
		lines = append(lines, s.renderLine(&s.convs[s.filteredAt[i]], i == s.cursor))
	}
	b.WriteString(strings.Join(lines, "\n"))

	return b.String()
}

func (s *Sidebar) renderLine(c *chat.Conversation, selected bool) string {
	var b strings.Builder

	if selected {
		b.WriteString(selectedBorderStyle.Render("┃") + " ")
	} else {
		b.WriteString("  ")
	}

	if s.favorites[c.ID] {
		b.WriteString(favoriteStyle.Render(iconStar) + " ")
	}

	name := c.DisplayName(s.selfID)
	style := normalStyle
	switch {
	case c.ID == s.activeID:
		style = selectedStyle
	case c.Unread > 0:
		style = unreadStyle
	}

	badge := ""
	if c.Unread > 0 {
		badge = " " + unreadStyle.Render(fmt.Sprintf("(%d)", c.Unread))
	}

	age := ""
	if last := c.LastActivity(); !last.IsZero() {
		age = mutedStyle.Render(humanize.RelTime(last, s.now(), "ago", "from now"))
	}

	nameWidth := s.width - lipgloss.Width(b.String()) - lipgloss.Width(badge) - lipgloss.Width(age) - 1
	name = truncate(name, max(nameWidth, 4))
	left := b.String() + style.Render(name) + badge

	gap := max(s.width-lipgloss.Width(left)-lipgloss.Width(age), 1)
	return left + strings.Repeat(" ", gap) + age
}

// truncate shortens s to at most width runes, marking the cut.
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
