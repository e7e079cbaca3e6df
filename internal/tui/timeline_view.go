package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/timeline"
)

// TimelineView renders the active conversation's messages grouped by day
// inside a scrolling viewport. A cursor selects the message that reply and
// pin act on.
type TimelineView struct {
	viewport viewport.Model
	msgs     []chat.Message
	pinned   *chat.Message
	cursor   int
	selfID   string
	loc      *time.Location
	now      func() time.Time

	// line index of each message's first line, for keeping the cursor visible
	lineOf []int
}

// NewTimelineView creates an empty view.
func NewTimelineView(selfID string) *TimelineView {
	return &TimelineView{
		viewport: viewport.New(0, 0),
		selfID:   selfID,
		loc:      time.Local,
		now:      time.Now,
	}
}

// SetSize sets the viewport dimensions.
func (v *TimelineView) SetSize(width, height int) {
	v.viewport.Width = width
	v.viewport.Height = height
	v.render(false)
}

// SetMessages replaces the messages. When follow is set the view scrolls to
// the newest message and the cursor moves there.
func (v *TimelineView) SetMessages(msgs []chat.Message, pinned *chat.Message, follow bool) {
	selected := ""
	if m := v.Selected(); m != nil && !follow {
		selected = m.ID
	}

	v.msgs = msgs
	v.pinned = pinned
	v.cursor = len(msgs) - 1

	if selected != "" {
		for i, m := range msgs {
			if m.ID == selected {
				v.cursor = i
				break
			}
		}
	}

	v.render(follow)
}

// SetPinned updates the pinned banner.
func (v *TimelineView) SetPinned(pinned *chat.Message) {
	v.pinned = pinned
	v.render(false)
}

// Selected returns the message under the cursor, or nil.
func (v *TimelineView) Selected() *chat.Message {
	if v.cursor < 0 || v.cursor >= len(v.msgs) {
		return nil
	}
	return &v.msgs[v.cursor]
}

// AtTop reports whether the cursor is on the oldest loaded message.
func (v *TimelineView) AtTop() bool {
	return v.cursor <= 0
}

// MoveUp moves the cursor to the previous message.
func (v *TimelineView) MoveUp() {
	if v.cursor > 0 {
		v.cursor--
		v.render(false)
		v.ensureVisible()
	}
}

// MoveDown moves the cursor to the next message.
func (v *TimelineView) MoveDown() {
	if v.cursor < len(v.msgs)-1 {
		v.cursor++
		v.render(false)
		v.ensureVisible()
	}
}

func (v *TimelineView) ensureVisible() {
	if v.cursor < 0 || v.cursor >= len(v.lineOf) {
		return
	}
	line := v.lineOf[v.cursor]
	switch {
	case line < v.viewport.YOffset:
		v.viewport.SetYOffset(line)
	case line >= v.viewport.YOffset+v.viewport.Height:
		v.viewport.SetYOffset(line - v.viewport.Height + 1)
	}
}

func (v *TimelineView) render(follow bool) {
	lines, lineOf := v.lines()
	v.lineOf = lineOf
	v.viewport.SetContent(strings.Join(lines, "\n"))
	if follow {
		v.viewport.GotoBottom()
	}
}

// lines renders every message, returning the lines and the first line of
// each message in timeline order.
func (v *TimelineView) lines() ([]string, []int) {
	if len(v.msgs) == 0 {
		return []string{mutedStyle.Render("  No messages yet")}, nil
	}

	var (
		out    []string
		lineOf = make([]int, 0, len(v.msgs))
		idx    int
	)

	for _, day := range timeline.Group(v.msgs, v.now(), v.loc) {
		out = append(out, "", dayStyle.Render("── "+day.Label+" ──"))

		for _, item := range day.Items {
			lineOf = append(lineOf, len(out))
			out = append(out, v.renderItem(item, idx == v.cursor)...)
			idx++
		}
	}

	return out, lineOf
}

func (v *TimelineView) renderItem(item timeline.Item, selected bool) []string {
	msg := item.Message
	gutter := "  "
	if selected {
		gutter = selectedBorderStyle.Render("┃") + " "
	}

	var out []string

	if item.ShowSender {
		header := senderStyle(msg.Sender.ID).Render(msg.Sender.DisplayName()) + " " +
			mutedStyle.Render(msg.CreatedAt.In(v.loc).Format("15:04"))
		if v.pinned != nil && v.pinned.ID == msg.ID {
			header += " " + pinStyle.Render(iconPin)
		}
		out = append(out, gutter+header)
	}

	if msg.ReplyTo != nil {
		out = append(out, gutter+replyStyle.Render(iconReply+" "+msg.ReplyTo.Sender.DisplayName()+": "+truncate(msg.ReplyTo.Label(), 60)))
	}

	body := renderBody(msg.Content)
	if msg.Media != nil {
		label := "[" + chat.MediaLabel(msg.Media.MimeType)
		if msg.Media.Name != "" {
			label += " " + msg.Media.Name
		}
		label += "]"
		body = strings.TrimSpace(mutedStyle.Render(label) + " " + body)
	}
	if msg.Pending {
		body = pendingStyle.Render(body + " " + iconPending)
	}

	width := max(v.viewport.Width-2, 10)
	for _, line := range strings.Split(lipgloss.NewStyle().Width(width).Render(body), "\n") {
		out = append(out, gutter+line)
	}

	return out
}

// renderBody highlights mention tokens in content.
func renderBody(content string) string {
	var b strings.Builder
	for _, seg := range timeline.Segments(content) {
		if seg.Mention {
			b.WriteString(mentionStyle.Render(seg.Text))
		} else {
			b.WriteString(bodyStyle.Render(seg.Text))
		}
	}
	return b.String()
}

// PinnedBanner renders the pinned message line, or "" when nothing is
// pinned.
func (v *TimelineView) PinnedBanner(width int) string {
	if v.pinned == nil {
		return ""
	}
	text := v.pinned.Summary()
	if text == "" {
		text = chat.PlaceholderPreviousMessage
	}
	return pinStyle.Render(" "+iconPin+" ") + truncate(strings.ReplaceAll(text, "\n", " "), max(width-5, 10))
}

// View renders the viewport.
func (v *TimelineView) View() string {
	return v.viewport.View()
}
