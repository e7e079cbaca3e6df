package tui

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/hay-kot/parley/internal/composer"
	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/parley"
)

const sidebarWidth = 32

// Options configures the TUI behavior.
type Options struct {
	// Conversation is opened on start when set.
	Conversation string
}

// Model is the main Bubble Tea model for the chat client.
type Model struct {
	svc      *parley.Service
	keys     keyMap
	focus    Focus
	sidebar  *Sidebar
	timeline *TimelineView
	input    textinput.Model
	spinner  spinner.Model

	width     int
	height    int
	connected bool
	loading   bool
	errText   string
	choice    int
	follow    bool
	quitting  bool
	initial   string
}

// New creates the model. The service must already be started.
func New(svc *parley.Service, opts Options) Model {
	input := textinput.New()
	input.Placeholder = "Write a message…"
	input.Prompt = "› "
	input.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorBlue)

	m := Model{
		svc:       svc,
		keys:      defaultKeyMap(),
		focus:     FocusSidebar,
		sidebar:   NewSidebar(svc.SelfID()),
		timeline:  NewTimelineView(svc.SelfID()),
		input:     input,
		spinner:   sp,
		connected: svc.Connected(),
		follow:    true,
		initial:   opts.Conversation,
	}
	m.refreshConversations()
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForUpdate(m.svc), scheduleClockTick(), m.spinner.Tick, textinput.Blink}
	if m.initial != "" {
		cmds = append(cmds, activate(m.svc, m.initial))
	}
	return tea.Batch(cmds...)
}

func (m *Model) refreshConversations() {
	convs := m.svc.Directory.Ordered()
	favorites := make(map[string]bool, len(convs))
	for _, c := range convs {
		if m.svc.Directory.IsFavorite(c.ID) {
			favorites[c.ID] = true
		}
	}
	m.sidebar.SetConversations(convs, favorites)
	m.sidebar.SetActive(m.svc.ActiveID())
}

func (m *Model) refreshTimeline() {
	active := m.svc.ActiveID()
	m.timeline.SetMessages(m.svc.Timeline.Messages(), m.svc.Directory.Pinned(active), m.follow)
}

// syncInput copies the composer text into the input widget after the
// service changed it, such as a failed send restoring the draft.
func (m *Model) syncInput() {
	text, cursor := m.svc.Composer.Text()
	if text == m.input.Value() {
		return
	}
	m.input.SetValue(text)
	m.input.SetCursor(utf8.RuneCountInString(text[:cursor]))
}

func (m *Model) layout() {
	mainWidth := max(m.width-sidebarWidth-4, 20)

	// borders (2) + pinned (1) + reply (1) + composer (1) + typing (1) + error (1) + help (1)
	bodyHeight := max(m.height-8, 3)

	m.sidebar.SetSize(sidebarWidth, m.height-3)
	m.timeline.SetSize(mainWidth, bodyHeight)
	m.input.Width = mainWidth - 4
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case serviceUpdateMsg:
		m.apply(msg.update)
		return m, waitForUpdate(m.svc)

	case activatedMsg:
		m.loading = false
		if msg.err != nil {
			m.errText = displayError(msg.err)
			return m, nil
		}
		m.errText = ""
		m.follow = true
		m.refreshConversations()
		m.refreshTimeline()
		m.input.SetValue("")
		return m, nil

	case sentMsg:
		switch {
		case msg.err == nil:
			m.errText = ""
		case errors.Is(msg.err, composer.ErrNothingToSend), errors.Is(msg.err, composer.ErrSendInFlight):
		default:
			m.errText = displayError(msg.err)
		}
		m.syncInput()
		return m, nil

	case olderLoadedMsg:
		m.loading = false
		m.errText = displayError(msg.err)
		return m, nil

	case actionDoneMsg:
		m.errText = displayError(msg.err)
		return m, nil

	case clockTickMsg:
		m.refreshConversations()
		return m, scheduleClockTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.focus == FocusComposer {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one service notification into the view state.
func (m *Model) apply(u parley.Update) {
	switch u.Kind {
	case parley.UpdateConversations:
		m.refreshConversations()
	case parley.UpdateTimeline:
		m.refreshTimeline()
	case parley.UpdatePin:
		m.timeline.SetPinned(m.svc.Directory.Pinned(m.svc.ActiveID()))
	case parley.UpdateConnectivity:
		m.connected = u.Connected
	case parley.UpdateComposer:
		if u.Err != nil {
			m.errText = displayError(u.Err)
		}
		m.syncInput()
	case parley.UpdateTyping:
		// rendered from the tracker on every View
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.focus {
	case FocusSidebar:
		return m.handleSidebarKey(msg)
	case FocusTimeline:
		return m.handleTimelineKey(msg)
	default:
		return m.handleComposerKey(msg)
	}
}

func (m *Model) setFocus(f Focus) tea.Cmd {
	m.focus = f
	if f == FocusComposer {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m *Model) cycleFocus() tea.Cmd {
	next := (m.focus + 1) % 3
	if next != FocusSidebar && m.svc.ActiveID() == "" {
		next = FocusSidebar
	}
	return m.setFocus(next)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.sidebar.IsFiltering() {
		switch msg.Type {
		case tea.KeyEsc:
			m.sidebar.CancelFilter()
		case tea.KeyEnter:
			m.sidebar.ConfirmFilter()
		case tea.KeyBackspace:
			m.sidebar.DeleteFilterRune()
		case tea.KeyRunes, tea.KeySpace:
			for _, r := range msg.Runes {
				m.sidebar.AddFilterRune(r)
			}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.sidebar.MoveUp()
	case key.Matches(msg, m.keys.Down):
		m.sidebar.MoveDown()
	case key.Matches(msg, m.keys.Filter):
		m.sidebar.StartFilter()
	case key.Matches(msg, m.keys.NextPane):
		return m, m.cycleFocus()
	case key.Matches(msg, m.keys.Favorite):
		if c := m.sidebar.Selected(); c != nil {
			return m, toggleFavorite(m.svc, c.ID)
		}
	case key.Matches(msg, m.keys.Open):
		c := m.sidebar.Selected()
		if c == nil {
			return m, nil
		}
		m.loading = true
		m.sidebar.SetActive(c.ID)
		focus := m.setFocus(FocusComposer)
		return m, tea.Batch(activate(m.svc, c.ID), focus)
	}
	return m, nil
}

func (m Model) handleTimelineKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.follow = false
		m.timeline.MoveUp()
	case key.Matches(msg, m.keys.Down):
		m.timeline.MoveDown()
	case key.Matches(msg, m.keys.NextPane):
		return m, m.cycleFocus()
	case key.Matches(msg, m.keys.Older):
		if m.svc.Timeline.HasMore() && !m.loading {
			m.loading = true
			m.follow = false
			return m, loadOlder(m.svc)
		}
	case key.Matches(msg, m.keys.Reply):
		sel := m.timeline.Selected()
		if sel == nil || sel.Pending {
			return m, nil
		}
		if err := m.svc.Reply(sel.ID); err != nil {
			m.errText = displayError(err)
			return m, nil
		}
		return m, m.setFocus(FocusComposer)
	case key.Matches(msg, m.keys.Pin):
		if sel := m.timeline.Selected(); sel != nil && !sel.Pending {
			return m, togglePin(m.svc, sel.ID)
		}
	}
	return m, nil
}

func (m Model) handleComposerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	candidates := m.svc.Composer.Candidates()

	if len(candidates) > 0 {
		switch {
		case key.Matches(msg, m.keys.NextChoice):
			m.choice = (m.choice + 1) % len(candidates)
			return m, nil
		case key.Matches(msg, m.keys.PrevChoice):
			m.choice = (m.choice - 1 + len(candidates)) % len(candidates)
			return m, nil
		case key.Matches(msg, m.keys.Complete), msg.Type == tea.KeyEnter:
			return m, m.completeMention(candidates[min(m.choice, len(candidates)-1)])
		case key.Matches(msg, m.keys.Cancel):
			m.svc.Composer.DismissMention()
			m.choice = 0
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Send):
		m.follow = true
		cmd := send(m.svc)
		m.input.SetValue("")
		return m, cmd
	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.svc.Composer.Reply() != nil:
			m.svc.Composer.CancelReply()
		case m.svc.Composer.Attachment() != nil:
			m.svc.Composer.ClearAttachment()
		default:
			return m, m.setFocus(FocusSidebar)
		}
		return m, nil
	case key.Matches(msg, m.keys.NextPane):
		return m, m.cycleFocus()
	}

	before, beforePos := m.input.Value(), m.input.Position()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	if value := m.input.Value(); value != before || m.input.Position() != beforePos {
		m.choice = 0
		return m, tea.Batch(cmd, typed(m.svc, value, byteOffset(value, m.input.Position())))
	}
	return m, cmd
}

func (m *Model) completeMention(member chat.Member) tea.Cmd {
	text, cursor, err := m.svc.Composer.SelectMention(member)
	if err != nil {
		log.Debug().Err(err).Msg("mention completion")
		return nil
	}
	m.choice = 0
	m.input.SetValue(text)
	m.input.SetCursor(utf8.RuneCountInString(text[:cursor]))
	return typed(m.svc, text, cursor)
}

// byteOffset converts a rune position in s into a byte offset.
func byteOffset(s string, runes int) int {
	off := 0
	for i := 0; i < runes && off < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[off:])
		off += size
	}
	return off
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	side := paneStyle
	if m.focus == FocusSidebar {
		side = focusedPaneStyle
	}
	sidebar := side.Height(max(m.height-3, 1)).Width(sidebarWidth).Render(m.sidebar.View())

	main := paneStyle
	if m.focus != FocusSidebar {
		main = focusedPaneStyle
	}
	mainWidth := max(m.width-sidebarWidth-4, 20)
	content := main.Width(mainWidth).Height(max(m.height-3, 1)).Render(m.renderMain(mainWidth))

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	help := helpStyle.Render(m.keys.HelpString(m.focus, len(m.svc.Composer.Candidates()) > 0))

	return lipgloss.JoinVertical(lipgloss.Left, m.renderStatus(), body, help)
}

func (m Model) renderStatus() string {
	title := titleStyle.Render("parley")
	if id := m.svc.ActiveID(); id != "" {
		if c, ok := m.svc.Directory.Get(id); ok {
			title += mutedStyle.Render(" " + iconDot + " " + c.DisplayName(m.svc.SelfID()))
		}
	}
	if m.loading {
		title += " " + m.spinner.View()
	}
	if !m.connected {
		title += " " + reconnectingStyle.Render("Reconnecting…")
	}
	return title
}

func (m Model) renderMain(width int) string {
	if m.svc.ActiveID() == "" {
		return mutedStyle.Render("\n  Select a conversation to start chatting.")
	}

	parts := make([]string, 0, 7)

	if banner := m.timeline.PinnedBanner(width); banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, m.timeline.View())

	if line := m.renderTyping(); line != "" {
		parts = append(parts, line)
	}
	if list := m.renderCandidates(); list != "" {
		parts = append(parts, list)
	}
	if r := m.svc.Composer.Reply(); r != nil {
		parts = append(parts, replyStyle.Render(" "+iconReply+" replying to "+r.Sender.DisplayName()+" (esc to cancel)"))
	}
	if a := m.svc.Composer.Attachment(); a != nil {
		parts = append(parts, mutedStyle.Render(fmt.Sprintf(" [%s %s] (esc to remove)", chat.MediaLabel(a.MimeType), a.Name)))
	}
	parts = append(parts, m.input.View())
	if m.errText != "" {
		parts = append(parts, errorStyle.Render(m.errText))
	}

	return strings.Join(parts, "\n")
}

func (m Model) renderTyping() string {
	ids := m.svc.Typing.Typing()
	if len(ids) == 0 {
		return ""
	}

	conv, _ := m.svc.Directory.Get(m.svc.ActiveID())
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if member, ok := conv.Member(id); ok {
			names = append(names, member.DisplayName())
		} else {
			names = append(names, id)
		}
	}

	return typingStyle.Render(typingLine(names))
}

// typingLine phrases the set of typing users.
func typingLine(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	default:
		return fmt.Sprintf("%s and %d others are typing…", names[0], len(names)-1)
	}
}

func (m Model) renderCandidates() string {
	candidates := m.svc.Composer.Candidates()
	if len(candidates) == 0 {
		return ""
	}

	lines := make([]string, 0, min(len(candidates), 5))
	for i, c := range candidates[:min(len(candidates), 5)] {
		label := "@" + c.Username
		if c.Name != "" {
			label += " " + mutedStyle.Render(c.Name)
		}
		if i == m.choice {
			lines = append(lines, selectedBorderStyle.Render("┃ ")+selectedStyle.Render(label))
		} else {
			lines = append(lines, "  "+label)
		}
	}
	return strings.Join(lines, "\n")
}
