package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// Focus identifies the pane receiving key presses.
type Focus int

const (
	FocusSidebar Focus = iota
	FocusTimeline
	FocusComposer
)

// keyMap holds every binding of the chat screen.
type keyMap struct {
	Quit       key.Binding
	NextPane   key.Binding
	Up         key.Binding
	Down       key.Binding
	Open       key.Binding
	Filter     key.Binding
	Favorite   key.Binding
	Reply      key.Binding
	Pin        key.Binding
	Older      key.Binding
	Send       key.Binding
	Cancel     key.Binding
	Complete   key.Binding
	NextChoice key.Binding
	PrevChoice key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		NextPane:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Filter:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Favorite:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
		Reply:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reply")),
		Pin:        key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pin/unpin")),
		Older:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "load older")),
		Send:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Complete:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "complete mention")),
		NextChoice: key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("↓", "next")),
		PrevChoice: key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("↑", "previous")),
	}
}

// bindings returns the bindings active for a pane, in help order.
func (k keyMap) bindings(focus Focus, mentioning bool) []key.Binding {
	switch focus {
	case FocusSidebar:
		return []key.Binding{k.Up, k.Down, k.Open, k.Filter, k.Favorite, k.NextPane, k.Quit}
	case FocusTimeline:
		return []key.Binding{k.Up, k.Down, k.Reply, k.Pin, k.Older, k.NextPane, k.Quit}
	default:
		if mentioning {
			return []key.Binding{k.PrevChoice, k.NextChoice, k.Complete, k.Cancel}
		}
		return []key.Binding{k.Send, k.Cancel, k.NextPane, k.Quit}
	}
}

// HelpString renders the help line for a pane.
func (k keyMap) HelpString(focus Focus, mentioning bool) string {
	bs := k.bindings(focus, mentioning)
	entries := make([]string, 0, len(bs))
	for _, b := range bs {
		h := b.Help()
		entries = append(entries, h.Key+" "+h.Desc)
	}
	return strings.Join(entries, " "+iconDot+" ")
}
