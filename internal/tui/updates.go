package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/parley"
)

const (
	clockInterval  = 30 * time.Second
	requestTimeout = 15 * time.Second
	typingTimeout  = 5 * time.Second
)

// serviceUpdateMsg carries one change notification from the service.
type serviceUpdateMsg struct {
	update parley.Update
}

// activatedMsg is sent when a conversation finished loading.
type activatedMsg struct {
	id  string
	err error
}

// sentMsg is sent when a send attempt resolved.
type sentMsg struct {
	err error
}

// olderLoadedMsg is sent when a page of older history arrived.
type olderLoadedMsg struct {
	n   int
	err error
}

// actionDoneMsg is sent when a pin or favorite toggle finished.
type actionDoneMsg struct {
	err error
}

// clockTickMsg refreshes relative timestamps.
type clockTickMsg struct{}

// waitForUpdate blocks on the service update stream.
func waitForUpdate(svc *parley.Service) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-svc.Updates()
		if !ok {
			return nil
		}
		return serviceUpdateMsg{update: u}
	}
}

func scheduleClockTick() tea.Cmd {
	return tea.Tick(clockInterval, func(time.Time) tea.Msg {
		return clockTickMsg{}
	})
}

func activate(svc *parley.Service, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_, err := svc.Activate(ctx, id)
		return activatedMsg{id: id, err: err}
	}
}

// typed applies the edit to the composer right away so the view and mention
// candidates stay in step with the input, and leaves the typing signal,
// which may hit the network, to the returned command.
func typed(svc *parley.Service, text string, cursor int) tea.Cmd {
	convID := svc.SetDraft(text, cursor)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), typingTimeout)
		defer cancel()

		svc.SignalTyping(ctx, convID, text)
		return nil
	}
}

func send(svc *parley.Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_, err := svc.Send(ctx)
		return sentMsg{err: err}
	}
}

func loadOlder(svc *parley.Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		n, err := svc.LoadOlder(ctx)
		return olderLoadedMsg{n: n, err: err}
	}
}

func togglePin(svc *parley.Service, messageID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_, err := svc.TogglePin(ctx, messageID)
		return actionDoneMsg{err: err}
	}
}

func toggleFavorite(svc *parley.Service, conversationID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_, err := svc.ToggleFavorite(ctx, conversationID)
		return actionDoneMsg{err: err}
	}
}

// displayError turns err into the inline text shown under the composer.
// Stale loads are not errors.
func displayError(err error) string {
	if err == nil || parley.IsStale(err) {
		return ""
	}
	return chat.InlineMessage(err)
}
