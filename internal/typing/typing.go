// Package typing tracks "is typing" state: the local user's typing signal
// with its hold timer, and the set of remote users typing in the active
// conversation.
package typing

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
)

// DefaultHold is how long after the last keystroke the local user is still
// considered typing.
const DefaultHold = 2 * time.Second

// Emitter sends fire-and-forget events.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Tracker.
type Options struct {
	// Hold defaults to DefaultHold.
	Hold time.Duration
	// RemoteExpiry clears a remote entry after this long without a new
	// start event. Zero keeps entries until a stop event, a message from
	// the same user or a conversation switch.
	RemoteExpiry time.Duration
	// OnChange is called after a timer changed the remote set.
	OnChange func()
	// AfterFunc replaces time.AfterFunc.
	AfterFunc AfterFunc
}

type remoteEntry struct {
	seq   uint64
	timer Timer
}

// Tracker is safe for concurrent use.
type Tracker struct {
	emitter Emitter
	active  *chat.Active
	selfID  string
	opts    Options
	log     zerolog.Logger

	mu sync.Mutex

	localConv  string // "" while idle
	localTimer Timer
	localSeq   uint64

	remoteConv string
	remote     map[string]remoteEntry
	remoteSeq  uint64
}

// New creates a Tracker for selfID.
func New(emitter Emitter, active *chat.Active, selfID string, opts Options, log zerolog.Logger) *Tracker {
	if opts.Hold <= 0 {
		opts.Hold = DefaultHold
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	return &Tracker{
		emitter: emitter,
		active:  active,
		selfID:  selfID,
		opts:    opts,
		log:     log,
		remote:  make(map[string]remoteEntry),
	}
}

func (t *Tracker) emit(ctx context.Context, event, conversationID string) error {
	err := t.emitter.Emit(ctx, event, chat.ConversationRef{ConversationID: conversationID})
	if err != nil {
		t.log.Debug().Err(err).Str("event", event).Msg("typing signal not sent")
	}
	return err
}

// InputChanged reports the composer text of conversationID after a
// keystroke. Non-empty text starts (or extends) the typing state; empty text
// stops it immediately. Input for a conversation that is not active is
// ignored.
func (t *Tracker) InputChanged(ctx context.Context, conversationID, text string) error {
	if strings.TrimSpace(text) == "" {
		return t.Stop(ctx, conversationID)
	}
	if !t.active.Is(conversationID) {
		return nil
	}

	t.mu.Lock()
	previous := t.localConv
	started := previous != conversationID
	t.localConv = conversationID
	t.localSeq++
	seq := t.localSeq
	if t.localTimer != nil {
		t.localTimer.Stop()
	}
	t.localTimer = t.opts.AfterFunc(t.opts.Hold, func() { t.expireLocal(seq) })
	t.mu.Unlock()

	if !started {
		return nil
	}
	if previous != "" {
		_ = t.emit(ctx, chat.EventTypingStop, previous)
	}
	return t.emit(ctx, chat.EventTypingStart, conversationID)
}

func (t *Tracker) expireLocal(seq uint64) {
	t.mu.Lock()
	if seq != t.localSeq || t.localConv == "" {
		t.mu.Unlock()
		return
	}
	conv := t.localConv
	t.localConv = ""
	t.localTimer = nil
	t.mu.Unlock()

	_ = t.emit(context.Background(), chat.EventTypingStop, conv)
}

// Stop returns the local user to idle and emits typing_stop for
// conversationID regardless of the current state. Call it when a message is
// sent or the input is cleared.
func (t *Tracker) Stop(ctx context.Context, conversationID string) error {
	t.mu.Lock()
	t.localConv = ""
	t.localSeq++
	if t.localTimer != nil {
		t.localTimer.Stop()
		t.localTimer = nil
	}
	t.mu.Unlock()

	if conversationID == "" {
		return nil
	}
	return t.emit(ctx, chat.EventTypingStop, conversationID)
}

// LocalTyping reports whether the local user is in the typing state.
func (t *Tracker) LocalTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.localConv != ""
}

// HandleStart applies a remote typing_start event. Events for conversations
// other than the active one and events about self are dropped. It reports
// whether the visible set changed.
func (t *Tracker) HandleStart(ev chat.TypingEvent) bool {
	if ev.UserID == t.selfID || !t.active.Is(ev.ConversationID) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.remoteConv != ev.ConversationID {
		t.clearRemote()
		t.remoteConv = ev.ConversationID
	}

	entry, exists := t.remote[ev.UserID]
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}

	t.remoteSeq++
	entry.seq = t.remoteSeq
	if t.opts.RemoteExpiry > 0 {
		seq, user := entry.seq, ev.UserID
		entry.timer = t.opts.AfterFunc(t.opts.RemoteExpiry, func() { t.expireRemote(user, seq) })
	}
	t.remote[ev.UserID] = entry

	return !exists
}

// HandleStop applies a remote typing_stop event.
func (t *Tracker) HandleStop(ev chat.TypingEvent) bool {
	if !t.active.Is(ev.ConversationID) {
		return false
	}
	return t.remove(ev.ConversationID, ev.UserID)
}

// Supersede clears the entry of a user whose message just arrived.
func (t *Tracker) Supersede(conversationID, userID string) bool {
	return t.remove(conversationID, userID)
}

func (t *Tracker) remove(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.remoteConv != conversationID {
		return false
	}
	entry, ok := t.remote[userID]
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(t.remote, userID)
	return true
}

func (t *Tracker) expireRemote(userID string, seq uint64) {
	t.mu.Lock()
	entry, ok := t.remote[userID]
	if !ok || entry.seq != seq {
		t.mu.Unlock()
		return
	}
	delete(t.remote, userID)
	t.mu.Unlock()

	t.log.Debug().Str("user", userID).Msg("remote typing entry expired")
	if t.opts.OnChange != nil {
		t.opts.OnChange()
	}
}

// clearRemote must be called with mu held.
func (t *Tracker) clearRemote() {
	for id, entry := range t.remote {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(t.remote, id)
	}
}

// Reset is called on conversation switch. Local typing in the previous
// conversation stops and the remote set is emptied.
func (t *Tracker) Reset(ctx context.Context, conversationID string) {
	t.mu.Lock()
	previous := t.localConv
	t.localConv = ""
	t.localSeq++
	if t.localTimer != nil {
		t.localTimer.Stop()
		t.localTimer = nil
	}
	t.clearRemote()
	t.remoteConv = conversationID
	t.mu.Unlock()

	if previous != "" {
		_ = t.emit(ctx, chat.EventTypingStop, previous)
	}
}

// Typing returns the IDs of users typing in the active conversation, sorted.
func (t *Tracker) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active.Is(t.remoteConv) {
		return nil
	}

	users := make([]string, 0, len(t.remote))
	for id := range t.remote {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}
