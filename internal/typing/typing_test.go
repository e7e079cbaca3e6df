package typing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/parley/internal/core/chat"
)

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (f *fakeTimer) Stop() bool {
	was := !f.stopped && !f.fired
	f.stopped = true
	return was
}

// fakeClock runs timers when the test advances time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(ctx context.Context, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := payload.(chat.ConversationRef)
	r.events = append(r.events, event+":"+ref.ConversationID)
	return nil
}

func (r *recordingEmitter) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTracker(t *testing.T, opts Options) (*Tracker, *recordingEmitter, *fakeClock, *chat.Active) {
	t.Helper()
	clock := &fakeClock{}
	emitter := &recordingEmitter{}
	active := &chat.Active{}
	active.Set("c1")
	opts.AfterFunc = clock.AfterFunc
	return New(emitter, active, "me", opts, zerolog.Nop()), emitter, clock, active
}

func TestLocal_HoldTimerResetsPerKeystroke(t *testing.T) {
	tr, emitter, clock, _ := newTracker(t, Options{})
	ctx := context.Background()

	_ = tr.InputChanged(ctx, "c1", "h")
	clock.Advance(1500 * time.Millisecond)
	_ = tr.InputChanged(ctx, "c1", "he")
	clock.Advance(1500 * time.Millisecond)
	_ = tr.InputChanged(ctx, "c1", "hel")

	assert.Equal(t, []string{"typing_start:c1"}, emitter.Events())
	assert.True(t, tr.LocalTyping())

	clock.Advance(DefaultHold)

	assert.Equal(t, []string{"typing_start:c1", "typing_stop:c1"}, emitter.Events())
	assert.False(t, tr.LocalTyping())

	_ = tr.InputChanged(ctx, "c1", "hell")
	assert.Equal(t, "typing_start:c1", emitter.Events()[2])
}

func TestLocal_StopOnSendIsImmediate(t *testing.T) {
	tr, emitter, clock, _ := newTracker(t, Options{})
	ctx := context.Background()

	_ = tr.InputChanged(ctx, "c1", "hi")
	_ = tr.Stop(ctx, "c1")

	assert.Equal(t, []string{"typing_start:c1", "typing_stop:c1"}, emitter.Events())

	// the pending hold timer must not emit a second stop
	clock.Advance(time.Minute)
	assert.Len(t, emitter.Events(), 2)
}

func TestLocal_ClearingInputStops(t *testing.T) {
	tr, emitter, _, _ := newTracker(t, Options{})
	ctx := context.Background()

	_ = tr.InputChanged(ctx, "c1", "x")
	_ = tr.InputChanged(ctx, "c1", "   ")

	assert.Equal(t, []string{"typing_start:c1", "typing_stop:c1"}, emitter.Events())
}

func TestLocal_InactiveConversationIgnored(t *testing.T) {
	tr, emitter, _, _ := newTracker(t, Options{})

	_ = tr.InputChanged(context.Background(), "c2", "hi")

	assert.Empty(t, emitter.Events())
}

func TestRemote_SetSemantics(t *testing.T) {
	tr, _, _, _ := newTracker(t, Options{})

	assert.True(t, tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"}))
	assert.False(t, tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"}))

	assert.Equal(t, []string{"amy"}, tr.Typing())

	assert.True(t, tr.HandleStop(chat.TypingEvent{ConversationID: "c1", UserID: "amy"}))
	assert.Empty(t, tr.Typing())
}

func TestRemote_OtherConversationIgnored(t *testing.T) {
	tr, _, _, _ := newTracker(t, Options{})
	tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"})

	assert.False(t, tr.HandleStart(chat.TypingEvent{ConversationID: "c2", UserID: "bob"}))
	assert.False(t, tr.HandleStop(chat.TypingEvent{ConversationID: "c2", UserID: "amy"}))

	assert.Equal(t, []string{"amy"}, tr.Typing())
}

func TestRemote_SelfIgnored(t *testing.T) {
	tr, _, _, _ := newTracker(t, Options{})

	assert.False(t, tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "me"}))
	assert.Empty(t, tr.Typing())
}

func TestRemote_NoExpiryByDefault(t *testing.T) {
	tr, _, clock, _ := newTracker(t, Options{})
	tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"})

	clock.Advance(time.Hour)

	assert.Equal(t, []string{"amy"}, tr.Typing())
}

func TestRemote_ExpiryWhenConfigured(t *testing.T) {
	changes := 0
	tr, _, clock, _ := newTracker(t, Options{
		RemoteExpiry: 5 * time.Second,
		OnChange:     func() { changes++ },
	})

	tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"})
	clock.Advance(4 * time.Second)
	tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"})
	clock.Advance(4 * time.Second)
	assert.Equal(t, []string{"amy"}, tr.Typing(), "a repeated start renews the entry")

	clock.Advance(time.Second)
	assert.Empty(t, tr.Typing())
	assert.Equal(t, 1, changes)
}

func TestRemote_SupersededByMessage(t *testing.T) {
	tr, _, _, _ := newTracker(t, Options{})
	tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"})
	tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "bob"})

	assert.True(t, tr.Supersede("c1", "amy"))
	assert.Equal(t, []string{"bob"}, tr.Typing())
}

func TestReset_ClearsOnSwitch(t *testing.T) {
	tr, emitter, _, active := newTracker(t, Options{})
	ctx := context.Background()

	_ = tr.InputChanged(ctx, "c1", "draft")
	tr.HandleStart(chat.TypingEvent{ConversationID: "c1", UserID: "amy"})

	active.Set("c2")
	tr.Reset(ctx, "c2")

	assert.Empty(t, tr.Typing())
	assert.False(t, tr.LocalTyping())
	assert.Equal(t, []string{"typing_start:c1", "typing_stop:c1"}, emitter.Events())

	// nothing carries over if the user switches back
	active.Set("c1")
	tr.Reset(ctx, "c1")
	assert.Empty(t, tr.Typing())
}
