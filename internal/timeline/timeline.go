// Package timeline holds the ordered, de-duplicated message list of the
// active conversation.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
)

// ErrStale is returned by Load and LoadOlder when the active conversation
// changed before the result arrived. The result has been discarded.
var ErrStale = errors.New("stale load discarded")

// Loader fetches one page of history, newest first.
type Loader interface {
	ListMessages(ctx context.Context, conversationID string, page chat.Page) ([]chat.Message, error)
}

// Timeline is safe for concurrent use. Messages are kept in server
// timestamp order with ties broken by ID, regardless of arrival order.
type Timeline struct {
	loader   Loader
	active   *chat.Active
	pageSize int
	log      zerolog.Logger

	mu      sync.Mutex
	convID  string
	gen     uint64
	msgs    []chat.Message
	hasMore bool
}

// New creates a Timeline. active is consulted every time a result or event
// is applied.
func New(loader Loader, active *chat.Active, pageSize int, log zerolog.Logger) *Timeline {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Timeline{
		loader:   loader,
		active:   active,
		pageSize: pageSize,
		log:      log,
	}
}

// Load replaces the timeline with the newest page of conversationID. Live
// messages appended while the request is in flight are kept. If another Load
// starts or the active conversation changes before the page arrives, the
// page is dropped and ErrStale returned. A Load for a conversation that is
// not active returns ErrStale without touching the timeline.
func (t *Timeline) Load(ctx context.Context, conversationID string) ([]chat.Message, error) {
	t.mu.Lock()
	if !t.active.Is(conversationID) {
		t.mu.Unlock()
		t.log.Debug().Str("conversation", conversationID).Msg("skipping load for inactive conversation")
		return nil, ErrStale
	}
	t.gen++
	gen := t.gen
	t.convID = conversationID
	t.msgs = nil
	t.hasMore = false
	t.mu.Unlock()

	page, err := t.loader.ListMessages(ctx, conversationID, chat.Page{Limit: t.pageSize})

	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || !t.active.Is(conversationID) {
		t.log.Debug().Str("conversation", conversationID).Msg("discarding stale timeline load")
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	for _, msg := range page {
		t.insert(msg)
	}
	t.hasMore = len(page) >= t.pageSize

	return slices.Clone(t.msgs), nil
}

// LoadOlder fetches the page preceding the oldest loaded message and merges
// it in. It returns how many messages were added.
func (t *Timeline) LoadOlder(ctx context.Context) (int, error) {
	t.mu.Lock()
	gen := t.gen
	convID := t.convID
	before := ""
	for _, m := range t.msgs {
		if !m.Pending {
			before = m.ID
			break
		}
	}
	more := t.hasMore
	t.mu.Unlock()

	if convID == "" || !more {
		return 0, nil
	}

	page, err := t.loader.ListMessages(ctx, convID, chat.Page{Before: before, Limit: t.pageSize})

	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || !t.active.Is(convID) {
		return 0, ErrStale
	}
	if err != nil {
		return 0, fmt.Errorf("load older messages: %w", err)
	}

	added := 0
	for _, msg := range page {
		if t.insert(msg) {
			added++
		}
	}
	t.hasMore = len(page) >= t.pageSize
	return added, nil
}

// HasMore reports whether older history may exist on the server.
func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// ConversationID returns the conversation the timeline holds.
func (t *Timeline) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.convID
}

// Messages returns a copy of the ordered timeline.
func (t *Timeline) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.msgs)
}

// Len returns the number of messages held.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Find returns the message with the given ID.
func (t *Timeline) Find(id string) (chat.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexByID(id); i >= 0 {
		return t.msgs[i], true
	}
	return chat.Message{}, false
}

// AppendIfNew inserts msg in order unless a message with the same ID is
// already present. A server copy of a pending local message replaces it.
// Messages for any conversation other than the active one are ignored. It
// reports whether the timeline changed.
func (t *Timeline) AppendIfNew(msg chat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.ConversationID != t.convID || !t.active.Is(msg.ConversationID) {
		return false
	}

	if !msg.Pending && msg.ClientID != "" {
		if i := t.indexPending(msg.ClientID); i >= 0 {
			t.msgs = slices.Delete(t.msgs, i, i+1)
			if t.indexByID(msg.ID) >= 0 {
				return true
			}
		}
	}

	return t.insert(msg)
}

// Confirm swaps the pending message clientID for the server's copy. When
// the broadcast echo already arrived the pending entry is simply dropped.
func (t *Timeline) Confirm(clientID string, msg chat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexPending(clientID)
	if i < 0 {
		return false
	}
	t.msgs = slices.Delete(t.msgs, i, i+1)

	if msg.ConversationID != t.convID {
		return true
	}
	msg.Pending = false
	t.insert(msg)
	return true
}

// Discard removes the pending message clientID, rolling back an optimistic
// insert.
func (t *Timeline) Discard(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexPending(clientID)
	if i < 0 {
		return false
	}
	t.msgs = slices.Delete(t.msgs, i, i+1)
	return true
}

func (t *Timeline) indexByID(id string) int {
	return slices.IndexFunc(t.msgs, func(m chat.Message) bool { return m.ID == id })
}

func (t *Timeline) indexPending(clientID string) int {
	if clientID == "" {
		return -1
	}
	return slices.IndexFunc(t.msgs, func(m chat.Message) bool {
		return m.Pending && m.ClientID == clientID
	})
}

// insert must be called with mu held.
func (t *Timeline) insert(msg chat.Message) bool {
	if t.indexByID(msg.ID) >= 0 {
		t.log.Debug().Str("message", msg.ID).Msg("duplicate message ignored")
		return false
	}

	i, _ := slices.BinarySearchFunc(t.msgs, msg, chat.Compare)
	t.msgs = slices.Insert(t.msgs, i, msg)
	return true
}
