// Package directory keeps the list of conversations visible to the user and
// their summary projections: last message, pinned message, unread count and
// the local favorite ordering.
package directory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Lister fetches the user's conversations.
type Lister interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
}

// FavoriteStore persists the per-user favorite ordering.
type FavoriteStore interface {
	Favorites(ctx context.Context, userID string) ([]string, error)
	SetFavorites(ctx context.Context, userID string, ids []string) error
}

// Emitter sends fire-and-forget events; used to join conversation rooms.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Directory is safe for concurrent use. Conversations are returned by value;
// callers never mutate directory state directly.
type Directory struct {
	lister  Lister
	favs    FavoriteStore
	emitter Emitter
	selfID  string
	log     zerolog.Logger

	mu        sync.RWMutex
	convs     []chat.Conversation // recency order, newest first
	favorites []string
}

// New creates a Directory for selfID.
func New(lister Lister, favs FavoriteStore, emitter Emitter, selfID string, log zerolog.Logger) *Directory {
	return &Directory{
		lister:  lister,
		favs:    favs,
		emitter: emitter,
		selfID:  selfID,
		log:     log,
	}
}

// LoadAll replaces the directory with the server's list, keeping the server
// order, and loads the user's favorites.
func (d *Directory) LoadAll(ctx context.Context) ([]chat.Conversation, error) {
	convs, err := d.lister.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	favorites, err := d.favs.Favorites(ctx, d.selfID)
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to read favorites, continuing without them")
		favorites = nil
	}

	d.mu.Lock()
	unread := make(map[string]int, len(d.convs))
	for _, c := range d.convs {
		unread[c.ID] = c.Unread
	}
	for i := range convs {
		convs[i].Unread = unread[convs[i].ID]
	}
	d.convs = convs
	d.favorites = favorites
	d.mu.Unlock()

	return d.Ordered(), nil
}

// JoinAll joins the event room of every known conversation so their
// summaries keep updating in the background.
func (d *Directory) JoinAll(ctx context.Context) error {
	d.mu.RLock()
	ids := make([]string, len(d.convs))
	for i, c := range d.convs {
		ids[i] = c.ID
	}
	d.mu.RUnlock()

	for _, id := range ids {
		if err := d.join(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) join(ctx context.Context, id string) error {
	return d.emitter.Emit(ctx, chat.EventJoinConversation, chat.ConversationRef{ConversationID: id})
}

// Ordered returns favorites first, then everything else, each group in
// recency order.
func (d *Directory) Ordered() []chat.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]chat.Conversation, 0, len(d.convs))
	for _, c := range d.convs {
		if slices.Contains(d.favorites, c.ID) {
			out = append(out, c)
		}
	}
	for _, c := range d.convs {
		if !slices.Contains(d.favorites, c.ID) {
			out = append(out, c)
		}
	}
	return out
}

// Get looks up a conversation by ID.
func (d *Directory) Get(id string) (chat.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i := d.index(id); i >= 0 {
		return d.convs[i], true
	}
	return chat.Conversation{}, false
}

// Len returns the number of known conversations.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.convs)
}

func (d *Directory) index(id string) int {
	return slices.IndexFunc(d.convs, func(c chat.Conversation) bool { return c.ID == id })
}

// moveToFront must be called with mu held.
func (d *Directory) moveToFront(i int) {
	if i <= 0 {
		return
	}
	c := d.convs[i]
	copy(d.convs[1:i+1], d.convs[:i])
	d.convs[0] = c
}

// ApplyNewMessage updates the summary of the message's conversation and
// moves it to the front. A message older than the current summary leaves the
// summary and position untouched. Messages for conversations other than
// activeID that were not sent by self count as unread. Applying the current
// summary message again is a no-op. It reports whether the directory changed.
func (d *Directory) ApplyNewMessage(msg chat.Message, activeID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.index(msg.ConversationID)
	if i < 0 {
		d.log.Debug().Str("conversation", msg.ConversationID).Msg("message for unknown conversation")
		return false
	}

	conv := &d.convs[i]
	if msg.ID != "" && conv.LastMessage != nil && conv.LastMessage.MessageID == msg.ID {
		// broadcast echo of a message already applied
		return false
	}
	if msg.ConversationID != activeID && msg.Sender.ID != d.selfID {
		conv.Unread++
	}

	if conv.LastMessage != nil && msg.CreatedAt.Before(conv.LastMessage.CreatedAt) {
		return true
	}

	conv.LastMessage = &chat.LastMessage{
		MessageID: msg.ID,
		SenderID:  msg.Sender.ID,
		Content:   msg.Summary(),
		CreatedAt: msg.CreatedAt,
	}
	d.moveToFront(i)
	return true
}

// ApplyNewConversation inserts conv at the front unless it is already known,
// then joins its room. It reports whether the conversation was new.
func (d *Directory) ApplyNewConversation(ctx context.Context, conv chat.Conversation) (bool, error) {
	if err := conv.Validate(); err != nil {
		return false, fmt.Errorf("new conversation: %w", err)
	}

	d.mu.Lock()
	if d.index(conv.ID) >= 0 {
		d.mu.Unlock()
		return false, nil
	}
	d.convs = slices.Insert(d.convs, 0, conv)
	d.mu.Unlock()

	if err := d.join(ctx, conv.ID); err != nil {
		return true, fmt.Errorf("join %s: %w", conv.ID, err)
	}
	return true, nil
}

// ApplyPinned replaces the pinned message of a conversation. It is the only
// way pin state changes. It reports whether the conversation is known.
func (d *Directory) ApplyPinned(conversationID string, pinned *chat.Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.index(conversationID)
	if i < 0 {
		return false
	}
	d.convs[i].PinnedMessage = pinned
	return true
}

// Pinned returns the pinned message of a conversation, if any.
func (d *Directory) Pinned(conversationID string) *chat.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i := d.index(conversationID); i >= 0 {
		return d.convs[i].PinnedMessage
	}
	return nil
}

// MarkRead clears the unread count of a conversation.
func (d *Directory) MarkRead(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i := d.index(conversationID); i >= 0 {
		d.convs[i].Unread = 0
	}
}

// IsFavorite reports whether the conversation is pinned to the top.
func (d *Directory) IsFavorite(conversationID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Contains(d.favorites, conversationID)
}

// ToggleFavorite flips the favorite flag of a conversation and persists the
// new list. It returns the new flag value.
func (d *Directory) ToggleFavorite(ctx context.Context, conversationID string) (bool, error) {
	d.mu.Lock()
	if d.index(conversationID) < 0 {
		d.mu.Unlock()
		return false, &chat.NotFoundError{Kind: "conversation", ID: conversationID}
	}

	next := slices.Clone(d.favorites)
	favorite := !slices.Contains(next, conversationID)
	if favorite {
		next = append(next, conversationID)
	} else {
		next = slices.DeleteFunc(next, func(id string) bool { return id == conversationID })
	}
	d.mu.Unlock()

	if err := d.favs.SetFavorites(ctx, d.selfID, next); err != nil {
		return !favorite, fmt.Errorf("save favorites: %w", err)
	}

	d.mu.Lock()
	d.favorites = next
	d.mu.Unlock()

	return favorite, nil
}
