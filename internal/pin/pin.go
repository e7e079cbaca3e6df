// Package pin coordinates the single pinned-message slot of a conversation.
package pin

import (
	"context"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Setter is the server call that sets or clears the slot.
type Setter interface {
	SetPinned(ctx context.Context, conversationID string, messageID *string) (*chat.Message, error)
}

// Mirror holds the client-side copy of pin state.
type Mirror interface {
	Pinned(conversationID string) *chat.Message
	ApplyPinned(conversationID string, pinned *chat.Message) bool
}

// Coordinator changes pins. The mirror is only written once the server has
// accepted the change, so a failed request leaves local state untouched.
type Coordinator struct {
	api    Setter
	mirror Mirror
}

// New creates a Coordinator.
func New(api Setter, mirror Mirror) *Coordinator {
	return &Coordinator{api: api, mirror: mirror}
}

// SetPinned sets the slot to messageID, or clears it when messageID is nil,
// and returns the pinned message the server reports.
func (c *Coordinator) SetPinned(ctx context.Context, conversationID string, messageID *string) (*chat.Message, error) {
	pinned, err := c.api.SetPinned(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}

	if pinned == nil && messageID != nil {
		// server accepted without echoing the message body
		pinned = &chat.Message{ID: *messageID, ConversationID: conversationID}
	}
	c.mirror.ApplyPinned(conversationID, pinned)
	return pinned, nil
}

// Toggle pins msg, or unpins it when it is already the pinned message.
// Pinning a different message replaces the slot.
func (c *Coordinator) Toggle(ctx context.Context, msg chat.Message) (*chat.Message, error) {
	if current := c.mirror.Pinned(msg.ConversationID); current != nil && current.ID == msg.ID {
		return c.SetPinned(ctx, msg.ConversationID, nil)
	}
	id := msg.ID
	return c.SetPinned(ctx, msg.ConversationID, &id)
}

// Unpin clears the slot.
func (c *Coordinator) Unpin(ctx context.Context, conversationID string) error {
	_, err := c.SetPinned(ctx, conversationID, nil)
	return err
}
