// Package chat defines the conversation and message domain types shared by
// every parley component, along with the wire events and the error taxonomy.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConversationType distinguishes team-backed groups from one-to-one chats.
// It never changes after creation.
type ConversationType string

const (
	TypeGroup  ConversationType = "group"
	TypeDirect ConversationType = "direct"
)

// Member is a participant of a conversation.
type Member struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// DisplayName returns the best human label for the member.
func (m Member) DisplayName() string {
	switch {
	case m.Name != "":
		return m.Name
	case m.Username != "":
		return m.Username
	case m.Email != "":
		return m.Email
	default:
		return m.ID
	}
}

// Attachment is a media payload carried by a message. Data holds the
// base64-encoded bytes exactly as they travel over the upload endpoint.
type Attachment struct {
	MimeType string `json:"type"`
	Data     string `json:"data"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ReplyRef points at another message in the same conversation. Sender and
// content are denormalized by the server so the reply can be rendered
// without the referenced message being loaded.
type ReplyRef struct {
	MessageID string `json:"id"`
	Sender    Member `json:"sender"`
	Content   string `json:"content,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Label returns the quoted text for the reply header. When the referenced
// message can no longer be resolved it degrades to PlaceholderPreviousMessage.
func (r *ReplyRef) Label() string {
	if r == nil {
		return ""
	}
	switch {
	case r.Content != "":
		return r.Content
	case r.MediaType != "":
		return MediaLabel(r.MediaType)
	default:
		return PlaceholderPreviousMessage
	}
}

// Message is immutable once the server has assigned its ID and timestamp.
type Message struct {
	ID             string      `json:"id"`
	ClientID       string      `json:"clientId,omitempty"`
	ConversationID string      `json:"conversationId"`
	Sender         Member      `json:"sender"`
	Content        string      `json:"content,omitempty"`
	Media          *Attachment `json:"media,omitempty"`
	ReplyTo        *ReplyRef   `json:"replyTo,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`

	// Pending is set on optimistic local copies that the server has not
	// acknowledged yet. It is never sent over the wire.
	Pending bool `json:"-"`
}

// Summary returns the text used for conversation previews.
func (m Message) Summary() string {
	if text := strings.TrimSpace(m.Content); text != "" {
		return text
	}
	if m.Media != nil {
		return MediaLabel(m.Media.MimeType)
	}
	return ""
}

// Compare orders messages by server timestamp, breaking ties on ID so the
// order is total and stable regardless of arrival order.
func Compare(a, b Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// LastMessage is the summary projection a conversation keeps of its newest
// message.
type LastMessage struct {
	MessageID string    `json:"id,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a channel with an ordered member list.
type Conversation struct {
	ID            string           `json:"id"`
	Type          ConversationType `json:"type"`
	Name          string           `json:"name,omitempty"`
	Members       []Member         `json:"members"`
	LastMessage   *LastMessage     `json:"lastMessage,omitempty"`
	PinnedMessage *Message         `json:"pinnedMessage,omitempty"`
	TeamID        string           `json:"teamId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`

	// Unread counts messages received while the conversation was not active.
	Unread int `json:"-"`
}

// IsDirect reports whether the conversation is a one-to-one chat.
func (c Conversation) IsDirect() bool {
	return c.Type == TypeDirect
}

// Counterpart returns the member of a direct conversation that is not self.
func (c Conversation) Counterpart(selfID string) (Member, bool) {
	if !c.IsDirect() {
		return Member{}, false
	}
	for _, m := range c.Members {
		if m.ID != selfID {
			return m, true
		}
	}
	return Member{}, false
}

// DisplayName returns the conversation title as seen by selfID. Direct
// conversations are named after the counterpart member.
func (c Conversation) DisplayName(selfID string) string {
	if c.IsDirect() {
		if m, ok := c.Counterpart(selfID); ok {
			return m.DisplayName()
		}
	}
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Member looks up a member by ID.
func (c Conversation) Member(id string) (Member, bool) {
	for _, m := range c.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// LastActivity returns the time used for recency ordering.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// Validate checks the membership invariants for the conversation type.
func (c Conversation) Validate() error {
	if c.ID == "" {
		return errors.New("conversation id is required")
	}
	switch c.Type {
	case TypeDirect:
		if len(c.Members) != 2 {
			return fmt.Errorf("direct conversation %s must have exactly 2 members, has %d", c.ID, len(c.Members))
		}
	case TypeGroup:
		if len(c.Members) == 0 {
			return fmt.Errorf("group conversation %s has no members", c.ID)
		}
	default:
		return fmt.Errorf("conversation %s has unknown type %q", c.ID, c.Type)
	}
	return nil
}

// MediaLabel derives the preview placeholder from a MIME type prefix.
func MediaLabel(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "Photo"
	case strings.HasPrefix(mimeType, "video/"):
		return "Video"
	default:
		return "Attachment"
	}
}
