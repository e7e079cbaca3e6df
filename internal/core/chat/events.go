package chat

// Client-to-server events.
const (
	EventSendMessage      = "send_message"
	EventJoinConversation = "join_conversation"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
)

// Server-to-client events.
const (
	EventNewMessage           = "new_message"
	EventNewConversation      = "new_conversation"
	EventUserTyping           = "user_typing"
	EventUserStopTyping       = "user_stop_typing"
	EventPinnedMessageUpdated = "pinned_message_updated"
)

// SendMessage is the payload of send_message. The server acknowledges with
// the stored Message.
type SendMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ReplyToID      string `json:"replyToId,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
}

// ConversationRef is the payload of join_conversation, typing_start and
// typing_stop.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// NewMessageEvent is broadcast to a conversation room for every stored message.
type NewMessageEvent struct {
	Message Message `json:"message"`
}

// NewConversationEvent tells a user that someone else opened a conversation
// with them.
type NewConversationEvent struct {
	Conversation Conversation `json:"conversation"`
}

// TypingEvent is the payload of user_typing and user_stop_typing.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// PinnedMessageEvent carries the new pin slot of a conversation; a nil
// PinnedMessage means the slot was cleared.
type PinnedMessageEvent struct {
	ConversationID string   `json:"conversationId"`
	PinnedMessage  *Message `json:"pinnedMessage"`
}
