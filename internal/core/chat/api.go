package chat

import "context"

// Page selects a slice of a conversation's history. Results are returned
// newest first; Before is the ID of the oldest message already held.
type Page struct {
	Before string
	Limit  int
}

// Upload is a media message sent through the request/response path.
type Upload struct {
	ConversationID string
	Content        string
	ReplyToID      string
	ClientID       string
	Attachment     Attachment
}

// API is the request/response surface of the chat server.
type API interface {
	// ListConversations returns the user's conversations, most recent first.
	ListConversations(ctx context.Context) ([]Conversation, error)
	// ListMessages returns one page of messages, newest first.
	ListMessages(ctx context.Context, conversationID string, page Page) ([]Message, error)
	// CreateDirect opens (or returns the existing) direct conversation with
	// the target user, given as user ID or username.
	CreateDirect(ctx context.Context, target string) (Conversation, error)
	// UploadMedia stores a message carrying an attachment.
	UploadMedia(ctx context.Context, upload Upload) (Message, error)
	// SetPinned sets or, with a nil messageID, clears the pinned message.
	SetPinned(ctx context.Context, conversationID string, messageID *string) (*Message, error)
}
