package commands

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hay-kot/parley/internal/core/chat"
)

// findConversation resolves ref to a conversation by exact ID, then by
// case-insensitive display name. An ambiguous name is an error.
func findConversation(convs []chat.Conversation, selfID, ref string) (chat.Conversation, error) {
	for _, c := range convs {
		if c.ID == ref {
			return c, nil
		}
	}

	var matches []chat.Conversation
	for _, c := range convs {
		if strings.EqualFold(c.DisplayName(selfID), ref) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return chat.Conversation{}, &chat.NotFoundError{Kind: "conversation", ID: ref}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return chat.Conversation{}, fmt.Errorf("%q matches %d conversations (%s), use an ID", ref, len(matches), strings.Join(ids, ", "))
	}
}

// filterConversations keeps conversations whose lowercased display name
// matches the glob pattern. An empty pattern keeps everything.
func filterConversations(convs []chat.Conversation, selfID, pattern string) ([]chat.Conversation, error) {
	if pattern == "" {
		return convs, nil
	}
	pattern = strings.ToLower(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid filter pattern %q", pattern)
	}

	out := make([]chat.Conversation, 0, len(convs))
	for _, c := range convs {
		ok, err := doublestar.Match(pattern, strings.ToLower(c.DisplayName(selfID)))
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}
