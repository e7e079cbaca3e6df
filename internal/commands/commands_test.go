package commands

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
)

func sampleConversations() []chat.Conversation {
	return []chat.Conversation{
		{ID: "c1", Type: chat.TypeGroup, Name: "team-design", Members: []chat.Member{{ID: "me"}, {ID: "u1", Name: "Amy"}}},
		{ID: "c2", Type: chat.TypeGroup, Name: "team-ops", Members: []chat.Member{{ID: "me"}, {ID: "u2", Username: "bo"}}},
		{ID: "c3", Type: chat.TypeGroup, Name: "random", Members: []chat.Member{{ID: "me"}, {ID: "u1", Name: "Amy"}}},
		{ID: "d1", Type: chat.TypeDirect, Members: []chat.Member{{ID: "me"}, {ID: "u2", Username: "bo"}}},
	}
}

func TestFindConversation(t *testing.T) {
	convs := sampleConversations()

	t.Run("by id", func(t *testing.T) {
		c, err := findConversation(convs, "me", "c2")
		require.NoError(t, err)
		assert.Equal(t, "c2", c.ID)
	})

	t.Run("by name ignoring case", func(t *testing.T) {
		c, err := findConversation(convs, "me", "TEAM-Design")
		require.NoError(t, err)
		assert.Equal(t, "c1", c.ID)
	})

	t.Run("direct by counterpart", func(t *testing.T) {
		c, err := findConversation(convs, "me", "bo")
		require.NoError(t, err)
		assert.Equal(t, "d1", c.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := findConversation(convs, "me", "nope")
		assert.ErrorIs(t, err, chat.ErrNotFound)
	})

	t.Run("ambiguous", func(t *testing.T) {
		dup := append(sampleConversations(), chat.Conversation{ID: "c9", Type: chat.TypeGroup, Name: "random"})
		_, err := findConversation(dup, "me", "random")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "c3, c9")
	})
}

func TestFilterConversations(t *testing.T) {
	convs := sampleConversations()

	got, err := filterConversations(convs, "me", "")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = filterConversations(convs, "me", "Team-*")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)

	got, err = filterConversations(convs, "me", "{bo,random}")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = filterConversations(convs, "me", "[")
	assert.Error(t, err)
}

func TestContacts(t *testing.T) {
	members := contacts(sampleConversations(), "me")

	require.Len(t, members, 2)
	assert.Equal(t, "u1", members[0].ID)
	assert.Equal(t, "u2", members[1].ID)
}

func TestNewArrival(t *testing.T) {
	now := time.Now()
	conv := sampleConversations()[0]
	conv.LastMessage = &chat.LastMessage{MessageID: "m1", SenderID: "u1", Content: "hi", CreatedAt: now}

	seen := lastSeen([]chat.Conversation{conv})
	_, fresh := newArrival(conv, "me", seen)
	assert.False(t, fresh, "already seen at start")

	conv.LastMessage = &chat.LastMessage{MessageID: "m2", SenderID: "u1", Content: "again", CreatedAt: now}
	msg, fresh := newArrival(conv, "me", seen)
	require.True(t, fresh)
	assert.Equal(t, "Amy", msg.Sender)
	assert.Equal(t, "team-design", msg.Conversation)
	assert.Equal(t, "again", msg.Content)

	_, fresh = newArrival(conv, "me", seen)
	assert.False(t, fresh, "reported once")

	conv.LastMessage = &chat.LastMessage{MessageID: "m3", SenderID: "me", Content: "mine"}
	_, fresh = newArrival(conv, "me", seen)
	assert.False(t, fresh, "own messages are skipped")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\tc", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}

func TestRedactedMasksToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.Token = "secret"

	out := redacted(cfg)
	assert.Equal(t, "********", out.Auth.Token)
	assert.Equal(t, "secret", cfg.Auth.Token, "input is not modified")

	cfg.Auth.Token = ""
	assert.Empty(t, redacted(cfg).Auth.Token)
}

func TestExtractFieldErrors(t *testing.T) {
	assert.Nil(t, extractFieldErrors(nil))

	plain := extractFieldErrors(errors.New("boom"))
	require.Len(t, plain, 1)
	assert.Empty(t, plain[0].Field)

	cfg := config.DefaultConfig()
	cfg.Server.APIURL = ""
	fields := extractFieldErrors(cfg.Validate())
	require.NotEmpty(t, fields)
	assert.Equal(t, "data_dir", fields[0].Field)
}
