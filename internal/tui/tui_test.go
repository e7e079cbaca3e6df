package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

func testConversations() []chat.Conversation {
	now := time.Now()
	return []chat.Conversation{
		{ID: "c1", Type: chat.TypeGroup, Name: "design", LastMessage: &chat.LastMessage{Content: "hi", CreatedAt: now}},
		{ID: "c2", Type: chat.TypeGroup, Name: "ops", Unread: 3},
		{ID: "d1", Type: chat.TypeDirect, Members: []chat.Member{{ID: "me"}, {ID: "u1", Username: "amy"}}},
	}
}

func TestSidebar_Navigation(t *testing.T) {
	s := NewSidebar("me")
	s.SetSize(30, 10)
	s.SetConversations(testConversations(), nil)

	require.NotNil(t, s.Selected())
	assert.Equal(t, "c1", s.Selected().ID)

	s.MoveUp()
	assert.Equal(t, "c1", s.Selected().ID, "cursor stays at the top")

	s.MoveDown()
	s.MoveDown()
	s.MoveDown()
	assert.Equal(t, "d1", s.Selected().ID, "cursor stops at the bottom")
}

func TestSidebar_KeepsSelectionAcrossReorder(t *testing.T) {
	s := NewSidebar("me")
	s.SetSize(30, 10)

	convs := testConversations()
	s.SetConversations(convs, nil)
	s.MoveDown()
	assert.Equal(t, "c2", s.Selected().ID)

	reordered := []chat.Conversation{convs[2], convs[1], convs[0]}
	s.SetConversations(reordered, nil)
	assert.Equal(t, "c2", s.Selected().ID)
}

func TestSidebar_FilterMatchesDisplayName(t *testing.T) {
	s := NewSidebar("me")
	s.SetSize(30, 10)
	s.SetConversations(testConversations(), nil)

	s.StartFilter()
	for _, r := range "AM" {
		s.AddFilterRune(r)
	}
	require.NotNil(t, s.Selected())
	assert.Equal(t, "d1", s.Selected().ID, "direct conversations match on the counterpart")

	s.DeleteFilterRune()
	s.DeleteFilterRune()
	s.AddFilterRune('z')
	assert.Nil(t, s.Selected())
	assert.Contains(t, s.View(), "No matches")

	s.CancelFilter()
	assert.False(t, s.IsFiltering())
	assert.Equal(t, "c1", s.Selected().ID)
}

func TestSidebar_ViewShowsBadges(t *testing.T) {
	s := NewSidebar("me")
	s.SetSize(40, 10)
	s.SetConversations(testConversations(), map[string]bool{"c2": true})

	view := s.View()
	assert.Contains(t, view, "(3)")
	assert.Contains(t, view, iconStar)
	assert.Contains(t, view, "amy")
}

func TestSidebar_ScrollsToCursor(t *testing.T) {
	var convs []chat.Conversation
	for i := range 20 {
		convs = append(convs, chat.Conversation{ID: string(rune('a' + i)), Type: chat.TypeGroup, Name: string(rune('a' + i))})
	}

	s := NewSidebar("me")
	s.SetSize(30, 5)
	s.SetConversations(convs, nil)

	for range 10 {
		s.MoveDown()
	}
	assert.Equal(t, "k", s.Selected().ID)
	assert.LessOrEqual(t, s.offset, 10)
	assert.Greater(t, s.offset+s.visibleLines(), 10)
}

func TestTimelineView_SelectionAndPending(t *testing.T) {
	now := time.Now()
	v := NewTimelineView("me")
	v.SetSize(60, 20)

	msgs := []chat.Message{
		{ID: "m1", Sender: chat.Member{ID: "u1", Username: "amy"}, Content: "hello @me", CreatedAt: now.Add(-time.Minute)},
		{ID: "tmp", Sender: chat.Member{ID: "me"}, Content: "on my way", CreatedAt: now, Pending: true},
	}
	v.SetMessages(msgs, &msgs[0], true)

	require.NotNil(t, v.Selected())
	assert.Equal(t, "tmp", v.Selected().ID, "follow moves the cursor to the newest message")

	v.MoveUp()
	assert.Equal(t, "m1", v.Selected().ID)
	assert.True(t, v.AtTop())

	view := v.View()
	assert.Contains(t, view, "Today")
	assert.Contains(t, view, "amy")
	assert.Contains(t, view, iconPending)
	assert.Contains(t, v.PinnedBanner(60), "hello")
}

func TestTimelineView_Empty(t *testing.T) {
	v := NewTimelineView("me")
	v.SetSize(40, 5)
	v.SetMessages(nil, nil, true)

	assert.Nil(t, v.Selected())
	assert.Contains(t, v.View(), "No messages yet")
	assert.Empty(t, v.PinnedBanner(40))
}

func TestTypingLine(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"amy"}, "amy is typing…"},
		{[]string{"amy", "bo"}, "amy and bo are typing…"},
		{[]string{"amy", "bo", "cy"}, "amy and 2 others are typing…"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, typingLine(tt.names))
	}
}

func TestByteOffset(t *testing.T) {
	assert.Equal(t, 0, byteOffset("héllo", 0))
	assert.Equal(t, 3, byteOffset("héllo", 2))
	assert.Equal(t, len("héllo"), byteOffset("héllo", 99))
}

func TestHelpString(t *testing.T) {
	k := defaultKeyMap()

	assert.Contains(t, k.HelpString(FocusSidebar, false), "favorite")
	assert.Contains(t, k.HelpString(FocusTimeline, false), "pin/unpin")
	assert.Contains(t, k.HelpString(FocusComposer, true), "complete mention")
	assert.NotContains(t, k.HelpString(FocusComposer, false), "complete mention")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.True(t, strings.HasSuffix(truncate("ünïcödé", 4), "…"))
}

func TestColorForStringIsStable(t *testing.T) {
	assert.Equal(t, ColorForString("amy"), ColorForString("amy"))
}
