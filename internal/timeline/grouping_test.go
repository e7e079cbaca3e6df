package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

func TestGroup_DayBucketsAndSenderCollapse(t *testing.T) {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC)
	today := time.Date(2026, 3, 3, 0, 5, 0, 0, time.UTC)

	amy := chat.Member{ID: "amy"}
	bob := chat.Member{ID: "bob"}

	msgs := []chat.Message{
		{ID: "1", Sender: amy, CreatedAt: yesterday},
		{ID: "2", Sender: amy, CreatedAt: yesterday.Add(time.Minute)},
		{ID: "3", Sender: amy, CreatedAt: today},
		{ID: "4", Sender: amy, CreatedAt: today.Add(time.Minute), ReplyTo: &chat.ReplyRef{MessageID: "1"}},
		{ID: "5", Sender: bob, CreatedAt: today.Add(2 * time.Minute)},
		{ID: "6", Sender: bob, CreatedAt: today.Add(3 * time.Minute)},
	}

	groups := Group(msgs, now, time.UTC)
	require.Len(t, groups, 2)

	assert.Equal(t, "Yesterday", groups[0].Label)
	assert.Equal(t, "Today", groups[1].Label)

	show := func(g DayGroup) []bool {
		out := make([]bool, len(g.Items))
		for i, it := range g.Items {
			out[i] = it.ShowSender
		}
		return out
	}

	assert.Equal(t, []bool{true, false}, show(groups[0]))
	// new day resets, reply always shows, sender change shows
	assert.Equal(t, []bool{true, true, true, false}, show(groups[1]))
}

func TestGroup_UsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, loc)

	// 03:00 UTC on the 3rd is still the 2nd at UTC-5
	msgs := []chat.Message{
		{ID: "1", CreatedAt: time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)},
		{ID: "2", CreatedAt: time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)},
	}

	groups := Group(msgs, now, loc)
	require.Len(t, groups, 2)
	assert.Equal(t, "Yesterday", groups[0].Label)
	assert.Equal(t, "Today", groups[1].Label)
}

func TestDayLabel(t *testing.T) {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		day  time.Time
		want string
	}{
		{"today", now.Add(-time.Hour), "Today"},
		{"yesterday", now.AddDate(0, 0, -1), "Yesterday"},
		{"this year", time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), "Monday, January 5"},
		{"last year", time.Date(2025, 12, 31, 8, 0, 0, 0, time.UTC), "Wednesday, December 31, 2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayLabel(tt.day, now))
		})
	}
}
