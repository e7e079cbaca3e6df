package timeline

import (
	"time"

	"github.com/hay-kot/parley/internal/core/chat"
)

// Item is one rendered message row.
type Item struct {
	Message chat.Message
	// ShowSender is false when the row continues a run of messages from the
	// same sender inside one day.
	ShowSender bool
}

// DayGroup is the set of messages sent on one calendar day.
type DayGroup struct {
	Day   time.Time
	Label string
	Items []Item
}

// Group buckets ordered messages by calendar day in loc. Within a bucket,
// consecutive messages from the same sender collapse their sender header,
// except replies which always show it.
func Group(msgs []chat.Message, now time.Time, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}

	var groups []DayGroup
	for _, msg := range msgs {
		day := startOfDay(msg.CreatedAt.In(loc))

		if len(groups) == 0 || !groups[len(groups)-1].Day.Equal(day) {
			groups = append(groups, DayGroup{Day: day, Label: DayLabel(day, now.In(loc))})
		}

		g := &groups[len(groups)-1]
		show := len(g.Items) == 0 ||
			g.Items[len(g.Items)-1].Message.Sender.ID != msg.Sender.ID ||
			msg.ReplyTo != nil

		g.Items = append(g.Items, Item{Message: msg, ShowSender: show})
	}
	return groups
}

// DayLabel renders a bucket header relative to now.
func DayLabel(day, now time.Time) string {
	today := startOfDay(now)
	day = startOfDay(day.In(now.Location()))

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case day.Year() == today.Year():
		return day.Format("Monday, January 2")
	default:
		return day.Format("Monday, January 2, 2006")
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
