package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

type mockLister struct {
	convs []chat.Conversation
	err   error
}

func (m *mockLister) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	return append([]chat.Conversation(nil), m.convs...), m.err
}

type memFavorites struct {
	byUser map[string][]string
	err    error
}

func (m *memFavorites) Favorites(ctx context.Context, userID string) ([]string, error) {
	return m.byUser[userID], nil
}

func (m *memFavorites) SetFavorites(ctx context.Context, userID string, ids []string) error {
	if m.err != nil {
		return m.err
	}
	if m.byUser == nil {
		m.byUser = map[string][]string{}
	}
	m.byUser[userID] = ids
	return nil
}

type recordingEmitter struct {
	joined []string
}

func (r *recordingEmitter) Emit(ctx context.Context, event string, payload any) error {
	if ref, ok := payload.(chat.ConversationRef); ok && event == chat.EventJoinConversation {
		r.joined = append(r.joined, ref.ConversationID)
	}
	return nil
}

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func group(id string, last time.Time) chat.Conversation {
	return chat.Conversation{
		ID:          id,
		Type:        chat.TypeGroup,
		Name:        id,
		Members:     []chat.Member{{ID: "me"}, {ID: "u2"}},
		LastMessage: &chat.LastMessage{Content: "old", CreatedAt: last},
	}
}

func ids(convs []chat.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func newDirectory(t *testing.T, convs ...chat.Conversation) (*Directory, *memFavorites, *recordingEmitter) {
	t.Helper()
	favs := &memFavorites{}
	emitter := &recordingEmitter{}
	d := New(&mockLister{convs: convs}, favs, emitter, "me", zerolog.Nop())
	_, err := d.LoadAll(context.Background())
	require.NoError(t, err)
	return d, favs, emitter
}

func TestLoadAll_PreservesServerOrder(t *testing.T) {
	// server order deliberately disagrees with timestamps
	d, _, _ := newDirectory(t, group("b", t0), group("a", t0.Add(time.Hour)), group("c", t0))

	assert.Equal(t, []string{"b", "a", "c"}, ids(d.Ordered()))
}

func TestLoadAll_Error(t *testing.T) {
	d := New(&mockLister{err: errors.New("boom")}, &memFavorites{}, &recordingEmitter{}, "me", zerolog.Nop())

	_, err := d.LoadAll(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestApplyNewMessage_UpdatesSummaryAndMovesToFront(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0), group("b", t0), group("c", t0))

	changed := d.ApplyNewMessage(chat.Message{
		ID:             "m1",
		ConversationID: "c",
		Sender:         chat.Member{ID: "u2"},
		Content:        "ship it",
		CreatedAt:      t0.Add(time.Minute),
	}, "a")
	require.True(t, changed)

	assert.Equal(t, []string{"c", "a", "b"}, ids(d.Ordered()))
	c, _ := d.Get("c")
	assert.Equal(t, "ship it", c.LastMessage.Content)
	assert.Equal(t, 1, c.Unread)
}

func TestApplyNewMessage_MediaPlaceholder(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0))

	d.ApplyNewMessage(chat.Message{
		ConversationID: "a",
		Sender:         chat.Member{ID: "u2"},
		Media:          &chat.Attachment{MimeType: "video/mp4"},
		CreatedAt:      t0.Add(time.Minute),
	}, "")

	a, _ := d.Get("a")
	assert.Equal(t, "Video", a.LastMessage.Content)
}

func TestApplyNewMessage_ActiveOrSelfIsNotUnread(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0), group("b", t0))

	d.ApplyNewMessage(chat.Message{ConversationID: "a", Sender: chat.Member{ID: "u2"}, CreatedAt: t0.Add(time.Minute)}, "a")
	d.ApplyNewMessage(chat.Message{ConversationID: "b", Sender: chat.Member{ID: "me"}, CreatedAt: t0.Add(time.Minute)}, "a")

	a, _ := d.Get("a")
	b, _ := d.Get("b")
	assert.Zero(t, a.Unread)
	assert.Zero(t, b.Unread)

	d.ApplyNewMessage(chat.Message{ConversationID: "b", Sender: chat.Member{ID: "u2"}, CreatedAt: t0.Add(2 * time.Minute)}, "a")
	d.MarkRead("b")
	b, _ = d.Get("b")
	assert.Zero(t, b.Unread)
}

func TestApplyNewMessage_LateOlderMessageKeepsSummary(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0), group("b", t0.Add(5*time.Minute)))

	d.ApplyNewMessage(chat.Message{ConversationID: "b", Content: "late", Sender: chat.Member{ID: "u2"}, CreatedAt: t0}, "")

	b, _ := d.Get("b")
	assert.Equal(t, "old", b.LastMessage.Content)
	assert.Equal(t, []string{"a", "b"}, ids(d.Ordered()))
}

func TestApplyNewMessage_RepeatCountsOnce(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0), group("b", t0))
	msg := chat.Message{ID: "m9", ConversationID: "b", Sender: chat.Member{ID: "u2"}, Content: "twice", CreatedAt: t0.Add(time.Minute)}

	require.True(t, d.ApplyNewMessage(msg, "a"))
	assert.False(t, d.ApplyNewMessage(msg, "a"))

	b, _ := d.Get("b")
	assert.Equal(t, 1, b.Unread)
	assert.Equal(t, "twice", b.LastMessage.Content)
}

func TestApplyNewMessage_UnknownConversation(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0))

	assert.False(t, d.ApplyNewMessage(chat.Message{ConversationID: "zzz"}, ""))
}

func TestApplyNewConversation_InsertsOnceAndJoins(t *testing.T) {
	d, _, emitter := newDirectory(t, group("a", t0))

	direct := chat.Conversation{
		ID:      "d1",
		Type:    chat.TypeDirect,
		Members: []chat.Member{{ID: "me"}, {ID: "u9", Username: "nina"}},
	}

	added, err := d.ApplyNewConversation(context.Background(), direct)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = d.ApplyNewConversation(context.Background(), direct)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []string{"d1", "a"}, ids(d.Ordered()))
	assert.Equal(t, []string{"d1"}, emitter.joined)
}

func TestApplyNewConversation_RejectsInvalid(t *testing.T) {
	d, _, emitter := newDirectory(t)

	_, err := d.ApplyNewConversation(context.Background(), chat.Conversation{
		ID:      "d1",
		Type:    chat.TypeDirect,
		Members: []chat.Member{{ID: "me"}},
	})
	require.Error(t, err)
	assert.Zero(t, d.Len())
	assert.Empty(t, emitter.joined)
}

func TestJoinAll(t *testing.T) {
	d, _, emitter := newDirectory(t, group("a", t0), group("b", t0))

	require.NoError(t, d.JoinAll(context.Background()))
	assert.Equal(t, []string{"a", "b"}, emitter.joined)
}

func TestApplyPinned(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0))

	assert.True(t, d.ApplyPinned("a", &chat.Message{ID: "m1"}))
	assert.Equal(t, "m1", d.Pinned("a").ID)

	assert.True(t, d.ApplyPinned("a", nil))
	assert.Nil(t, d.Pinned("a"))

	assert.False(t, d.ApplyPinned("nope", nil))
}

func TestToggleFavorite_SortsFirstAndPersists(t *testing.T) {
	d, favs, _ := newDirectory(t, group("a", t0), group("b", t0), group("c", t0))
	ctx := context.Background()

	fav, err := d.ToggleFavorite(ctx, "c")
	require.NoError(t, err)
	assert.True(t, fav)
	assert.Equal(t, []string{"c", "a", "b"}, ids(d.Ordered()))
	assert.Equal(t, []string{"c"}, favs.byUser["me"])

	// recency still applies inside the non-favorite group
	d.ApplyNewMessage(chat.Message{ConversationID: "b", Sender: chat.Member{ID: "u2"}, CreatedAt: t0.Add(time.Minute)}, "")
	assert.Equal(t, []string{"c", "b", "a"}, ids(d.Ordered()))

	fav, err = d.ToggleFavorite(ctx, "c")
	require.NoError(t, err)
	assert.False(t, fav)
	assert.Empty(t, favs.byUser["me"])
}

func TestToggleFavorite_DoesNotTouchPinState(t *testing.T) {
	d, _, _ := newDirectory(t, group("a", t0))
	d.ApplyPinned("a", &chat.Message{ID: "m1"})

	_, err := d.ToggleFavorite(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, "m1", d.Pinned("a").ID)
}

func TestToggleFavorite_SaveFailureKeepsState(t *testing.T) {
	d, favs, _ := newDirectory(t, group("a", t0))
	favs.err = errors.New("disk full")

	_, err := d.ToggleFavorite(context.Background(), "a")
	require.Error(t, err)
	assert.False(t, d.IsFavorite("a"))
}

func TestToggleFavorite_Unknown(t *testing.T) {
	d, _, _ := newDirectory(t)

	_, err := d.ToggleFavorite(context.Background(), "x")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestLoadAll_RestoresFavorites(t *testing.T) {
	favs := &memFavorites{byUser: map[string][]string{"me": {"b"}}}
	d := New(&mockLister{convs: []chat.Conversation{group("a", t0), group("b", t0)}}, favs, &recordingEmitter{}, "me", zerolog.Nop())

	convs, err := d.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(convs))
}
