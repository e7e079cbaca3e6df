package pin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

type mockSetter struct {
	calls []*string
	err   error
	echo  bool
}

func (m *mockSetter) SetPinned(ctx context.Context, conversationID string, messageID *string) (*chat.Message, error) {
	m.calls = append(m.calls, messageID)
	if m.err != nil {
		return nil, m.err
	}
	if messageID == nil || !m.echo {
		return nil, nil
	}
	return &chat.Message{ID: *messageID, ConversationID: conversationID, Content: "body"}, nil
}

type memMirror struct {
	slots  map[string]*chat.Message
	writes int
}

func (m *memMirror) Pinned(conversationID string) *chat.Message {
	return m.slots[conversationID]
}

func (m *memMirror) ApplyPinned(conversationID string, pinned *chat.Message) bool {
	if m.slots == nil {
		m.slots = map[string]*chat.Message{}
	}
	m.writes++
	m.slots[conversationID] = pinned
	return true
}

func TestToggle_PinThenUnpin(t *testing.T) {
	api := &mockSetter{echo: true}
	mirror := &memMirror{}
	c := New(api, mirror)
	ctx := context.Background()
	m := chat.Message{ID: "m1", ConversationID: "c1"}

	pinned, err := c.Toggle(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "m1", pinned.ID)
	assert.Equal(t, "body", mirror.Pinned("c1").Content)

	pinned, err = c.Toggle(ctx, m)
	require.NoError(t, err)
	assert.Nil(t, pinned)
	assert.Nil(t, mirror.Pinned("c1"))

	require.Len(t, api.calls, 2)
	assert.Nil(t, api.calls[1])
}

func TestToggle_DifferentMessageReplacesSlot(t *testing.T) {
	mirror := &memMirror{}
	c := New(&mockSetter{echo: true}, mirror)
	ctx := context.Background()

	_, _ = c.Toggle(ctx, chat.Message{ID: "m1", ConversationID: "c1"})
	_, _ = c.Toggle(ctx, chat.Message{ID: "m2", ConversationID: "c1"})

	assert.Equal(t, "m2", mirror.Pinned("c1").ID)
}

func TestSetPinned_TwiceKeepsSameMessage(t *testing.T) {
	mirror := &memMirror{}
	c := New(&mockSetter{}, mirror)
	ctx := context.Background()
	id := "m1"

	_, err := c.SetPinned(ctx, "c1", &id)
	require.NoError(t, err)
	_, err = c.SetPinned(ctx, "c1", &id)
	require.NoError(t, err)

	assert.Equal(t, "m1", mirror.Pinned("c1").ID)
}

func TestSetPinned_FailureLeavesMirrorUntouched(t *testing.T) {
	mirror := &memMirror{slots: map[string]*chat.Message{"c1": {ID: "old"}}}
	c := New(&mockSetter{err: &chat.RequestFailure{Op: "set pinned message", Status: 403}}, mirror)

	id := "m9"
	_, err := c.SetPinned(context.Background(), "c1", &id)

	var rf *chat.RequestFailure
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, "old", mirror.Pinned("c1").ID)
	assert.Zero(t, mirror.writes)
}

func TestUnpin(t *testing.T) {
	mirror := &memMirror{slots: map[string]*chat.Message{"c1": {ID: "m1"}}}
	c := New(&mockSetter{}, mirror)

	require.NoError(t, c.Unpin(context.Background(), "c1"))
	assert.Nil(t, mirror.Pinned("c1"))
}
