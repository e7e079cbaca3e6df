package composer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/chat"
)

var (
	me   = chat.Member{ID: "me", Username: "me", Name: "Me"}
	amy  = chat.Member{ID: "u1", Username: "amy", Name: "Amy Pond"}
	amir = chat.Member{ID: "u2", Username: "amir", Name: "Amir Khan"}
	sam  = chat.Member{ID: "u3", Username: "sam", Name: "Samantha"}
)

func newComposer(t *testing.T) *Composer {
	t.Helper()
	c := New("me", DefaultLimits())
	c.Reset("c1", []chat.Member{me, amy, amir, sam})
	return c
}

func usernames(ms []chat.Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Username
	}
	return out
}

func TestStates(t *testing.T) {
	c := newComposer(t)
	assert.Equal(t, StateEmpty, c.State())
	assert.False(t, c.Sendable())

	c.SetText("   ", 3)
	assert.Equal(t, StateDrafting, c.State())
	assert.False(t, c.Sendable(), "whitespace only is not sendable")

	c.SetText("hi", 2)
	assert.True(t, c.Sendable())

	d, err := c.Begin()
	require.NoError(t, err)
	assert.Equal(t, StateSending, c.State())
	assert.Equal(t, "hi", d.Content())

	_, err = c.Begin()
	assert.ErrorIs(t, err, ErrSendInFlight)

	c.Resolve(d, nil)
	assert.Equal(t, StateSent, c.State())

	c.SetText("", 0)
	assert.Equal(t, StateEmpty, c.State())

	_, err = c.Begin()
	assert.ErrorIs(t, err, ErrNothingToSend)
}

func TestMention_CandidatesAndSpliceAtCapturedOffset(t *testing.T) {
	c := newComposer(t)

	c.SetText("@am", 3)
	m, ok := c.Mention()
	require.True(t, ok)
	assert.Equal(t, Mention{Start: 0, Query: "am"}, m)
	assert.Equal(t, []string{"amy", "amir"}, usernames(c.Candidates()))

	// the user keeps typing after the token before picking a candidate
	c.SetText("@am see this", 12)
	assert.Equal(t, []string{"amy", "amir"}, usernames(c.Candidates()))

	text, cursor, err := c.SelectMention(amir)
	require.NoError(t, err)
	assert.Equal(t, "@amir  see this", text)
	assert.Equal(t, len("@amir "), cursor)

	_, ok = c.Mention()
	assert.False(t, ok)
}

func TestMention_MidText(t *testing.T) {
	c := newComposer(t)

	c.SetText("thanks @Sa", 10)
	assert.Equal(t, []string{"sam"}, usernames(c.Candidates()))

	text, _, err := c.SelectMention(sam)
	require.NoError(t, err)
	assert.Equal(t, "thanks @sam ", text)
}

func TestMention_SubstringMatchesAfterPrefix(t *testing.T) {
	c := newComposer(t)

	c.SetText("@an", 3)
	// "Samantha" and "Amir Khan" contain "an", nobody starts with it
	assert.ElementsMatch(t, []string{"amir", "sam"}, usernames(c.Candidates()))

	c.SetText("@", 1)
	assert.Equal(t, []string{"amy", "amir", "sam"}, usernames(c.Candidates()), "self is never a candidate")
}

func TestMention_NotActivatedInsideWords(t *testing.T) {
	c := newComposer(t)

	c.SetText("mail amy@ex", 11)
	_, ok := c.Mention()
	assert.False(t, ok)
}

func TestMention_DismissedWhenTokenDeleted(t *testing.T) {
	c := newComposer(t)

	c.SetText("hey @am", 7)
	c.SetText("hey ", 4)

	_, ok := c.Mention()
	assert.False(t, ok)

	_, _, err := c.SelectMention(amy)
	assert.ErrorIs(t, err, ErrNoMention)
}

func TestStage_RejectsOversized(t *testing.T) {
	c := newComposer(t)

	err := c.Stage("big.png", "image/png", bytes.Repeat([]byte{1}, 3*1024*1024))

	var ve *chat.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "3.0 MiB")
	assert.Nil(t, c.Attachment())

	_, err = c.Begin()
	assert.ErrorIs(t, err, ErrNothingToSend, "nothing is transmitted")
}

func TestStage_RejectsType(t *testing.T) {
	c := newComposer(t)

	err := c.Stage("notes.pdf", "application/pdf", []byte("%PDF"))
	assert.True(t, chat.IsValidation(err))
}

func TestStage_SingleSlot(t *testing.T) {
	c := newComposer(t)

	require.NoError(t, c.Stage("a.png", "image/png", []byte("a")))
	require.NoError(t, c.Stage("b.mp4", "video/mp4", []byte("bb")))

	att := c.Attachment()
	require.NotNil(t, att)
	assert.Equal(t, "b.mp4", att.Name)
	assert.Equal(t, "YmI=", att.Data)
	assert.Equal(t, StateDrafting, c.State())

	// a rejected file keeps the staged one
	_ = c.Stage("c.exe", "application/octet-stream", []byte("c"))
	assert.Equal(t, "b.mp4", c.Attachment().Name)

	c.ClearAttachment()
	assert.Equal(t, StateEmpty, c.State())
}

func TestBegin_AttachmentOnlyUsesUpload(t *testing.T) {
	c := newComposer(t)
	require.NoError(t, c.Stage("a.png", "image/png", []byte("a")))

	d, err := c.Begin()
	require.NoError(t, err)
	assert.True(t, d.UsesUpload())
	assert.Empty(t, d.Content())
	assert.Nil(t, c.Attachment())
}

func TestReply(t *testing.T) {
	c := newComposer(t)

	assert.True(t, chat.IsValidation(c.SetReply(chat.Message{ID: "x", ConversationID: "other"})))

	require.NoError(t, c.SetReply(chat.Message{ID: "m1", ConversationID: "c1"}))
	c.SetText("agreed", 6)

	d, err := c.Begin()
	require.NoError(t, err)
	assert.Equal(t, "m1", d.ReplyToID())
	assert.Nil(t, c.Reply(), "cleared on send")

	require.NoError(t, c.SetReply(chat.Message{ID: "m2", ConversationID: "c1"}))
	c.CancelReply()
	assert.Nil(t, c.Reply())

	require.NoError(t, c.SetReply(chat.Message{ID: "m3", ConversationID: "c1"}))
	c.Reset("c2", nil)
	assert.Nil(t, c.Reply(), "cleared on switch")
}

func TestResolve_FailureRestoresTextNotReply(t *testing.T) {
	c := newComposer(t)
	require.NoError(t, c.SetReply(chat.Message{ID: "m1", ConversationID: "c1"}))
	c.SetText("retry me", 8)

	d, err := c.Begin()
	require.NoError(t, err)
	text, _ := c.Text()
	assert.Empty(t, text, "input is cleared optimistically")

	sendErr := &chat.TransportError{Op: "send_message", Err: errors.New("closed")}
	c.Resolve(d, sendErr)

	text, cursor := c.Text()
	assert.Equal(t, "retry me", text)
	assert.Equal(t, 8, cursor)
	assert.Nil(t, c.Reply())
	assert.Equal(t, StateFailed, c.State())
	assert.ErrorIs(t, c.Err(), sendErr)
	assert.True(t, c.Sendable())
}

func TestResolve_FailureKeepsNewInput(t *testing.T) {
	c := newComposer(t)
	c.SetText("first", 5)
	d, _ := c.Begin()

	c.SetText("second", 6)
	c.Resolve(d, errors.New("nope"))

	text, _ := c.Text()
	assert.Equal(t, "second", text)
}

func TestResolve_FailureAfterSwitchDoesNotLeak(t *testing.T) {
	c := newComposer(t)
	c.SetText("for c1", 6)
	d, _ := c.Begin()

	c.Reset("c2", nil)
	c.Resolve(d, errors.New("nope"))

	text, _ := c.Text()
	assert.Empty(t, text)
}
