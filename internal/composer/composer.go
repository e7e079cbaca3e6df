// Package composer is the state machine behind the message input: draft
// text, reply target, mention autocomplete and attachment staging.
package composer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/hay-kot/parley/internal/core/chat"
)

// State is the send lifecycle of the composer.
type State string

const (
	StateEmpty    State = "empty"
	StateDrafting State = "drafting"
	StateSending  State = "sending"
	StateSent     State = "sent"
	StateFailed   State = "failed"
)

var (
	ErrNothingToSend = errors.New("nothing to send")
	ErrSendInFlight  = errors.New("a message is already being sent")
	ErrNoMention     = errors.New("no mention in progress")
)

// DefaultMaxBytes is the largest attachment accepted.
const DefaultMaxBytes = 2 * 1024 * 1024

// Limits constrains staged attachments.
type Limits struct {
	MaxBytes        int64
	AllowedPrefixes []string
}

// DefaultLimits allows images and videos up to 2 MiB.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:        DefaultMaxBytes,
		AllowedPrefixes: []string{"image/", "video/"},
	}
}

// Mention is an in-progress "@name" token. Start is the byte offset of the
// '@' captured when the token was activated.
type Mention struct {
	Start int
	Query string
}

func (m Mention) end() int {
	return m.Start + 1 + len(m.Query)
}

// Draft is the snapshot taken when a send begins.
type Draft struct {
	ConversationID string
	Text           string
	ReplyTo        *chat.Message
	Attachment     *chat.Attachment
}

// Content is the text that goes over the wire.
func (d Draft) Content() string {
	return strings.TrimSpace(d.Text)
}

// UsesUpload reports whether the draft must go through the upload endpoint
// instead of the event path.
func (d Draft) UsesUpload() bool {
	return d.Attachment != nil
}

// ReplyToID returns the reply target ID or "".
func (d Draft) ReplyToID() string {
	if d.ReplyTo == nil {
		return ""
	}
	return d.ReplyTo.ID
}

// Composer is safe for concurrent use.
type Composer struct {
	selfID string
	limits Limits

	mu         sync.Mutex
	convID     string
	members    []chat.Member
	text       string
	cursor     int
	state      State
	reply      *chat.Message
	attachment *chat.Attachment
	mention    *Mention
	err        error
}

// New creates a Composer for selfID.
func New(selfID string, limits Limits) *Composer {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultMaxBytes
	}
	if len(limits.AllowedPrefixes) == 0 {
		limits.AllowedPrefixes = DefaultLimits().AllowedPrefixes
	}
	return &Composer{selfID: selfID, limits: limits, state: StateEmpty}
}

// Reset prepares the composer for another conversation. Text, reply target,
// attachment and mention state are all dropped.
func (c *Composer) Reset(conversationID string, members []chat.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.convID = conversationID
	c.members = members
	c.text = ""
	c.cursor = 0
	c.reply = nil
	c.attachment = nil
	c.mention = nil
	c.err = nil
	c.state = StateEmpty
}

// SetMembers replaces the autocomplete candidates.
func (c *Composer) SetMembers(members []chat.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = members
}

// ConversationID returns the conversation being composed for.
func (c *Composer) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

// SetText records the input after an edit. cursor is a byte offset into
// text.
func (c *Composer) SetText(text string, cursor int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cursor = max(0, min(cursor, len(text)))
	c.text = text
	c.cursor = cursor
	c.updateMention()
	if c.state != StateSending {
		c.state = c.idleState()
	}
}

// idleState must be called with mu held.
func (c *Composer) idleState() State {
	if c.text == "" && c.attachment == nil {
		return StateEmpty
	}
	return StateDrafting
}

// updateMention must be called with mu held. A token directly before the
// cursor activates or updates the mention. Otherwise an active mention
// survives as long as its original token is still intact.
func (c *Composer) updateMention() {
	if m, ok := tokenBefore(c.text, c.cursor); ok {
		c.mention = &m
		return
	}

	if c.mention == nil {
		return
	}
	if c.cursor < c.mention.Start || !c.tokenIntact(*c.mention) {
		c.mention = nil
	}
}

// tokenIntact must be called with mu held.
func (c *Composer) tokenIntact(m Mention) bool {
	end := m.end()
	if end > len(c.text) {
		return false
	}
	return c.text[m.Start:end] == "@"+m.Query
}

// tokenBefore finds an "@word" token ending at cursor. The '@' must start
// the text or follow whitespace.
func tokenBefore(text string, cursor int) (Mention, bool) {
	i := cursor
	for i > 0 && isWordByte(text[i-1]) {
		i--
	}
	if i == 0 || text[i-1] != '@' {
		return Mention{}, false
	}
	at := i - 1
	if at > 0 && !isSpaceByte(text[at-1]) {
		return Mention{}, false
	}
	return Mention{Start: at, Query: text[i:cursor]}, true
}

// isWordByte treats every non-ASCII byte as a word byte so multi-byte
// letters stay inside the token.
func isWordByte(b byte) bool {
	return b == '_' || b >= 0x80 ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Mention returns the active mention, if any.
func (c *Composer) Mention() (Mention, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mention == nil {
		return Mention{}, false
	}
	return *c.mention, true
}

// DismissMention closes autocomplete without changing the text.
func (c *Composer) DismissMention() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mention = nil
}

// Candidates lists members matching the active mention query, excluding
// self. Prefix matches on username or name come first.
func (c *Composer) Candidates() []chat.Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mention == nil {
		return nil
	}
	query := strings.ToLower(c.mention.Query)

	var prefix, substring []chat.Member
	for _, m := range c.members {
		if m.ID == c.selfID {
			continue
		}
		username := strings.ToLower(m.Username)
		name := strings.ToLower(m.Name)

		switch {
		case strings.HasPrefix(username, query) || strings.HasPrefix(name, query):
			prefix = append(prefix, m)
		case strings.Contains(username, query) || strings.Contains(name, query):
			substring = append(substring, m)
		}
	}
	return append(prefix, substring...)
}

// SelectMention replaces the active token with "@username " at the offset
// captured when the mention was activated. It returns the new text and
// cursor for the input widget.
func (c *Composer) SelectMention(member chat.Member) (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mention == nil {
		return c.text, c.cursor, ErrNoMention
	}
	m := *c.mention
	if !c.tokenIntact(m) {
		c.mention = nil
		return c.text, c.cursor, ErrNoMention
	}

	handle := member.Username
	if handle == "" {
		handle = member.DisplayName()
	}
	insert := "@" + handle + " "

	c.text = c.text[:m.Start] + insert + c.text[m.end():]
	c.cursor = m.Start + len(insert)
	c.mention = nil
	c.state = c.idleState()

	return c.text, c.cursor, nil
}

// Stage validates and holds an attachment until send. A rejected file leaves
// any previously staged attachment in place.
func (c *Composer) Stage(name, mimeType string, data []byte) error {
	size := int64(len(data))
	if size > c.limits.MaxBytes {
		return &chat.ValidationError{
			Field:  "attachment",
			Reason: fmt.Sprintf("%s is %s, the limit is %s", name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(c.limits.MaxBytes))),
		}
	}

	allowed := false
	for _, p := range c.limits.AllowedPrefixes {
		if strings.HasPrefix(mimeType, p) {
			allowed = true
			break
		}
	}
	if !allowed {
		return &chat.ValidationError{
			Field:  "attachment",
			Reason: fmt.Sprintf("%s files are not allowed, attach an image or video", mimeType),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.attachment = &chat.Attachment{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
		Name:     name,
		Size:     size,
	}
	if c.state != StateSending {
		c.state = c.idleState()
	}
	return nil
}

// ClearAttachment drops the staged attachment.
func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attachment = nil
	if c.state != StateSending {
		c.state = c.idleState()
	}
}

// Attachment returns the staged attachment.
func (c *Composer) Attachment() *chat.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// SetReply targets msg. It must belong to the conversation being composed.
func (c *Composer) SetReply(msg chat.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.ConversationID != c.convID {
		return &chat.ValidationError{Field: "reply", Reason: "can only reply to messages in this conversation"}
	}
	c.reply = &msg
	return nil
}

// CancelReply clears the reply target.
func (c *Composer) CancelReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = nil
}

// Reply returns the reply target.
func (c *Composer) Reply() *chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply
}

// Text returns the current input and cursor.
func (c *Composer) Text() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.cursor
}

// State returns the current state.
func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed send.
func (c *Composer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Sendable reports whether Begin would succeed.
func (c *Composer) Sendable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendable()
}

func (c *Composer) sendable() bool {
	return c.state != StateSending && (strings.TrimSpace(c.text) != "" || c.attachment != nil)
}

// Begin snapshots the draft and clears the input, reply target and
// attachment before the request is issued.
func (c *Composer) Begin() (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSending {
		return Draft{}, ErrSendInFlight
	}
	if !c.sendable() {
		return Draft{}, ErrNothingToSend
	}

	d := Draft{
		ConversationID: c.convID,
		Text:           c.text,
		ReplyTo:        c.reply,
		Attachment:     c.attachment,
	}

	c.text = ""
	c.cursor = 0
	c.reply = nil
	c.attachment = nil
	c.mention = nil
	c.err = nil
	c.state = StateSending

	return d, nil
}

// Resolve finishes a send. On failure the draft text comes back when the
// user has not typed anything new; the reply target does not.
func (c *Composer) Resolve(d Draft, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.state = StateSent
		return
	}

	c.err = err
	c.state = StateFailed

	if d.ConversationID != c.convID {
		return
	}
	if c.text == "" {
		c.text = d.Text
		c.cursor = len(d.Text)
	}
	if c.attachment == nil {
		c.attachment = d.Attachment
	}
}
