// Package parley wires the realtime connection to the conversation
// directory, timeline, typing tracker, pin coordinator and composer for one
// signed-in user.
package parley

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/composer"
	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/directory"
	"github.com/hay-kot/parley/internal/pin"
	"github.com/hay-kot/parley/internal/realtime"
	"github.com/hay-kot/parley/internal/timeline"
	"github.com/hay-kot/parley/internal/typing"
)

// UpdateKind says which part of the state changed.
type UpdateKind int

const (
	UpdateConversations UpdateKind = iota
	UpdateTimeline
	UpdateTyping
	UpdatePin
	UpdateConnectivity
	UpdateComposer
)

// Update is a change notification for the UI. Handlers never block on a
// slow consumer; updates are dropped when the buffer is full.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	Connected      bool
	Err            error
}

// Options configures a Service.
type Options struct {
	SelfID   string
	PageSize int
	Typing   typing.Options
	Limits   composer.Limits
}

// Service orchestrates chat operations.
type Service struct {
	manager *realtime.Manager
	api     chat.API
	selfID  string
	log     zerolog.Logger
	active  *chat.Active
	newID   func() string
	now     func() time.Time

	Directory *directory.Directory
	Timeline  *timeline.Timeline
	Typing    *typing.Tracker
	Pins      *pin.Coordinator
	Composer  *composer.Composer

	token   string
	lease   *realtime.Lease
	subs    []*realtime.Subscription
	updates chan Update

	// switchMu makes the conversation switch in Activate atomic so the
	// active ID, typing tracker and composer always agree.
	switchMu sync.Mutex
}

// New creates a Service.
func New(manager *realtime.Manager, api chat.API, favs directory.FavoriteStore, opts Options, log zerolog.Logger) *Service {
	s := &Service{
		manager: manager,
		api:     api,
		selfID:  opts.SelfID,
		log:     log,
		active:  &chat.Active{},
		newID:   uuid.NewString,
		now:     time.Now,
		updates: make(chan Update, 64),
	}

	typingOpts := opts.Typing
	if typingOpts.OnChange == nil {
		typingOpts.OnChange = func() {
			s.notify(Update{Kind: UpdateTyping, ConversationID: s.active.ID()})
		}
	}

	s.Directory = directory.New(api, favs, manager, opts.SelfID, log.With().Str("component", "directory").Logger())
	s.Timeline = timeline.New(api, s.active, opts.PageSize, log.With().Str("component", "timeline").Logger())
	s.Typing = typing.New(manager, s.active, opts.SelfID, typingOpts, log.With().Str("component", "typing").Logger())
	s.Pins = pin.New(api, s.Directory)
	s.Composer = composer.New(opts.SelfID, opts.Limits)

	return s
}

// Updates streams change notifications.
func (s *Service) Updates() <-chan Update {
	return s.updates
}

func (s *Service) notify(u Update) {
	select {
	case s.updates <- u:
	default:
		s.log.Debug().Int("kind", int(u.Kind)).Msg("update dropped, consumer is behind")
	}
}

// SelfID returns the signed-in user's ID.
func (s *Service) SelfID() string {
	return s.selfID
}

// ActiveID returns the conversation currently shown.
func (s *Service) ActiveID() string {
	return s.active.ID()
}

// Connected reports the realtime connectivity flag.
func (s *Service) Connected() bool {
	return s.manager.Connected()
}

// Start subscribes to server events, connects and loads the directory. Every
// conversation's room is joined so summaries stay live.
func (s *Service) Start(ctx context.Context, token string) error {
	s.subscribe()

	lease, err := s.manager.Acquire(ctx, token)
	if err != nil {
		s.unsubscribe()
		return fmt.Errorf("connect: %w", err)
	}
	s.lease = lease
	s.token = token

	if _, err := s.Directory.LoadAll(ctx); err != nil {
		return err
	}
	s.notify(Update{Kind: UpdateConversations})

	if err := s.Directory.JoinAll(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to join conversation rooms")
	}
	return nil
}

// Close releases the connection lease and all subscriptions.
func (s *Service) Close() {
	s.unsubscribe()
	if s.lease != nil {
		s.lease.Release()
		s.lease = nil
	}
}

func (s *Service) subscribe() {
	s.subs = append(s.subs,
		realtime.On(s.manager, chat.EventNewMessage, s.onNewMessage),
		realtime.On(s.manager, chat.EventNewConversation, s.onNewConversation),
		realtime.On(s.manager, chat.EventUserTyping, func(ev chat.TypingEvent) {
			if s.Typing.HandleStart(ev) {
				s.notify(Update{Kind: UpdateTyping, ConversationID: ev.ConversationID})
			}
		}),
		realtime.On(s.manager, chat.EventUserStopTyping, func(ev chat.TypingEvent) {
			if s.Typing.HandleStop(ev) {
				s.notify(Update{Kind: UpdateTyping, ConversationID: ev.ConversationID})
			}
		}),
		realtime.On(s.manager, chat.EventPinnedMessageUpdated, func(ev chat.PinnedMessageEvent) {
			if s.Directory.ApplyPinned(ev.ConversationID, ev.PinnedMessage) {
				s.notify(Update{Kind: UpdatePin, ConversationID: ev.ConversationID})
			}
		}),
		s.manager.WatchConnectivity(s.onConnectivity),
	)
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Service) onNewMessage(ev chat.NewMessageEvent) {
	msg := ev.Message
	activeID := s.active.ID()

	if s.Directory.ApplyNewMessage(msg, activeID) {
		s.notify(Update{Kind: UpdateConversations, ConversationID: msg.ConversationID})
	}

	if msg.ConversationID != activeID {
		return
	}
	if s.Typing.Supersede(msg.ConversationID, msg.Sender.ID) {
		s.notify(Update{Kind: UpdateTyping, ConversationID: msg.ConversationID})
	}
	if s.Timeline.AppendIfNew(msg) {
		s.notify(Update{Kind: UpdateTimeline, ConversationID: msg.ConversationID})
	}
}

func (s *Service) onNewConversation(ev chat.NewConversationEvent) {
	added, err := s.Directory.ApplyNewConversation(context.Background(), ev.Conversation)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", ev.Conversation.ID).Msg("new conversation")
	}
	if added {
		s.notify(Update{Kind: UpdateConversations, ConversationID: ev.Conversation.ID})
	}
}

func (s *Service) onConnectivity(connected bool) {
	s.notify(Update{Kind: UpdateConnectivity, Connected: connected})
	if !connected || s.Directory.Len() == 0 {
		return
	}

	// a fresh socket has no room memberships
	if err := s.Directory.JoinAll(context.Background()); err != nil {
		s.log.Debug().Err(err).Msg("rejoin after reconnect")
	}
}

// Activate makes conversationID the live conversation: typing state and the
// composer reset, unread clears and the newest page of history loads. A
// result that arrives after another Activate returns timeline.ErrStale.
func (s *Service) Activate(ctx context.Context, conversationID string) ([]chat.Message, error) {
	conv, ok := s.Directory.Get(conversationID)
	if !ok {
		return nil, &chat.NotFoundError{Kind: "conversation", ID: conversationID}
	}

	s.switchMu.Lock()
	s.active.Set(conversationID)
	s.Typing.Reset(ctx, conversationID)
	s.Composer.Reset(conversationID, conv.Members)
	s.Directory.MarkRead(conversationID)
	s.switchMu.Unlock()
	s.notify(Update{Kind: UpdateConversations, ConversationID: conversationID})

	// Load refuses to start once a later switch has won.
	msgs, err := s.Timeline.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.notify(Update{Kind: UpdateTimeline, ConversationID: conversationID})
	return msgs, nil
}

// LoadOlder pages further back in the active conversation.
func (s *Service) LoadOlder(ctx context.Context) (int, error) {
	n, err := s.Timeline.LoadOlder(ctx)
	if err == nil && n > 0 {
		s.notify(Update{Kind: UpdateTimeline, ConversationID: s.active.ID()})
	}
	return n, err
}

// Typed records an edit of the composer input and emits the typing signal.
func (s *Service) Typed(ctx context.Context, text string, cursor int) {
	convID := s.SetDraft(text, cursor)
	s.SignalTyping(ctx, convID, text)
}

// SetDraft updates the composer text without touching the network and
// returns the conversation the draft belongs to.
func (s *Service) SetDraft(text string, cursor int) string {
	s.Composer.SetText(text, cursor)
	return s.Composer.ConversationID()
}

// SignalTyping feeds an input change for conversationID to the typing
// tracker, which may emit start or stop events.
func (s *Service) SignalTyping(ctx context.Context, conversationID, text string) {
	if conversationID == "" {
		return
	}
	if err := s.Typing.InputChanged(ctx, conversationID, text); err != nil {
		s.log.Debug().Err(err).Msg("typing signal")
	}
}

// Reply targets a message of the active timeline.
func (s *Service) Reply(messageID string) error {
	msg, ok := s.Timeline.Find(messageID)
	if !ok {
		return &chat.NotFoundError{Kind: "message", ID: messageID}
	}
	return s.Composer.SetReply(msg)
}

// StageFile reads path and stages it as the composer attachment.
func (s *Service) StageFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	return s.Composer.Stage(filepath.Base(path), DetectMimeType(path, data), data)
}

// DetectMimeType guesses the MIME type from the extension, falling back to
// content sniffing.
func DetectMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

// Send transmits the composer draft. An optimistic copy is shown in the
// timeline right away; text goes over the realtime connection and drafts
// with an attachment go through the upload endpoint. On failure the
// optimistic copy is removed and the composer gets its text back.
func (s *Service) Send(ctx context.Context) (chat.Message, error) {
	draft, err := s.Composer.Begin()
	if err != nil {
		return chat.Message{}, err
	}
	s.notify(Update{Kind: UpdateComposer, ConversationID: draft.ConversationID})

	if err := s.Typing.Stop(ctx, draft.ConversationID); err != nil {
		s.log.Debug().Err(err).Msg("typing stop on send")
	}

	pending := chat.NewPending(s.newID(), chat.Message{
		ConversationID: draft.ConversationID,
		Sender:         s.self(draft.ConversationID),
		Content:        draft.Content(),
		Media:          draft.Attachment,
		ReplyTo:        replyRef(draft.ReplyTo),
		CreatedAt:      s.now(),
	})
	if s.Timeline.AppendIfNew(pending.Local) {
		s.notify(Update{Kind: UpdateTimeline, ConversationID: draft.ConversationID})
	}

	msg, err := s.transmit(ctx, draft, pending.ClientID)
	if err != nil {
		_ = pending.Fail(err)
		s.Timeline.Discard(pending.ClientID)
		s.Composer.Resolve(draft, err)
		s.notify(Update{Kind: UpdateComposer, ConversationID: draft.ConversationID, Err: err})
		s.notify(Update{Kind: UpdateTimeline, ConversationID: draft.ConversationID})
		s.log.Warn().Err(err).Str("conversation", draft.ConversationID).Msg("send failed")
		return chat.Message{}, err
	}

	if err := pending.Confirm(msg); err != nil {
		return chat.Message{}, err
	}
	confirmed := *pending.Confirmed

	s.Timeline.Confirm(pending.ClientID, confirmed)
	s.Directory.ApplyNewMessage(confirmed, s.active.ID())
	s.Composer.Resolve(draft, nil)

	s.notify(Update{Kind: UpdateTimeline, ConversationID: draft.ConversationID})
	s.notify(Update{Kind: UpdateConversations, ConversationID: draft.ConversationID})
	s.notify(Update{Kind: UpdateComposer, ConversationID: draft.ConversationID})

	return confirmed, nil
}

func (s *Service) transmit(ctx context.Context, draft composer.Draft, clientID string) (chat.Message, error) {
	if draft.UsesUpload() {
		return s.api.UploadMedia(ctx, chat.Upload{
			ConversationID: draft.ConversationID,
			Content:        draft.Content(),
			ReplyToID:      draft.ReplyToID(),
			ClientID:       clientID,
			Attachment:     *draft.Attachment,
		})
	}

	// redials only when the transport gave up; a transient drop still fails
	// fast in Send
	if err := s.manager.Connect(ctx, s.token); err != nil {
		return chat.Message{}, err
	}

	ack, err := s.manager.Send(ctx, chat.EventSendMessage, chat.SendMessage{
		ConversationID: draft.ConversationID,
		Content:        draft.Content(),
		ReplyToID:      draft.ReplyToID(),
		ClientID:       clientID,
	})
	if err != nil {
		return chat.Message{}, err
	}
	if !ack.Success {
		return chat.Message{}, &chat.RequestFailure{Op: chat.EventSendMessage, Message: ack.Error}
	}

	var msg chat.Message
	if err := ack.Decode(&msg); err != nil {
		return chat.Message{}, &chat.RequestFailure{Op: chat.EventSendMessage, Err: err}
	}
	return msg, nil
}

func (s *Service) self(conversationID string) chat.Member {
	if conv, ok := s.Directory.Get(conversationID); ok {
		if m, ok := conv.Member(s.selfID); ok {
			return m
		}
	}
	return chat.Member{ID: s.selfID}
}

func replyRef(msg *chat.Message) *chat.ReplyRef {
	if msg == nil {
		return nil
	}
	ref := &chat.ReplyRef{
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Content:   msg.Content,
	}
	if msg.Media != nil {
		ref.MediaType = msg.Media.MimeType
	}
	return ref
}

// TogglePin pins a message of the active timeline, or unpins it when it is
// already pinned.
func (s *Service) TogglePin(ctx context.Context, messageID string) (*chat.Message, error) {
	msg, ok := s.Timeline.Find(messageID)
	if !ok {
		return nil, &chat.NotFoundError{Kind: "message", ID: messageID}
	}

	pinned, err := s.Pins.Toggle(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.notify(Update{Kind: UpdatePin, ConversationID: msg.ConversationID})
	return pinned, nil
}

// StartDirect opens a direct conversation with target and joins its room.
func (s *Service) StartDirect(ctx context.Context, target string) (chat.Conversation, error) {
	conv, err := s.api.CreateDirect(ctx, target)
	if err != nil {
		return chat.Conversation{}, err
	}

	added, err := s.Directory.ApplyNewConversation(ctx, conv)
	if err != nil && !chat.IsTransport(err) {
		return chat.Conversation{}, err
	}
	if added {
		s.notify(Update{Kind: UpdateConversations, ConversationID: conv.ID})
	}
	return conv, nil
}

// ToggleFavorite flips the pinned-to-top flag of a conversation.
func (s *Service) ToggleFavorite(ctx context.Context, conversationID string) (bool, error) {
	fav, err := s.Directory.ToggleFavorite(ctx, conversationID)
	if err != nil {
		return fav, err
	}
	s.notify(Update{Kind: UpdateConversations, ConversationID: conversationID})
	return fav, nil
}

// IsStale reports whether err only signals a superseded load.
func IsStale(err error) bool {
	return errors.Is(err, timeline.ErrStale)
}
