// Package natsbus implements the realtime transport on top of a NATS
// connection. Client events are published to parley.server.<event>; request
// events use NATS request/reply and the reply body is the acknowledgment.
// Server events arrive on the user's inbox subject and, after joining, on
// each conversation room subject.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/realtime"
)

const subjectRoot = "parley"

// ErrNoUser is returned when the transport is dialed without a user id; the
// inbox subject cannot be derived without one.
var ErrNoUser = errors.New("nats transport requires a user id")

// Options configures the NATS transport.
type Options struct {
	URL            string
	UserID         string
	MaxReconnects  int
	ReconnectWait  time.Duration
	RequestTimeout time.Duration
	BufferSize     int
}

// ServerSubject is the subject a client event is published on.
func ServerSubject(event string) string {
	return subjectRoot + ".server." + event
}

// InboxSubject matches every event addressed to one user.
func InboxSubject(userID string) string {
	return subjectRoot + ".user." + userID + ".>"
}

// RoomSubject matches every event broadcast to one conversation.
func RoomSubject(conversationID string) string {
	return subjectRoot + ".room." + conversationID + ".>"
}

// EventName extracts the event from a delivered subject, which always ends
// in the event name.
func EventName(subject string) string {
	i := strings.LastIndexByte(subject, '.')
	if i < 0 {
		return subject
	}
	return subject[i+1:]
}

// Dialer opens NATS connections. It implements realtime.Dialer.
type Dialer struct {
	opts Options
	log  zerolog.Logger
}

// NewDialer creates a Dialer.
func NewDialer(opts Options, log zerolog.Logger) *Dialer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	return &Dialer{opts: opts, log: log}
}

// Dial connects and subscribes to the user's inbox.
func (d *Dialer) Dial(ctx context.Context, token string, sink realtime.Sink) (realtime.Conn, error) {
	if d.opts.UserID == "" {
		return nil, ErrNoUser
	}

	c := &Conn{
		opts:  d.opts,
		log:   d.log,
		sink:  sink,
		msgs:  make(chan *nats.Msg, d.opts.BufferSize),
		rooms: make(map[string]*nats.Subscription),
		done:  make(chan struct{}),
	}

	nc, err := nats.Connect(d.opts.URL,
		nats.Name("parley"),
		nats.Token(token),
		nats.MaxReconnects(d.opts.MaxReconnects),
		nats.ReconnectWait(d.opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if c.closed.Load() {
				return
			}
			c.log.Warn().Err(err).Msg("nats disconnected")
			sink.SetConnected(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if c.closed.Load() {
				return
			}
			c.log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
			sink.SetConnected(true)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if c.closed.Load() {
				return
			}
			c.log.Error().Msg("nats connection closed, reconnect attempts exhausted")
			sink.SetConnected(false)
			sink.Closed()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.opts.URL, err)
	}
	c.nc = nc

	inbox, err := nc.ChanSubscribe(InboxSubject(d.opts.UserID), c.msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe inbox: %w", err)
	}
	c.inbox = inbox

	sink.SetConnected(true)
	go c.run()

	return c, nil
}

// Conn is an open NATS transport.
type Conn struct {
	opts Options
	log  zerolog.Logger
	sink realtime.Sink
	nc   *nats.Conn

	msgs  chan *nats.Msg
	inbox *nats.Subscription

	mu    sync.Mutex
	rooms map[string]*nats.Subscription

	closed atomic.Bool
	done   chan struct{}
}

// run drains every subscription on one goroutine so handlers never run
// concurrently.
func (c *Conn) run() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.msgs:
			c.sink.Deliver(EventName(msg.Subject), msg.Data)
		}
	}
}

func (c *Conn) join(data []byte) error {
	var ref chat.ConversationRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("decode join: %w", err)
	}
	if ref.ConversationID == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rooms[ref.ConversationID]; ok {
		return nil
	}

	sub, err := c.nc.ChanSubscribe(RoomSubject(ref.ConversationID), c.msgs)
	if err != nil {
		return fmt.Errorf("subscribe room %s: %w", ref.ConversationID, err)
	}
	c.rooms[ref.ConversationID] = sub
	return nil
}

// Emit implements realtime.Conn. Joining a conversation also subscribes to
// its room subject.
func (c *Conn) Emit(ctx context.Context, event string, payload []byte) error {
	if c.closed.Load() {
		return chat.ErrNotConnected
	}

	if event == chat.EventJoinConversation {
		if err := c.join(payload); err != nil {
			return err
		}
	}

	return c.nc.Publish(ServerSubject(event), payload)
}

// Request implements realtime.Conn.
func (c *Conn) Request(ctx context.Context, event string, payload []byte) (realtime.Ack, error) {
	if c.closed.Load() {
		return realtime.Ack{}, chat.ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok && c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	reply, err := c.nc.RequestWithContext(ctx, ServerSubject(event), payload)
	if err != nil {
		return realtime.Ack{}, err
	}

	var ack realtime.Ack
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		return realtime.Ack{}, fmt.Errorf("decode ack for %s: %w", event, err)
	}
	return ack, nil
}

// Close implements realtime.Conn.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	for id, sub := range c.rooms {
		_ = sub.Unsubscribe()
		delete(c.rooms, id)
	}
	c.mu.Unlock()

	_ = c.inbox.Unsubscribe()
	return c.nc.Drain()
}
