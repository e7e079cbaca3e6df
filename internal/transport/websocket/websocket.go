// Package websocket implements the realtime transport over a single
// WebSocket carrying JSON event envelopes.
//
// Every frame is an envelope. Events carry a name and payload; events that
// expect an acknowledgment also carry an id, and the peer answers with an
// envelope whose ack field echoes that id:
//
//	{"event":"send_message","id":"7f1c...","payload":{...}}
//	{"ack":"7f1c...","payload":{"success":true,"payload":{...}}}
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/realtime"
)

var (
	errConnectionLost = errors.New("connection lost before acknowledgment")
	errClosed         = errors.New("transport closed")
)

const writeWait = 10 * time.Second

// Options configures the WebSocket transport.
type Options struct {
	URL            string
	MaxAttempts    int           // reconnect attempts after a drop
	Interval       time.Duration // fixed wait between reconnect attempts
	RequestTimeout time.Duration // upper bound on waiting for an ack
}

type envelope struct {
	Event   string          `json:"event,omitempty"`
	ID      string          `json:"id,omitempty"`
	AckID   string          `json:"ack,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Dialer opens WebSocket connections. It implements realtime.Dialer.
type Dialer struct {
	opts   Options
	log    zerolog.Logger
	dialer *ws.Dialer
}

// NewDialer creates a Dialer.
func NewDialer(opts Options, log zerolog.Logger) *Dialer {
	return &Dialer{
		opts: opts,
		log:  log,
		dialer: &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

func (d *Dialer) open(ctx context.Context, token string) (*ws.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	socket, resp, err := d.dialer.DialContext(ctx, d.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.opts.URL, err)
	}
	return socket, nil
}

// Dial opens the socket and starts its reader. The sink sees connected=true
// before Dial returns.
func (d *Dialer) Dial(ctx context.Context, token string, sink realtime.Sink) (realtime.Conn, error) {
	socket, err := d.open(ctx, token)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		d:       d,
		token:   token,
		sink:    sink,
		log:     d.log,
		socket:  socket,
		pending: make(map[string]chan realtime.Ack),
		done:    make(chan struct{}),
	}

	sink.SetConnected(true)
	go c.run(socket)

	return c, nil
}

// Conn is an open WebSocket transport.
type Conn struct {
	d     *Dialer
	token string
	sink  realtime.Sink
	log   zerolog.Logger

	mu      sync.Mutex
	socket  *ws.Conn
	pending map[string]chan realtime.Ack
	closed  bool
	done    chan struct{}

	writeMu sync.Mutex
}

func (c *Conn) run(socket *ws.Conn) {
	for {
		err := c.read(socket)
		if c.isClosed() {
			return
		}

		c.log.Warn().Err(err).Msg("socket dropped")
		c.mu.Lock()
		c.socket = nil
		c.mu.Unlock()

		c.sink.SetConnected(false)
		c.failPending()

		socket = c.reconnect()
		if socket == nil {
			if !c.isClosed() {
				c.log.Error().Int("attempts", c.d.opts.MaxAttempts).Msg("reconnect attempts exhausted")
				c.sink.Closed()
			}
			return
		}
		c.sink.SetConnected(true)
	}
}

func (c *Conn) read(socket *ws.Conn) error {
	defer socket.Close() //nolint:errcheck

	for {
		var env envelope
		if err := socket.ReadJSON(&env); err != nil {
			return err
		}

		switch {
		case env.AckID != "":
			c.resolve(env.AckID, env.Payload)
		case env.Event != "":
			c.sink.Deliver(env.Event, env.Payload)
		default:
			c.log.Debug().Msg("ignoring empty envelope")
		}
	}
}

func (c *Conn) reconnect() *ws.Conn {
	for attempt := 1; attempt <= c.d.opts.MaxAttempts; attempt++ {
		select {
		case <-c.done:
			return nil
		case <-time.After(c.d.opts.Interval):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.d.dialer.HandshakeTimeout)
		socket, err := c.d.open(ctx, c.token)
		cancel()
		if err != nil {
			c.log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = socket.Close()
			return nil
		}
		c.socket = socket
		c.mu.Unlock()

		c.log.Info().Int("attempt", attempt).Msg("reconnected")
		return socket
	}
	return nil
}

func (c *Conn) resolve(id string, payload json.RawMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		c.log.Debug().Str("ack", id).Msg("ack for unknown request")
		return
	}

	var ack realtime.Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		c.log.Warn().Err(err).Str("ack", id).Msg("malformed ack")
	}
	ch <- ack
}

// failPending releases every waiter; a closed channel reads as a lost ack.
func (c *Conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) write(env envelope) error {
	c.mu.Lock()
	socket := c.socket
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return errClosed
	}
	if socket == nil {
		return chat.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
	return socket.WriteJSON(env)
}

// Emit implements realtime.Conn.
func (c *Conn) Emit(ctx context.Context, event string, payload []byte) error {
	return c.write(envelope{Event: event, Payload: payload})
}

// Request implements realtime.Conn.
func (c *Conn) Request(ctx context.Context, event string, payload []byte) (realtime.Ack, error) {
	id := uuid.NewString()
	ch := make(chan realtime.Ack, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.write(envelope{Event: event, ID: id, Payload: payload}); err != nil {
		forget()
		return realtime.Ack{}, err
	}

	timeout := c.d.opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack, ok := <-ch:
		if !ok {
			return realtime.Ack{}, errConnectionLost
		}
		return ack, nil
	case <-ctx.Done():
		forget()
		return realtime.Ack{}, ctx.Err()
	case <-timer.C:
		forget()
		return realtime.Ack{}, fmt.Errorf("%s: no acknowledgment after %s", event, timeout)
	case <-c.done:
		return realtime.Ack{}, errClosed
	}
}

// Close implements realtime.Conn. Pending requests fail and no reconnect is
// attempted afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	socket := c.socket
	c.socket = nil
	c.mu.Unlock()

	c.failPending()

	if socket == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = socket.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return socket.Close()
}
