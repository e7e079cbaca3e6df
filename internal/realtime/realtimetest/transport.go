// Package realtimetest provides an in-memory transport that records traffic
// and lets tests push arbitrary server events.
package realtimetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hay-kot/parley/internal/realtime"
)

// ErrClosed is returned by a closed fake connection.
var ErrClosed = errors.New("fake transport closed")

// Frame is one recorded outbound event.
type Frame struct {
	Event   string
	Payload json.RawMessage
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Payload, v)
}

// Transport implements realtime.Dialer. Configure Responder to control
// acknowledgments; by default every request succeeds with an empty payload.
type Transport struct {
	mu       sync.Mutex
	sink     realtime.Sink
	open     bool
	Dials    int
	Closes   int
	Tokens   []string
	Emitted  []Frame
	Requests []Frame

	// DialErr fails every Dial when set.
	DialErr error

	// Responder answers requests. It runs without the transport lock held,
	// so it may block to simulate latency or push events.
	Responder func(event string, payload json.RawMessage) (realtime.Ack, error)
}

// Dial records the attempt and opens the fake connection.
func (t *Transport) Dial(ctx context.Context, token string, sink realtime.Sink) (realtime.Conn, error) {
	t.mu.Lock()
	t.Dials++
	t.Tokens = append(t.Tokens, token)
	if t.DialErr != nil {
		err := t.DialErr
		t.mu.Unlock()
		return nil, err
	}
	t.sink = sink
	t.open = true
	t.mu.Unlock()

	sink.SetConnected(true)
	return &conn{t: t}, nil
}

// Push delivers a server event to the connected sink as if it arrived over
// the wire.
func (t *Transport) Push(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		sink.Deliver(event, data)
	}
}

// SetConnected simulates a connectivity drop or reconnect.
func (t *Transport) SetConnected(connected bool) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		sink.SetConnected(connected)
	}
}

// Exhaust simulates a transport that has given up reconnecting: the sink
// sees a drop followed by Closed, and the fake connection stops accepting
// traffic.
func (t *Transport) Exhaust() {
	t.mu.Lock()
	sink := t.sink
	t.sink = nil
	t.open = false
	t.mu.Unlock()

	if sink != nil {
		sink.SetConnected(false)
		sink.Closed()
	}
}

// EmittedEvents returns the names of fire-and-forget events in order.
func (t *Transport) EmittedEvents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, len(t.Emitted))
	for i, f := range t.Emitted {
		names[i] = f.Event
	}
	return names
}

// EmittedFrames returns a copy of recorded fire-and-forget events.
func (t *Transport) EmittedFrames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Frame(nil), t.Emitted...)
}

// RequestFrames returns a copy of recorded requests.
func (t *Transport) RequestFrames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Frame(nil), t.Requests...)
}

// Reset clears recorded traffic.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Emitted = nil
	t.Requests = nil
}

// Open reports whether a connection is open.
func (t *Transport) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

type conn struct {
	t *Transport
}

func (c *conn) Emit(ctx context.Context, event string, payload []byte) error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()

	if !c.t.open {
		return ErrClosed
	}
	c.t.Emitted = append(c.t.Emitted, Frame{Event: event, Payload: payload})
	return nil
}

func (c *conn) Request(ctx context.Context, event string, payload []byte) (realtime.Ack, error) {
	c.t.mu.Lock()
	if !c.t.open {
		c.t.mu.Unlock()
		return realtime.Ack{}, ErrClosed
	}
	c.t.Requests = append(c.t.Requests, Frame{Event: event, Payload: payload})
	responder := c.t.Responder
	c.t.mu.Unlock()

	if responder == nil {
		return realtime.Ack{Success: true}, nil
	}
	return responder(event, payload)
}

func (c *conn) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()

	c.t.Closes++
	c.t.open = false
	return nil
}
