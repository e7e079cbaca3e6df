// Package realtime owns the single shared event connection of a session and
// fans inbound events out to independent subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// Ack is the structured acknowledgment returned for request events. A zero
// Ack is a failure.
type Ack struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals the acknowledgment payload into v.
func (a Ack) Decode(v any) error {
	if len(a.Payload) == 0 {
		return errors.New("empty acknowledgment payload")
	}
	return json.Unmarshal(a.Payload, v)
}

// Sink receives inbound traffic from an open transport. Transports deliver
// events from a single reader so handlers never run concurrently for one
// connection.
type Sink interface {
	Deliver(event string, payload json.RawMessage)
	// SetConnected reports connectivity changes, including the initial open
	// and every drop or successful reconnect.
	SetConnected(connected bool)
	// Closed reports that the transport has given up reconnecting. The Conn
	// is dead afterwards and will not report again.
	Closed()
}

// Conn is an open bidirectional event channel. Reconnection is the
// transport's job; Conn stays valid until Close.
type Conn interface {
	// Emit sends a fire-and-forget event.
	Emit(ctx context.Context, event string, payload []byte) error
	// Request sends an event and waits for its acknowledgment.
	Request(ctx context.Context, event string, payload []byte) (Ack, error)
	Close() error
}

// Dialer opens a Conn authenticated with a bearer token.
type Dialer interface {
	Dial(ctx context.Context, token string, sink Sink) (Conn, error)
}
