package chat

import (
	"errors"
	"fmt"
)

// PendingState is the lifecycle of a locally originated message.
type PendingState string

const (
	PendingSending   PendingState = "pending"
	PendingConfirmed PendingState = "confirmed"
	PendingFailed    PendingState = "failed"
)

// ErrAlreadyResolved is returned when a pending item is resolved twice.
var ErrAlreadyResolved = errors.New("pending message already resolved")

// Pending tracks one optimistic message from send until the server confirms
// or rejects it. Transitions are pending -> confirmed and pending -> failed;
// both are terminal.
type Pending struct {
	ClientID  string
	Local     Message
	State     PendingState
	Confirmed *Message
	Err       error
}

// NewPending wraps the optimistic copy of a message. The local copy uses the
// client ID as its message ID until the server assigns one.
func NewPending(clientID string, local Message) *Pending {
	local.ID = clientID
	local.ClientID = clientID
	local.Pending = true
	return &Pending{
		ClientID: clientID,
		Local:    local,
		State:    PendingSending,
	}
}

// Confirm records the server's copy of the message.
func (p *Pending) Confirm(msg Message) error {
	if p.State != PendingSending {
		return fmt.Errorf("confirm %s: %w", p.ClientID, ErrAlreadyResolved)
	}
	msg.Pending = false
	if msg.ClientID == "" {
		msg.ClientID = p.ClientID
	}
	p.State = PendingConfirmed
	p.Confirmed = &msg
	return nil
}

// Fail records why the send did not go through.
func (p *Pending) Fail(err error) error {
	if p.State != PendingSending {
		return fmt.Errorf("fail %s: %w", p.ClientID, ErrAlreadyResolved)
	}
	p.State = PendingFailed
	p.Err = err
	return nil
}

// Resolved reports whether the item reached a terminal state.
func (p *Pending) Resolved() bool {
	return p.State != PendingSending
}
