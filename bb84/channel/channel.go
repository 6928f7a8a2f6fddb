// Package channel provides a single-slot rendezvous mailbox connecting the
// two participants of a key exchange. One instance carries the quantum leg,
// a second, independent instance carries classical frames; in both cases at
// most one payload is ever in flight and nothing is implicitly queued or
// overwritten.
package channel

import (
	"context"
	"errors"
)

var (
	// ErrBusy is returned by TrySend when a payload is already in flight.
	// Hitting it indicates a sequencing bug in the caller, not a transient
	// condition.
	ErrBusy = errors.New("channel: slot occupied")

	// ErrEmpty is returned by TryReceive when no payload is in flight.
	ErrEmpty = errors.New("channel: slot empty")
)

// A Channel is a single-slot mailbox for payloads of type T.
type Channel[T any] struct {
	slot chan T
}

// New returns an empty Channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{slot: make(chan T, 1)}
}

// Send places v in the slot, blocking until the slot is empty or ctx is
// done. An empty slot wins over an already-done context, so the last message
// of a run is deliverable even as the run winds down.
func (c *Channel[T]) Send(ctx context.Context, v T) error {
	select {
	case c.slot <- v:
		return nil
	default:
	}
	select {
	case c.slot <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive removes and returns the payload in the slot, blocking until one is
// present or ctx is done. A pending payload wins over an already-done
// context.
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	select {
	case v := <-c.slot:
		return v, nil
	default:
	}
	select {
	case v := <-c.slot:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TrySend places v in the slot, or fails with ErrBusy if a payload is
// already in flight.
func (c *Channel[T]) TrySend(v T) error {
	select {
	case c.slot <- v:
		return nil
	default:
		return ErrBusy
	}
}

// TryReceive removes and returns the payload in the slot, or fails with
// ErrEmpty if the slot is empty.
func (c *Channel[T]) TryReceive() (T, error) {
	select {
	case v := <-c.slot:
		return v, nil
	default:
		var zero T
		return zero, ErrEmpty
	}
}
