// Package transport declares the chat-platform collaborator the core drives.
// Implementations (message delivery, keyboard rendering, retry policy) live
// outside this module; the core only needs these interfaces.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/batchbot/batchbot/pkg/record"
)

// ErrUnresolvedReference signals that an item's content reference could not
// be resolved by the platform, typically a forwarded reference whose source
// message was deleted. Delivery of the remaining items continues.
var ErrUnresolvedReference = errors.New("transport: content reference unresolved")

// MessageRef is an opaque handle to a delivered platform message. The zero
// value means "no message".
type MessageRef struct {
	ID string
}

// None reports whether the ref points at nothing.
func (r MessageRef) None() bool { return r.ID == "" }

// Messenger delivers content to a conversation and edits or removes what was
// delivered before.
type Messenger interface {
	// SendItem delivers one item with its caption and returns a handle to
	// the resulting message.
	SendItem(ctx context.Context, conv int64, item record.Item, caption string) (MessageRef, error)

	// SendText delivers a plain text message.
	SendText(ctx context.Context, conv int64, text string) (MessageRef, error)

	// ReplaceItem swaps the content of a previously delivered message in
	// place. Platforms that cannot edit the given kind return an error and
	// the caller falls back to delete-and-resend.
	ReplaceItem(ctx context.Context, conv int64, ref MessageRef, item record.Item, caption string) (MessageRef, error)

	// Delete removes a previously delivered message.
	Delete(ctx context.Context, conv int64, ref MessageRef) error
}

// DeliveryError wraps a per-item delivery failure with the item's position.
type DeliveryError struct {
	Index int
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("transport: deliver item %d: %v", e.Index, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
