// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus carries typed change notifications between the reservation
// store and its consumers.
package bus

import "context"

// Message is an event payload. Publishers send typed structs; subscribers
// switch on the concrete type.
type Message interface{}

type Subscriber interface {
	// C returns a read-only message channel. It is closed by Close.
	C() <-chan Message
	// Close unsubscribes.
	Close() error
}

// Bus is the event transport abstraction.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
