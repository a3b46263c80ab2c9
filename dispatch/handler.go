package dispatch

import (
	"context"

	"github.com/quayside/courier"
)

// Handler processes one request. Handler instances are created once when
// a pipeline is built and reused across invocations, so implementations
// must be safe for concurrent use.
type Handler interface {
	Handle(ctx context.Context, request courier.Request) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, request courier.Request) error

// Handle invokes the function.
func (fn HandlerFunc) Handle(ctx context.Context, request courier.Request) error {
	return fn(ctx, request)
}

// HandlerFactory builds a handler for a pipeline. It runs once per
// (request type, mode) pipeline build; a returned error surfaces as a
// configuration fault.
type HandlerFactory func() (Handler, error)

// Kind classifies a registration by its delivery contract.
type Kind string

const (
	// KindCommand registrations are point-to-point: Send requires exactly
	// one of them per request type.
	KindCommand Kind = "command"

	// KindEvent registrations are fan-out: Publish delivers to all of them
	// in registration order.
	KindEvent Kind = "event"
)
