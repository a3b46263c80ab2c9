package dispatch

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the class of errors caused by incomplete wiring:
// missing factories, mappers, or policies. They indicate a bug in the
// embedder's setup, not a runtime fault, and are never retried.
var ErrConfiguration = errors.New("dispatch configuration error")

var (
	ErrProcessorRequired   = errors.New("processor is required")
	ErrRequestRequired     = errors.New("request is required")
	ErrRequestTypeRequired = errors.New("request type is required")
	ErrRegistryRequired    = errors.New("subscriber registry is required")
	ErrMappersRequired     = errors.New("message mapper registry is required")
	ErrPoliciesRequired    = errors.New("policy registry is required")
	ErrStoreRequired       = errors.New("outbox store is required")
	ErrProducerRequired    = errors.New("message producer is required")
	ErrFactoryRequired     = errors.New("handler factory is required")
	ErrMapperRequired      = errors.New("message mapper is required")
	ErrMessageRequired     = errors.New("message is required")

	// ErrNoHandlerFound is returned by Send when no handler is registered
	// for the request type.
	ErrNoHandlerFound = errors.New("no handler found for request type")

	// ErrMultipleHandlers is returned by Send when more than one handler is
	// registered; point-to-point delivery requires exactly one.
	ErrMultipleHandlers = errors.New("multiple handlers found for request type")

	// ErrNoFactory wraps ErrConfiguration: a registration has no factory
	// for the requested pipeline mode.
	ErrNoFactory = fmt.Errorf("%w: no handler factory for mode", ErrConfiguration)

	// ErrPolicyNotFound wraps ErrConfiguration: a registration names a
	// policy absent from the policy registry.
	ErrPolicyNotFound = fmt.Errorf("%w: policy not found", ErrConfiguration)

	// ErrMapperNotFound wraps ErrConfiguration: no message mapper is
	// registered for the request type.
	ErrMapperNotFound = fmt.Errorf("%w: message mapper not found", ErrConfiguration)

	// ErrReplyMapperMissing wraps ErrConfiguration: Call requires a mapper
	// for the reply type before the request is sent.
	ErrReplyMapperMissing = fmt.Errorf("%w: reply mapper missing", ErrConfiguration)

	// ErrNotACaller wraps ErrConfiguration: Call requires the request to
	// declare its reply type via the Caller interface.
	ErrNotACaller = fmt.Errorf("%w: request does not implement Caller", ErrConfiguration)

	// ErrMapperAlreadyRegistered rejects re-registration of a request type
	// so mapping cannot silently change after wiring.
	ErrMapperAlreadyRegistered = errors.New("message mapper already registered")

	// ErrAlreadySubscribed rejects duplicate reply subscriptions for one
	// correlation ID.
	ErrAlreadySubscribed = errors.New("reply subscription already exists for correlation id")
)
