package dispatch

import (
	"strings"
	"sync"
)

// Registration declares a handler subscription for a request type.
type Registration struct {
	// Name identifies the subscription in logs and errors.
	Name string

	// Kind is the delivery contract (command or event).
	Kind Kind

	// New builds the handler for synchronous pipelines.
	New HandlerFactory

	// NewAsync builds the handler for asynchronous pipelines. Optional;
	// resolving an async pipeline without it is a configuration fault.
	NewAsync HandlerFactory

	// Policies names the fault-handling policies wrapped around the
	// handler, outermost first.
	Policies []string
}

// SubscriberRegistry maps request types to handler registrations. It is
// populated at startup and read by the pipeline builder; duplicate
// registrations for one request type are permitted and preserved in
// registration order.
type SubscriberRegistry struct {
	mu            sync.RWMutex
	registrations map[string][]Registration
}

// NewSubscriberRegistry creates an empty subscriber registry.
func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{registrations: make(map[string][]Registration)}
}

// Register appends a registration for a request type.
func (registry *SubscriberRegistry) Register(requestType string, registration Registration) error {
	if registry == nil {
		return ErrRegistryRequired
	}

	requestType = strings.TrimSpace(requestType)
	if requestType == "" {
		return ErrRequestTypeRequired
	}

	if registration.New == nil && registration.NewAsync == nil {
		return ErrFactoryRequired
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.registrations == nil {
		registry.registrations = make(map[string][]Registration)
	}

	registry.registrations[requestType] = append(registry.registrations[requestType], registration)

	return nil
}

// Get returns the registrations for a request type in registration order.
// The returned slice is a copy; mutating it does not affect the registry.
func (registry *SubscriberRegistry) Get(requestType string) []Registration {
	if registry == nil {
		return nil
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	registered := registry.registrations[strings.TrimSpace(requestType)]
	if len(registered) == 0 {
		return nil
	}

	out := make([]Registration, len(registered))
	copy(out, registered)

	return out
}
