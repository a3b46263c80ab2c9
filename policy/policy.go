// Package policy provides named, reusable fault-handling rules that the
// pipeline builder composes around handler invocations: bounded retry with
// exponential backoff and a gobreaker-based circuit breaker.
//
// Policies are referenced declaratively by name at handler registration
// time and resolved from a Registry when the pipeline is built. Declared
// order is authoritative: the first-declared policy is the outermost
// wrapper.
package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/quayside/courier/internal/nilcheck"
)

// Operation is the unit of work a policy wraps: a handler invocation or a
// producer send.
type Operation func(ctx context.Context) error

// Policy executes an operation under a fault-handling rule.
type Policy interface {
	Name() string
	Execute(ctx context.Context, op Operation) error
}

// Registry is a read-mostly lookup table of named policies, built at
// startup and consulted by the pipeline builder.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewRegistry creates an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// Register adds a named policy. Re-registering a name is rejected so a
// pipeline cannot silently change behavior after it was declared.
func (registry *Registry) Register(p Policy) error {
	if registry == nil {
		return ErrRegistryRequired
	}

	if nilcheck.Interface(p) {
		return ErrPolicyRequired
	}

	name := strings.TrimSpace(p.Name())
	if name == "" {
		return ErrPolicyNameRequired
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.policies == nil {
		registry.policies = make(map[string]Policy)
	}

	if _, exists := registry.policies[name]; exists {
		return fmt.Errorf("%w: %s", ErrPolicyAlreadyRegistered, name)
	}

	registry.policies[name] = p

	return nil
}

// Get resolves a policy by name.
//
//nolint:ireturn
func (registry *Registry) Get(name string) (Policy, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	registry.mu.RLock()
	p, ok := registry.policies[strings.TrimSpace(name)]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}

	return p, nil
}

// Compose nests policies around op in declared order, outermost first.
// Compose(op, a, b) executes a(b(op)).
func Compose(op Operation, policies ...Policy) Operation {
	wrapped := op

	for i := len(policies) - 1; i >= 0; i-- {
		p := policies[i]
		if nilcheck.Interface(p) {
			continue
		}

		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return p.Execute(ctx, inner)
		}
	}

	return wrapped
}
