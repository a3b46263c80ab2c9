package policy

import "errors"

var (
	ErrRegistryRequired        = errors.New("policy registry is required")
	ErrPolicyRequired          = errors.New("policy is required")
	ErrPolicyNameRequired      = errors.New("policy name is required")
	ErrPolicyAlreadyRegistered = errors.New("policy already registered")
	ErrPolicyNotFound          = errors.New("policy not found")
	ErrOperationRequired       = errors.New("operation is required")

	// ErrCircuitOpen is the fast-fail signal surfaced when a circuit
	// breaker rejects a call without invoking the wrapped operation.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)
