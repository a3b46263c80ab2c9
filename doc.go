// Package courier provides the shared domain types for the courier
// dispatch and outbox subsystems: the wire Message, the Request contract
// implemented by application commands and events, the per-invocation
// RequestContext, and the external collaborator contracts (MessageProducer,
// Locker) that adapters implement.
//
// The dispatch package builds and executes handler pipelines, the policy
// package supplies retry and circuit-breaker wrappers, and the outbox
// package guarantees at-least-once delivery of posted messages through a
// durable store and a lock-coordinated background sweeper.
package courier
