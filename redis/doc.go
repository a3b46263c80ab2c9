// Package redis provides Redis-backed infrastructure adapters: a
// distributed lock manager built on the RedLock algorithm, used to
// serialize outbox sweeps across service instances.
package redis
