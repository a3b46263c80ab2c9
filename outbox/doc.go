// Package outbox implements the store-and-forward reliability layer for
// outbound messages.
//
// A message posted by the processor is first recorded here as a Pending
// entry, then handed to the transport producer. Confirmed delivery marks
// the entry Dispatched; anything else leaves it Pending for the Sweeper,
// which periodically re-dispatches stale Pending entries under a
// cluster-wide lock so only one instance sweeps at a time.
//
// Delivery is at-least-once: a crash between a successful send and the
// Dispatched mark causes a later duplicate send, and downstream consumers
// are expected to deduplicate on the message ID. Entries are never deleted
// by this package; archival is an external concern.
package outbox
