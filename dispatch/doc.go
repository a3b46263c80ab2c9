// Package dispatch routes application commands and events to registered
// handlers through policy-wrapped pipelines, and posts requests to a
// durable outbox before handing them to the message transport.
//
// The Processor is the single entry point: Send delivers a command to
// exactly one handler, Publish fans an event out to every subscriber,
// Post stores-then-forwards a request through the outbox, and Call runs
// the request/reply protocol over correlated messages.
package dispatch
