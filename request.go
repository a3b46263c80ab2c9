package courier

import "github.com/google/uuid"

// Request is implemented by application commands and events that flow
// through the dispatch pipeline. A request is owned by the caller until it
// is handed to the processor and must not be mutated afterwards.
type Request interface {
	// RequestID is the unique identity of this invocation; it becomes the
	// wire message ID on outbound paths.
	RequestID() uuid.UUID

	// RequestType is the logical type name used for handler, mapper, and
	// pipeline resolution.
	RequestType() string
}

// Caller is implemented by requests used with the request/reply protocol.
// ReplyType names the request type a correlated reply deserializes into.
type Caller interface {
	Request

	ReplyType() string
}
