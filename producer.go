package courier

import "context"

// MessageProducer sends a wire message to the external transport. Send
// returns nil only after the transport has confirmed the delivery; the
// outbox relies on this to decide the Pending/Dispatched transition.
//
// Producers must tolerate repeated sends of the same message: the sweeper
// may re-dispatch a message whose original send succeeded inside the crash
// window, so downstream consumers are expected to be idempotent on the
// message ID.
type MessageProducer interface {
	Send(ctx context.Context, message *Message) error
}

// BulkMessageProducer is optionally implemented by producers that can
// deliver a batch in one transport call. The sweeper uses it when bulk
// mode is configured.
type BulkMessageProducer interface {
	MessageProducer

	SendBatch(ctx context.Context, messages []*Message) error
}
