package dispatch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/quayside/courier"
)

// ReplyBroker routes inbound reply messages to the Call invocation that
// is waiting on the matching correlation ID. Subscriptions are ephemeral:
// Call creates one before sending and tears it down on every exit path.
type ReplyBroker struct {
	mu            sync.Mutex
	subscriptions map[string]chan *courier.Message
}

// NewReplyBroker creates an empty reply broker.
func NewReplyBroker() *ReplyBroker {
	return &ReplyBroker{subscriptions: make(map[string]chan *courier.Message)}
}

// Subscribe registers interest in replies carrying the correlation ID.
// The returned channel is buffered so delivery never blocks the
// transport consumer.
func (broker *ReplyBroker) Subscribe(correlationID string) (<-chan *courier.Message, error) {
	if broker == nil {
		return nil, ErrProcessorRequired
	}

	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, ErrRequestRequired
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.subscriptions == nil {
		broker.subscriptions = make(map[string]chan *courier.Message)
	}

	if _, exists := broker.subscriptions[correlationID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, correlationID)
	}

	replies := make(chan *courier.Message, 1)
	broker.subscriptions[correlationID] = replies

	return replies, nil
}

// Unsubscribe removes the subscription for a correlation ID. Safe to
// call for IDs that were never subscribed or already removed.
func (broker *ReplyBroker) Unsubscribe(correlationID string) {
	if broker == nil {
		return
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()

	delete(broker.subscriptions, strings.TrimSpace(correlationID))
}

// Deliver routes an inbound message to the waiting subscriber, keyed by
// the message's correlation ID. It reports whether a subscriber was
// found; unmatched replies (late arrivals after a Call timed out) are
// dropped by the caller.
func (broker *ReplyBroker) Deliver(message *courier.Message) bool {
	if broker == nil || message == nil {
		return false
	}

	broker.mu.Lock()
	replies, ok := broker.subscriptions[message.CorrelationID]
	broker.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case replies <- message:
		return true
	default:
		// Buffer full: a reply for this correlation ID already arrived.
		return false
	}
}

// SubscriptionCount reports how many subscriptions are live. Used to
// verify Call tears its subscription down on every path.
func (broker *ReplyBroker) SubscriptionCount() int {
	if broker == nil {
		return 0
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()

	return len(broker.subscriptions)
}
