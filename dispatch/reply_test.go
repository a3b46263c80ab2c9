//go:build unit

package dispatch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/courier"
)

func newReplyMessage(t *testing.T, correlationID string) *courier.Message {
	t.Helper()

	message, err := courier.NewMessage(uuid.New(), "test.reply", courier.MessageTypeDocument, []byte(`{}`))
	require.NoError(t, err)

	message.CorrelationID = correlationID

	return message
}

func TestReplyBroker_DeliverToSubscriber(t *testing.T) {
	broker := NewReplyBroker()
	correlationID := uuid.NewString()

	replies, err := broker.Subscribe(correlationID)
	require.NoError(t, err)

	message := newReplyMessage(t, correlationID)

	require.True(t, broker.Deliver(message))
	assert.Same(t, message, <-replies)
}

func TestReplyBroker_UnmatchedCorrelationDropped(t *testing.T) {
	broker := NewReplyBroker()

	assert.False(t, broker.Deliver(newReplyMessage(t, uuid.NewString())))
}

func TestReplyBroker_DuplicateSubscriptionRejected(t *testing.T) {
	broker := NewReplyBroker()
	correlationID := uuid.NewString()

	_, err := broker.Subscribe(correlationID)
	require.NoError(t, err)

	_, err = broker.Subscribe(correlationID)
	require.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestReplyBroker_UnsubscribeStopsDelivery(t *testing.T) {
	broker := NewReplyBroker()
	correlationID := uuid.NewString()

	_, err := broker.Subscribe(correlationID)
	require.NoError(t, err)

	broker.Unsubscribe(correlationID)

	assert.False(t, broker.Deliver(newReplyMessage(t, correlationID)))
	assert.Zero(t, broker.SubscriptionCount())
}

func TestReplyBroker_SecondReplyDropped(t *testing.T) {
	broker := NewReplyBroker()
	correlationID := uuid.NewString()

	_, err := broker.Subscribe(correlationID)
	require.NoError(t, err)

	require.True(t, broker.Deliver(newReplyMessage(t, correlationID)))
	assert.False(t, broker.Deliver(newReplyMessage(t, correlationID)),
		"a second reply for the same correlation must not block")
}

func TestReplyBroker_SubscriptionCount(t *testing.T) {
	broker := NewReplyBroker()

	_, err := broker.Subscribe(uuid.NewString())
	require.NoError(t, err)

	second := uuid.NewString()
	_, err = broker.Subscribe(second)
	require.NoError(t, err)

	assert.Equal(t, 2, broker.SubscriptionCount())

	broker.Unsubscribe(second)
	assert.Equal(t, 1, broker.SubscriptionCount())
}
