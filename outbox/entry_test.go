//go:build unit

package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/courier"
)

func newWireMessage(t *testing.T) *courier.Message {
	t.Helper()

	message, err := courier.NewMessage(uuid.New(), "orders.placed", courier.MessageTypeEvent, []byte(`{"order":"1"}`))
	require.NoError(t, err)

	return message
}

func TestNewEntry_FromMessage(t *testing.T) {
	message := newWireMessage(t)
	message.CorrelationID = uuid.NewString()

	entry, err := NewEntry(message)

	require.NoError(t, err)
	assert.Equal(t, message.ID, entry.ID)
	assert.Equal(t, message.Topic, entry.Topic)
	assert.Equal(t, message.Type, entry.MessageType)
	assert.Equal(t, message.Body, entry.Payload)
	assert.Equal(t, message.CorrelationID, entry.CorrelationID)
	assert.Equal(t, Status(StatusPending), entry.Status)
	assert.Zero(t, entry.Attempts)
	assert.Nil(t, entry.DispatchedAt)
}

func TestNewEntry_Validation(t *testing.T) {
	_, err := NewEntry(nil)
	require.ErrorIs(t, err, ErrMessageRequired)

	message := newWireMessage(t)
	message.ID = uuid.Nil
	_, err = NewEntry(message)
	require.ErrorIs(t, err, courier.ErrMessageIDRequired)

	message = newWireMessage(t)
	message.Topic = ""
	_, err = NewEntry(message)
	require.ErrorIs(t, err, courier.ErrMessageTopicRequired)

	message = newWireMessage(t)
	message.Body = nil
	_, err = NewEntry(message)
	require.ErrorIs(t, err, courier.ErrMessageBodyRequired)

	message = newWireMessage(t)
	message.Type = "BOGUS"
	_, err = NewEntry(message)
	require.ErrorIs(t, err, courier.ErrMessageTypeInvalid)
}

func TestEntry_MessageRoundTrip(t *testing.T) {
	original := newWireMessage(t)
	original.CorrelationID = uuid.NewString()

	entry, err := NewEntry(original)
	require.NoError(t, err)

	rebuilt := entry.Message()

	assert.Equal(t, original.ID, rebuilt.ID)
	assert.Equal(t, original.Topic, rebuilt.Topic)
	assert.Equal(t, original.Type, rebuilt.Type)
	assert.Equal(t, original.Body, rebuilt.Body)
	assert.Equal(t, original.CorrelationID, rebuilt.CorrelationID)
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, Status(StatusPending).IsValid())
	assert.True(t, Status(StatusDispatched).IsValid())
	assert.False(t, Status("PROCESSING").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestNewEntry_PreservesCreatedAt(t *testing.T) {
	message := newWireMessage(t)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	message.CreatedAt = createdAt

	entry, err := NewEntry(message)

	require.NoError(t, err)
	assert.Equal(t, createdAt, entry.CreatedAt)
}
