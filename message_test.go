//go:build unit

package courier

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	id := uuid.New()

	message, err := NewMessage(id, "orders.placed", MessageTypeEvent, []byte(`{"order":"1"}`))

	require.NoError(t, err)
	assert.Equal(t, id, message.ID)
	assert.Equal(t, "orders.placed", message.Topic)
	assert.Equal(t, MessageTypeEvent, message.Type)
	assert.Equal(t, []byte(`{"order":"1"}`), message.Body)
	assert.False(t, message.CreatedAt.IsZero())
	assert.Empty(t, message.CorrelationID)
}

func TestNewMessage_TrimsTopic(t *testing.T) {
	message, err := NewMessage(uuid.New(), "  orders.placed  ", MessageTypeCommand, []byte(`{}`))

	require.NoError(t, err)
	assert.Equal(t, "orders.placed", message.Topic)
}

func TestNewMessage_Validation(t *testing.T) {
	tests := []struct {
		name        string
		id          uuid.UUID
		topic       string
		messageType MessageType
		body        []byte
		wantErr     error
	}{
		{
			name:        "nil id",
			id:          uuid.Nil,
			topic:       "orders.placed",
			messageType: MessageTypeEvent,
			body:        []byte(`{}`),
			wantErr:     ErrMessageIDRequired,
		},
		{
			name:        "blank topic",
			id:          uuid.New(),
			topic:       "   ",
			messageType: MessageTypeEvent,
			body:        []byte(`{}`),
			wantErr:     ErrMessageTopicRequired,
		},
		{
			name:        "unknown type",
			id:          uuid.New(),
			topic:       "orders.placed",
			messageType: MessageType("NOTIFICATION"),
			body:        []byte(`{}`),
			wantErr:     ErrMessageTypeInvalid,
		},
		{
			name:        "empty body",
			id:          uuid.New(),
			topic:       "orders.placed",
			messageType: MessageTypeEvent,
			body:        nil,
			wantErr:     ErrMessageBodyRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMessage(tt.id, tt.topic, tt.messageType, tt.body)

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMessageType_IsValid(t *testing.T) {
	assert.True(t, MessageTypeCommand.IsValid())
	assert.True(t, MessageTypeEvent.IsValid())
	assert.True(t, MessageTypeDocument.IsValid())
	assert.False(t, MessageType("").IsValid())
	assert.False(t, MessageType("command").IsValid(), "tags are case sensitive")
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "COMMAND", MessageTypeCommand.String())
	assert.Equal(t, "EVENT", MessageTypeEvent.String())
}
