package courier

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType tags the wire form of a request.
type MessageType string

const (
	MessageTypeCommand  MessageType = "COMMAND"
	MessageTypeEvent    MessageType = "EVENT"
	MessageTypeDocument MessageType = "DOCUMENT"
)

// IsValid reports whether the message type is one of the known tags.
func (messageType MessageType) IsValid() bool {
	switch messageType {
	case MessageTypeCommand, MessageTypeEvent, MessageTypeDocument:
		return true
	default:
		return false
	}
}

func (messageType MessageType) String() string {
	return string(messageType)
}

// Message is the wire form of a Request. The ID mirrors the request ID so
// downstream consumers can deduplicate across at-least-once redelivery.
type Message struct {
	ID            uuid.UUID
	Topic         string
	Type          MessageType
	Body          []byte
	CorrelationID string
	CreatedAt     time.Time
}

// NewMessage creates a validated wire message.
func NewMessage(id uuid.UUID, topic string, messageType MessageType, body []byte) (*Message, error) {
	if id == uuid.Nil {
		return nil, ErrMessageIDRequired
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrMessageTopicRequired
	}

	if !messageType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrMessageTypeInvalid, string(messageType))
	}

	if len(body) == 0 {
		return nil, ErrMessageBodyRequired
	}

	return &Message{
		ID:        id,
		Topic:     topic,
		Type:      messageType,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}, nil
}
