package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quayside/courier"
)

// Entry lifecycle states. An entry is created Pending and becomes
// Dispatched at most once, after a confirmed transport delivery.
const (
	StatusPending    = "PENDING"
	StatusDispatched = "DISPATCHED"
)

// Status represents a valid entry lifecycle state.
type Status string

// IsValid reports whether the status is part of the entry lifecycle.
func (status Status) IsValid() bool {
	switch status {
	case StatusPending, StatusDispatched:
		return true
	default:
		return false
	}
}

func (status Status) String() string {
	return string(status)
}

// Entry is the persisted record of a wire message plus dispatch metadata.
type Entry struct {
	ID            uuid.UUID
	Topic         string
	MessageType   courier.MessageType
	Payload       []byte
	CorrelationID string
	Status        Status
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// NewEntry creates a pending entry from a wire message.
func NewEntry(message *courier.Message) (*Entry, error) {
	if message == nil {
		return nil, ErrMessageRequired
	}

	if message.ID == uuid.Nil {
		return nil, courier.ErrMessageIDRequired
	}

	if message.Topic == "" {
		return nil, courier.ErrMessageTopicRequired
	}

	if len(message.Body) == 0 {
		return nil, courier.ErrMessageBodyRequired
	}

	if !message.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", courier.ErrMessageTypeInvalid, string(message.Type))
	}

	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &Entry{
		ID:            message.ID,
		Topic:         message.Topic,
		MessageType:   message.Type,
		Payload:       message.Body,
		CorrelationID: message.CorrelationID,
		Status:        StatusPending,
		CreatedAt:     createdAt,
	}, nil
}

// Message rebuilds the wire message for re-dispatch by the sweeper.
func (entry *Entry) Message() *courier.Message {
	if entry == nil {
		return nil
	}

	return &courier.Message{
		ID:            entry.ID,
		Topic:         entry.Topic,
		Type:          entry.MessageType,
		Body:          entry.Payload,
		CorrelationID: entry.CorrelationID,
		CreatedAt:     entry.CreatedAt,
	}
}
