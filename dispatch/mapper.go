package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/quayside/courier"
	"github.com/quayside/courier/internal/nilcheck"
)

// MessageMapper translates between a typed request and its wire message.
// MapToMessage runs on outbound paths (Post, Call); MapToRequest runs
// when a correlated reply arrives.
type MessageMapper interface {
	MapToMessage(ctx context.Context, request courier.Request) (*courier.Message, error)
	MapToRequest(ctx context.Context, message *courier.Message) (courier.Request, error)
}

// MessageMapperRegistry maps request type names to mappers. Reply types
// register here too: Call resolves the reply mapper by the type named in
// Caller.ReplyType.
type MessageMapperRegistry struct {
	mu      sync.RWMutex
	mappers map[string]MessageMapper
}

// NewMessageMapperRegistry creates an empty mapper registry.
func NewMessageMapperRegistry() *MessageMapperRegistry {
	return &MessageMapperRegistry{mappers: make(map[string]MessageMapper)}
}

// Register binds a mapper to a request type. Re-registering a type is
// rejected.
func (registry *MessageMapperRegistry) Register(requestType string, mapper MessageMapper) error {
	if registry == nil {
		return ErrMappersRequired
	}

	requestType = strings.TrimSpace(requestType)
	if requestType == "" {
		return ErrRequestTypeRequired
	}

	if nilcheck.Interface(mapper) {
		return ErrMapperRequired
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.mappers == nil {
		registry.mappers = make(map[string]MessageMapper)
	}

	if _, exists := registry.mappers[requestType]; exists {
		return fmt.Errorf("%w: %s", ErrMapperAlreadyRegistered, requestType)
	}

	registry.mappers[requestType] = mapper

	return nil
}

// Get resolves the mapper for a request type.
//
//nolint:ireturn
func (registry *MessageMapperRegistry) Get(requestType string) (MessageMapper, error) {
	if registry == nil {
		return nil, ErrMappersRequired
	}

	registry.mu.RLock()
	mapper, ok := registry.mappers[strings.TrimSpace(requestType)]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMapperNotFound, requestType)
	}

	return mapper, nil
}
