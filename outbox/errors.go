package outbox

import "errors"

var (
	ErrEntryRequired          = errors.New("outbox entry is required")
	ErrMessageRequired        = errors.New("wire message is required")
	ErrStoreRequired          = errors.New("outbox store is required")
	ErrProducerRequired       = errors.New("message producer is required")
	ErrLockerRequired         = errors.New("distributed locker is required")
	ErrSweeperRequired        = errors.New("outbox sweeper is required")
	ErrSweeperRunning         = errors.New("outbox sweeper is already running")
	ErrEntryNotFound          = errors.New("outbox entry not found")
	ErrEntryAlreadyExists     = errors.New("outbox entry already exists")
	ErrEntryAlreadyDispatched = errors.New("outbox entry already dispatched")
	ErrLimitMustBePositive    = errors.New("limit must be greater than zero")
)
