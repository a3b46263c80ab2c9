package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and single-process
// embedders. It honors the same lifecycle guarantees as the durable
// adapters, including the at-most-once Dispatched transition.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*Entry)}
}

// Add records a new entry keyed by message ID.
func (store *MemoryStore) Add(_ context.Context, entry *Entry) error {
	if store == nil {
		return ErrStoreRequired
	}

	if entry == nil {
		return ErrEntryRequired
	}

	if entry.ID == uuid.Nil {
		return ErrEntryRequired
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.entries[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrEntryAlreadyExists, entry.ID)
	}

	stored := *entry
	if stored.Status == "" {
		stored.Status = StatusPending
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	store.entries[entry.ID] = &stored

	return nil
}

// MarkDispatched transitions an entry from Pending to Dispatched.
func (store *MemoryStore) MarkDispatched(_ context.Context, id uuid.UUID, dispatchedAt time.Time) error {
	if store == nil {
		return ErrStoreRequired
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	entry, exists := store.entries[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	if entry.Status == StatusDispatched {
		return fmt.Errorf("%w: %s", ErrEntryAlreadyDispatched, id)
	}

	dispatched := dispatchedAt.UTC()
	entry.Status = StatusDispatched
	entry.DispatchedAt = &dispatched
	entry.LastError = ""

	return nil
}

// MarkAttempt records a failed dispatch attempt; the entry stays Pending.
func (store *MemoryStore) MarkAttempt(_ context.Context, id uuid.UUID, errMsg string) error {
	if store == nil {
		return ErrStoreRequired
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	entry, exists := store.entries[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	entry.Attempts++
	entry.LastError = errMsg

	return nil
}

// GetPending returns pending entries older than olderThan, oldest first,
// bounded by limit.
func (store *MemoryStore) GetPending(_ context.Context, olderThan time.Duration, limit int) ([]*Entry, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	if limit <= 0 {
		return nil, ErrLimitMustBePositive
	}

	cutoff := time.Now().UTC().Add(-olderThan)

	store.mu.RLock()

	pending := make([]*Entry, 0, len(store.entries))

	for _, entry := range store.entries {
		if entry.Status != StatusPending {
			continue
		}

		if entry.CreatedAt.After(cutoff) {
			continue
		}

		snapshot := *entry
		pending = append(pending, &snapshot)
	}

	store.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

// GetByID returns a snapshot of one entry.
func (store *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	entry, exists := store.entries[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	snapshot := *entry

	return &snapshot, nil
}

// PendingCount reports how many entries are still pending. Used by tests
// and health surfaces.
func (store *MemoryStore) PendingCount() int {
	if store == nil {
		return 0
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	count := 0

	for _, entry := range store.entries {
		if entry.Status == StatusPending {
			count++
		}
	}

	return count
}
