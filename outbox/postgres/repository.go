package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	// Registers the pgx stdlib driver under the "pgx" database/sql name.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/quayside/courier"
	"github.com/quayside/courier/internal/nilcheck"
	"github.com/quayside/courier/log"
	"github.com/quayside/courier/outbox"
)

const (
	defaultTableName       = "outbox_entries"
	maxSQLIdentifierLength = 63
)

var (
	ErrConnectionRequired = errors.New("postgres connection is required")
	ErrInvalidIdentifier  = errors.New("invalid sql identifier")

	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	entryColumns = "id, topic, message_type, payload, correlation_id, status, attempts, last_error, created_at, dispatched_at"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger.
func WithLogger(logger log.Logger) Option {
	return func(store *Store) {
		if nilcheck.Interface(logger) {
			return
		}

		store.logger = logger
	}
}

// WithTableName overrides the outbox table name. Dotted schema paths
// (schema.table) are accepted.
func WithTableName(tableName string) Option {
	return func(store *Store) {
		store.tableName = tableName
	}
}

// Store is a PostgreSQL-backed outbox store.
type Store struct {
	db        *sql.DB
	logger    log.Logger
	tableName string
}

var _ outbox.Store = (*Store)(nil)

// NewStore creates a postgres outbox store over an open connection pool.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrConnectionRequired
	}

	store := &Store{
		db:        db,
		logger:    log.NewNop(),
		tableName: defaultTableName,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	store.tableName = strings.TrimSpace(store.tableName)
	if store.tableName == "" {
		store.tableName = defaultTableName
	}

	if err := validateIdentifierPath(store.tableName); err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	return store, nil
}

// Add inserts a new pending entry.
func (store *Store) Add(ctx context.Context, entry *outbox.Entry) error {
	if store == nil || store.db == nil {
		return outbox.ErrStoreRequired
	}

	if entry == nil || entry.ID == uuid.Nil {
		return outbox.ErrEntryRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	status := entry.Status
	if status == "" {
		status = outbox.StatusPending
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := "INSERT INTO " + store.table() + " (" + entryColumns + ")" +
		" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"

	_, err := store.db.ExecContext(ctx, query,
		entry.ID,
		entry.Topic,
		string(entry.MessageType),
		entry.Payload,
		entry.CorrelationID,
		string(status),
		entry.Attempts,
		entry.LastError,
		createdAt,
		entry.DispatchedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", outbox.ErrEntryAlreadyExists, entry.ID)
		}

		return fmt.Errorf("inserting outbox entry: %w", err)
	}

	return nil
}

// MarkDispatched transitions an entry from Pending to Dispatched. The
// WHERE clause guards the transition, so a second marker finds zero
// affected rows and reports the entry as already dispatched.
func (store *Store) MarkDispatched(ctx context.Context, id uuid.UUID, dispatchedAt time.Time) error {
	if store == nil || store.db == nil {
		return outbox.ErrStoreRequired
	}

	if id == uuid.Nil {
		return outbox.ErrEntryRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	query := "UPDATE " + store.table() +
		" SET status = $1, dispatched_at = $2, last_error = ''" +
		" WHERE id = $3 AND status = $4"

	result, err := store.db.ExecContext(ctx, query,
		outbox.StatusDispatched,
		dispatchedAt.UTC(),
		id,
		outbox.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("marking entry dispatched: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking entry dispatched: rows affected: %w", err)
	}

	if rows == 0 {
		exists, existsErr := store.exists(ctx, id)
		if existsErr != nil {
			return existsErr
		}

		if !exists {
			return fmt.Errorf("%w: %s", outbox.ErrEntryNotFound, id)
		}

		return fmt.Errorf("%w: %s", outbox.ErrEntryAlreadyDispatched, id)
	}

	return nil
}

// MarkAttempt records a failed dispatch attempt; the entry stays Pending.
func (store *Store) MarkAttempt(ctx context.Context, id uuid.UUID, errMsg string) error {
	if store == nil || store.db == nil {
		return outbox.ErrStoreRequired
	}

	if id == uuid.Nil {
		return outbox.ErrEntryRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	query := "UPDATE " + store.table() +
		" SET attempts = attempts + 1, last_error = $1 WHERE id = $2"

	result, err := store.db.ExecContext(ctx, query, errMsg, id)
	if err != nil {
		return fmt.Errorf("recording dispatch attempt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording dispatch attempt: rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", outbox.ErrEntryNotFound, id)
	}

	return nil
}

// GetPending returns pending entries older than olderThan, oldest first,
// bounded by limit. Concurrent sweeps are serialized by the sweeper's
// distributed lock, not at the row level.
func (store *Store) GetPending(ctx context.Context, olderThan time.Duration, limit int) ([]*outbox.Entry, error) {
	if store == nil || store.db == nil {
		return nil, outbox.ErrStoreRequired
	}

	if limit <= 0 {
		return nil, outbox.ErrLimitMustBePositive
	}

	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := store.db.QueryContext(ctx, store.pendingQuery(), outbox.StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*outbox.Entry, 0, limit)

	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending entries: %w", err)
	}

	return entries, nil
}

// pendingQuery builds the stale-pending scan. Row-level lock clauses are
// deliberately absent: on a pool connection in auto-commit mode they
// would be released as soon as the statement completes.
func (store *Store) pendingQuery() string {
	return "SELECT " + entryColumns + " FROM " + store.table() +
		" WHERE status = $1 AND created_at <= $2" +
		" ORDER BY created_at ASC LIMIT $3"
}

// GetByID returns one entry.
func (store *Store) GetByID(ctx context.Context, id uuid.UUID) (*outbox.Entry, error) {
	if store == nil || store.db == nil {
		return nil, outbox.ErrStoreRequired
	}

	if id == uuid.Nil {
		return nil, outbox.ErrEntryRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	query := "SELECT " + entryColumns + " FROM " + store.table() + " WHERE id = $1"

	entry, err := scanEntry(store.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", outbox.ErrEntryNotFound, id)
		}

		return nil, err
	}

	return entry, nil
}

func (store *Store) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool

	query := "SELECT EXISTS (SELECT 1 FROM " + store.table() + " WHERE id = $1)"

	if err := store.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking entry existence: %w", err)
	}

	return exists, nil
}

func (store *Store) table() string {
	return quoteIdentifierPath(store.tableName)
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*outbox.Entry, error) {
	var (
		entry        outbox.Entry
		messageType  string
		status       string
		dispatchedAt sql.NullTime
	)

	if err := scanner.Scan(
		&entry.ID,
		&entry.Topic,
		&messageType,
		&entry.Payload,
		&entry.CorrelationID,
		&status,
		&entry.Attempts,
		&entry.LastError,
		&entry.CreatedAt,
		&dispatchedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("scanning outbox entry: %w", err)
	}

	entry.MessageType = courier.MessageType(messageType)
	entry.Status = outbox.Status(status)

	if dispatchedAt.Valid {
		at := dispatchedAt.Time.UTC()
		entry.DispatchedAt = &at
	}

	return &entry, nil
}

// isUniqueViolation detects a primary-key conflict without importing the
// driver's error types (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

func validateIdentifierPath(path string) error {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return ErrInvalidIdentifier
	}

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if len(trimmed) == 0 || len(trimmed) > maxSQLIdentifierLength {
			return ErrInvalidIdentifier
		}

		if !identifierPattern.MatchString(trimmed) {
			return ErrInvalidIdentifier
		}
	}

	return nil
}

func quoteIdentifierPath(path string) string {
	parts := strings.Split(path, ".")
	quoted := make([]string, 0, len(parts))

	for _, part := range parts {
		quoted = append(quoted, `"`+strings.TrimSpace(part)+`"`)
	}

	return strings.Join(quoted, ".")
}
