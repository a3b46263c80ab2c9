// Package postgres persists outbox entries in PostgreSQL through
// database/sql with the pgx stdlib driver.
//
// Expected schema:
//
//	CREATE TABLE outbox_entries (
//	    id             UUID PRIMARY KEY,
//	    topic          TEXT NOT NULL,
//	    message_type   TEXT NOT NULL,
//	    payload        BYTEA NOT NULL,
//	    correlation_id TEXT NOT NULL DEFAULT '',
//	    status         TEXT NOT NULL DEFAULT 'PENDING',
//	    attempts       INT NOT NULL DEFAULT 0,
//	    last_error     TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    dispatched_at  TIMESTAMPTZ
//	);
//
//	CREATE INDEX outbox_entries_pending_idx
//	    ON outbox_entries (created_at) WHERE status = 'PENDING';
//
// The Pending to Dispatched transition is guarded in SQL
// (WHERE status = 'PENDING'), so concurrent markers cannot dispatch an
// entry twice even across processes.
package postgres
