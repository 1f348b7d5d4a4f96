package stand

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// maxReconnectAttempts bounds the reconnect loop. Once exhausted the
	// adapter fails permanently until Reset is called.
	maxReconnectAttempts = 3

	defaultRetryWait = 5 * time.Second
)

// PostgresAdapter is the networked relational adapter. It holds one
// persistent pgx connection and re-establishes it under a bounded retry
// policy when the backend drops it.
type PostgresAdapter struct {
	dsn        string
	conn       *pgx.Conn
	reconnects int
	retryWait  time.Duration
}

// NewPostgres creates an adapter for the given connection parameters.
func NewPostgres(dbname, user, password, host string, port int) *PostgresAdapter {
	return &PostgresAdapter{
		dsn: fmt.Sprintf("dbname=%s user=%s password=%s host=%s port=%d",
			dbname, user, password, host, port),
		retryWait: defaultRetryWait,
	}
}

// Connect establishes the persistent connection. It is a no-op when the
// connection is already live.
func (a *PostgresAdapter) Connect(ctx context.Context) error {
	if a.conn != nil && !a.conn.IsClosed() {
		return nil
	}
	conn, err := pgx.Connect(ctx, a.dsn)
	if err != nil {
		return &ConnectionError{Message: "connect to postgres", Err: err}
	}
	a.conn = conn
	a.reconnects = 0
	return nil
}

// reconnect performs one delayed reconnection attempt. The attempt counter
// is checked first, so a degraded backend turns into a terminal failure
// instead of an unbounded retry loop.
func (a *PostgresAdapter) reconnect(ctx context.Context) error {
	if a.reconnects >= maxReconnectAttempts {
		return &ConnectionError{Message: "reconnect attempts exhausted, adapter requires reset"}
	}
	a.reconnects++

	select {
	case <-ctx.Done():
		return &ConnectionError{Message: "reconnect cancelled", Err: ctx.Err()}
	case <-time.After(a.retryWait):
	}
	return a.Connect(ctx)
}

// FetchMany runs query verbatim and returns at most limit rows as
// column-name keyed records. A connection that the backend closed
// asynchronously is re-established once and the same call retried; any other
// backend-reported failure surfaces as a QueryError.
func (a *PostgresAdapter) FetchMany(ctx context.Context, query string, limit int) ([]Record, error) {
	for a.conn == nil || a.conn.IsClosed() {
		if err := a.reconnect(ctx); err != nil {
			return nil, err
		}
	}

	records, err := a.fetch(ctx, query, limit)
	if err == nil {
		return records, nil
	}
	if a.conn.IsClosed() {
		a.conn = nil
		if rerr := a.reconnect(ctx); rerr != nil {
			return nil, rerr
		}
		return a.fetch(ctx, query, limit)
	}
	return nil, err
}

func (a *PostgresAdapter) fetch(ctx context.Context, query string, limit int) ([]Record, error) {
	rows, err := a.conn.Query(ctx, query)
	if err != nil {
		return nil, classifyPostgresError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	records := make([]Record, 0, limit)
	for len(records) < limit && rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classifyPostgresError(err)
		}
		rec := make(Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = normalizePostgresValue(values[i])
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyPostgresError(err)
	}
	return records, nil
}

// Reset clears the permanent-failure state so that the next call may try to
// connect again.
func (a *PostgresAdapter) Reset() {
	a.conn = nil
	a.reconnects = 0
}

// Close releases the persistent connection.
func (a *PostgresAdapter) Close() error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close(context.Background())
	a.conn = nil
	return err
}

func classifyPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &QueryError{Message: "postgres rejected query", Err: pgErr}
	}
	return &QueryError{Message: "postgres query failed", Err: err}
}

// normalizePostgresValue converts pgx-specific values into
// JSON-representable ones. UUID columns come back as raw 16-byte arrays.
func normalizePostgresValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
			t[0], t[1], t[2], t[3], t[4], t[5], t[6], t[7],
			t[8], t[9], t[10], t[11], t[12], t[13], t[14], t[15])
	case []byte:
		return fmt.Sprintf("\\x%x", t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return v
	}
}
