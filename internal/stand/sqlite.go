package stand

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter is the embedded relational adapter. Unlike the networked
// variant it does not keep a connection across calls: FetchMany opens a
// fresh handle when needed and always closes it before returning.
type SQLiteAdapter struct {
	path string
	db   *sql.DB
}

// NewSQLite creates an adapter for the database file at path.
func NewSQLite(path string) *SQLiteAdapter {
	return &SQLiteAdapter{path: path}
}

// Connect opens the database file. No-op when already open.
func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", a.path)
	if err != nil {
		return &ConnectionError{Message: "open sqlite database", Err: err}
	}
	// sql.Open is lazy; ping so a missing or unreadable file fails here.
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &ConnectionError{Message: "open sqlite database", Err: err}
	}
	a.db = db
	return nil
}

// FetchMany runs query and returns at most limit rows. The handle is closed
// at the end of the call regardless of outcome.
func (a *SQLiteAdapter) FetchMany(ctx context.Context, query string, limit int) ([]Record, error) {
	if a.db == nil {
		if err := a.Connect(ctx); err != nil {
			return nil, err
		}
	}
	defer func() { _ = a.Close() }()

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Message: "sqlite query failed", Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Message: "sqlite query failed", Err: err}
	}

	records := make([]Record, 0, limit)
	for len(records) < limit && rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Message: "sqlite query failed", Err: err}
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = normalizeSQLiteValue(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Message: "sqlite query failed", Err: err}
	}
	return records, nil
}

// Close releases the handle. Safe to call repeatedly.
func (a *SQLiteAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func normalizeSQLiteValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
