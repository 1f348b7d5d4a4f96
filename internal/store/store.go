// Package store persists submitted queries and per-stand results, and
// derives the progress, listing, and pivot views read paths are built on.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/queryfan/queryfan/internal/stand"
)

// IncompleteSentinel is the terminal stands_number value recording that
// admission was cut short and fewer tasks were enqueued than stands selected.
const IncompleteSentinel = -1

// previewLen is the fixed prefix length of the content preview in listings.
const previewLen = 50

// listLimit caps ListRecent.
const listLimit = 25

// ErrQueryNotFound is returned for lookups of unknown query ids.
var ErrQueryNotFound = errors.New("query not found")

// Store records queries and results in SQLite. The embedded *sql.DB pools a
// separate connection per operation, so concurrent workers and read paths
// never share a raw connection handle.
type Store struct {
	db *sql.DB
}

// New creates a Store over an opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// QuerySummaryRow is one row of the recent-queries listing.
type QuerySummaryRow struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	Preview   string `json:"preview"`
	Progress  string `json:"progress"`
}

// StandResult is the recorded outcome of one task.
type StandResult struct {
	Stand   string         `json:"stand"`
	IsError bool           `json:"is_error"`
	Records []stand.Record `json:"records"`
}

// CreateQuery persists a new query submission and returns its id.
func (s *Store) CreateQuery(ctx context.Context, syntax stand.Syntax, content string, standsNumber int) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_query (syntax, content, stands_number) VALUES (?, ?, ?) RETURNING id`,
		int(syntax), content, standsNumber,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create query: %w", err)
	}
	return id, nil
}

// AppendResult records the outcome of one task. Results are append-only:
// nothing ever updates or deletes a result row.
func (s *Store) AppendResult(ctx context.Context, queryID int64, isError bool, standName string, records []stand.Record) error {
	if records == nil {
		records = []stand.Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode result payload: %w", err)
	}

	errFlag := 0
	if isError {
		errFlag = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_result (query_id, is_error, stand_name, result_json) VALUES (?, ?, ?, ?)`,
		queryID, errFlag, standName, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// MarkIncomplete flips the query's stand count to the terminal sentinel.
// Idempotent: repeating the transition leaves the row unchanged.
func (s *Store) MarkIncomplete(ctx context.Context, queryID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_query SET stands_number = ? WHERE id = ?`,
		IncompleteSentinel, queryID,
	)
	if err != nil {
		return fmt.Errorf("mark query incomplete: %w", err)
	}
	return nil
}

// ListRecent returns the newest submissions, newest first, with the derived
// progress label and a truncated content preview.
func (s *Store) ListRecent(ctx context.Context) ([]QuerySummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT
  q.id,
  DATETIME(q.created_at, 'localtime'),
  q.content,
  q.stands_number,
  COUNT(r.id)
FROM user_query q
LEFT JOIN query_result r ON r.query_id = q.id
GROUP BY q.id, q.created_at, q.content, q.stands_number
ORDER BY q.id DESC
LIMIT ?`, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent queries: %w", err)
	}
	defer rows.Close()

	var out []QuerySummaryRow
	for rows.Next() {
		var (
			row          QuerySummaryRow
			content      string
			standsNumber int
			resultCount  int
		)
		if err := rows.Scan(&row.ID, &row.CreatedAt, &content, &standsNumber, &resultCount); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		row.Preview = contentPreview(content)
		row.Progress = progressLabel(standsNumber, resultCount)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent queries: %w", err)
	}
	return out, nil
}

// ResultsFor returns every recorded per-stand result of a query, decoded.
func (s *Store) ResultsFor(ctx context.Context, queryID int64) ([]StandResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stand_name, is_error, result_json FROM query_result WHERE query_id = ? ORDER BY id`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	var out []StandResult
	for rows.Next() {
		var (
			res     StandResult
			errFlag int
			payload string
		)
		if err := rows.Scan(&res.Stand, &errFlag, &payload); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		res.IsError = errFlag != 0
		if err := json.Unmarshal([]byte(payload), &res.Records); err != nil {
			return nil, fmt.Errorf("decode result payload for stand %q: %w", res.Stand, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	return out, nil
}

// QuerySummary returns the syntax class and full text of one query.
func (s *Store) QuerySummary(ctx context.Context, queryID int64) (stand.Syntax, string, error) {
	var (
		syntax  int
		content string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT syntax, content FROM user_query WHERE id = ?`, queryID,
	).Scan(&syntax, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrQueryNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("load query: %w", err)
	}
	return stand.Syntax(syntax), content, nil
}

// CompletionState returns the recorded result count and the stored stand
// count of a query.
func (s *Store) CompletionState(ctx context.Context, queryID int64) (resultCount, standsNumber int, err error) {
	err = s.db.QueryRowContext(ctx, `
SELECT q.stands_number, COUNT(r.id)
FROM user_query q
LEFT JOIN query_result r ON r.query_id = q.id
WHERE q.id = ?
GROUP BY q.stands_number`, queryID,
	).Scan(&standsNumber, &resultCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrQueryNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("load completion state: %w", err)
	}
	return resultCount, standsNumber, nil
}

func contentPreview(content string) string {
	collapsed := strings.ReplaceAll(strings.ReplaceAll(content, "\r\n", " "), "\n", " ")
	runes := []rune(collapsed)
	if len(runes) <= previewLen {
		return collapsed
	}
	return string(runes[:previewLen]) + "..."
}

func progressLabel(standsNumber, resultCount int) string {
	switch {
	case standsNumber == IncompleteSentinel:
		return "queue saturated / incomplete"
	case resultCount < standsNumber:
		return fmt.Sprintf("running (%d/%d)", resultCount, standsNumber)
	default:
		return "done"
	}
}
