package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/queryfan/queryfan/internal/config"
	"github.com/queryfan/queryfan/internal/events"
	"github.com/queryfan/queryfan/internal/queue"
	"github.com/queryfan/queryfan/internal/stand"
	"github.com/queryfan/queryfan/internal/store"
)

type testEnv struct {
	dispatcher *Dispatcher
	queue      *queue.Queue
	store      *store.Store
	db         *sql.DB
}

func newTestEnv(t *testing.T, queueCap int) *testEnv {
	t.Helper()

	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry := stand.BuildRegistry(map[string]config.StandConf{
		"alpha": {Vendor: "sqlite", Path: filepath.Join(t.TempDir(), "alpha.db")},
		"beta":  {Vendor: "sqlite", Path: filepath.Join(t.TempDir(), "beta.db")},
		"gamma": {Vendor: "sqlite", Path: filepath.Join(t.TempDir(), "gamma.db")},
		"docs":  {Vendor: "mongo", Host: "mongodb://127.0.0.1:27017", DB: "app", Collection: "events"},
	})

	q := queue.New(queueCap)
	st := store.New(db)
	return &testEnv{
		dispatcher: New(registry, q, st, events.NewHub(16)),
		queue:      q,
		store:      st,
		db:         db,
	}
}

func (e *testEnv) queryCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM user_query").Scan(&n); err != nil {
		t.Fatalf("count queries: %v", err)
	}
	return n
}

func TestSubmitEnqueuesOneTaskPerStand(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10)
	req := SubmitRequest{
		Stands: []string{"alpha", "beta"},
		Syntax: stand.SyntaxRelational,
		Query:  "SELECT count(*) FROM orders",
		Limit:  100,
	}

	queryID, err := env.dispatcher.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if queryID < 1 {
		t.Fatalf("invalid query id %d", queryID)
	}
	if env.queue.Depth() != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", env.queue.Depth())
	}

	for _, want := range []string{"alpha", "beta"} {
		task, ok := env.queue.Dequeue(context.Background())
		if !ok {
			t.Fatal("dequeue failed")
		}
		if task.Stand != want || task.QueryID != queryID || task.Limit != 100 {
			t.Fatalf("unexpected task: %+v", task)
		}
	}
}

func TestSubmitValidationRejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10)
	relational := []string{"alpha"}

	cases := []struct {
		name   string
		req    SubmitRequest
		reason string
	}{
		{
			name:   "non-positive limit",
			req:    SubmitRequest{Stands: relational, Syntax: stand.SyntaxRelational, Query: "SELECT 1", Limit: 0},
			reason: "fetch limit",
		},
		{
			name:   "no stands",
			req:    SubmitRequest{Syntax: stand.SyntaxRelational, Query: "SELECT 1", Limit: 1},
			reason: "no stands selected",
		},
		{
			name:   "blank query",
			req:    SubmitRequest{Stands: relational, Syntax: stand.SyntaxRelational, Query: "   \n", Limit: 1},
			reason: "query text is empty",
		},
		{
			name:   "unknown stand",
			req:    SubmitRequest{Stands: []string{"nope"}, Syntax: stand.SyntaxRelational, Query: "SELECT 1", Limit: 1},
			reason: `unknown stand "nope"`,
		},
		{
			name:   "mixed syntax classes",
			req:    SubmitRequest{Stands: []string{"alpha", "docs"}, Syntax: stand.SyntaxRelational, Query: "SELECT 1", Limit: 1},
			reason: "different syntax classes",
		},
		{
			name:   "syntax mismatch",
			req:    SubmitRequest{Stands: []string{"docs"}, Syntax: stand.SyntaxRelational, Query: "SELECT 1", Limit: 1},
			reason: "does not match",
		},
		{
			name:   "data mutation",
			req:    SubmitRequest{Stands: relational, Syntax: stand.SyntaxRelational, Query: "DELETE FROM orders", Limit: 1},
			reason: "data mutation",
		},
		{
			name:   "schema mutation",
			req:    SubmitRequest{Stands: relational, Syntax: stand.SyntaxRelational, Query: "  drop table orders", Limit: 1},
			reason: "schema mutation",
		},
		{
			name:   "truncation",
			req:    SubmitRequest{Stands: relational, Syntax: stand.SyntaxRelational, Query: "TRUNCATE orders", Limit: 1},
			reason: "truncation",
		},
		{
			name:   "malformed filter document",
			req:    SubmitRequest{Stands: []string{"docs"}, Syntax: stand.SyntaxDocument, Query: `{"status": `, Limit: 1},
			reason: "well-formed filter",
		},
	}

	for _, tc := range cases {
		_, err := env.dispatcher.Submit(context.Background(), tc.req)
		if err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if !IsValidation(err) {
			t.Fatalf("%s: expected ValidationError, got %T: %v", tc.name, err, err)
		}
		if !strings.Contains(err.Error(), tc.reason) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err.Error(), tc.reason)
		}
	}

	// Rejections happen before persistence.
	if n := env.queryCount(t); n != 0 {
		t.Fatalf("validation failures persisted %d queries", n)
	}
	if env.queue.Depth() != 0 {
		t.Fatalf("validation failures enqueued %d tasks", env.queue.Depth())
	}
}

func TestSubmitAcceptsReadStatements(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10)
	queries := []string{
		"SELECT * FROM orders",
		"  select id from orders",
		"WITH t AS (SELECT 1) SELECT * FROM t",
		"EXPLAIN SELECT 1",
	}
	for _, q := range queries {
		if _, err := env.dispatcher.Submit(context.Background(), SubmitRequest{
			Stands: []string{"alpha"}, Syntax: stand.SyntaxRelational, Query: q, Limit: 5,
		}); err != nil {
			t.Fatalf("read statement %q rejected: %v", q, err)
		}
	}
}

func TestSubmitAcceptsEmptyFilterDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 10)
	if _, err := env.dispatcher.Submit(context.Background(), SubmitRequest{
		Stands: []string{"docs"}, Syntax: stand.SyntaxDocument, Query: "{}", Limit: 5,
	}); err != nil {
		t.Fatalf("empty filter rejected: %v", err)
	}
}

func TestSubmitAdmissionCutoff(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 2)
	ctx := context.Background()

	// Pre-fill one slot so the three-way fan-out cuts off after one task.
	if !env.queue.TryEnqueue(queue.Task{Stand: "alpha", QueryID: 999, Query: "SELECT 1", Limit: 1}) {
		t.Fatal("pre-fill enqueue refused")
	}

	queryID, err := env.dispatcher.Submit(ctx, SubmitRequest{
		Stands: []string{"alpha", "beta", "gamma"},
		Syntax: stand.SyntaxRelational,
		Query:  "SELECT count(*) FROM orders",
		Limit:  10,
	})
	if err == nil {
		t.Fatal("expected admission error")
	}
	if !IsAdmission(err) {
		t.Fatalf("expected AdmissionError, got %T: %v", err, err)
	}

	var ae *AdmissionError
	if !errors.As(err, &ae) {
		t.Fatalf("cannot extract AdmissionError from %v", err)
	}
	if ae.QueryID != queryID || ae.Enqueued != 1 || ae.Selected != 3 {
		t.Fatalf("unexpected admission detail: %+v", ae)
	}

	// The query row survives, flagged incomplete.
	_, standsNumber, err := env.store.CompletionState(ctx, queryID)
	if err != nil {
		t.Fatalf("CompletionState: %v", err)
	}
	if standsNumber != store.IncompleteSentinel {
		t.Fatalf("expected incomplete sentinel, got %d", standsNumber)
	}

	// Pre-cutoff tasks stay queued: the pre-fill plus one task of this query.
	if env.queue.Depth() != 2 {
		t.Fatalf("expected 2 queued tasks after cutoff, got %d", env.queue.Depth())
	}
	task, _ := env.queue.Dequeue(ctx)
	if task.QueryID != 999 {
		t.Fatalf("pre-filled task lost: %+v", task)
	}
	task, _ = env.queue.Dequeue(ctx)
	if task.QueryID != queryID || task.Stand != "alpha" {
		t.Fatalf("pre-cutoff task lost: %+v", task)
	}
}
