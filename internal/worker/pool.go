// Package worker drains the task queue with a fixed pool of executors. Every
// dequeued task produces exactly one result row, whatever its outcome; that
// invariant is what keeps the derived progress view honest.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/queryfan/queryfan/internal/events"
	"github.com/queryfan/queryfan/internal/log"
	"github.com/queryfan/queryfan/internal/queue"
	"github.com/queryfan/queryfan/internal/stand"
	"github.com/queryfan/queryfan/internal/store"
)

// Pool is a fixed set of workers sharing one queue. No priority, no
// affinity: two tasks of the same query may complete on different workers in
// any order.
type Pool struct {
	n        int
	queue    *queue.Queue
	registry *stand.Registry
	store    *store.Store
	hub      *events.Hub
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a pool of n workers.
func New(n int, q *queue.Queue, reg *stand.Registry, st *store.Store, hub *events.Hub) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		n:        n,
		queue:    q,
		registry: reg,
		store:    st,
		hub:      hub,
		logger:   log.WithComponent("worker"),
	}
}

// Start launches the workers. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool started", "workers", p.n)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With("worker", id)

	for {
		task, ok := p.queue.Dequeue(ctx)
		if !ok {
			logger.Debug("worker stopping")
			return
		}
		p.execute(ctx, logger, task)
	}
}

// execute runs one task against its stand and persists the single result
// row. Adapter errors never escape: they become an error result with one
// synthetic record carrying the message.
func (p *Pool) execute(ctx context.Context, logger *slog.Logger, task queue.Task) {
	var (
		records []stand.Record
		isError bool
	)

	if st, ok := p.registry.Get(task.Stand); ok {
		recs, err := st.Execute(ctx, task.Query, task.Limit)
		if err != nil {
			isError = true
			records = errorPayload(err.Error())
			logger.Warn("task failed", "query_id", task.QueryID, "stand", task.Stand, "error", err)
		} else {
			records = recs
			logger.Debug("task done", "query_id", task.QueryID, "stand", task.Stand, "records", len(recs))
		}
	} else {
		isError = true
		records = errorPayload("stand " + task.Stand + " is not registered")
		logger.Error("task addressed to unknown stand", "query_id", task.QueryID, "stand", task.Stand)
	}

	// The result row must land even when ctx was cancelled mid-task,
	// otherwise a dequeued task would vanish without a trace.
	writeCtx := context.WithoutCancel(ctx)
	if err := p.store.AppendResult(writeCtx, task.QueryID, isError, task.Stand, records); err != nil {
		logger.Error("persisting result failed", "query_id", task.QueryID, "stand", task.Stand, "error", err)
		return
	}

	p.hub.Publish(events.TypeResultPersisted, map[string]any{
		"query_id": task.QueryID,
		"stand":    task.Stand,
		"is_error": isError,
	})

	count, standsNumber, err := p.store.CompletionState(writeCtx, task.QueryID)
	if err != nil {
		logger.Warn("reading completion state failed", "query_id", task.QueryID, "error", err)
		return
	}
	if standsNumber > 0 && count >= standsNumber {
		p.hub.Publish(events.TypeQueryCompleted, map[string]any{
			"query_id": task.QueryID,
			"results":  count,
		})
	}
}

func errorPayload(msg string) []stand.Record {
	return []stand.Record{{"error": msg}}
}
