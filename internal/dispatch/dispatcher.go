// Package dispatch validates query submissions, persists them, and fans
// tasks out onto the bounded queue under admission control.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/queryfan/queryfan/internal/events"
	"github.com/queryfan/queryfan/internal/log"
	"github.com/queryfan/queryfan/internal/queue"
	"github.com/queryfan/queryfan/internal/stand"
	"github.com/queryfan/queryfan/internal/store"
)

// SubmitRequest is one user-authored query addressed to a set of stands.
type SubmitRequest struct {
	Stands []string
	Syntax stand.Syntax
	Query  string
	Limit  int
}

// Dispatcher coordinates the submission path: validate, persist, enqueue.
type Dispatcher struct {
	registry *stand.Registry
	queue    *queue.Queue
	store    *store.Store
	hub      *events.Hub
	logger   *slog.Logger
}

// New creates a Dispatcher.
func New(reg *stand.Registry, q *queue.Queue, st *store.Store, hub *events.Hub) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		queue:    q,
		store:    st,
		hub:      hub,
		logger:   log.WithComponent("dispatch"),
	}
}

// Submit validates req, persists the query, and enqueues one task per
// selected stand in selection order. When the queue saturates mid fan-out
// the query is marked incomplete and an AdmissionError carrying the query id
// is returned; tasks already enqueued remain queued and will still execute.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (int64, error) {
	if err := d.validate(req); err != nil {
		return 0, err
	}

	queryID, err := d.store.CreateQuery(ctx, req.Syntax, req.Query, len(req.Stands))
	if err != nil {
		return 0, fmt.Errorf("persist query: %w", err)
	}
	d.logger.Info("query submitted",
		"query_id", queryID, "syntax", req.Syntax.String(), "stands", len(req.Stands), "limit", req.Limit)
	d.hub.Publish(events.TypeQuerySubmitted, map[string]any{
		"query_id": queryID,
		"stands":   req.Stands,
	})

	for i, name := range req.Stands {
		ok := d.queue.TryEnqueue(queue.Task{
			Stand:   name,
			QueryID: queryID,
			Query:   req.Query,
			Limit:   req.Limit,
		})
		if ok {
			continue
		}

		if err := d.store.MarkIncomplete(ctx, queryID); err != nil {
			return queryID, fmt.Errorf("mark query incomplete: %w", err)
		}
		d.logger.Warn("queue saturated, fan-out cut short",
			"query_id", queryID, "enqueued", i, "selected", len(req.Stands))
		d.hub.Publish(events.TypeQuerySaturated, map[string]any{
			"query_id": queryID,
			"enqueued": i,
		})
		return queryID, &AdmissionError{QueryID: queryID, Enqueued: i, Selected: len(req.Stands)}
	}

	return queryID, nil
}

func (d *Dispatcher) validate(req SubmitRequest) error {
	if req.Limit < 1 {
		return &ValidationError{Reason: "fetch limit must be a positive integer"}
	}
	if len(req.Stands) == 0 {
		return &ValidationError{Reason: "no stands selected"}
	}
	if strings.TrimSpace(req.Query) == "" {
		return &ValidationError{Reason: "query text is empty"}
	}

	syntaxes := make(map[stand.Syntax]struct{}, 2)
	for _, name := range req.Stands {
		s, ok := d.registry.Get(name)
		if !ok {
			return &ValidationError{Reason: fmt.Sprintf("unknown stand %q", name)}
		}
		syntaxes[s.Syntax] = struct{}{}
	}
	if len(syntaxes) > 1 {
		return &ValidationError{Reason: "selected stands use different syntax classes"}
	}
	if _, ok := syntaxes[req.Syntax]; !ok {
		return &ValidationError{Reason: "requested syntax does not match the selected stands"}
	}

	switch req.Syntax {
	case stand.SyntaxRelational:
		return validateRelational(req.Query)
	case stand.SyntaxDocument:
		return validateDocument(req.Query)
	default:
		return &ValidationError{Reason: fmt.Sprintf("unsupported syntax class %d", int(req.Syntax))}
	}
}

// validateRelational applies the coarse statement-class filter: only reads
// are dispatched to the stands, nothing that mutates data or schema.
func validateRelational(query string) error {
	head := strings.ToLower(strings.TrimLeft(query, " \t\r\n"))

	switch {
	case hasAnyPrefix(head, "insert ", "update ", "delete "):
		return &ValidationError{Reason: "data mutation statements are not supported"}
	case hasAnyPrefix(head, "drop ", "alter ", "create ", "comment "):
		return &ValidationError{Reason: "schema mutation statements are not supported"}
	case strings.HasPrefix(head, "truncate "):
		return &ValidationError{Reason: "table truncation is not supported"}
	}
	return nil
}

func validateDocument(query string) error {
	if !json.Valid([]byte(query)) {
		return &ValidationError{Reason: "query text is not a well-formed filter document"}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
