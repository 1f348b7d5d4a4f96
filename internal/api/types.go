package api

import "github.com/queryfan/queryfan/internal/store"

// SubmitRequest is the POST /v1/queries body.
type SubmitRequest struct {
	Stands []string `json:"stands"`
	Syntax string   `json:"syntax"`
	Query  string   `json:"query"`
	Limit  int      `json:"limit"`
}

// SubmitResponse acknowledges an accepted (or partially admitted) submission.
type SubmitResponse struct {
	QueryID int64  `json:"query_id"`
	Partial bool   `json:"partial,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ListQueriesResponse is the GET /v1/queries body.
type ListQueriesResponse struct {
	Queries []store.QuerySummaryRow `json:"queries"`
}

// QueryResponse is the GET /v1/queries/{id} body.
type QueryResponse struct {
	ID      int64               `json:"id"`
	Syntax  string              `json:"syntax"`
	Query   string              `json:"query"`
	Results []store.StandResult `json:"results"`
	Pivot   []store.PivotRow    `json:"pivot,omitempty"`
}

// StandInfo describes one registered stand.
type StandInfo struct {
	Name   string `json:"name"`
	Vendor string `json:"vendor"`
	Syntax string `json:"syntax"`
}

// HealthzResponse is the GET /healthz body.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Stands        int    `json:"stands"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	// QueryID is set on admission failures: the query exists and partial
	// results will still arrive.
	QueryID int64 `json:"query_id,omitempty"`
}
