package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/queryfan/queryfan/internal/dispatch"
	"github.com/queryfan/queryfan/internal/export"
	"github.com/queryfan/queryfan/internal/stand"
	"github.com/queryfan/queryfan/internal/store"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    s.queue.Depth(),
		QueueCapacity: s.queue.Cap(),
		Stands:        s.registry.Len(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleSubmit handles POST /v1/queries.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	syntax, err := stand.ParseSyntax(req.Syntax)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	queryID, err := s.dispatcher.Submit(r.Context(), dispatch.SubmitRequest{
		Stands: req.Stands,
		Syntax: syntax,
		Query:  req.Query,
		Limit:  req.Limit,
	})

	var admissionErr *dispatch.AdmissionError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, SubmitResponse{QueryID: queryID})
	case dispatch.IsValidation(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &admissionErr):
		s.writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:   admissionErr.Error(),
			QueryID: admissionErr.QueryID,
		})
	default:
		s.logger.Error("submit failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "submission failed")
	}
}

// handleListQueries handles GET /v1/queries.
func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := s.store.ListRecent(r.Context())
	if err != nil {
		s.logger.Error("listing queries failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list queries")
		return
	}
	if queries == nil {
		queries = []store.QuerySummaryRow{}
	}
	s.writeJSON(w, http.StatusOK, ListQueriesResponse{Queries: queries})
}

// handleGetQuery handles GET /v1/queries/{queryID}.
func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	queryID, ok := s.queryIDParam(w, r)
	if !ok {
		return
	}

	syntax, content, err := s.store.QuerySummary(r.Context(), queryID)
	if errors.Is(err, store.ErrQueryNotFound) {
		s.writeError(w, http.StatusNotFound, "query not found")
		return
	}
	if err != nil {
		s.logger.Error("loading query failed", "query_id", queryID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load query")
		return
	}

	results, err := s.store.ResultsFor(r.Context(), queryID)
	if err != nil {
		s.logger.Error("loading results failed", "query_id", queryID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	if results == nil {
		results = []store.StandResult{}
	}

	resp := QueryResponse{
		ID:      queryID,
		Syntax:  syntax.String(),
		Query:   content,
		Results: results,
	}
	if syntax == stand.SyntaxRelational {
		resp.Pivot = store.Pivot(results)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleExport handles GET /v1/queries/{queryID}/export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	queryID, ok := s.queryIDParam(w, r)
	if !ok {
		return
	}

	syntax, content, err := s.store.QuerySummary(r.Context(), queryID)
	if errors.Is(err, store.ErrQueryNotFound) {
		s.writeError(w, http.StatusNotFound, "query not found")
		return
	}
	if err != nil {
		s.logger.Error("loading query failed", "query_id", queryID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load query")
		return
	}

	results, err := s.store.ResultsFor(r.Context(), queryID)
	if err != nil {
		s.logger.Error("loading results failed", "query_id", queryID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}

	workbook, err := export.Workbook(syntax, content, results)
	if err != nil {
		s.logger.Error("building export failed", "query_id", queryID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	defer workbook.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=query_%d.xlsx", queryID))
	if _, err := workbook.WriteTo(w); err != nil {
		s.logger.Error("writing export failed", "query_id", queryID, "error", err)
	}
}

// handleListStands handles GET /v1/stands.
func (s *Server) handleListStands(w http.ResponseWriter, r *http.Request) {
	stands := make([]StandInfo, 0, s.registry.Len())
	for _, st := range s.registry.All() {
		stands = append(stands, StandInfo{
			Name:   st.Name,
			Vendor: st.Vendor,
			Syntax: st.Syntax.String(),
		})
	}
	s.writeJSON(w, http.StatusOK, stands)
}

func (s *Server) queryIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "queryID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		s.writeError(w, http.StatusBadRequest, "query id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
