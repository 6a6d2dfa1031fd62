package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/callrunner/callrunner/internal/history"
	"github.com/callrunner/callrunner/internal/manifest"
	"github.com/callrunner/callrunner/internal/runner"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInvoke runs one invocation and answers with its body. The HTTP
// status mirrors statusCode. A client that disconnects does not stop the run.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req runner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.invokeMu.Lock()
	resp := s.runner.Invoke(context.WithoutCancel(r.Context()), req)
	s.invokeMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.WriteString(w, resp.Body); err != nil {
		s.logger.Error("writing invoke response", "error", err)
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	loc := s.runner.Locator()

	m, directives, errs, err := s.runner.Preview(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, manifest.ErrNotFound) {
			status = http.StatusNotFound
		}
		jsonResponse(w, status, runner.FailureBody{
			Error:          err.Error(),
			Bucket:         loc.Bucket,
			AvailableFiles: s.runner.Nearby(r.Context(), runner.DefaultFailureListingMaxKeys),
		})
		return
	}

	resp := ManifestResponse{
		Bucket:     m.Bucket,
		Key:        m.Key,
		Policy:     string(loc.Policy),
		Total:      len(directives),
		Directives: make([]DirectiveResponse, len(directives)),
		Nearby:     s.runner.Nearby(r.Context(), 0),
	}
	for i, d := range directives {
		dr := DirectiveResponse{
			Number:        i + 1,
			Raw:           d.Raw,
			ProcedureName: d.ProcedureName,
			Statement:     d.Statement,
		}
		if errs[i] != nil {
			dr.Error = errs[i].Error()
		}
		resp.Directives[i] = dr
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		errorResponse(w, http.StatusNotFound, "run history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []history.Summary{}
	}
	jsonResponse(w, http.StatusOK, RunsResponse{Runs: runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		errorResponse(w, http.StatusNotFound, "run history is disabled")
		return
	}

	result, err := s.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, result)
}
