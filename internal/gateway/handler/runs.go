package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"mark/internal/gateway/service"
)

// RunHandler serves run submission and lookups.
type RunHandler struct {
	runner *service.Runner
}

func NewRunHandler(runner *service.Runner) *RunHandler {
	return &RunHandler{runner: runner}
}

// HandleRuns answers GET (list) and POST (submit) on /api/runs.
func (h *RunHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.runner.Store().List())
	case http.MethodPost:
		var params service.RunParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		runID, err := h.runner.Submit(params)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleRun answers GET /api/runs/{id} with the full stored run.
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID = strings.Trim(runID, "/")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}
	run, ok := h.runner.Store().Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
