package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onramp-hpc/pce/internal/model"
	"github.com/onramp-hpc/pce/internal/store"
)

// launchRequest is the JSON body for POST /v1/jobs/{id}/launch.
type launchRequest struct {
	ModuleID int    `json:"module_id"`
	Username string `json:"username"`
	RunName  string `json:"run_name"`
}

func (s *Server) handleLaunchJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var req launchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResult(w, model.Result{Code: model.CodeInvalidInput, Message: "invalid JSON body"})
		return
	}
	if req.Username == "" || req.RunName == "" {
		s.writeResult(w, model.Result{Code: model.CodeInvalidInput, Message: "username and run_name are required"})
		return
	}

	res, err := s.jobs.Launch(r.Context(), id, req.ModuleID, req.Username, req.RunName)
	if err != nil {
		s.logger.Error("launch job", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to initiate launch")
		return
	}

	s.writeResult(w, res)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	res, err := s.jobs.Cancel(r.Context(), id)
	if err != nil {
		s.logger.Error("cancel job", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to initiate cancel")
		return
	}

	s.writeResult(w, res)
}

// handleDeleteJob removes the job record. Only the record goes away; a job
// still on the scheduler keeps running and must be cancelled separately.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	err := s.store.DeleteJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("delete job", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleGetJob returns the last persisted job snapshot. Scheduler polling
// happens in the background poller, never on the read path.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	j, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*model.Job{}
	}

	s.writeJSON(w, http.StatusOK, list)
}
