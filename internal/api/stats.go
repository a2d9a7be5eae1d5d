package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	ModulesByState map[string]int `json:"modules_by_state"`
	JobsByState    map[string]int `json:"jobs_by_state"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		ModulesByState: stats.ModulesByState,
		JobsByState:    stats.JobsByState,
	})
}
