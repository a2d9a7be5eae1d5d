package api

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// handleHealthz reports liveness plus whether the entity state store is
// reachable; an unreachable store degrades the response to 503.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.GetStats(r.Context()); err != nil {
		s.logger.Error("healthz store check", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: "unreachable"})
		return
	}

	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}
