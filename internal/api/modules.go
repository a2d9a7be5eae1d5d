package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/onramp-hpc/pce/internal/model"
	"github.com/onramp-hpc/pce/internal/store"
)

const maxBodySize = 1 << 20 // 1 MB

// checkoutRequest is the JSON body for POST /v1/modules/{id}/checkout.
type checkoutRequest struct {
	Name   string               `json:"name"`
	Source model.SourceLocation `json:"source"`
}

func (s *Server) handleCheckoutModule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResult(w, model.Result{Code: model.CodeInvalidInput, Message: "invalid JSON body"})
		return
	}
	if req.Name == "" {
		s.writeResult(w, model.Result{Code: model.CodeInvalidInput, Message: "name is required"})
		return
	}

	res, err := s.modules.Checkout(r.Context(), id, req.Name, req.Source)
	if err != nil {
		s.logger.Error("checkout module", "module_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to initiate checkout")
		return
	}

	s.writeResult(w, res)
}

func (s *Server) handleDeployModule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	res, err := s.modules.Deploy(r.Context(), id)
	if err != nil {
		s.logger.Error("deploy module", "module_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to initiate deployment")
		return
	}

	s.writeResult(w, res)
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	m, err := s.store.GetModule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "module not found")
		return
	}
	if err != nil {
		s.logger.Error("get module", "module_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get module")
		return
	}

	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	err := s.store.DeleteModule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "module not found")
		return
	}
	if err != nil {
		s.logger.Error("delete module", "module_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete module")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleListModules lists persisted module records. With ?state=Available it
// instead lists the source catalogue: modules that can be checked out but
// have no record yet.
func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	var list []*model.Module
	var err error
	if r.URL.Query().Get("state") == model.ModuleAvailable {
		list, err = s.modules.Available()
	} else {
		list, err = s.store.ListModules(r.Context())
	}
	if err != nil {
		s.logger.Error("list modules", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list modules")
		return
	}
	if list == nil {
		list = []*model.Module{}
	}

	s.writeJSON(w, http.StatusOK, list)
}

// pathID parses the {id} path parameter, writing an invalid-input envelope on
// failure.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResult(w, model.Result{Code: model.CodeInvalidInput, Message: "id must be an integer"})
		return 0, false
	}
	return id, true
}
