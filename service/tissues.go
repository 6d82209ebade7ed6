package service

import (
	"net/http"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/composition"
	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/health"
)

// executeRequest is the body of the execute endpoints. Timeout is a Go
// duration string.
type executeRequest struct {
	Input   map[string]any `json:"input"`
	Timeout string         `json:"timeout,omitempty"`
}

type tissueHealthResponse struct {
	ID     string       `json:"id"`
	Status health.State `json:"status"`
}

func (s *Server) handleRegisterTissue(w http.ResponseWriter, r *http.Request) {
	var def composition.Tissue
	if err := decode(r, &def, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orch.RegisterTissue(r.Context(), def); err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.orch.GetTissue(def.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleListTissues(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.ListTissues())
}

func (s *Server) handleGetTissue(w http.ResponseWriter, r *http.Request) {
	def, err := s.orch.GetTissue(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

// handleExecuteTissue returns the execution record with the status of its
// error, so a failed run still reports its step results.
func (s *Server) handleExecuteTissue(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decode(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	var opts []composition.ExecuteOption
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			s.writeError(w, r, errors.NewValidationError("execute", "timeout", "must be a positive duration"))
			return
		}
		opts = append(opts, composition.WithTimeout(d))
	}

	res, err := s.orch.ExecuteTissue(r.Context(), r.PathValue("id"), req.Input, opts...)
	if err != nil {
		if res == nil {
			s.writeError(w, r, err)
			return
		}
		status, _ := classify(err)
		s.writeJSON(w, status, res)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTissueHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.orch.TissueHealth(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tissueHealthResponse{ID: id, Status: state})
}

func (s *Server) handleTissueHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.orch.History(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []composition.ExecutionResult{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleTissueDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := s.orch.Dependencies(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if deps == nil {
		deps = []composition.Dependency{}
	}
	s.writeJSON(w, http.StatusOK, deps)
}

func (s *Server) handleCreateOrgan(w http.ResponseWriter, r *http.Request) {
	var def composition.Organ
	if err := decode(r, &def, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orch.CreateOrgan(def); err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.orch.GetOrgan(def.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleGetOrgan(w http.ResponseWriter, r *http.Request) {
	def, err := s.orch.GetOrgan(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleExecuteOrgan(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decode(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.orch.ExecuteOrgan(r.Context(), r.PathValue("id"), req.Input)
	if err != nil {
		if res == nil {
			s.writeError(w, r, err)
			return
		}
		status, _ := classify(err)
		s.writeJSON(w, status, res)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
