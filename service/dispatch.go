package service

import (
	"fmt"
	"net/http"

	"github.com/handylife-debug/webwaka-main-sub008/dispatch"
	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

type batchRequest struct {
	Calls []dispatch.CallRequest `json:"calls"`
}

type batchResponse struct {
	Results []map[string]any `json:"results"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decode(r, &payload, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	out, err := s.bus.Call(r.Context(), cellID(r), r.PathValue("action"), payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleBatch always answers 200 once the body parses; failed calls carry
// an inline error.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	for i, c := range req.Calls {
		if c.CellID == "" || c.Action == "" {
			s.writeError(w, r, errors.NewValidationError("batch", "calls", fmt.Sprintf("call %d needs cell_id and action", i)))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, batchResponse{Results: s.bus.BatchCall(r.Context(), req.Calls)})
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bus.Breakers())
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	id := cellID(r)
	if !s.bus.ResetBreaker(id) {
		s.writeError(w, r, errors.NewNotFound("breaker", id))
		return
	}
	s.logger.Info("Breaker reset by operator", "cell", id)
	snap, _ := s.bus.BreakerState(id)
	s.writeJSON(w, http.StatusOK, dispatch.BreakerStatus{CellID: id, Snapshot: snap})
}
