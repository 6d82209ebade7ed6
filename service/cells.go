package service

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/handylife-debug/webwaka-main-sub008/registry"
)

// publishRequest is the body of POST /api/v1/cells. A non-empty Channel is
// pointed at the new version after the publish, whatever its auto-advance
// setting.
type publishRequest struct {
	Manifest  registry.Manifest `json:"manifest"`
	Artifacts struct {
		Endpoint     string          `json:"endpoint,omitempty"`
		ServerBundle []byte          `json:"server_bundle,omitempty"`
		ClientBundle []byte          `json:"client_bundle,omitempty"`
		Schema       json.RawMessage `json:"schema,omitempty"`
	} `json:"artifacts"`
	Channel string `json:"channel,omitempty"`
}

type channelRequest struct {
	Version string `json:"version"`
}

type promoteRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type cellHealthResponse struct {
	ID     string          `json:"id"`
	Health registry.Health `json:"health"`
}

func cellID(r *http.Request) string {
	return r.PathValue("sector") + "/" + r.PathValue("name")
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	if string(req.Artifacts.Schema) == "null" {
		req.Artifacts.Schema = nil
	}
	m := req.Manifest
	if req.Channel != "" && !slices.Contains(m.Channels, req.Channel) {
		m.Channels = append(slices.Clone(m.Channels), req.Channel)
	}
	entry, err := s.registry.RegisterCell(r.Context(), m, registry.Artifacts{
		Endpoint:     req.Artifacts.Endpoint,
		ServerBundle: req.Artifacts.ServerBundle,
		ClientBundle: req.Artifacts.ClientBundle,
		Schema:       req.Artifacts.Schema,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Channel != "" && entry.Channels[req.Channel].Version != m.Version {
		if entry, err = s.registry.UpdateChannel(r.Context(), m.ID, req.Channel, m.Version); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListCells(w http.ResponseWriter, r *http.Request) {
	entries, err := s.registry.ListCellsBySector(r.Context(), r.URL.Query().Get("sector"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*registry.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCellStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.GetCellStats(r.Context(), cellID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.registry.ResolveCell(r.Context(), cellID(r), r.URL.Query().Get("channel"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.registry.UpdateChannel(r.Context(), cellID(r), r.PathValue("channel"), req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.registry.Promote(r.Context(), cellID(r), req.From, req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// handleCellHealth probes the cell through the bus and stores the outcome.
func (s *Server) handleCellHealth(w http.ResponseWriter, r *http.Request) {
	id := cellID(r)
	h := registry.HealthFailed
	if s.bus.HealthCheck(r.Context(), id) {
		h = registry.HealthHealthy
	}
	if err := s.registry.MarkHealth(r.Context(), id, h); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cellHealthResponse{ID: id, Health: h})
}
