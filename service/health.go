package service

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/breaker"
	"github.com/handylife-debug/webwaka-main-sub008/health"
	"github.com/handylife-debug/webwaka-main-sub008/registry"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	health.Status
	Version  string         `json:"version"`
	Uptime   string         `json:"uptime"`
	Registry registry.Stats `json:"registry"`
}

// systemHealth aggregates the registry, the breakers, the orchestrator and
// every extra check. Open breakers and failing tissues only degrade the
// system; extra checks can fail it.
func (s *Server) systemHealth() health.Status {
	comp := s.orch.Health()
	if comp.IsFailed() {
		comp.Status, comp.Healthy = health.StateDegraded, false
	}
	subs := []health.Status{s.registryHealth(), s.breakerHealth(), comp}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := s.checks[name]()
		st.Component = name
		subs = append(subs, st)
	}
	return health.Aggregate("cellbus", subs)
}

func (s *Server) registryHealth() health.Status {
	st := s.registry.Stats()
	return health.NewHealthy("registry",
		fmt.Sprintf("%d cached resolutions, %d write-backs queued", st.CachedResolutions, st.WriteBack.QueueDepth))
}

func (s *Server) breakerHealth() health.Status {
	var open []string
	for _, b := range s.bus.Breakers() {
		if b.State != breaker.Closed {
			open = append(open, b.CellID)
		}
	}
	if len(open) > 0 {
		return health.NewDegraded("breakers", fmt.Sprintf("%d not closed: %v", len(open), open))
	}
	return health.NewHealthy("breakers", "all closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.systemHealth()
	if s.metrics != nil {
		s.metrics.CoreMetrics().RecordHealthCheck("cellbus", st.IsHealthy(), st.IsDegraded())
	}
	status := http.StatusOK
	if st.IsFailed() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, healthResponse{
		Status:   st,
		Version:  s.version,
		Uptime:   s.now().Sub(s.started).Truncate(time.Second).String(),
		Registry: s.registry.Stats(),
	})
}
