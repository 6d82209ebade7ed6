package composition

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

// Strategy says how an organ coordinates its tissues.
type Strategy string

const (
	Sequential  Strategy = "sequential"
	Parallel    Strategy = "parallel"
	Conditional Strategy = "conditional"
	EventDriven Strategy = "event-driven"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case Sequential, Parallel, Conditional, EventDriven:
		return true
	}
	return false
}

// Organ groups tissues under a coordination strategy. Only Sequential
// executes; the others are stored but rejected by ExecuteOrgan.
type Organ struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tissues     []string `json:"tissues" yaml:"tissues"`
	Strategy    Strategy `json:"strategy" yaml:"strategy"`
}

// OrganResult is the record of one organ run.
type OrganResult struct {
	OrganID    string            `json:"organId"`
	Output     map[string]any    `json:"output,omitempty"`
	Tissues    []ExecutionResult `json:"tissues"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// CreateOrgan validates and stores def. Every referenced tissue must be
// registered. An empty strategy means Sequential.
func (o *Orchestrator) CreateOrgan(def Organ) error {
	invalid := func(field, reason string) error {
		return errors.NewValidationError("organ", field, reason)
	}
	if def.Strategy == "" {
		def.Strategy = Sequential
	}
	switch {
	case def.ID == "":
		return invalid("id", "required")
	case len(def.Tissues) == 0:
		return invalid("tissues", "at least one tissue required")
	case !def.Strategy.Valid():
		return invalid("strategy", "unknown strategy "+string(def.Strategy))
	}
	for _, id := range def.Tissues {
		if _, _, err := o.lookup(id); err != nil {
			return err
		}
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	def.Tissues = append([]string(nil), def.Tissues...)

	o.mu.Lock()
	o.organs[def.ID] = &def
	o.mu.Unlock()
	o.logger.Info("Created organ", "organ", def.ID, "strategy", def.Strategy, "tissues", len(def.Tissues))
	return nil
}

// GetOrgan returns a copy of the organ definition.
func (o *Orchestrator) GetOrgan(id string) (*Organ, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	def, ok := o.organs[id]
	if !ok {
		return nil, errors.NewNotFound(errors.KindOrgan, id)
	}
	out := *def
	out.Tissues = append([]string(nil), def.Tissues...)
	return &out, nil
}

// ExecuteOrgan runs the tissues of a sequential organ in order. Each tissue
// receives the organ input overlaid with the previous tissue's output. The
// first failing tissue stops the run.
func (o *Orchestrator) ExecuteOrgan(ctx context.Context, id string, input map[string]any) (*OrganResult, error) {
	def, err := o.GetOrgan(id)
	if err != nil {
		return nil, err
	}
	if def.Strategy != Sequential {
		return nil, errors.NewValidationError("organ", "strategy", fmt.Sprintf("strategy %s is not executable", def.Strategy))
	}

	res := &OrganResult{OrganID: id, StartedAt: o.now()}
	current := maps.Clone(input)
	for _, tissueID := range def.Tissues {
		run, err := o.ExecuteTissue(ctx, tissueID, current)
		if run != nil {
			res.Tissues = append(res.Tissues, *run)
		}
		if err != nil {
			res.FinishedAt = o.now()
			res.Error = err.Error()
			return res, fmt.Errorf("organ %s: %w", id, err)
		}
		next := maps.Clone(input)
		if next == nil {
			next = make(map[string]any)
		}
		maps.Copy(next, run.Output)
		current = next
	}

	res.Success = true
	res.Output = current
	res.FinishedAt = o.now()
	return res, nil
}
