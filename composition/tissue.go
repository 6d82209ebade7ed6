package composition

import (
	"fmt"
	"maps"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

// Step invokes one cell action. Inputs maps step-local payload keys to shared
// context keys; Outputs maps keys of the cell's response to context keys.
type Step struct {
	ID      string            `json:"id" yaml:"id"`
	CellID  string            `json:"cellId" yaml:"cellId"`
	Action  string            `json:"action" yaml:"action"`
	Inputs  map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Condition is carried with the definition but not evaluated.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Tissue is a pipeline of steps sharing one data context. Inputs maps keys
// of the execution input to context keys, Outputs maps result keys to
// context keys.
type Tissue struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version,omitempty" yaml:"version,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step            `json:"steps" yaml:"steps"`
	Inputs      map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Set by the tissue store.
	Revision  uint64    `json:"revision,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Validate checks the definition before registration.
func (t *Tissue) Validate() error {
	invalid := func(field, reason string) error {
		return errors.NewValidationError("tissue", field, reason)
	}

	switch {
	case t.ID == "":
		return invalid("id", "required")
	case t.Name == "":
		return invalid("name", "required")
	case len(t.Steps) == 0:
		return invalid("steps", "at least one step required")
	}

	seen := make(map[string]struct{}, len(t.Steps))
	for i, s := range t.Steps {
		switch {
		case s.ID == "":
			return invalid(fmt.Sprintf("steps[%d].id", i), "required")
		case s.CellID == "":
			return invalid(fmt.Sprintf("steps[%d].cellId", i), "required")
		case s.Action == "":
			return invalid(fmt.Sprintf("steps[%d].action", i), "required")
		}
		if _, dup := seen[s.ID]; dup {
			return invalid(fmt.Sprintf("steps[%d].id", i), "duplicate step id "+s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Tissue) Clone() *Tissue {
	out := *t
	out.Inputs = maps.Clone(t.Inputs)
	out.Outputs = maps.Clone(t.Outputs)
	out.Steps = make([]Step, len(t.Steps))
	for i, s := range t.Steps {
		s.Inputs = maps.Clone(s.Inputs)
		s.Outputs = maps.Clone(s.Outputs)
		out.Steps[i] = s
	}
	return &out
}

// Dependency records that Step reads Key, which DependsOn writes.
type Dependency struct {
	Step      string `json:"step"`
	DependsOn string `json:"dependsOn"`
	Key       string `json:"key"`
}

// deriveDependencies pairs every input key of a step with each other step
// whose outputs write that key. Nothing is enforced.
func deriveDependencies(t *Tissue) []Dependency {
	writers := make(map[string][]string)
	for _, s := range t.Steps {
		for _, key := range sortedValues(s.Outputs) {
			writers[key] = append(writers[key], s.ID)
		}
	}

	var deps []Dependency
	for _, s := range t.Steps {
		for _, key := range sortedValues(s.Inputs) {
			for _, w := range writers[key] {
				if w != s.ID {
					deps = append(deps, Dependency{Step: s.ID, DependsOn: w, Key: key})
				}
			}
		}
	}
	return deps
}

// forwardReads lists dependencies whose writer is declared after the
// reader. Such a reader sees no value, since steps run in declaration order.
func forwardReads(t *Tissue, deps []Dependency) []Dependency {
	pos := make(map[string]int, len(t.Steps))
	for i, s := range t.Steps {
		pos[s.ID] = i
	}
	var out []Dependency
	for _, d := range deps {
		if pos[d.DependsOn] > pos[d.Step] {
			out = append(out, d)
		}
	}
	return out
}

// ExecutionResult is the record of one tissue run.
type ExecutionResult struct {
	ExecutionID string                    `json:"executionId"`
	TissueID    string                    `json:"tissueId"`
	Input       map[string]any            `json:"input"`
	Output      map[string]any            `json:"output,omitempty"`
	StepResults map[string]map[string]any `json:"stepResults"`
	Success     bool                      `json:"success"`
	StartedAt   time.Time                 `json:"startedAt"`
	FinishedAt  time.Time                 `json:"finishedAt"`
	Duration    time.Duration             `json:"duration"`
	Error       string                    `json:"error,omitempty"`
	FailedStep  string                    `json:"failedStep,omitempty"`
}
