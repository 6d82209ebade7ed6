package composition

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/health"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/pkg/ring"
)

const tracerName = "github.com/handylife-debug/webwaka-main-sub008/composition"

// Caller invokes a cell action. dispatch.Bus implements it.
type Caller interface {
	Call(ctx context.Context, id, action string, payload map[string]any) (map[string]any, error)
}

// Store persists tissue definitions.
type Store interface {
	Save(ctx context.Context, t *Tissue) error
	List(ctx context.Context) ([]*Tissue, error)
}

type registered struct {
	def     *Tissue
	deps    []Dependency
	history *ring.Buffer[ExecutionResult]
}

// Orchestrator registers and runs tissues and organs. Safe for concurrent use.
type Orchestrator struct {
	caller Caller
	store  Store

	historySize  int
	healthWindow int

	mu      sync.RWMutex
	tissues map[string]*registered
	organs  map[string]*Organ

	metrics *metric.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// New returns an orchestrator that runs steps through caller.
func New(caller Caller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		caller:       caller,
		historySize:  100,
		healthWindow: 10,
		tissues:      make(map[string]*registered),
		organs:       make(map[string]*Organ),
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "composition")
	return o
}

// RegisterTissue validates def, persists it when a store is configured and
// makes it executable. Re-registering an id replaces the definition and keeps
// its history.
func (o *Orchestrator) RegisterTissue(ctx context.Context, def Tissue) error {
	if err := def.Validate(); err != nil {
		return err
	}
	t := def.Clone()
	if o.store != nil {
		if err := o.store.Save(ctx, t); err != nil {
			return err
		}
	}
	o.install(t)
	return nil
}

// LoadTissues registers every tissue in the store. It returns the number
// loaded.
func (o *Orchestrator) LoadTissues(ctx context.Context) (int, error) {
	if o.store == nil {
		return 0, nil
	}
	defs, err := o.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			o.logger.Warn("Skipping stored tissue", "tissue", def.ID, "error", err)
			continue
		}
		o.install(def.Clone())
		n++
	}
	o.logger.Info("Loaded tissues", "count", n)
	return n, nil
}

func (o *Orchestrator) install(t *Tissue) {
	deps := deriveDependencies(t)
	for _, d := range forwardReads(t, deps) {
		o.logger.Warn("Step reads a key written by a later step",
			"tissue", t.ID, "step", d.Step, "writer", d.DependsOn, "key", d.Key)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.tissues[t.ID]; ok {
		cur.def = t
		cur.deps = deps
		return
	}
	o.tissues[t.ID] = &registered{
		def:     t,
		deps:    deps,
		history: ring.New[ExecutionResult](o.historySize),
	}
	o.logger.Info("Registered tissue", "tissue", t.ID, "steps", len(t.Steps))
}

func (o *Orchestrator) lookup(id string) (*registered, *Tissue, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.tissues[id]
	if !ok {
		return nil, nil, errors.NewNotFound(errors.KindTissue, id)
	}
	return r, r.def, nil
}

// ExecuteTissue runs the steps of id in declaration order over a context
// seeded with input. The first failing step aborts the run with a
// CompositionStepError; earlier steps are not compensated. The result is
// recorded in the tissue history and returned in both cases.
func (o *Orchestrator) ExecuteTissue(ctx context.Context, id string, input map[string]any, opts ...ExecuteOption) (*ExecutionResult, error) {
	var cfg executeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	reg, def, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	if cfg.executionID == "" {
		cfg.executionID = o.newID()
	}
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "composition.ExecuteTissue")
	defer span.End()
	span.SetAttributes(
		attribute.String("tissue.id", id),
		attribute.String("execution.id", cfg.executionID),
		attribute.Int("tissue.steps", len(def.Steps)),
	)

	res := &ExecutionResult{
		ExecutionID: cfg.executionID,
		TissueID:    id,
		Input:       maps.Clone(input),
		StepResults: make(map[string]map[string]any, len(def.Steps)),
		StartedAt:   o.now(),
	}
	shared := seed(def, input)

	var runErr error
	for _, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			runErr = &errors.CompositionStepError{TissueID: id, StepID: step.ID, Err: err}
			res.FailedStep = step.ID
			break
		}
		out, err := o.caller.Call(ctx, step.CellID, step.Action, project(shared, step.Inputs))
		if err != nil {
			runErr = &errors.CompositionStepError{TissueID: id, StepID: step.ID, Err: err}
			res.FailedStep = step.ID
			break
		}
		res.StepResults[step.ID] = out
		merge(shared, out, step.Outputs)
	}

	res.FinishedAt = o.now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	if runErr == nil {
		res.Success = true
		res.Output = collect(def, shared)
		span.SetStatus(codes.Ok, "")
	} else {
		res.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}

	reg.history.Push(*res)
	if o.metrics != nil {
		o.metrics.RecordTissue(id, res.Success, res.Duration)
	}
	o.logger.Info("Tissue executed",
		"tissue", id,
		"execution_id", res.ExecutionID,
		"success", res.Success,
		"failed_step", res.FailedStep,
		"duration", res.Duration)
	return res, runErr
}

// History returns the recorded results of id, oldest first.
func (o *Orchestrator) History(id string) ([]ExecutionResult, error) {
	reg, _, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	return reg.history.Snapshot(), nil
}

// TissueHealth classifies the most recent executions of id.
func (o *Orchestrator) TissueHealth(id string) (health.State, error) {
	reg, _, err := o.lookup(id)
	if err != nil {
		return health.StateUnknown, err
	}
	recent := reg.history.Last(o.healthWindow)
	failures := 0
	for _, r := range recent {
		if !r.Success {
			failures++
		}
	}
	return health.FromRatio(failures, len(recent)), nil
}

// Health aggregates the health of every tissue.
func (o *Orchestrator) Health() health.Status {
	ids := o.ids()
	subs := make([]health.Status, 0, len(ids))
	for _, id := range ids {
		state, err := o.TissueHealth(id)
		if err != nil {
			continue
		}
		switch state {
		case health.StateFailed:
			subs = append(subs, health.NewFailed("tissue:"+id, "more than half of recent executions failed"))
		case health.StateDegraded:
			subs = append(subs, health.NewDegraded("tissue:"+id, "recent executions failed"))
		case health.StateHealthy:
			subs = append(subs, health.NewHealthy("tissue:"+id, "recent executions succeeded"))
		}
	}
	return health.Aggregate("composition", subs)
}

// Dependencies returns the derived dependency records of id.
func (o *Orchestrator) Dependencies(id string) ([]Dependency, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.tissues[id]
	if !ok {
		return nil, errors.NewNotFound(errors.KindTissue, id)
	}
	out := make([]Dependency, len(reg.deps))
	copy(out, reg.deps)
	return out, nil
}

// GetTissue returns a copy of the definition of id.
func (o *Orchestrator) GetTissue(id string) (*Tissue, error) {
	_, def, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	return def.Clone(), nil
}

// ListTissues returns copies of every definition ordered by id.
func (o *Orchestrator) ListTissues() []*Tissue {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Tissue, 0, len(o.tissues))
	for _, reg := range o.tissues {
		out = append(out, reg.def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (o *Orchestrator) ids() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.tissues))
	for id := range o.tissues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
