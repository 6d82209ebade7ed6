package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/handylife-debug/webwaka-main-sub008/breaker"
	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/registry"
	"github.com/handylife-debug/webwaka-main-sub008/schema"
)

const (
	tracerName   = "github.com/handylife-debug/webwaka-main-sub008/dispatch"
	maxErrorBody = 512
)

// ErrNoEndpoint is returned when a resolved version has no server location.
var ErrNoEndpoint = stderrors.New("resolved version has no server endpoint")

// Resolver is the registry view the bus needs.
type Resolver interface {
	ResolveCell(ctx context.Context, id, channel string) (*registry.Resolution, error)
	LoadSchema(ctx context.Context, id, version string) (*schema.Document, error)
}

// Bus invokes cell actions by id. Each cell gets its own breaker, created on
// first use. Safe for concurrent use.
type Bus struct {
	resolver  Resolver
	transport Transport
	validator schema.Validator

	settings    breaker.Settings
	channel     string
	concurrency int
	now         func() time.Time

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker

	metrics *metric.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewBus creates a bus that resolves through resolver and calls through
// transport.
func NewBus(resolver Resolver, transport Transport, opts ...Option) (*Bus, error) {
	if resolver == nil || transport == nil {
		return nil, errors.WrapInvalid(nil, "Bus", "NewBus", "resolver and transport are required")
	}
	b := &Bus{
		resolver:    resolver,
		transport:   transport,
		validator:   schema.NopValidator{},
		settings:    breaker.DefaultSettings(),
		channel:     registry.StableChannel,
		concurrency: 8,
		now:         time.Now,
		breakers:    make(map[string]*breaker.Breaker),
		tracer:      otel.Tracer(tracerName),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, errors.WrapInvalid(err, "Bus", "NewBus", "apply option")
		}
	}
	b.logger = b.logger.With("component", "dispatch")
	return b, nil
}

// Call invokes action on cell id. An open breaker fails fast with
// ServiceUnavailableError and never reaches the transport. Only transport,
// status, decode and response validation failures count against the breaker.
func (b *Bus) Call(ctx context.Context, id, action string, payload map[string]any) (map[string]any, error) {
	ctx, span := b.tracer.Start(ctx, "dispatch.Call", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("cell.id", id),
		attribute.String("cell.action", action),
		attribute.String("cell.channel", b.channel),
	)

	start := time.Now()
	cb := b.breaker(id)
	out, err := breaker.Call(ctx, cb, func(ctx context.Context) (map[string]any, error) {
		return b.executeRemoteCall(ctx, id, action, payload)
	})

	outcome := "success"
	switch {
	case err == nil:
	case stderrors.Is(err, breaker.ErrOpen):
		outcome = "rejected"
		err = &errors.ServiceUnavailableError{Target: id, RetryAfter: cb.RetryAfter()}
	case stderrors.Is(err, breaker.ErrTimeout):
		outcome = "timeout"
		err = &errors.RemoteCallError{CellID: id, Action: action, Err: err}
	default:
		outcome = "error"
	}
	if b.metrics != nil {
		b.metrics.RecordDispatch(id, action, outcome, time.Since(start))
		if outcome == "rejected" {
			b.metrics.BreakerRejected.WithLabelValues(id).Inc()
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Debug("Dispatch failed", "cell", id, "action", action, "outcome", outcome, "error", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// executeRemoteCall prepares and sends one call. Preparation failures are
// the caller's (unknown cell or action, invalid payload) and are kept out of
// the target's breaker.
func (b *Bus) executeRemoteCall(ctx context.Context, id, action string, payload map[string]any) (map[string]any, error) {
	call, err := b.prepare(ctx, id, action, payload)
	if err != nil {
		return nil, breaker.Ignore(err)
	}
	return b.invoke(ctx, call)
}

type preparedCall struct {
	req    Request
	schema schema.ActionSchema
}

func (b *Bus) prepare(ctx context.Context, id, action string, payload map[string]any) (*preparedCall, error) {
	res, err := b.resolver.ResolveCell(ctx, id, b.channel)
	if err != nil {
		return nil, err
	}
	if res.Locations.Server == "" {
		return nil, errors.WrapFatal(ErrNoEndpoint, "Bus", "prepare", "resolve "+id+"@"+res.Version)
	}
	if !res.HasAction(action) {
		return nil, errors.NewNotFound(errors.KindAction, id+"."+action)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("cell.version", res.Version))

	if payload == nil {
		payload = map[string]any{}
	}
	actionSchema, err := b.actionSchema(ctx, id, res.Version, action)
	if err != nil {
		return nil, err
	}
	if err := b.validator.Validate("request "+id+"."+action, actionSchema.Input, payload); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Bus", "prepare", "encode payload")
	}
	return &preparedCall{
		req: Request{
			CellID:   id,
			Action:   action,
			Version:  res.Version,
			Channel:  res.Channel,
			Endpoint: res.Locations.Server,
			Body:     body,
		},
		schema: actionSchema,
	}, nil
}

func (b *Bus) invoke(ctx context.Context, call *preparedCall) (map[string]any, error) {
	id, action := call.req.CellID, call.req.Action
	resp, err := b.transport.Invoke(ctx, call.req)
	if err != nil {
		return nil, &errors.RemoteCallError{CellID: id, Action: action, Err: err}
	}
	if !resp.OK() {
		return nil, &errors.RemoteCallError{
			CellID:     id,
			Action:     action,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(resp.Body), maxErrorBody),
		}
	}

	out := map[string]any{}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return nil, &errors.RemoteCallError{
				CellID:     id,
				Action:     action,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("decode response: %w", err),
			}
		}
		if out == nil {
			out = map[string]any{}
		}
	}
	if err := b.validator.Validate("response "+id+"."+action, call.schema.Output, out); err != nil {
		return nil, err
	}
	return out, nil
}

// actionSchema loads the action's schemas only when a real validator is set.
func (b *Bus) actionSchema(ctx context.Context, id, version, action string) (schema.ActionSchema, error) {
	if _, nop := b.validator.(schema.NopValidator); nop {
		return schema.ActionSchema{}, nil
	}
	doc, err := b.resolver.LoadSchema(ctx, id, version)
	if err != nil {
		return schema.ActionSchema{}, err
	}
	as, _ := doc.Action(action)
	return as, nil
}

// CallRequest is one element of a batch.
type CallRequest struct {
	CellID  string         `json:"cell_id"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// BatchCall runs calls concurrently. The result has one element per call in
// the same order; a failed call yields {"error": message}. It never fails as
// a whole.
func (b *Bus) BatchCall(ctx context.Context, calls []CallRequest) []map[string]any {
	results := make([]map[string]any, len(calls))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, c := range calls {
		g.Go(func() error {
			out, err := b.Call(ctx, c.CellID, c.Action, c.Payload)
			if err != nil {
				results[i] = map[string]any{"error": err.Error()}
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HealthCheck probes the cell's health endpoint. Any failure, including an
// unresolvable cell, reports false.
func (b *Bus) HealthCheck(ctx context.Context, id string) bool {
	res, err := b.resolver.ResolveCell(ctx, id, b.channel)
	if err != nil || res.Locations.Server == "" {
		return false
	}
	if err := b.transport.Probe(ctx, res.Locations.Server); err != nil {
		b.logger.Debug("Health probe failed", "cell", id, "error", err)
		return false
	}
	return true
}

// BreakerState returns the breaker snapshot of id, if a call was ever made.
func (b *Bus) BreakerState(id string) (breaker.Snapshot, bool) {
	b.mu.Lock()
	cb, ok := b.breakers[id]
	b.mu.Unlock()
	if !ok {
		return breaker.Snapshot{}, false
	}
	return cb.Snapshot(), true
}

// BreakerStatus pairs a cell id with its breaker snapshot.
type BreakerStatus struct {
	CellID string `json:"cell_id"`
	breaker.Snapshot
}

// Breakers lists every breaker ordered by cell id.
func (b *Bus) Breakers() []BreakerStatus {
	b.mu.Lock()
	out := make([]BreakerStatus, 0, len(b.breakers))
	for id, cb := range b.breakers {
		out = append(out, BreakerStatus{CellID: id, Snapshot: cb.Snapshot()})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out
}

// ResetBreaker closes the breaker of id.
func (b *Bus) ResetBreaker(id string) bool {
	b.mu.Lock()
	cb, ok := b.breakers[id]
	b.mu.Unlock()
	if ok {
		cb.Reset()
	}
	return ok
}

func (b *Bus) breaker(id string) *breaker.Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[id]; ok {
		return cb
	}
	cb := breaker.New(id, b.settings,
		breaker.WithClock(b.now),
		breaker.WithStateChange(b.onStateChange),
	)
	b.breakers[id] = cb
	if b.metrics != nil {
		b.metrics.SetBreakerState(id, metric.BreakerClosed)
	}
	return cb
}

func (b *Bus) onStateChange(id string, from, to breaker.State) {
	b.logger.Info("Breaker state changed", "cell", id, "from", from.String(), "to", to.String())
	if b.metrics == nil {
		return
	}
	switch to {
	case breaker.Open:
		b.metrics.SetBreakerState(id, metric.BreakerOpen)
	case breaker.HalfOpen:
		b.metrics.SetBreakerState(id, metric.BreakerHalfOpen)
	default:
		b.metrics.SetBreakerState(id, metric.BreakerClosed)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
