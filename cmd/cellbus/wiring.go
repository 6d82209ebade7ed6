package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/handylife-debug/webwaka-main-sub008/breaker"
	"github.com/handylife-debug/webwaka-main-sub008/composition"
	"github.com/handylife-debug/webwaka-main-sub008/config"
	"github.com/handylife-debug/webwaka-main-sub008/dispatch"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/natsclient"
	"github.com/handylife-debug/webwaka-main-sub008/registry"
	"github.com/handylife-debug/webwaka-main-sub008/schema"
	"github.com/handylife-debug/webwaka-main-sub008/service"
	"github.com/handylife-debug/webwaka-main-sub008/storage"
	"github.com/handylife-debug/webwaka-main-sub008/storage/kvstore"
	"github.com/handylife-debug/webwaka-main-sub008/storage/memstore"
	"github.com/handylife-debug/webwaka-main-sub008/storage/objectstore"
	"github.com/handylife-debug/webwaka-main-sub008/tissuestore"
)

// app holds every long-lived component of the server.
type app struct {
	metrics  *metric.MetricsRegistry
	nats     *natsclient.Client
	registry *registry.Registry
	bus      *dispatch.Bus
	orch     *composition.Orchestrator
	server   *service.Server
}

// stores are the three storage roles of the server.
type stores struct {
	entries   storage.Store
	artifacts storage.Store
	tissues   storage.Store
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{metrics: metric.NewMetricsRegistry()}
	core := a.metrics.CoreMetrics()

	if cfg.NATS.Enabled() {
		client, err := connectNATS(ctx, cfg.NATS, logger, core)
		if err != nil {
			return nil, err
		}
		a.nats = client
	}

	st, err := openStores(ctx, cfg, a.nats, a.metrics, logger)
	if err != nil {
		a.close(logger)
		return nil, err
	}

	regOpts := []registry.Option{
		registry.WithCacheTTL(cfg.Registry.CacheTTL.D()),
		registry.WithMetrics(core),
		registry.WithMetricsRegistry(a.metrics),
		registry.WithLogger(logger),
	}
	if cfg.Registry.SigningEnabled {
		regOpts = append(regOpts, registry.WithSigningKey([]byte(cfg.Registry.SigningKey)))
	}
	if cfg.Registry.EndpointBaseURL != "" {
		regOpts = append(regOpts, registry.WithEndpointBaseURL(cfg.Registry.EndpointBaseURL))
	}
	if a.registry, err = registry.New(st.entries, st.artifacts, regOpts...); err != nil {
		a.close(logger)
		return nil, fmt.Errorf("create registry: %w", err)
	}

	httpTransport := dispatch.NewHTTPTransport(nil, cfg.Dispatch.HTTPTimeout.D())
	transport := dispatch.NewSchemeTransport().
		Register("http", httpTransport).
		Register("https", httpTransport)
	if a.nats != nil {
		transport.Register("nats", dispatch.NewNATSTransport(a.nats))
	}

	busOpts := []dispatch.Option{
		dispatch.WithBreakerSettings(breaker.Settings{
			FailureThreshold: cfg.Dispatch.Breaker.FailureThreshold,
			CallTimeout:      cfg.Dispatch.Breaker.CallTimeout.D(),
			ResetTimeout:     cfg.Dispatch.Breaker.ResetTimeout.D(),
		}),
		dispatch.WithDefaultChannel(cfg.Dispatch.DefaultChannel),
		dispatch.WithBatchConcurrency(cfg.Dispatch.BatchConcurrency),
		dispatch.WithMetrics(core),
		dispatch.WithLogger(logger),
	}
	if cfg.Dispatch.ValidateSchemas {
		busOpts = append(busOpts, dispatch.WithValidator(schema.NewJSONSchemaValidator()))
	}
	if a.bus, err = dispatch.NewBus(a.registry, transport, busOpts...); err != nil {
		a.close(logger)
		return nil, fmt.Errorf("create dispatch bus: %w", err)
	}

	tissues, err := tissuestore.New(st.tissues)
	if err != nil {
		a.close(logger)
		return nil, fmt.Errorf("create tissue store: %w", err)
	}
	a.orch = composition.New(a.bus,
		composition.WithStore(tissues),
		composition.WithHistorySize(cfg.Composition.HistorySize),
		composition.WithHealthWindow(cfg.Composition.HealthWindow),
		composition.WithMetrics(core),
		composition.WithLogger(logger),
	)
	if _, err := a.orch.LoadTissues(ctx); err != nil {
		a.close(logger)
		return nil, fmt.Errorf("load tissues: %w", err)
	}

	srvOpts := []service.Option{
		service.WithMetricsRegistry(a.metrics),
		service.WithVersion(Version),
		service.WithLogger(logger),
	}
	if cfg.Server.RateLimit > 0 {
		srvOpts = append(srvOpts, service.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	if a.nats != nil {
		srvOpts = append(srvOpts, service.WithHealthCheck("nats", a.nats.Health))
	}
	if a.server, err = service.New(a.registry, a.bus, a.orch, srvOpts...); err != nil {
		a.close(logger)
		return nil, fmt.Errorf("create HTTP server: %w", err)
	}
	return a, nil
}

func connectNATS(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger, core *metric.Metrics) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait.D()),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(core),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	logger.Info("Connecting to NATS", "urls", cfg.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}

// openStores picks the backends for the registry and the tissue store. With
// memory storage everything shares one map.
func openStores(ctx context.Context, cfg *config.Config, client *natsclient.Client,
	reg *metric.MetricsRegistry, logger *slog.Logger) (stores, error) {

	if cfg.Registry.Storage == config.StorageMemory {
		mem := memstore.New()
		logger.Warn("Using in-memory storage, state is lost on restart")
		return stores{entries: mem, artifacts: mem, tissues: mem}, nil
	}

	entries, err := kvstore.New(ctx, client, kvstore.Config{
		Bucket:      cfg.Registry.EntryBucket,
		Description: "cellbus registry entries",
		History:     5,
		Registry:    reg,
	})
	if err != nil {
		return stores{}, fmt.Errorf("open entry bucket: %w", err)
	}
	artifacts, err := objectstore.NewStoreWithConfig(ctx, client, objectstore.Config{
		BucketName:  cfg.Registry.ArtifactBucket,
		Description: "cellbus cell artifacts",
		Registry:    reg,
		Logger:      logger,
	})
	if err != nil {
		return stores{}, fmt.Errorf("open artifact bucket: %w", err)
	}
	tissues, err := kvstore.New(ctx, client, kvstore.Config{
		Bucket:      cfg.Composition.TissueBucket,
		Description: "cellbus tissue definitions",
		History:     5,
		Registry:    reg,
	})
	if err != nil {
		return stores{}, fmt.Errorf("open tissue bucket: %w", err)
	}
	return stores{entries: entries, artifacts: artifacts, tissues: tissues}, nil
}

func (a *app) close(logger *slog.Logger) {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			logger.Warn("Registry close failed", "error", err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(context.Background()); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}
}
