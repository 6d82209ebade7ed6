package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/pkg/cache"
	"github.com/handylife-debug/webwaka-main-sub008/pkg/worker"
	"github.com/handylife-debug/webwaka-main-sub008/schema"
	"github.com/handylife-debug/webwaka-main-sub008/storage"
)

const writeBackTimeout = 5 * time.Second

// Registry publishes and resolves cells. Safe for concurrent use.
type Registry struct {
	entries   storage.Store
	artifacts storage.Store

	resolutions *cache.TTL[*Resolution]
	schemas     *cache.TTL[*schema.Document]
	writeback   *worker.Pool[accessRecord]

	// generation guards the cache against a resolve that loaded an entry
	// before a concurrent channel update invalidated it.
	genMu       sync.Mutex
	generations map[string]uint64

	// mu serializes read-modify-write cycles on stores without Updater.
	mu sync.Mutex

	signer       *Signer
	endpointBase string
	cacheTTL     time.Duration
	wbWorkers    int
	wbQueue      int
	metrics      *metric.Metrics
	registrar    metric.MetricsRegistrar
	logger       *slog.Logger
	now          func() time.Time
	newUploadID  func() string

	cancel    context.CancelFunc
	closeOnce sync.Once
}

type accessRecord struct {
	id string
	at time.Time
}

// New creates a registry over entries and artifacts. A nil artifacts store
// keeps artifacts next to the entries.
func New(entries, artifacts storage.Store, opts ...Option) (*Registry, error) {
	if entries == nil {
		return nil, errors.WrapInvalid(nil, "Registry", "New", "entry store required")
	}
	if artifacts == nil {
		artifacts = entries
	}

	r := &Registry{
		entries:     entries,
		artifacts:   artifacts,
		generations: make(map[string]uint64),
		cacheTTL:    5 * time.Minute,
		wbWorkers:   2,
		wbQueue:     1024,
		logger:      slog.Default(),
		now:         time.Now,
		newUploadID: uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, errors.WrapInvalid(err, "Registry", "New", "apply option")
		}
	}
	r.logger = r.logger.With("component", "registry")

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	resOpts := []cache.Option[*Resolution]{cache.WithClock[*Resolution](r.now)}
	schemaOpts := []cache.Option[*schema.Document]{cache.WithClock[*schema.Document](r.now)}
	poolOpts := []worker.Option[accessRecord]{}
	if r.registrar != nil {
		resOpts = append(resOpts, cache.WithMetrics[*Resolution](r.registrar, "registry_resolutions"))
		schemaOpts = append(schemaOpts, cache.WithMetrics[*schema.Document](r.registrar, "registry_schemas"))
		poolOpts = append(poolOpts, worker.WithMetrics[accessRecord](r.registrar, "registry_writeback"))
	}

	var err error
	if r.resolutions, err = cache.NewTTL(ctx, r.cacheTTL, resOpts...); err != nil {
		cancel()
		return nil, err
	}
	if r.schemas, err = cache.NewTTL(ctx, r.cacheTTL, schemaOpts...); err != nil {
		cancel()
		return nil, err
	}
	if r.writeback, err = worker.NewPool(r.wbWorkers, r.wbQueue, r.applyAccess, poolOpts...); err != nil {
		cancel()
		return nil, err
	}
	if err := r.writeback.Start(ctx); err != nil {
		cancel()
		return nil, err
	}
	return r, nil
}

// Close flushes pending metadata write-backs and stops background work.
func (r *Registry) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if stopErr := r.writeback.Stop(10 * time.Second); stopErr != nil {
			err = errors.Wrap(stopErr, "Registry", "Close", "flush write-backs")
		}
		r.cancel()
		_ = r.resolutions.Close()
		_ = r.schemas.Close()
	})
	return err
}

// RegisterCell publishes a manifest version with its artifacts. The first
// publish creates one channel per declared name at the manifest version
// ("stable" pinned, others auto-advancing). Later publishes move the
// auto-advancing channels, keep pinned ones, and add newly declared channels.
// Publishing an existing version is rejected.
func (r *Registry) RegisterCell(ctx context.Context, m Manifest, a Artifacts) (*Entry, error) {
	if err := ValidateManifest(m); err != nil {
		return nil, err
	}
	if err := validateEndpoint(a.Endpoint); err != nil {
		return nil, err
	}
	if len(a.Schema) > 0 {
		if _, err := schema.Parse(a.Schema); err != nil {
			return nil, &errors.ValidationError{Subject: "artifacts", Field: "schema", Reason: "invalid schema document", Err: err}
		}
	}

	existing, err := r.load(ctx, m.ID)
	switch {
	case err == nil:
		if existing.HasVersion(m.Version) {
			return nil, versionExists(m)
		}
	case errors.IsNotFound(err):
	default:
		return nil, err
	}

	loc, err := r.storeArtifacts(ctx, m, a)
	if err != nil {
		r.discardArtifacts(loc)
		return nil, err
	}

	if r.signer != nil {
		sig, err := r.signer.Sign(m)
		if err != nil {
			r.discardArtifacts(loc)
			return nil, err
		}
		m.Signature = sig
	}

	now := r.now()
	var moved []string
	entry, err := r.update(ctx, m.ID, func(cur *Entry) (*Entry, error) {
		moved = moved[:0]
		e := cur
		if e == nil {
			e = &Entry{
				Channels:  make(map[string]Channel, len(m.Channels)),
				Artifacts: make(map[string]Locations, 1),
				Metadata:  Metadata{Health: HealthHealthy, PublishedAt: now},
			}
		} else if e.HasVersion(m.Version) {
			return nil, versionExists(m)
		}

		e.Manifest = m
		for name, ch := range e.Channels {
			if ch.AutoAdvance {
				ch.Version = m.Version
				ch.UpdatedAt = now
				e.Channels[name] = ch
				moved = append(moved, name)
			}
		}
		for _, name := range m.Channels {
			if _, ok := e.Channels[name]; !ok {
				e.Channels[name] = Channel{
					Name:        name,
					Version:     m.Version,
					AutoAdvance: name != StableChannel,
					UpdatedAt:   now,
				}
				moved = append(moved, name)
			}
		}
		e.Artifacts[m.Version] = loc
		e.Metadata.Versions = append(e.Metadata.Versions, m.Version)
		e.Metadata.UpdatedAt = now
		return e, nil
	})
	if err != nil {
		r.discardArtifacts(loc)
		return nil, err
	}

	r.invalidate(m.ID)
	if r.metrics != nil {
		r.metrics.RegistryPublishes.WithLabelValues(m.Sector).Inc()
		for _, name := range moved {
			r.metrics.ChannelUpdates.WithLabelValues(name).Inc()
		}
	}
	r.logger.Info("Published cell", "cell", m.ID, "version", m.Version, "channels", moved)
	return entry.Clone(), nil
}

func versionExists(m Manifest) error {
	return errors.NewValidationError("manifest", "version", "version "+m.Version+" of "+m.ID+" is already published")
}

// storeArtifacts writes the artifacts under a prefix unique to this publish
// attempt, so a publish that loses the race for its version cannot overwrite
// the winner's artifacts.
func (r *Registry) storeArtifacts(ctx context.Context, m Manifest, a Artifacts) (Locations, error) {
	loc := Locations{Server: a.Endpoint, Actions: slices.Clone(m.Actions)}
	if loc.Server == "" && r.endpointBase != "" {
		loc.Server = strings.TrimRight(r.endpointBase, "/") + "/" + m.Sector + "/" + m.Name + "/" + m.Version
	}

	upload := r.newUploadID()
	put := func(kind string, data []byte) (string, error) {
		if len(data) == 0 {
			return "", nil
		}
		key := artifactKey(m, upload, kind)
		if err := r.artifacts.Put(ctx, key, data); err != nil {
			return "", storageErr(err, "RegisterCell", "store "+kind+" artifact")
		}
		return key, nil
	}

	var err error
	if loc.ServerBundle, err = put(kindServer, a.ServerBundle); err != nil {
		return loc, err
	}
	if loc.ClientBundle, err = put(kindClient, a.ClientBundle); err != nil {
		return loc, err
	}
	if loc.Schema, err = put(kindSchema, a.Schema); err != nil {
		return loc, err
	}
	return loc, nil
}

// discardArtifacts removes the artifacts of a publish that did not commit.
func (r *Registry) discardArtifacts(loc Locations) {
	ctx, cancel := context.WithTimeout(context.Background(), writeBackTimeout)
	defer cancel()
	for _, key := range []string{loc.ServerBundle, loc.ClientBundle, loc.Schema} {
		if key == "" {
			continue
		}
		if err := r.artifacts.Delete(ctx, key); err != nil {
			r.logger.Warn("Orphaned artifact", "key", key, "error", err)
		}
	}
}

// ResolveCell returns the version id serves on channel ("" means stable).
// Cache misses load the entry, count the access and write the access
// metadata back asynchronously.
func (r *Registry) ResolveCell(ctx context.Context, id, channel string) (*Resolution, error) {
	if channel == "" {
		channel = StableChannel
	}
	key := cacheKey(id, channel)
	if res, ok := r.resolutions.Get(key); ok {
		r.recordResolve(channel, "cache")
		return res, nil
	}

	gen := r.generation(id)
	e, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ch, ok := e.Channels[channel]
	if !ok {
		return nil, errors.NewNotFound(errors.KindChannel, id+"@"+channel)
	}

	now := r.now()
	e.Metadata.Downloads++
	e.Metadata.LastAccessed = now
	res := &Resolution{
		Entry:     e,
		Channel:   channel,
		Version:   ch.Version,
		Locations: e.Artifacts[ch.Version],
	}
	r.cacheIfCurrent(id, gen, key, res)

	if err := r.writeback.Submit(accessRecord{id: id, at: now}); err != nil {
		r.logger.Warn("Dropped metadata write-back", "cell", id, "error", err)
	}
	r.recordResolve(channel, "store")
	return res, nil
}

func (r *Registry) recordResolve(channel, source string) {
	if r.metrics != nil {
		r.metrics.RegistryResolves.WithLabelValues(channel, source).Inc()
	}
}

// UpdateChannel points channel at version, which must already be published.
// Every cached resolution of id is dropped.
func (r *Registry) UpdateChannel(ctx context.Context, id, channel, version string) (*Entry, error) {
	return r.moveChannel(ctx, "UpdateChannel", id, channel, func(*Entry) (string, error) {
		return version, nil
	})
}

// Promote points channel to at the version channel from currently serves.
func (r *Registry) Promote(ctx context.Context, id, from, to string) (*Entry, error) {
	return r.moveChannel(ctx, "Promote", id, to, func(e *Entry) (string, error) {
		src, ok := e.Channels[from]
		if !ok {
			return "", errors.NewNotFound(errors.KindChannel, id+"@"+from)
		}
		return src.Version, nil
	})
}

func (r *Registry) moveChannel(ctx context.Context, method, id, channel string, target func(*Entry) (string, error)) (*Entry, error) {
	if channel == "" {
		return nil, errors.NewValidationError("channel", "name", "required")
	}
	now := r.now()
	var from, to string
	entry, err := r.update(ctx, id, func(cur *Entry) (*Entry, error) {
		if cur == nil {
			return nil, errors.NewNotFound(errors.KindCell, id)
		}
		ch, ok := cur.Channels[channel]
		if !ok {
			return nil, errors.NewNotFound(errors.KindChannel, id+"@"+channel)
		}
		version, err := target(cur)
		if err != nil {
			return nil, err
		}
		if !cur.HasVersion(version) {
			return nil, errors.NewValidationError("channel", "version", "version "+version+" of "+id+" is not published")
		}
		from, to = ch.Version, version
		ch.Version = version
		ch.UpdatedAt = now
		cur.Channels[channel] = ch
		cur.Metadata.UpdatedAt = now
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	r.invalidate(id)
	if r.metrics != nil {
		r.metrics.ChannelUpdates.WithLabelValues(channel).Inc()
	}
	r.logger.Info("Channel moved", "method", method, "cell", id, "channel", channel, "from", from, "to", to)
	return entry.Clone(), nil
}

// ListCellsBySector returns the entries of sector ordered by id. An empty
// sector lists every cell.
func (r *Registry) ListCellsBySector(ctx context.Context, sector string) ([]*Entry, error) {
	prefix := entryPrefix + "/"
	if sector != "" {
		prefix += sector + "/"
	}
	keys, err := r.entries.List(ctx, prefix)
	if err != nil {
		return nil, storageErr(err, "ListCellsBySector", "list entries")
	}

	out := make([]*Entry, 0, len(keys))
	for _, key := range keys {
		e, err := r.load(ctx, strings.TrimPrefix(key, entryPrefix+"/"))
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.ID < out[j].Manifest.ID })
	return out, nil
}

// GetCellStats summarizes one cell.
func (r *Registry) GetCellStats(ctx context.Context, id string) (*CellStats, error) {
	e, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return statsOf(e), nil
}

// GetEntry returns the stored entry of id.
func (r *Registry) GetEntry(ctx context.Context, id string) (*Entry, error) {
	return r.load(ctx, id)
}

// LoadSchema returns the parsed schema artifact of id at version. A version
// published without a schema yields an empty document.
func (r *Registry) LoadSchema(ctx context.Context, id, version string) (*schema.Document, error) {
	key := id + "@" + version
	if doc, ok := r.schemas.Get(key); ok {
		return doc, nil
	}

	e, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	loc, ok := e.Artifacts[version]
	if !ok {
		return nil, errors.NewNotFound(errors.KindCell, key)
	}

	var raw []byte
	if loc.Schema != "" {
		raw, err = r.artifacts.Get(ctx, loc.Schema)
		if err != nil {
			return nil, storageErr(err, "LoadSchema", "load schema artifact")
		}
	}
	doc, err := schema.Parse(raw)
	if err != nil {
		return nil, err
	}
	_, _ = r.schemas.Set(key, doc)
	return doc, nil
}

// LoadArtifact returns a stored artifact by location key.
func (r *Registry) LoadArtifact(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, artifactPrefix+"/") {
		return nil, errors.NewNotFound("artifact", location)
	}
	data, err := r.artifacts.Get(ctx, location)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFound("artifact", location)
		}
		return nil, storageErr(err, "LoadArtifact", "load artifact")
	}
	return data, nil
}

// MarkHealth records a probe outcome for id.
func (r *Registry) MarkHealth(ctx context.Context, id string, h Health) error {
	if !h.Valid() {
		return errors.NewValidationError("health", "status", "unknown health "+string(h))
	}
	_, err := r.update(ctx, id, func(cur *Entry) (*Entry, error) {
		if cur == nil {
			return nil, errors.NewNotFound(errors.KindCell, id)
		}
		cur.Metadata.Health = h
		return cur, nil
	})
	if err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}

// VerifyManifest checks m.Signature against the signing key.
func (r *Registry) VerifyManifest(m Manifest) error {
	if r.signer == nil {
		return errors.WrapInvalid(nil, "Registry", "VerifyManifest", "signing is disabled")
	}
	if !r.signer.Verify(m) {
		return errors.NewValidationError("manifest", "signature", "signature does not match")
	}
	return nil
}

// Stats reports cache and write-back activity.
func (r *Registry) Stats() Stats {
	return Stats{
		CachedResolutions: r.resolutions.Size(),
		CacheHitRatio:     r.resolutions.Stats().HitRatio(),
		WriteBack:         r.writeback.Stats(),
	}
}

// Stats is returned by Registry.Stats.
type Stats struct {
	CachedResolutions int              `json:"cached_resolutions"`
	CacheHitRatio     float64          `json:"cache_hit_ratio"`
	WriteBack         worker.PoolStats `json:"write_back"`
}

func (r *Registry) generation(id string) uint64 {
	r.genMu.Lock()
	defer r.genMu.Unlock()
	return r.generations[id]
}

func (r *Registry) cacheIfCurrent(id string, gen uint64, key string, res *Resolution) {
	r.genMu.Lock()
	defer r.genMu.Unlock()
	if r.generations[id] != gen {
		return
	}
	if _, err := r.resolutions.Set(key, res); err != nil {
		r.logger.Debug("Resolution not cached", "key", key, "error", err)
	}
}

func (r *Registry) invalidate(id string) {
	r.genMu.Lock()
	defer r.genMu.Unlock()
	r.generations[id]++
	r.resolutions.DeletePrefix(id + ":")
}

func (r *Registry) load(ctx context.Context, id string) (*Entry, error) {
	if _, _, ok := SplitID(id); !ok {
		return nil, errors.NewNotFound(errors.KindCell, id)
	}
	raw, err := r.entries.Get(ctx, entryKey(id))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFound(errors.KindCell, id)
		}
		return nil, storageErr(err, "load", "load entry "+id)
	}
	return decodeEntry(id, raw)
}

func decodeEntry(id string, raw []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errors.WrapFatal(stderrors.Join(errors.ErrDataCorrupted, err), "Registry", "load", "decode entry "+id)
	}
	if e.Channels == nil {
		e.Channels = map[string]Channel{}
	}
	if e.Artifacts == nil {
		e.Artifacts = map[string]Locations{}
	}
	return &e, nil
}

// update applies fn to the stored entry of id (nil when absent) and writes
// the result back atomically with respect to other updates.
func (r *Registry) update(ctx context.Context, id string, fn func(cur *Entry) (*Entry, error)) (*Entry, error) {
	key := entryKey(id)
	var out *Entry
	apply := func(raw []byte) ([]byte, error) {
		var cur *Entry
		if raw != nil {
			var err error
			if cur, err = decodeEntry(id, raw); err != nil {
				return nil, err
			}
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return nil, errors.WrapFatal(err, "Registry", "update", "encode entry "+id)
		}
		out = next
		return data, nil
	}

	if u, ok := r.entries.(storage.Updater); ok {
		if err := u.Update(ctx, key, apply); err != nil {
			return nil, storageErr(err, "update", "update entry "+id)
		}
		return out, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	raw, err := r.entries.Get(ctx, key)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return nil, storageErr(err, "update", "load entry "+id)
	}
	data, err := apply(raw)
	if err != nil {
		return nil, err
	}
	if err := r.entries.Put(ctx, key, data); err != nil {
		return nil, storageErr(err, "update", "write entry "+id)
	}
	return out, nil
}

func (r *Registry) applyAccess(ctx context.Context, rec accessRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeBackTimeout)
	defer cancel()

	_, err := r.update(ctx, rec.id, func(cur *Entry) (*Entry, error) {
		if cur == nil {
			return nil, errors.NewNotFound(errors.KindCell, rec.id)
		}
		cur.Metadata.Downloads++
		if rec.at.After(cur.Metadata.LastAccessed) {
			cur.Metadata.LastAccessed = rec.at
		}
		return cur, nil
	})
	if err != nil {
		r.logger.Warn("Metadata write-back failed", "cell", rec.id, "error", err)
	}
	return err
}

// storageErr keeps domain and classified errors as they are and marks
// anything else from a backend as StorageUnavailable.
func storageErr(err error, method, action string) error {
	var (
		ve *errors.ValidationError
		ce *errors.ClassifiedError
	)
	switch {
	case errors.IsNotFound(err),
		errors.IsStorageUnavailable(err),
		stderrors.As(err, &ve),
		stderrors.As(err, &ce),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return err
	}
	return errors.StorageUnavailable(err, "Registry", method, action)
}
