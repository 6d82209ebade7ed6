// Package kvstore implements storage.Store on a NATS JetStream KV bucket.
package kvstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/natsclient"
	"github.com/handylife-debug/webwaka-main-sub008/storage"
)

// Config selects the bucket.
type Config struct {
	Bucket      string
	Description string
	History     uint8 // revisions kept per key, default 1
	Registry    metric.MetricsRegistrar
}

// Store is a KV-backed storage.Store with CAS updates.
type Store struct {
	kv      *natsclient.KVStore
	metrics *storage.Metrics
}

var (
	_ storage.Store   = (*Store)(nil)
	_ storage.Updater = (*Store)(nil)
)

// New opens or creates the bucket through client.
func New(ctx context.Context, client *natsclient.Client, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.WrapInvalid(nil, "kvstore", "New", "bucket name required")
	}
	history := cfg.History
	if history == 0 {
		history = 1
	}
	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: cfg.Description,
		History:     history,
	})
	if err != nil {
		return nil, errors.StorageUnavailable(err, "kvstore", "New", "open bucket "+cfg.Bucket)
	}
	return NewFromKV(client.NewKVStore(bucket), cfg.Registry)
}

// NewFromKV wraps an existing KVStore.
func NewFromKV(kv *natsclient.KVStore, registry metric.MetricsRegistrar) (*Store, error) {
	m, err := storage.NewMetrics(registry, "kv", kv.Bucket())
	if err != nil {
		return nil, err
	}
	return &Store{kv: kv, metrics: m}, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("put", start, err) }()

	if _, err = s.kv.Put(ctx, key, data); err != nil {
		return errors.StorageUnavailable(err, "kvstore", "Put", "put "+key)
	}
	return nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("get", start, err) }()

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, errors.StorageUnavailable(err, "kvstore", "Get", "get "+key)
	}
	return entry.Value, nil
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context, prefix string) (keys []string, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("list", start, err) }()

	all, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "kvstore", "List", "list "+prefix)
	}
	return storage.FilterPrefix(all, prefix), nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("delete", start, err) }()

	if err = s.kv.Delete(ctx, key); err != nil && !natsclient.IsKVNotFoundError(err) {
		return errors.StorageUnavailable(err, "kvstore", "Delete", "delete "+key)
	}
	return nil
}

// Update applies fn with optimistic concurrency, retrying when another
// writer changes the key in between.
func (s *Store) Update(ctx context.Context, key string, fn storage.UpdateFunc) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("update", start, err) }()

	var fnErr error
	err = s.kv.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		next, err := fn(current)
		if err != nil {
			fnErr = err
		}
		return next, err
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil && stderrors.Is(err, fnErr):
		return err
	default:
		return errors.StorageUnavailable(err, "kvstore", "Update", "update "+key)
	}
}
