// Package objectstore implements storage.Store on a NATS JetStream Object
// Store bucket. It holds published artifact bundles, which can exceed the
// KV value limit.
package objectstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/natsclient"
	"github.com/handylife-debug/webwaka-main-sub008/storage"
)

// Config holds the object store settings.
type Config struct {
	BucketName  string
	Description string
	Registry    metric.MetricsRegistrar
	Logger      *slog.Logger
}

// Store wraps a jetstream.ObjectStore.
type Store struct {
	bucket  string
	os      jetstream.ObjectStore
	metrics *storage.Metrics
	logger  *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStoreWithConfig opens or creates the bucket.
func NewStoreWithConfig(ctx context.Context, client *natsclient.Client, cfg Config) (*Store, error) {
	if cfg.BucketName == "" {
		return nil, errors.WrapInvalid(nil, "objectstore", "NewStoreWithConfig", "bucket name required")
	}
	os, err := client.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      cfg.BucketName,
		Description: cfg.Description,
	})
	if err != nil {
		return nil, errors.StorageUnavailable(err, "objectstore", "NewStoreWithConfig", "open bucket "+cfg.BucketName)
	}
	return New(os, cfg)
}

// New wraps an already opened object store.
func New(os jetstream.ObjectStore, cfg Config) (*Store, error) {
	m, err := storage.NewMetrics(cfg.Registry, "object", cfg.BucketName)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		bucket:  cfg.BucketName,
		os:      os,
		metrics: m,
		logger:  logger.With("component", "objectstore", "bucket", cfg.BucketName),
	}, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("put", start, err) }()

	info, err := s.os.PutBytes(ctx, key, data)
	if err != nil {
		return errors.StorageUnavailable(err, "objectstore", "Put", "put "+key)
	}
	s.logger.Debug("Stored object", "key", key, "size", info.Size)
	return nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("get", start, err) }()

	data, err = s.os.GetBytes(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, errors.StorageUnavailable(err, "objectstore", "Get", "get "+key)
	}
	return data, nil
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context, prefix string) (keys []string, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("list", start, err) }()

	infos, err := s.os.List(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
			return []string{}, nil
		}
		return nil, errors.StorageUnavailable(err, "objectstore", "List", "list "+prefix)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.Deleted {
			names = append(names, info.Name)
		}
	}
	return storage.FilterPrefix(names, prefix), nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("delete", start, err) }()

	if err = s.os.Delete(ctx, key); err != nil && !stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return errors.StorageUnavailable(err, "objectstore", "Delete", "delete "+key)
	}
	return nil
}
