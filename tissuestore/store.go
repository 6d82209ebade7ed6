package tissuestore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/handylife-debug/webwaka-main-sub008/composition"
	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/storage"
)

const keyPrefix = "tissues/"

// Store persists tissue definitions under tissues/{id}.
type Store struct {
	backend storage.Store
	now     func() time.Time

	// mu serializes Save on backends without storage.Updater.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over backend.
func New(backend storage.Store, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.WrapInvalid(nil, "tissuestore", "New", "backend cannot be nil")
	}
	s := &Store{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func key(id string) string { return keyPrefix + id }

// Save writes t, bumping its revision and stamping UpdatedAt. The stored
// revision wins over the one carried by t.
func (s *Store) Save(ctx context.Context, t *composition.Tissue) error {
	if t == nil {
		return errors.WrapInvalid(nil, "tissuestore", "Save", "tissue cannot be nil")
	}
	if t.ID == "" {
		return errors.WrapInvalid(nil, "tissuestore", "Save", "tissue ID cannot be empty")
	}

	apply := func(raw []byte) ([]byte, error) {
		var rev uint64
		if raw != nil {
			var cur composition.Tissue
			if err := json.Unmarshal(raw, &cur); err != nil {
				return nil, stderrors.Join(errors.ErrDataCorrupted,
					errors.WrapFatal(err, "tissuestore", "Save", "decode tissue "+t.ID))
			}
			rev = cur.Revision
		}
		t.Revision = rev + 1
		t.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(t)
		if err != nil {
			return nil, errors.WrapFatal(err, "tissuestore", "Save", "encode tissue "+t.ID)
		}
		return data, nil
	}

	if u, ok := s.backend.(storage.Updater); ok {
		if err := u.Update(ctx, key(t.ID), apply); err != nil {
			return backendErr(err, "Save", "update tissue "+t.ID)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.backend.Get(ctx, key(t.ID))
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return backendErr(err, "Save", "load tissue "+t.ID)
	}
	data, err := apply(raw)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key(t.ID), data); err != nil {
		return backendErr(err, "Save", "write tissue "+t.ID)
	}
	return nil
}

// Get loads one tissue.
func (s *Store) Get(ctx context.Context, id string) (*composition.Tissue, error) {
	raw, err := s.backend.Get(ctx, key(id))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFound(errors.KindTissue, id)
		}
		return nil, backendErr(err, "Get", "load tissue "+id)
	}
	var t composition.Tissue
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, stderrors.Join(errors.ErrDataCorrupted,
			errors.WrapFatal(err, "tissuestore", "Get", "decode tissue "+id))
	}
	return &t, nil
}

// List loads every stored tissue ordered by id. Keys removed between the
// listing and the read are skipped.
func (s *Store) List(ctx context.Context) ([]*composition.Tissue, error) {
	keys, err := s.backend.List(ctx, keyPrefix)
	if err != nil {
		return nil, backendErr(err, "List", "list tissues")
	}
	out := make([]*composition.Tissue, 0, len(keys))
	for _, k := range keys {
		t, err := s.Get(ctx, strings.TrimPrefix(k, keyPrefix))
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a tissue.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, key(id)); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NewNotFound(errors.KindTissue, id)
		}
		return backendErr(err, "Delete", "delete tissue "+id)
	}
	return nil
}

func backendErr(err error, method, action string) error {
	var ce *errors.ClassifiedError
	switch {
	case errors.IsNotFound(err),
		errors.IsStorageUnavailable(err),
		stderrors.As(err, &ce),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return err
	}
	return errors.StorageUnavailable(err, "tissuestore", method, action)
}

var _ composition.Store = (*Store)(nil)
