package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist. Backend
// failures are never reported as ErrNotFound.
var ErrNotFound = errors.New("storage: key not found")

// Store is an opaque key-value backend. Keys are "/" separated paths.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes data at key, replacing any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the value at key or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys starting with prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// UpdateFunc maps the current value (nil when absent) to the new value.
type UpdateFunc func(current []byte) ([]byte, error)

// Updater is implemented by stores that can apply a read-modify-write
// atomically with respect to other Update calls on the same key.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Closer is implemented by stores holding resources.
type Closer interface {
	Close() error
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and writes it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// Join builds a key from path segments.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// FilterPrefix returns the sorted keys starting with prefix.
func FilterPrefix(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
