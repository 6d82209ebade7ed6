package cache

import (
	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

// Cache is a thread-safe string-keyed cache.
type Cache[V any] interface {
	// Get returns the value and true when key is present and unexpired.
	Get(key string) (V, bool)

	// Set stores value under key. It reports whether a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes key. It reports whether the key existed.
	Delete(key string) (bool, error)

	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(prefix string) int

	// Clear removes all entries.
	Clear() error

	Size() int
	Keys() []string
	Stats() *Statistics

	// Close stops background cleanup.
	Close() error
}

// EvictCallback is called with the key and value of a removed entry.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
