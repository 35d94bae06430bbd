// Package kv provides the local key-value store the flat-document backend
// persists into, together with a hub that lets several handles share one
// store and observe each other's writes.
package kv

import "errors"

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned by Set when the store is out of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is a flat string-keyed byte store.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
	// Keys lists every key in the store in ascending order.
	Keys() ([]string, error)
}
