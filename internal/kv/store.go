// Package kv provides the ordered key-value store backing point and
// segment metadata. Keys are strings, values are raw UTF-8 JSON bytes.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is an ordered map from string keys to opaque byte payloads.
// Range scans yield pairs in ascending byte order of the key.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// RangeScan visits every pair with start <= key <= endInclusive in
	// ascending key order. Returning an error from fn stops the scan.
	RangeScan(ctx context.Context, start, endInclusive string, fn func(key string, value []byte) error) error

	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	Compact(ctx context.Context) error
	Close() error
}

// PutJSON encodes v as JSON and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// GetJSON loads key and decodes the JSON value into v. The boolean
// reports whether the key was present.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}
