package kv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

var bucketName = []byte("kv")

// BoltStore implements Store on a single-file bbolt database. One bucket
// holds every record; bbolt's B+tree keeps keys in byte order, which
// gives RangeScan for free via a cursor seek.
type BoltStore struct {
	mu   sync.RWMutex // guards db swap during Compact
	db   *bolt.DB
	path string
}

// BoltConfig holds bbolt store configuration.
type BoltConfig struct {
	Path    string
	Timeout time.Duration // file-lock wait; 0 means 1s
}

// OpenBolt opens (creating if needed) a bbolt-backed store at cfg.Path.
func OpenBolt(cfg BoltConfig) (*BoltStore, error) {
	if cfg.Path == "" {
		return nil, kgerrors.Invalid("kv store path is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, kgerrors.Upstream("kv", fmt.Errorf("open %s: %w", cfg.Path, err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, kgerrors.Upstream("kv", fmt.Errorf("init bucket: %w", err))
	}

	return &BoltStore{db: db, path: cfg.Path}, nil
}

// Put stores value under key, overwriting any previous value.
func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
	if err != nil {
		return kgerrors.Upstream("kv", fmt.Errorf("put %q: %w", key, err))
	}
	return nil
}

// Get returns the value stored under key. The boolean reports presence.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			found = true
			out = append(out, v...) // bbolt memory is only valid inside the tx
		}
		return nil
	})
	if err != nil {
		return nil, false, kgerrors.Upstream("kv", fmt.Errorf("get %q: %w", key, err))
	}
	return out, found, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return kgerrors.Upstream("kv", fmt.Errorf("delete %q: %w", key, err))
	}
	return nil
}

// Exists reports whether key is present.
func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// RangeScan visits pairs with start <= key <= endInclusive in ascending
// key order.
func (s *BoltStore) RangeScan(ctx context.Context, start, endInclusive string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		end := []byte(endInclusive)
		for k, v := c.Seek([]byte(start)); k != nil && bytes.Compare(k, end) <= 0; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(string(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("range scan [%q, %q]: %w", start, endInclusive, err)
	}
	return nil
}

// Count returns the number of stored pairs.
func (s *BoltStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		n = int64(tx.Bucket(bucketName).Stats().KeyN)
		return nil
	})
	if err != nil {
		return 0, kgerrors.Upstream("kv", fmt.Errorf("count: %w", err))
	}
	return n, nil
}

// Clear drops every stored pair.
func (s *BoltStore) Clear(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
	if err != nil {
		return kgerrors.Upstream("kv", fmt.Errorf("clear: %w", err))
	}
	return nil
}

// Compact rewrites the database file to reclaim space freed by deletes.
// The store is unavailable to other calls while the swap happens.
func (s *BoltStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := s.path + ".compact"
	dst, err := bolt.Open(tmpPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return kgerrors.Upstream("kv", fmt.Errorf("open compact target: %w", err))
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return kgerrors.Upstream("kv", fmt.Errorf("compact: %w", err))
	}

	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return kgerrors.Upstream("kv", fmt.Errorf("close compact target: %w", err))
	}
	if err := s.db.Close(); err != nil {
		return kgerrors.Upstream("kv", fmt.Errorf("close source: %w", err))
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return kgerrors.Upstream("kv", fmt.Errorf("swap compacted file: %w", err))
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return kgerrors.Upstream("kv", fmt.Errorf("reopen after compact: %w", err))
	}
	s.db = db
	return nil
}

// Close releases the underlying file.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
