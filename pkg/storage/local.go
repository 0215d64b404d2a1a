package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// LocalStore implements BlobStore on a local Badger database. It exists for
// environments without durable storage configured (development, CI); the key
// scheme is identical to the S3 store so components cannot tell them apart.
type LocalStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewLocalStore opens (or creates) a Badger database under dir.
func NewLocalStore(dir string, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	logger.Info("local blob store ready", zap.String("dir", dir))
	return &LocalStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error { return s.db.Close() }

// IsConfigured reports whether the store is open.
func (s *LocalStore) IsConfigured() bool { return s != nil && s.db != nil }

// Put stores data under key, overwriting any existing object. Content type is
// not persisted; the local store only needs the bytes back.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns the object bytes, or ErrNotFound.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListPrefix returns all keys under prefix.
func (s *LocalStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if bytes.HasPrefix(k, []byte(prefix)) {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
	}
	return keys, nil
}

// DeletePrefix removes all objects under prefix, best-effort.
func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.ListPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Warn("delete during prefix cleanup failed", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}
