// Package storage provides blob storage for recording chunks and final artifacts,
// backed by S3 in production or a local Badger database for development.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore is the uniform interface over durable blob storage.
type BlobStore interface {
	// Put stores data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the object bytes, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// ListPrefix returns all keys under prefix.
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes all objects under prefix, best-effort.
	// It returns the number of successful deletes and never fails on individual objects.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// IsConfigured reports whether the store is usable.
	IsConfigured() bool
}
