// Package framestore is the Frame Store: a named-slab store for raw
// YUV4:2:0 frame buffers, backed by MinIO. A slab is written once by the
// Capture Watchdog and read by at most a handful of short-lived Processing
// Loop readers before being deleted.
package framestore

import (
	"context"
	"fmt"
	"io"

	"github.com/your-org/camvision/internal/storage"
)

const objectPrefix = "frames/"

type Store struct {
	backend *storage.MinIOStore
}

func New(backend *storage.MinIOStore) *Store {
	return &Store{backend: backend}
}

func key(name string) string {
	return objectPrefix + name
}

// Create writes a new slab. Overwrites silently if name is reused, matching
// MinIO's put-object semantics.
func (s *Store) Create(ctx context.Context, name string, data []byte) error {
	if err := s.backend.PutObject(ctx, key(name), data, "application/octet-stream"); err != nil {
		return fmt.Errorf("framestore create %s: %w", name, err)
	}
	return nil
}

// Handle is a scoped, closeable view onto a resident slab's bytes.
type Handle struct {
	Data []byte
}

func (h *Handle) Close() error { return nil }

// Get returns the slab's bytes, or (nil, nil) if it is not resident.
func (s *Store) Get(ctx context.Context, name string) (*Handle, error) {
	ok, err := s.backend.StatObject(ctx, key(name))
	if err != nil {
		return nil, fmt.Errorf("framestore stat %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	data, err := s.backend.GetObject(ctx, key(name))
	if err != nil {
		return nil, fmt.Errorf("framestore get %s: %w", name, err)
	}
	return &Handle{Data: data}, nil
}

// Delete removes a slab. Deleting an absent slab is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.backend.DeleteObject(ctx, key(name)); err != nil {
		return fmt.Errorf("framestore delete %s: %w", name, err)
	}
	return nil
}

var _ io.Closer = (*Handle)(nil)
