package sync

import (
	"context"
	"io"
)

// ObjectMeta holds the metadata that decides whether a stored object is stale.
type ObjectMeta struct {
	ContentType  string
	CacheControl string
	Fingerprint  string
	Size         int64
}

// Destination is a write target for synced files. Keys are full object keys,
// prefix included.
type Destination interface {
	// Put uploads r at key, setting meta in the same write.
	Put(ctx context.Context, key string, r io.Reader, meta ObjectMeta) error
	// Stat returns metadata for an existing object, or (nil, nil) if absent.
	Stat(ctx context.Context, key string) (*ObjectMeta, error)
	// List returns all keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the given keys.
	Delete(ctx context.Context, keys []string) error
}
