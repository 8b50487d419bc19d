// Package objstore is the boundary to the object store holding workspace
// home-directory contents. The store gives per-object atomicity and no
// cross-object transactions; everything above this package is built on
// exactly those two assumptions.
package objstore

import (
	"context"
	"errors"
)

// ErrNotExist is returned by GetObject when the key has no object.
var ErrNotExist = errors.New("object does not exist")

func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

type Client interface {
	// PutObject atomically stores the file at srcPath under key.
	PutObject(ctx context.Context, key, srcPath string) error
	// PutDirectory recursively stores srcDir's files under prefix, one
	// object per file. Individual puts are atomic; the set is not.
	PutDirectory(ctx context.Context, prefix, srcDir string) error
	// GetObject downloads the object at key to dstPath.
	GetObject(ctx context.Context, key, dstPath string) error
	// ListObjects returns the keys under prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
