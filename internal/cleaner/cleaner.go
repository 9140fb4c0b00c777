// Package cleaner removes superseded variants so that each directory keeps a
// single current file per logical image name.
package cleaner

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-converter/internal/naming"
)

// fileStorage is the subset of a variant store the cleaner needs.
type fileStorage interface {
	List(ctx context.Context, dir string) ([]string, error)
	Delete(ctx context.Context, dir, name string) error
}

// Cleaner deletes stale variants from a storage backend.
type Cleaner struct {
	storage fileStorage
}

// New creates a Cleaner over the given storage.
func New(s fileStorage) *Cleaner {
	return &Cleaner{storage: s}
}

// Clean deletes every file in dir whose logical prefix equals prefix,
// except current. It returns how many files were removed.
//
// Failing to delete an individual file is logged and skipped. Only a
// failure to list dir is returned.
func (c *Cleaner) Clean(ctx context.Context, dir, prefix, current string) (int, error) {
	names, err := c.storage.List(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("clean: %w", err)
	}

	removed := 0
	for _, name := range names {
		if name == current || naming.PrefixOf(name) != prefix {
			continue
		}

		if err := c.storage.Delete(ctx, dir, name); err != nil {
			zlog.Logger.Warn().
				Err(err).
				Str("dir", dir).
				Str("file", name).
				Msg("failed to delete stale variant")
			continue
		}

		zlog.Logger.Debug().
			Str("dir", dir).
			Str("file", name).
			Str("current", current).
			Msg("stale variant removed")
		removed++
	}

	return removed, nil
}
