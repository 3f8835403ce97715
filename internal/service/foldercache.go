package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"reelrelay/internal/core/ports"
)

// FolderCache memoizes folder resolution for one run. Concurrent callers
// asking for the same name share a single backend call.
type FolderCache struct {
	store ports.ArtifactStore

	mu      sync.Mutex
	folders map[string]ports.Folder
	group   singleflight.Group
}

// NewFolderCache returns an empty cache in front of store.
func NewFolderCache(store ports.ArtifactStore) *FolderCache {
	return &FolderCache{
		store:   store,
		folders: make(map[string]ports.Folder),
	}
}

// Resolve returns the cached folder for name, resolving it on first use.
func (c *FolderCache) Resolve(ctx context.Context, name string) (ports.Folder, error) {
	if f, ok := c.lookup(name); ok {
		return f, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		if f, ok := c.lookup(name); ok {
			return f, nil
		}
		f, err := c.store.ResolveOrCreateFolder(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve folder %q: %w", name, err)
		}
		c.mu.Lock()
		c.folders[name] = f
		c.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return ports.Folder{}, err
	}
	return v.(ports.Folder), nil
}

// Forget drops name so the next Resolve asks the backend again.
func (c *FolderCache) Forget(name string) {
	c.mu.Lock()
	delete(c.folders, name)
	c.mu.Unlock()
}

func (c *FolderCache) lookup(name string) (ports.Folder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.folders[name]
	return f, ok
}
