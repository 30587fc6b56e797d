package rpc

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/manifest-network/chainguard/internal/models"
)

type cacheKey struct {
	pow  bool
	hash models.Hash
}

// CachedAdapter answers repeated by-hash header and pow info lookups from an
// LRU cache. Data addressed by block hash never changes, so it is safe to
// keep across reorgs. Height based and chain height lookups always go to the node.
type CachedAdapter struct {
	adapter *Adapter
	cache   *lru.Cache
}

func NewCached(adapter *Adapter, size int) (*CachedAdapter, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedAdapter{adapter: adapter, cache: cache}, nil
}

// Call implements service.Service[Request, Response]. It is safe for concurrent use.
func (c *CachedAdapter) Call(ctx context.Context, req Request) (Response, error) {
	key, cacheable := keyFor(req)
	if cacheable {
		if resp, ok := c.cache.Get(key); ok {
			return resp.(Response), nil
		}
	}

	resp, err := c.adapter.Clone().Oneshot(ctx, req)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.cache.Add(key, resp)
	}
	return resp, nil
}

// Len returns the number of cached responses.
func (c *CachedAdapter) Len() int {
	return c.cache.Len()
}

func keyFor(req Request) (cacheKey, bool) {
	switch req := req.(type) {
	case BlockHeaderRequest:
		hash, ok := req.ID.Hash()
		return cacheKey{hash: hash}, ok
	case BlockPOWInfoRequest:
		hash, ok := req.ID.Hash()
		return cacheKey{pow: true, hash: hash}, ok
	default:
		return cacheKey{}, false
	}
}
