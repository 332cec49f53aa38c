// Package flowcache implements the read-through, write-through cache of
// hot blocks, headers and hash-states described in §4.7: a per-chain LRU
// for block bodies (so eviction naturally drops the oldest-in-chain entry
// once a chain's own cache fills) and two global-capacity LRUs for
// headers and states, guarded by an RWMutex so reads share and writes
// exclude, matching the teacher's RW-locked cache idiom
// (infrastructure/db doesn't cache, but kaspad's consensus-layer caches
// over its stores follow this exact shape).
package flowcache

import (
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	lru "github.com/hashicorp/golang-lru"
)

// Cache is the flow cache: a layer in front of the per-chain block tree
// and world-state stores that avoids a storage round-trip for hot
// entries.
type Cache struct {
	mu sync.RWMutex

	blockCapacity int
	blocksByChain map[externalapi.ChainIndex]*lru.Cache

	headers *lru.Cache
	states  *lru.Cache
}

// New constructs a Cache with the given per-chain block capacity and
// global header/state capacity.
func New(blockCapacityPerChain, globalHeaderCapacity, globalStateCapacity int) *Cache {
	headers, _ := lru.New(globalHeaderCapacity)
	states, _ := lru.New(globalStateCapacity)
	return &Cache{
		blockCapacity: blockCapacityPerChain,
		blocksByChain: make(map[externalapi.ChainIndex]*lru.Cache),
		headers:       headers,
		states:        states,
	}
}

func (c *Cache) chainCache(chain externalapi.ChainIndex) *lru.Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	cache, ok := c.blocksByChain[chain]
	if !ok {
		cache, _ = lru.NewWithEvict(c.blockCapacity, func(key, _ interface{}) {
			log.Tracef("evicted block %s from chain %s cache", key, chain)
		})
		c.blocksByChain[chain] = cache
	}
	return cache
}

// PutBlock stores block under hash within chain's own LRU.
func (c *Cache) PutBlock(chain externalapi.ChainIndex, hash externalapi.DomainHash, block *externalapi.DomainBlock) {
	c.chainCache(chain).Add(hash, block)
}

// GetBlock returns the cached block for hash within chain, if present.
func (c *Cache) GetBlock(chain externalapi.ChainIndex, hash externalapi.DomainHash) (*externalapi.DomainBlock, bool) {
	value, ok := c.chainCache(chain).Get(hash)
	if !ok {
		return nil, false
	}
	return value.(*externalapi.DomainBlock), true
}

// PutHeader stores a header in the global header cache.
func (c *Cache) PutHeader(hash externalapi.DomainHash, header *externalapi.DomainBlockHeader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Add(hash, header)
}

// GetHeader returns the cached header for hash, if present.
func (c *Cache) GetHeader(hash externalapi.DomainHash) (*externalapi.DomainBlockHeader, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.headers.Get(hash)
	if !ok {
		return nil, false
	}
	return value.(*externalapi.DomainBlockHeader), true
}

// PutState stores a hash-state in the global state cache.
func (c *Cache) PutState(hash externalapi.DomainHash, state *externalapi.HashState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states.Add(hash, state)
}

// GetState returns the cached hash-state for hash, if present.
func (c *Cache) GetState(hash externalapi.DomainHash) (*externalapi.HashState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.states.Get(hash)
	if !ok {
		return nil, false
	}
	return value.(*externalapi.HashState), true
}

// Invalidate drops hash from every cache it might occupy, used when a
// block is pruned or a reorg supersedes it.
func (c *Cache) Invalidate(chain externalapi.ChainIndex, hash externalapi.DomainHash) {
	c.chainCache(chain).Remove(hash)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Remove(hash)
	c.states.Remove(hash)
}
