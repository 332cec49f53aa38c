// Package mempoolstore implements the per-chain shared and pending
// transaction pools described in §4.6: a shared pool of transactions
// ready to broadcast, a pending pool keyed by the output references they
// are still waiting on, bounded capacity with oldest-in-lowest-gas-tier
// eviction, and non-increasing gas-price iteration order.
package mempoolstore

import (
	"sort"
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/willf/bloom"
)

// entry pairs a transaction with its arrival order, the tie-breaker used
// for both eviction and stable gas-price sort.
type entry struct {
	tx       *externalapi.DomainTransaction
	id       externalapi.DomainHash
	arrival  uint64
	addedAt  externalapi.DomainTimestamp
}

type chainPool struct {
	sharedByID  map[externalapi.DomainHash]*entry
	pendingByID map[externalapi.DomainHash]*entry
	// pendingOn maps an awaited output reference to the transactions
	// blocked on it, so PromotePending can find them in O(1).
	pendingOn map[externalapi.DomainHash][]*entry
	seen      *bloom.BloomFilter
	nextSeq   uint64
}

func newChainPool() *chainPool {
	return &chainPool{
		sharedByID:  make(map[externalapi.DomainHash]*entry),
		pendingByID: make(map[externalapi.DomainHash]*entry),
		pendingOn:   make(map[externalapi.DomainHash][]*entry),
		seen:        bloom.NewWithEstimates(100000, 0.01),
	}
}

// mempoolStore implements model.MempoolStore.
type mempoolStore struct {
	mu             sync.Mutex
	sharedCapacity int
	pools          map[externalapi.ChainIndex]*chainPool
}

// New constructs a store whose shared pool, per chain, holds at most
// sharedCapacity transactions.
func New(sharedCapacity int) model.MempoolStore {
	return &mempoolStore{
		sharedCapacity: sharedCapacity,
		pools:          make(map[externalapi.ChainIndex]*chainPool),
	}
}

func (s *mempoolStore) pool(chain externalapi.ChainIndex) *chainPool {
	p, ok := s.pools[chain]
	if !ok {
		p = newChainPool()
		s.pools[chain] = p
	}
	return p
}

func (s *mempoolStore) AddToShared(chain externalapi.ChainIndex, tx *externalapi.DomainTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	id := hashing.TransactionID(tx)
	if _, exists := p.sharedByID[id]; exists {
		return nil
	}
	if len(p.sharedByID) >= s.sharedCapacity {
		s.evictLowestTier(p)
	}
	e := &entry{tx: tx, id: id, arrival: p.nextSeq, addedAt: externalapi.Now()}
	p.nextSeq++
	p.sharedByID[id] = e
	p.seen.Add(id[:])
	return nil
}

// evictLowestTier drops the oldest-arrived transaction among those with
// the lowest gas price present, making room for a new arrival.
func (s *mempoolStore) evictLowestTier(p *chainPool) {
	var lowestPrice uint64
	first := true
	for _, e := range p.sharedByID {
		price := e.tx.Unsigned.GasPrice
		if first || price < lowestPrice {
			lowestPrice = price
			first = false
		}
	}
	var oldest *entry
	for _, e := range p.sharedByID {
		if e.tx.Unsigned.GasPrice != lowestPrice {
			continue
		}
		if oldest == nil || e.arrival < oldest.arrival {
			oldest = e
		}
	}
	if oldest != nil {
		delete(p.sharedByID, oldest.id)
	}
}

func (s *mempoolStore) AddToPending(chain externalapi.ChainIndex, tx *externalapi.DomainTransaction, missing []*externalapi.TxOutputRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	id := hashing.TransactionID(tx)
	if _, exists := p.pendingByID[id]; exists {
		return nil
	}
	e := &entry{tx: tx, id: id, arrival: p.nextSeq, addedAt: externalapi.Now()}
	p.nextSeq++
	p.pendingByID[id] = e
	for _, ref := range missing {
		p.pendingOn[ref.Key] = append(p.pendingOn[ref.Key], e)
	}
	p.seen.Add(id[:])
	return nil
}

func (s *mempoolStore) Remove(chain externalapi.ChainIndex, txIDs []externalapi.DomainHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	for _, id := range txIDs {
		delete(p.sharedByID, id)
		delete(p.pendingByID, id)
	}
	return nil
}

func (s *mempoolStore) Contains(chain externalapi.ChainIndex, txID externalapi.DomainHash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	if !p.seen.Test(txID[:]) {
		return false
	}
	if _, ok := p.sharedByID[txID]; ok {
		return true
	}
	_, ok := p.pendingByID[txID]
	return ok
}

// AllByGasPrice returns the shared pool's transactions ordered by
// non-increasing gas price, breaking ties by arrival order so iteration
// is stable across calls.
func (s *mempoolStore) AllByGasPrice(chain externalapi.ChainIndex) []*externalapi.DomainTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	entries := make([]*entry, 0, len(p.sharedByID))
	for _, e := range p.sharedByID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].tx.Unsigned.GasPrice != entries[j].tx.Unsigned.GasPrice {
			return entries[i].tx.Unsigned.GasPrice > entries[j].tx.Unsigned.GasPrice
		}
		return entries[i].arrival < entries[j].arrival
	})
	out := make([]*externalapi.DomainTransaction, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

// PromotePending moves every pending transaction that was blocked on
// satisfied into the shared pool and returns them, so the caller can
// re-check the rest of their dependencies.
func (s *mempoolStore) PromotePending(chain externalapi.ChainIndex, satisfied externalapi.TxOutputRef) []*externalapi.DomainTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	waiting := p.pendingOn[satisfied.Key]
	delete(p.pendingOn, satisfied.Key)
	promoted := make([]*externalapi.DomainTransaction, 0, len(waiting))
	for _, e := range waiting {
		if _, stillPending := p.pendingByID[e.id]; !stillPending {
			continue
		}
		delete(p.pendingByID, e.id)
		if len(p.sharedByID) >= s.sharedCapacity {
			s.evictLowestTier(p)
		}
		p.sharedByID[e.id] = e
		promoted = append(promoted, e.tx)
	}
	return promoted
}

// EvictOlderThan removes every shared-pool transaction added before
// cutoff and returns their ids, used for periodic mempool cleaning.
func (s *mempoolStore) EvictOlderThan(chain externalapi.ChainIndex, cutoff externalapi.DomainTimestamp) []externalapi.DomainHash {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	var evicted []externalapi.DomainHash
	for id, e := range p.sharedByID {
		if e.addedAt != 0 && e.addedAt < cutoff {
			delete(p.sharedByID, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func (s *mempoolStore) Len(chain externalapi.ChainIndex) (shared, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(chain)
	return len(p.sharedByID), len(p.pendingByID)
}
