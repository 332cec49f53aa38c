// Package mempoolmanager decides, per §4.6, whether an incoming
// transaction is ready to broadcast (every input resolves against the
// group's current view) or must wait in the pending pool for the
// outputs it references to appear.
package mempoolmanager

import (
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

type mempoolManager struct {
	store model.MempoolStore
}

// New constructs a MempoolManager over store.
func New(store model.MempoolStore) model.MempoolManager {
	return &mempoolManager{store: store}
}

// Add resolves tx's inputs against view and admits it to the shared pool
// if every input is already spendable, or to the pending pool keyed on
// whichever inputs are still missing.
func (m *mempoolManager) Add(chain externalapi.ChainIndex, tx *externalapi.DomainTransaction, view model.WorldStateView) error {
	var missing []*externalapi.TxOutputRef
	for _, in := range tx.Unsigned.Inputs {
		if in.OutputRef.Kind != externalapi.OutputRefKindAsset {
			continue
		}
		ref := externalapi.AssetOutputRef{TxOutputRef: in.OutputRef}
		if _, ok, err := view.AssetOutput(ref); err != nil {
			return err
		} else if !ok {
			refCopy := in.OutputRef
			missing = append(missing, &refCopy)
		}
	}
	if len(missing) == 0 {
		log.Tracef("admitting tx to shared pool on chain %s", chain)
		return m.store.AddToShared(chain, tx)
	}
	log.Tracef("parking tx to pending pool on chain %s, missing %d outputs", chain, len(missing))
	return m.store.AddToPending(chain, tx, missing)
}

// Remove drops txIDs from both the shared and pending pools.
func (m *mempoolManager) Remove(chain externalapi.ChainIndex, txIDs []externalapi.DomainHash) error {
	return m.store.Remove(chain, txIDs)
}

// AllByGasPrice returns the shared pool's transactions ordered by
// non-increasing gas price.
func (m *mempoolManager) AllByGasPrice(chain externalapi.ChainIndex) []*externalapi.DomainTransaction {
	return m.store.AllByGasPrice(chain)
}

// Clean evicts shared-pool transactions older than maxAge and returns
// their ids, so the caller can also drop them from any broadcast queue.
func (m *mempoolManager) Clean(chain externalapi.ChainIndex, maxAge externalapi.DomainDuration, now externalapi.DomainTimestamp) []externalapi.DomainHash {
	cutoff := now.Add(-maxAge)
	evicted := m.store.EvictOlderThan(chain, cutoff)
	if len(evicted) > 0 {
		log.Debugf("evicted %d stale transactions from chain %s mempool", len(evicted), chain)
	}
	return evicted
}
