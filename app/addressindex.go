package app

import (
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
)

// addressIndex is a secondary, non-authoritative index from lockup script
// to the asset outputs it currently owns, maintained alongside
// world-state commits so GetBalance can answer without the world-state
// store itself needing a reverse index. It is rebuilt from genesis on
// startup and is safe to discard and rebuild at any time.
type addressIndex struct {
	mu     sync.RWMutex
	byLock map[string]map[externalapi.AssetOutputRef]*externalapi.AssetOutput
}

func newAddressIndex() *addressIndex {
	return &addressIndex{byLock: make(map[string]map[externalapi.AssetOutputRef]*externalapi.AssetOutput)}
}

// applyBlock records every output block's transactions create and removes
// every output they spend, keeping the index in step with a block that
// has just been committed to the world state.
func (idx *addressIndex) applyBlock(block *externalapi.DomainBlock) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, tx := range block.Transactions {
		txID := hashing.TransactionID(tx)
		for _, in := range tx.Unsigned.Inputs {
			if in.OutputRef.Kind != externalapi.OutputRefKindAsset {
				continue
			}
			idx.remove(externalapi.AssetOutputRef{TxOutputRef: in.OutputRef})
		}
		outputIndex := 0
		record := func(out *externalapi.AssetOutput) {
			ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{
				Kind: externalapi.OutputRefKindAsset,
				Key:  hashing.Hash(append(append([]byte{}, txID[:]...), byte(outputIndex))),
			}}
			idx.add(out.LockupScript, ref, out)
			outputIndex++
		}
		for _, out := range tx.Unsigned.FixedOutputs {
			record(out)
		}
		for _, out := range tx.GeneratedOutputs {
			record(out)
		}
	}
}

func (idx *addressIndex) add(lockupScript []byte, ref externalapi.AssetOutputRef, out *externalapi.AssetOutput) {
	key := string(lockupScript)
	byRef, ok := idx.byLock[key]
	if !ok {
		byRef = make(map[externalapi.AssetOutputRef]*externalapi.AssetOutput)
		idx.byLock[key] = byRef
	}
	byRef[ref] = out
}

func (idx *addressIndex) remove(ref externalapi.AssetOutputRef) {
	for _, byRef := range idx.byLock {
		delete(byRef, ref)
	}
}

// balance sums the amount of at most utxosLimit outputs locked to
// lockupScript, returning the refs consulted alongside the total.
func (idx *addressIndex) balance(lockupScript []byte, utxosLimit int) (total uint64, refs []externalapi.AssetOutputRef) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	byRef := idx.byLock[string(lockupScript)]
	for ref, out := range byRef {
		if utxosLimit > 0 && len(refs) >= utxosLimit {
			break
		}
		total += out.Amount
		refs = append(refs, ref)
	}
	return total, refs
}
