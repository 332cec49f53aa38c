package app

import (
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
)

func coinbaseBlock(lockup []byte, amount uint64) *externalapi.DomainBlock {
	coinbase := &externalapi.DomainTransaction{
		Unsigned: &externalapi.UnsignedTx{
			FixedOutputs: []*externalapi.AssetOutput{{Amount: amount, LockupScript: lockup}},
		},
	}
	return &externalapi.DomainBlock{
		Header:       &externalapi.DomainBlockHeader{},
		Transactions: []*externalapi.DomainTransaction{coinbase},
	}
}

func TestAddressIndexBalanceAfterApplyBlock(t *testing.T) {
	idx := newAddressIndex()
	lockup := []byte("miner-key")

	idx.applyBlock(coinbaseBlock(lockup, 100))
	idx.applyBlock(coinbaseBlock(lockup, 50))

	total, refs := idx.balance(lockup, 0)
	if total != 150 {
		t.Errorf("got total %d, want 150", total)
	}
	if len(refs) != 2 {
		t.Errorf("got %d refs, want 2", len(refs))
	}
}

func TestAddressIndexBalanceRespectsUtxosLimit(t *testing.T) {
	idx := newAddressIndex()
	lockup := []byte("miner-key")
	for i := 0; i < 5; i++ {
		// Distinct amounts give each coinbase its own transaction id, so
		// the five blocks create five separate outputs.
		idx.applyBlock(coinbaseBlock(lockup, uint64(10+i)))
	}

	_, refs := idx.balance(lockup, 2)
	if len(refs) != 2 {
		t.Errorf("got %d refs, want the limit of 2", len(refs))
	}
}

func TestAddressIndexRemovesSpentOutputs(t *testing.T) {
	idx := newAddressIndex()
	lockup := []byte("miner-key")
	block := coinbaseBlock(lockup, 100)
	idx.applyBlock(block)

	coinbaseID := hashing.TransactionID(block.Transactions[0])
	spendRef := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{
		Kind: externalapi.OutputRefKindAsset,
		Key:  hashing.Hash(append(append([]byte{}, coinbaseID[:]...), byte(0))),
	}}
	spend := &externalapi.DomainTransaction{
		Unsigned: &externalapi.UnsignedTx{
			Inputs: []*externalapi.TxInput{{OutputRef: spendRef.TxOutputRef}},
		},
	}
	idx.applyBlock(&externalapi.DomainBlock{
		Header:       &externalapi.DomainBlockHeader{},
		Transactions: []*externalapi.DomainTransaction{spend},
	})

	total, refs := idx.balance(lockup, 0)
	if total != 0 || len(refs) != 0 {
		t.Errorf("got total=%d refs=%d, want the spent output gone", total, len(refs))
	}
}

func TestAddressIndexBalanceForUnknownLockupIsZero(t *testing.T) {
	idx := newAddressIndex()
	total, refs := idx.balance([]byte("nobody"), 0)
	if total != 0 || refs != nil {
		t.Errorf("got total=%d refs=%v, want zero balance and no refs", total, refs)
	}
}
