package mempoolmanager

import (
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/datastructures/mempoolstore"
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

// fakeView resolves exactly the asset outputs it was seeded with; every
// other lookup misses, as if the referenced output had never been created.
type fakeView struct {
	known map[externalapi.AssetOutputRef]*externalapi.AssetOutput
}

func newFakeView(known ...externalapi.AssetOutputRef) *fakeView {
	v := &fakeView{known: make(map[externalapi.AssetOutputRef]*externalapi.AssetOutput)}
	for _, ref := range known {
		v.known[ref] = &externalapi.AssetOutput{Amount: 1}
	}
	return v
}

func (v *fakeView) AssetOutput(ref externalapi.AssetOutputRef) (*externalapi.AssetOutput, bool, error) {
	out, ok := v.known[ref]
	return out, ok, nil
}
func (v *fakeView) SpendAssetOutput(externalapi.AssetOutputRef) error { return nil }
func (v *fakeView) AddAssetOutput(externalapi.AssetOutputRef, *externalapi.AssetOutput) {}
func (v *fakeView) ContractState(externalapi.ContractID) (*externalapi.ContractState, bool, error) {
	return nil, false, nil
}
func (v *fakeView) SetContractState(*externalapi.ContractState) {}
func (v *fakeView) RemoveContract(externalapi.ContractID) error { return nil }
func (v *fakeView) ContractOutput(externalapi.ContractOutputRef) (*externalapi.ContractOutput, bool, error) {
	return nil, false, nil
}
func (v *fakeView) SetContractOutput(externalapi.ContractOutputRef, *externalapi.ContractOutput) {}
func (v *fakeView) RemoveContractOutput(externalapi.ContractOutputRef)                           {}
func (v *fakeView) CommitRoot() externalapi.DomainHash                                           { return externalapi.DomainHash{} }

var _ model.WorldStateView = (*fakeView)(nil)

func txSpending(refs ...externalapi.AssetOutputRef) *externalapi.DomainTransaction {
	inputs := make([]*externalapi.TxInput, len(refs))
	for i, ref := range refs {
		inputs[i] = &externalapi.TxInput{OutputRef: ref.TxOutputRef}
	}
	return &externalapi.DomainTransaction{Unsigned: &externalapi.UnsignedTx{Inputs: inputs}}
}

func TestAddRoutesFullyResolvedTxToShared(t *testing.T) {
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{1}}}
	store := mempoolstore.New(100)
	mgr := New(store)

	tx := txSpending(ref)
	if err := mgr.Add(chain, tx, newFakeView(ref)); err != nil {
		t.Fatalf("Add: %s", err)
	}
	if shared, pending := store.Len(chain); shared != 1 || pending != 0 {
		t.Errorf("got shared=%d pending=%d, want shared=1 pending=0", shared, pending)
	}
}

func TestAddRoutesUnresolvedTxToPending(t *testing.T) {
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{2}}}
	store := mempoolstore.New(100)
	mgr := New(store)

	tx := txSpending(ref)
	if err := mgr.Add(chain, tx, newFakeView()); err != nil {
		t.Fatalf("Add: %s", err)
	}
	if shared, pending := store.Len(chain); shared != 0 || pending != 1 {
		t.Errorf("got shared=%d pending=%d, want shared=0 pending=1", shared, pending)
	}
}

func TestAddIgnoresContractInputsWhenDecidingSharedVsPending(t *testing.T) {
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	contractRef := externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: externalapi.DomainHash{3}}
	store := mempoolstore.New(100)
	mgr := New(store)

	tx := &externalapi.DomainTransaction{
		Unsigned: &externalapi.UnsignedTx{Inputs: []*externalapi.TxInput{{OutputRef: contractRef}}},
	}
	if err := mgr.Add(chain, tx, newFakeView()); err != nil {
		t.Fatalf("Add: %s", err)
	}
	if shared, pending := store.Len(chain); shared != 1 || pending != 0 {
		t.Errorf("got shared=%d pending=%d, want shared=1 pending=0 (contract inputs aren't asset-output resolution)", shared, pending)
	}
}
