// Package worldstateview implements the copy-on-write overlay a block's
// transactions execute against: reads fall through to the persistent
// world-state store at a fixed base root, writes accumulate in memory, and
// CommitRoot stages the accumulated diff onto the store and returns the
// root that would result, without touching the database itself (the
// caller commits it inside the same DBTransaction as the rest of the
// block, per the store/manager staging convention used throughout this
// tree).
package worldstateview

import (
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

type worldStateView struct {
	mu    sync.Mutex
	store model.WorldStateStore
	dbCtx model.DBReader
	base  externalapi.DomainHash

	addedAssetOutputs   map[externalapi.DomainHash]*externalapi.AssetOutput
	removedAssetOutputs map[externalapi.DomainHash]bool

	contractStates   map[externalapi.ContractID]*externalapi.ContractState
	removedContracts map[externalapi.ContractID]bool

	contractOutputs        map[externalapi.DomainHash]*externalapi.ContractOutput
	removedContractOutputs map[externalapi.DomainHash]bool
}

// New constructs a view over store rooted at base, reading through dbCtx.
func New(store model.WorldStateStore, dbCtx model.DBReader, base externalapi.DomainHash) model.WorldStateView {
	return &worldStateView{
		store:                  store,
		dbCtx:                  dbCtx,
		base:                   base,
		addedAssetOutputs:      make(map[externalapi.DomainHash]*externalapi.AssetOutput),
		removedAssetOutputs:    make(map[externalapi.DomainHash]bool),
		contractStates:         make(map[externalapi.ContractID]*externalapi.ContractState),
		removedContracts:       make(map[externalapi.ContractID]bool),
		contractOutputs:        make(map[externalapi.DomainHash]*externalapi.ContractOutput),
		removedContractOutputs: make(map[externalapi.DomainHash]bool),
	}
}

func (v *worldStateView) AssetOutput(ref externalapi.AssetOutputRef) (*externalapi.AssetOutput, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.removedAssetOutputs[ref.Key] {
		return nil, false, nil
	}
	if out, ok := v.addedAssetOutputs[ref.Key]; ok {
		return out, true, nil
	}
	return v.store.AssetOutput(v.dbCtx, v.base, ref)
}

func (v *worldStateView) SpendAssetOutput(ref externalapi.AssetOutputRef) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.removedAssetOutputs[ref.Key] {
		return errors.Errorf("asset output %s already spent in this view", ref.Key)
	}
	if _, ok := v.addedAssetOutputs[ref.Key]; ok {
		delete(v.addedAssetOutputs, ref.Key)
		v.removedAssetOutputs[ref.Key] = true
		return nil
	}
	_, exists, err := v.store.AssetOutput(v.dbCtx, v.base, ref)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("asset output %s does not exist", ref.Key)
	}
	v.removedAssetOutputs[ref.Key] = true
	return nil
}

func (v *worldStateView) AddAssetOutput(ref externalapi.AssetOutputRef, output *externalapi.AssetOutput) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.removedAssetOutputs, ref.Key)
	v.addedAssetOutputs[ref.Key] = output
}

func (v *worldStateView) ContractState(id externalapi.ContractID) (*externalapi.ContractState, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.removedContracts[id] {
		return nil, false, nil
	}
	if state, ok := v.contractStates[id]; ok {
		return state, true, nil
	}
	return v.store.ContractState(v.dbCtx, v.base, id)
}

func (v *worldStateView) SetContractState(state *externalapi.ContractState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.removedContracts, state.ContractID)
	v.contractStates[state.ContractID] = state
}

func (v *worldStateView) RemoveContract(id externalapi.ContractID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.contractStates, id)
	v.removedContracts[id] = true
	return nil
}

func (v *worldStateView) ContractOutput(ref externalapi.ContractOutputRef) (*externalapi.ContractOutput, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.removedContractOutputs[ref.Key] {
		return nil, false, nil
	}
	if out, ok := v.contractOutputs[ref.Key]; ok {
		return out, true, nil
	}
	return v.store.ContractOutput(v.dbCtx, v.base, ref)
}

func (v *worldStateView) SetContractOutput(ref externalapi.ContractOutputRef, output *externalapi.ContractOutput) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.removedContractOutputs, ref.Key)
	v.contractOutputs[ref.Key] = output
}

func (v *worldStateView) RemoveContractOutput(ref externalapi.ContractOutputRef) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.contractOutputs, ref.Key)
	v.removedContractOutputs[ref.Key] = true
}

// CommitRoot stages every accumulated change onto the underlying store and
// returns the root that diff produces on top of base. The caller is
// responsible for persisting it via the store's Commit inside its own
// DBTransaction.
func (v *worldStateView) CommitRoot() externalapi.DomainHash {
	v.mu.Lock()
	defer v.mu.Unlock()

	for key, out := range v.addedAssetOutputs {
		v.store.StageAssetOutput(v.base, externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: key}}, out)
	}
	for key := range v.removedAssetOutputs {
		v.store.StageRemoveAssetOutput(v.base, externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: key}})
	}
	for _, state := range v.contractStates {
		v.store.StageContractState(v.base, state)
	}
	for id := range v.removedContracts {
		v.store.StageRemoveContract(v.base, id)
	}
	for key, out := range v.contractOutputs {
		v.store.StageContractOutput(v.base, externalapi.ContractOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: key}}, out)
	}
	for key := range v.removedContractOutputs {
		v.store.StageRemoveContractOutput(v.base, externalapi.ContractOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: key}})
	}

	root := v.store.ComputeRoot(v.base)
	v.store.SetParent(root, v.base)
	return root
}
