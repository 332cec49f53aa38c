package vm

import (
	"errors"
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/bigint"
)

// TestFrameStackOverflow covers the VM frame-stack overflow scenario: a
// method that calls itself recurses until pushFrame refuses to grow the
// frame stack past the configured limit.
func TestFrameStackOverflow(t *testing.T) {
	script := &Script{
		Methods: []Method{
			{IsPublic: true, Code: []Instruction{{Op: OpCallLocal}}},
		},
	}
	tx := &externalapi.DomainTransaction{
		Unsigned: &externalapi.UnsignedTx{Script: EncodeScript(script)},
	}
	eng := New(Config{OperandStackMaxSize: 64, FrameStackMaxSize: 8, DustUtxoAmount: 1})

	_, err := eng.Execute(&model.ExecutionContext{Tx: tx, GasLimit: 1000})
	if err == nil {
		t.Fatal("Execute accepted a method that recurses past the frame stack limit")
	}
	var scriptErr *ScriptExecutionError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("err = %v, want a *ScriptExecutionError", err)
	}
	if scriptErr.Kind != StackOverflow {
		t.Errorf("failure kind = %s, want StackOverflow", scriptErr.Kind)
	}
}

// fakeContractView backs only the calls execDestroySelf makes: reading and
// clearing a contract's output, removing its state, and crediting the
// destination asset address.
type fakeContractView struct {
	model.WorldStateView

	contractOutputs map[externalapi.DomainHash]*externalapi.ContractOutput
	removed         []externalapi.ContractID
	addedOutputs    int
}

func (v *fakeContractView) ContractOutput(ref externalapi.ContractOutputRef) (*externalapi.ContractOutput, bool, error) {
	out, ok := v.contractOutputs[ref.Key]
	return out, ok, nil
}

func (v *fakeContractView) RemoveContractOutput(ref externalapi.ContractOutputRef) {
	delete(v.contractOutputs, ref.Key)
}

func (v *fakeContractView) RemoveContract(id externalapi.ContractID) error {
	v.removed = append(v.removed, id)
	return nil
}

func (v *fakeContractView) AddAssetOutput(externalapi.AssetOutputRef, *externalapi.AssetOutput) {
	v.addedOutputs++
}

// TestDestroySelfTwiceFails covers the contract double-destroy scenario: a
// second destroySelf against the same contract fails once the first call
// has already removed its output, since the lookup that would have
// produced the credited asset now misses.
func TestDestroySelfTwiceFails(t *testing.T) {
	contractID := externalapi.ContractID{5}
	view := &fakeContractView{
		contractOutputs: map[externalapi.DomainHash]*externalapi.ContractOutput{
			externalapi.DomainHash(contractID): {Amount: 100},
		},
	}
	e := &engine{cfg: Config{}, codeByHash: map[externalapi.DomainHash][]byte{}}
	s := &execState{eng: e, ctx: &model.ExecutionContext{View: view}}
	f := &frame{contractID: &contractID}

	destTo := externalapi.Val{Kind: externalapi.ValKindAddress, Address: externalapi.Address{Kind: externalapi.AddressKindAsset, Hash: externalapi.DomainHash{9}}}

	s.stack = append(s.stack, destTo)
	if err := s.execDestroySelf(f); err != nil {
		t.Fatalf("first execDestroySelf: %s", err)
	}
	if view.addedOutputs != 1 {
		t.Errorf("credited outputs = %d, want 1", view.addedOutputs)
	}

	s.stack = append(s.stack, destTo)
	err := s.execDestroySelf(f)
	if err == nil {
		t.Fatal("second execDestroySelf against an already-destroyed contract succeeded")
	}
	var scriptErr *ScriptExecutionError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("err = %v, want a *ScriptExecutionError", err)
	}
	if scriptErr.Kind != EmptyContractAsset {
		t.Errorf("failure kind = %s, want EmptyContractAsset", scriptErr.Kind)
	}
}

// assetContractView backs the calls execTransferFromSelf makes: reading and
// updating a contract's output, and reporting whether its state still
// exists.
type assetContractView struct {
	model.WorldStateView

	contractOutputs map[externalapi.DomainHash]*externalapi.ContractOutput
	stateExists     bool
	addedOutputs    int
}

func (v *assetContractView) ContractOutput(ref externalapi.ContractOutputRef) (*externalapi.ContractOutput, bool, error) {
	out, ok := v.contractOutputs[ref.Key]
	return out, ok, nil
}

func (v *assetContractView) SetContractOutput(ref externalapi.ContractOutputRef, out *externalapi.ContractOutput) {
	v.contractOutputs[ref.Key] = out
}

func (v *assetContractView) ContractState(id externalapi.ContractID) (*externalapi.ContractState, bool, error) {
	if !v.stateExists {
		return nil, false, nil
	}
	return &externalapi.ContractState{ContractID: id}, true, nil
}

func (v *assetContractView) AddAssetOutput(externalapi.AssetOutputRef, *externalapi.AssetOutput) {
	v.addedOutputs++
}

// TestExecNonPayableMethodRejectsTransfer covers §4.5's payability
// invariant: a method decoded with IsPayable false must not be able to run
// an asset-affecting opcode, even one that would otherwise succeed.
func TestExecNonPayableMethodRejectsTransfer(t *testing.T) {
	contractID := externalapi.ContractID{3}
	view := &assetContractView{
		contractOutputs: map[externalapi.DomainHash]*externalapi.ContractOutput{
			externalapi.DomainHash(contractID): {Amount: 100},
		},
		stateExists: true,
	}
	e := &engine{cfg: Config{OperandStackMaxSize: 64}, codeByHash: map[externalapi.DomainHash][]byte{}}
	s := &execState{eng: e, ctx: &model.ExecutionContext{View: view}}
	f := &frame{contractID: &contractID, method: &Method{IsPayable: false}}

	to := externalapi.Val{Kind: externalapi.ValKindAddress, Address: externalapi.Address{Kind: externalapi.AddressKindAsset, Hash: externalapi.DomainHash{9}}}
	amount := externalapi.Val{Kind: externalapi.ValKindU256, U256: bigint.NewU256FromUint64(10)}
	s.stack = append(s.stack, amount, to)

	_, err := s.exec(f, Instruction{Op: OpTransferAlfFromSelf})
	if err == nil {
		t.Fatal("exec allowed a non-payable method to run transferAlfFromSelf")
	}
	var scriptErr *ScriptExecutionError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("err = %v, want a *ScriptExecutionError", err)
	}
	if scriptErr.Kind != NonPayableFrame {
		t.Errorf("failure kind = %s, want NonPayableFrame", scriptErr.Kind)
	}
	if view.contractOutputs[externalapi.DomainHash(contractID)].Amount != 100 {
		t.Error("contract balance changed even though the transfer was rejected")
	}
}

// TestTransferFromSelfDrainingLiveContractFails covers §4.5's "no empty
// asset output on a still-live contract" invariant: draining a contract's
// balance to exactly zero while its state still exists must fail, not
// silently succeed.
func TestTransferFromSelfDrainingLiveContractFails(t *testing.T) {
	contractID := externalapi.ContractID{4}
	view := &assetContractView{
		contractOutputs: map[externalapi.DomainHash]*externalapi.ContractOutput{
			externalapi.DomainHash(contractID): {Amount: 50},
		},
		stateExists: true,
	}
	e := &engine{cfg: Config{}, codeByHash: map[externalapi.DomainHash][]byte{}}
	s := &execState{eng: e, ctx: &model.ExecutionContext{View: view}}
	f := &frame{contractID: &contractID, method: &Method{IsPayable: true}}

	to := externalapi.Val{Kind: externalapi.ValKindAddress, Address: externalapi.Address{Kind: externalapi.AddressKindAsset, Hash: externalapi.DomainHash{9}}}
	amount := externalapi.Val{Kind: externalapi.ValKindU256, U256: bigint.NewU256FromUint64(50)}
	s.stack = append(s.stack, amount, to)

	err := s.execTransferFromSelf(f)
	if err == nil {
		t.Fatal("execTransferFromSelf drained a live contract's balance to zero without failing")
	}
	var scriptErr *ScriptExecutionError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("err = %v, want a *ScriptExecutionError", err)
	}
	if scriptErr.Kind != EmptyContractAsset {
		t.Errorf("failure kind = %s, want EmptyContractAsset", scriptErr.Kind)
	}
}
