package transactionvalidator

import (
	"crypto/ed25519"
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
)

// fakeView backs a single asset output keyed by whatever ref it was
// registered under, enough to drive ValidateTransaction's input-resolution
// path without a real store.
type fakeView struct {
	model.WorldStateView

	outputs map[externalapi.DomainHash]*externalapi.AssetOutput
	added   []*externalapi.AssetOutput
}

func newFakeView() *fakeView {
	return &fakeView{outputs: make(map[externalapi.DomainHash]*externalapi.AssetOutput)}
}

func (v *fakeView) AssetOutput(ref externalapi.AssetOutputRef) (*externalapi.AssetOutput, bool, error) {
	out, ok := v.outputs[ref.Key]
	return out, ok, nil
}

func (v *fakeView) SpendAssetOutput(ref externalapi.AssetOutputRef) error {
	delete(v.outputs, ref.Key)
	return nil
}

func (v *fakeView) AddAssetOutput(ref externalapi.AssetOutputRef, output *externalapi.AssetOutput) {
	v.added = append(v.added, output)
}

// signedSpend builds a scriptless transaction spending a single output
// locked to pub, signing its id with priv.
func signedSpend(t *testing.T, ref externalapi.TxOutputRef, priv ed25519.PrivateKey, gasAmount, gasPrice uint64, outputs []*externalapi.AssetOutput) *externalapi.DomainTransaction {
	t.Helper()
	tx := &externalapi.DomainTransaction{
		Unsigned: &externalapi.UnsignedTx{
			GasAmount:    gasAmount,
			GasPrice:     gasPrice,
			Inputs:       []*externalapi.TxInput{{OutputRef: ref}},
			FixedOutputs: outputs,
		},
	}
	txID := hashing.TransactionID(tx)
	tx.InputSignatures = [][]byte{ed25519.Sign(priv, txID[:])}
	return tx
}

// TestValidateTransactionAcceptsSignedSpend covers a plain ed25519-locked
// spend: a correctly signed input covering its own outputs and gas fee
// validates and reports the gas fee it owes the block's coinbase.
func TestValidateTransactionAcceptsSignedSpend(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}
	ref := externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{1}}
	view := newFakeView()
	view.outputs[ref.Key] = &externalapi.AssetOutput{Amount: 100, LockupScript: pub}

	tx := signedSpend(t, ref, priv, 5, 1, []*externalapi.AssetOutput{{Amount: 90}})

	v := New(Config{NetworkID: 1}, nil)
	gasFee, err := v.ValidateTransaction(tx, externalapi.ChainIndex{}, view, 0)
	if err != nil {
		t.Fatalf("ValidateTransaction: %s", err)
	}
	if gasFee != 5 {
		t.Errorf("gasFee = %d, want 5", gasFee)
	}
	if len(view.added) != 1 || view.added[0].Amount != 90 {
		t.Errorf("added outputs = %v, want one output of amount 90", view.added)
	}
	if _, ok := view.outputs[ref.Key]; ok {
		t.Error("spent input still present in the view")
	}
}

// TestValidateTransactionRejectsInsufficientInputValue covers a spend that
// declares more value in outputs and gas than its input actually carries.
func TestValidateTransactionRejectsInsufficientInputValue(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}
	ref := externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{2}}
	view := newFakeView()
	view.outputs[ref.Key] = &externalapi.AssetOutput{Amount: 100, LockupScript: pub}

	tx := signedSpend(t, ref, priv, 5, 1, []*externalapi.AssetOutput{{Amount: 200}})

	v := New(Config{NetworkID: 1}, nil)
	if _, err := v.ValidateTransaction(tx, externalapi.ChainIndex{}, view, 0); err == nil {
		t.Fatal("ValidateTransaction accepted a transaction spending more than its input value")
	}
}

// TestValidateTransactionRejectsBadSignature covers a spend whose
// signature does not match the lockup script's public key.
func TestValidateTransactionRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}
	_, wrongPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}
	ref := externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{3}}
	view := newFakeView()
	view.outputs[ref.Key] = &externalapi.AssetOutput{Amount: 100, LockupScript: pub}

	tx := signedSpend(t, ref, wrongPriv, 5, 1, []*externalapi.AssetOutput{{Amount: 90}})

	v := New(Config{NetworkID: 1}, nil)
	if _, err := v.ValidateTransaction(tx, externalapi.ChainIndex{}, view, 0); err == nil {
		t.Fatal("ValidateTransaction accepted a spend signed by the wrong key")
	}
}
