// Package transactionvalidator checks a single non-coinbase transaction
// against a world-state view per §4.4: resolve every input, verify its
// unlock script against the output's lockup predicate, enforce
// time-locks, run the VM when the transaction carries a script, and
// assert that input value covers both the declared outputs and the gas
// fee, per token.
package transactionvalidator

import (
	"crypto/ed25519"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/ruleerrors"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/pkg/errors"
)

// Config carries the subset of node configuration transaction validation
// needs.
type Config struct {
	NetworkID uint8
}

type transactionValidator struct {
	cfg Config
	vm  model.VM
}

// New constructs a TransactionValidator that runs scripted transactions
// through vm.
func New(cfg Config, vm model.VM) model.TransactionValidator {
	return &transactionValidator{cfg: cfg, vm: vm}
}

// ValidateTransaction resolves tx's inputs against view, checks their
// unlock scripts and time-locks, executes tx's script if it has one, and
// verifies the resulting balance. It returns the gas fee tx pays, which
// the caller folds into the block's coinbase reward.
func (v *transactionValidator) ValidateTransaction(tx *externalapi.DomainTransaction, chain externalapi.ChainIndex, view model.WorldStateView, blockTimestamp externalapi.DomainTimestamp) (uint64, error) {
	u := tx.Unsigned
	txID := hashing.TransactionID(tx)

	var missing []externalapi.TxOutputRef
	inputAlf := uint64(0)
	inputTokens := make(externalapi.TokenMap)

	for i, in := range u.Inputs {
		ref := externalapi.AssetOutputRef{TxOutputRef: in.OutputRef}
		out, ok, err := view.AssetOutput(ref)
		if err != nil {
			return 0, err
		}
		if !ok {
			missing = append(missing, in.OutputRef)
			continue
		}
		if out.TimeLock.Enabled && blockTimestamp.Before(out.TimeLock.UnlockAtTimestamp) {
			return 0, errors.Errorf("input %d is still time-locked until %d", i, out.TimeLock.UnlockAtTimestamp)
		}
		if len(tx.InputSignatures) <= i {
			return 0, errors.Errorf("input %d has no matching signature", i)
		}
		if err := verifyUnlock(out.LockupScript, in.UnlockScript, tx.InputSignatures[i], txID); err != nil {
			return 0, err
		}
		if err := view.SpendAssetOutput(ref); err != nil {
			return 0, err
		}
		inputAlf += out.Amount
		for id, amount := range out.Tokens {
			inputTokens[id] += amount
		}
	}
	if len(missing) > 0 {
		return 0, &ruleerrors.ErrMissingTxOut{MissingRefs: missing}
	}

	if u.HasScript() {
		ctx := &model.ExecutionContext{
			Tx:                   tx,
			Chain:                chain,
			View:                 view,
			BlockTimestamp:       blockTimestamp,
			NetworkID:            v.cfg.NetworkID,
			GasLimit:             u.GasAmount,
			IsCalledFromTxScript: true,
		}
		if _, err := v.vm.Execute(ctx); err != nil {
			return 0, err
		}
	}

	outputAlf := uint64(0)
	outputTokens := make(externalapi.TokenMap)
	outputIndex := 0
	addOutput := func(out *externalapi.AssetOutput) {
		outputAlf += out.Amount
		for id, amount := range out.Tokens {
			outputTokens[id] += amount
		}
		ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{
			Kind: externalapi.OutputRefKindAsset,
			Key:  hashing.OutputKey(txID, outputIndex),
		}}
		view.AddAssetOutput(ref, out)
		outputIndex++
	}
	for _, out := range u.FixedOutputs {
		addOutput(out)
	}
	for _, out := range tx.GeneratedOutputs {
		addOutput(out)
	}

	gasFee := u.GasAmount * u.GasPrice
	if inputAlf < outputAlf+gasFee {
		return 0, errors.Errorf("transaction %s spends more ALF than its inputs provide", txID)
	}
	for id, amount := range outputTokens {
		if inputTokens[id] < amount {
			return 0, errors.Errorf("transaction %s spends more of token %s than its inputs provide", txID, id)
		}
	}

	return gasFee, nil
}

// verifyUnlock checks that unlockScript authorizes spending an output
// locked to lockupScript. The fixed shape is a 32-byte ed25519 public key
// as the lockup, and a 64-byte ed25519 signature over the spending
// transaction's id, taken from the transaction's InputSignatures;
// unlockScript itself is not examined.
func verifyUnlock(lockupScript, unlockScript, signature []byte, txID externalapi.DomainHash) error {
	if len(lockupScript) != ed25519.PublicKeySize {
		return errors.Errorf("unsupported lockup script length %d", len(lockupScript))
	}
	if len(signature) != ed25519.SignatureSize {
		return errors.Errorf("unsupported signature length %d", len(signature))
	}
	if !ed25519.Verify(lockupScript, txID[:], signature) {
		return errors.Errorf("unlock script does not satisfy lockup script")
	}
	_ = unlockScript
	return nil
}
