// Package blockvalidator runs the per-block checks of §4.4 that don't
// require composing the full block-flow DAG: group membership, shape
// limits on the transaction list, the transactions Merkle root, the
// non-coinbase transactions, in-block double spends, and the coinbase.
package blockvalidator

import (
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/ruleerrors"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/flowchain/flowchain/domain/consensus/utils/merkle"
	"github.com/pkg/errors"
)

// Config bounds the shape of a valid block and the ceiling its target must
// respect when the chain it extends has no history yet.
type Config struct {
	GroupCount      int
	MaxTxsPerBlock  int
	MaxGasPerBlock  uint64
	MaxMiningTarget externalapi.DomainTarget
}

type blockValidator struct {
	cfg        Config
	txVal      model.TransactionValidator
	coinbase   model.CoinbaseManager
	difficulty map[externalapi.ChainIndex]model.DifficultyManager
}

// New constructs a BlockValidator. difficulty must carry one
// DifficultyManager per chain in the grid, used to check that an accepted
// block's target matches what the retarget formula requires.
func New(cfg Config, txVal model.TransactionValidator, coinbase model.CoinbaseManager, difficulty map[externalapi.ChainIndex]model.DifficultyManager) model.BlockValidator {
	return &blockValidator{cfg: cfg, txVal: txVal, coinbase: coinbase, difficulty: difficulty}
}

// ValidateBlock runs the full non-coinbase-then-coinbase pipeline against
// block, given the copy-on-write view its transactions execute against and
// the broker's owned range of from-groups.
func (v *blockValidator) ValidateBlock(block *externalapi.DomainBlock, chain externalapi.ChainIndex, view model.WorldStateView, brokerFromLow, brokerFromHigh int) error {
	if err := v.checkGroup(chain, brokerFromLow, brokerFromHigh); err != nil {
		return err
	}
	if err := v.checkNonEmptyTransactions(block); err != nil {
		return err
	}
	if err := v.checkTxNumber(block); err != nil {
		return err
	}
	if err := v.checkGasPriceDecreasing(block); err != nil {
		return err
	}
	if err := v.checkTotalGas(block); err != nil {
		return err
	}
	if err := v.checkMerkleRoot(block); err != nil {
		return err
	}
	if err := v.checkTarget(block, chain); err != nil {
		return err
	}
	gasFee, err := v.checkTxs(block, chain, view)
	if err != nil {
		return err
	}
	coinbaseTx := block.Coinbase()
	if err := v.coinbase.ValidateCoinbase(coinbaseTx, chain, gasFee, block.Header.TimestampInMillis); err != nil {
		return &ruleerrors.ErrExistInvalidTx{TxID: hashing.TransactionID(coinbaseTx), Err: err}
	}
	creditCoinbase(view, coinbaseTx)
	return nil
}

// creditCoinbase adds a validated coinbase's fixed outputs to view under
// the same key derivation a spending input must reproduce, so the mining
// reward becomes a spendable output once this block commits.
func creditCoinbase(view model.WorldStateView, coinbaseTx *externalapi.DomainTransaction) {
	txID := hashing.TransactionID(coinbaseTx)
	for i, out := range coinbaseTx.Unsigned.FixedOutputs {
		ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{
			Kind: externalapi.OutputRefKindAsset,
			Key:  hashing.OutputKey(txID, i),
		}}
		view.AddAssetOutput(ref, out)
	}
}

func (v *blockValidator) checkGroup(chain externalapi.ChainIndex, brokerFromLow, brokerFromHigh int) error {
	if err := chain.Validate(v.cfg.GroupCount); err != nil {
		return ruleerrors.ErrInvalidGroup
	}
	if chain.FromGroup < brokerFromLow || chain.FromGroup > brokerFromHigh {
		return ruleerrors.ErrInvalidGroup
	}
	return nil
}

func (v *blockValidator) checkNonEmptyTransactions(block *externalapi.DomainBlock) error {
	if len(block.Transactions) == 0 {
		return ruleerrors.ErrEmptyTransactionList
	}
	return nil
}

func (v *blockValidator) checkTxNumber(block *externalapi.DomainBlock) error {
	if len(block.Transactions) > v.cfg.MaxTxsPerBlock {
		return ruleerrors.ErrTooManyTransactions
	}
	return nil
}

// checkGasPriceDecreasing enforces that non-coinbase transactions appear
// in non-increasing gas-price order, the shape a miner filling a template
// from a gas-price-sorted mempool naturally produces.
func (v *blockValidator) checkGasPriceDecreasing(block *externalapi.DomainBlock) error {
	nonCoinbase := block.NonCoinbaseTransactions()
	for i := 1; i < len(nonCoinbase); i++ {
		if nonCoinbase[i].Unsigned.GasPrice > nonCoinbase[i-1].Unsigned.GasPrice {
			return ruleerrors.ErrTxGasPriceNonDecreasing
		}
	}
	return nil
}

func (v *blockValidator) checkTotalGas(block *externalapi.DomainBlock) error {
	total := uint64(0)
	for _, tx := range block.NonCoinbaseTransactions() {
		total += tx.Unsigned.GasAmount
	}
	if total > v.cfg.MaxGasPerBlock {
		return ruleerrors.ErrTooManyGasUsed
	}
	return nil
}

// checkTarget rejects a block whose header target does not match what the
// retarget formula requires for its position on chain, and, for anything
// past chain's genesis, one whose hash does not actually satisfy that
// target. Genesis blocks are seeded rather than mined, so the proof-of-work
// check is skipped for them; their target must still equal the configured
// ceiling.
func (v *blockValidator) checkTarget(block *externalapi.DomainBlock, chain externalapi.ChainIndex) error {
	if block.Header.IsGenesis() {
		if block.Header.Target.Cmp(&v.cfg.MaxMiningTarget.Int) != 0 {
			return ruleerrors.ErrUnexpectedDifficulty
		}
		return nil
	}

	parent := block.Header.Deps.DepFor(chain.FromGroup, chain)
	if parent == nil {
		return ruleerrors.ErrInvalidFlowTxs.Wrap(errors.Errorf("block carries no self-chain dep"))
	}
	diff, ok := v.difficulty[chain]
	if !ok {
		return errors.Errorf("no difficulty manager registered for chain %s", chain)
	}
	want, err := diff.RequiredTarget(chain, parent)
	if err != nil {
		return err
	}
	if block.Header.Target.Cmp(&want.Int) != 0 {
		return ruleerrors.ErrUnexpectedDifficulty
	}

	hash := hashing.HeaderHash(block.Header)
	if externalapi.HashToBig(&hash).Cmp(&block.Header.Target.Int) > 0 {
		return ruleerrors.ErrHighHash
	}
	return nil
}

func (v *blockValidator) checkMerkleRoot(block *externalapi.DomainBlock) error {
	ids := make([]externalapi.DomainHash, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = hashing.TransactionID(tx)
	}
	if merkle.CalcTransactionsRoot(ids) != block.Header.TransactionsHash {
		return ruleerrors.ErrInvalidTxsMerkleRoot
	}
	return nil
}

// checkTxs validates every non-coinbase transaction and rejects a block
// that spends the same output twice within itself, then sums the gas fee
// the coinbase must account for.
func (v *blockValidator) checkTxs(block *externalapi.DomainBlock, chain externalapi.ChainIndex, view model.WorldStateView) (uint64, error) {
	seen := make(map[externalapi.TxOutputRef]bool)
	totalGasFee := uint64(0)
	for _, tx := range block.NonCoinbaseTransactions() {
		for _, in := range tx.Unsigned.Inputs {
			if seen[in.OutputRef] {
				return 0, ruleerrors.ErrBlockDoubleSpending
			}
			seen[in.OutputRef] = true
		}
		gasFee, err := v.txVal.ValidateTransaction(tx, chain, view, block.Header.TimestampInMillis)
		if err != nil {
			return 0, &ruleerrors.ErrExistInvalidTx{TxID: hashing.TransactionID(tx), Err: err}
		}
		totalGasFee += gasFee
	}
	return totalGasFee, nil
}
