// Package ruleerrors enumerates validation-failure conditions (tier 2 of
// the error model): a RuleError means the block or transaction under
// evaluation is rejected and the originating peer may be penalized, but no
// state change is committed and the local chain is otherwise unaffected.
package ruleerrors

import (
	"fmt"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

// RuleError identifies a specific validation-rule violation. Callers use
// errors.Is / type assertion against the sentinel values below to act on a
// particular failure.
type RuleError struct {
	message string
	inner   error
}

// Error satisfies the error interface.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies errors.Unwrap.
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies github.com/pkg/errors.Cause.
func (e RuleError) Cause() error {
	return e.inner
}

// Is satisfies errors.Is, comparing by the sentinel's message so that a
// Wrap()-ped RuleError still matches errors.Is(err, ErrSomeSentinel)
// regardless of what it wraps.
func (e RuleError) Is(target error) bool {
	other, ok := target.(RuleError)
	if !ok {
		return false
	}
	return e.message == other.message
}

// Wrap attaches extra context to a RuleError while preserving its identity
// for errors.Is comparisons against the sentinel value.
func (e RuleError) Wrap(inner error) RuleError {
	return RuleError{message: e.message, inner: inner}
}

func newRuleError(message string) RuleError {
	return RuleError{message: message}
}

var (
	// ErrInvalidGroup indicates the block's chain index does not fall
	// within this broker's assigned range of from-groups.
	ErrInvalidGroup = newRuleError("ErrInvalidGroup")

	// ErrEmptyTransactionList indicates a block has no transactions at
	// all, not even a coinbase.
	ErrEmptyTransactionList = newRuleError("ErrEmptyTransactionList")

	// ErrTooManyTransactions indicates a block exceeds maxTxsPerBlock.
	ErrTooManyTransactions = newRuleError("ErrTooManyTransactions")

	// ErrTxGasPriceNonDecreasing indicates the non-coinbase transactions
	// are not ordered by non-increasing gas price.
	ErrTxGasPriceNonDecreasing = newRuleError("ErrTxGasPriceNonDecreasing")

	// ErrTooManyGasUsed indicates the block's total gas exceeds
	// maxGasPerBlock.
	ErrTooManyGasUsed = newRuleError("ErrTooManyGasUsed")

	// ErrInvalidTxsMerkleRoot indicates the header's txsHash does not
	// match the Merkle root of the block's transactions.
	ErrInvalidTxsMerkleRoot = newRuleError("ErrInvalidTxsMerkleRoot")

	// ErrInvalidFlowTxs indicates the block's deps vector is
	// inconsistent, either because a dep is unknown or because it
	// violates the flow rule against another declared dep.
	ErrInvalidFlowTxs = newRuleError("ErrInvalidFlowTxs")

	// ErrInvalidCoinbaseFormat indicates the coinbase transaction does
	// not match the fixed shape required of coinbases.
	ErrInvalidCoinbaseFormat = newRuleError("ErrInvalidCoinbaseFormat")

	// ErrInvalidCoinbaseData indicates the coinbase's additional data
	// does not match the block's own header fields.
	ErrInvalidCoinbaseData = newRuleError("ErrInvalidCoinbaseData")

	// ErrInvalidCoinbaseReward indicates the coinbase output amount does
	// not match totalReward(gasFee, miningReward).
	ErrInvalidCoinbaseReward = newRuleError("ErrInvalidCoinbaseReward")

	// ErrInvalidCoinbaseLockedAmount indicates the miner output's
	// locked amount is incorrect.
	ErrInvalidCoinbaseLockedAmount = newRuleError("ErrInvalidCoinbaseLockedAmount")

	// ErrInvalidCoinbaseLockupPeriod indicates the miner output's
	// time-lock does not equal block.timestamp + coinbaseLockupPeriod.
	ErrInvalidCoinbaseLockupPeriod = newRuleError("ErrInvalidCoinbaseLockupPeriod")

	// ErrBlockDoubleSpending indicates two transactions within the same
	// block spend the same output.
	ErrBlockDoubleSpending = newRuleError("ErrBlockDoubleSpending")

	// ErrHeaderIncomplete indicates the block references a dependency
	// that has not yet been seen; it is tier 3 (missing dependency), not
	// a hard rejection, but is represented here so callers can use a
	// single error type across the validation surface.
	ErrHeaderIncomplete = newRuleError("ErrHeaderIncomplete")

	// ErrUnexpectedDifficulty indicates a block's target does not match
	// the value the difficulty retarget formula requires for its
	// position in the chain.
	ErrUnexpectedDifficulty = newRuleError("ErrUnexpectedDifficulty")

	// ErrHighHash indicates a block's hash exceeds the target its own
	// header claims, i.e. the proof of work is invalid.
	ErrHighHash = newRuleError("ErrHighHash")

	// ErrInvalidDepStateHash indicates the world-state root produced by
	// actually executing a block's transactions does not match the
	// depStateHash the block's own header declares.
	ErrInvalidDepStateHash = newRuleError("ErrInvalidDepStateHash")
)

// ErrExistInvalidTx wraps the failure of a specific transaction within an
// otherwise structurally valid block.
type ErrExistInvalidTx struct {
	TxID externalapi.DomainHash
	Err  error
}

// Error implements the error interface.
func (e *ErrExistInvalidTx) Error() string {
	return fmt.Sprintf("transaction %s is invalid: %s", e.TxID, e.Err)
}

// Unwrap exposes the underlying transaction-level error.
func (e *ErrExistInvalidTx) Unwrap() error {
	return e.Err
}

// ErrMissingTxOut indicates one or more inputs reference outputs that do
// not exist in the current world-state view (already spent, or never
// created on this branch).
type ErrMissingTxOut struct {
	MissingRefs []externalapi.TxOutputRef
}

// Error implements the error interface.
func (e *ErrMissingTxOut) Error() string {
	return fmt.Sprintf("missing the following output references: %v", e.MissingRefs)
}
