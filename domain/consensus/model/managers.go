package model

import "github.com/flowchain/flowchain/domain/consensus/model/externalapi"

// BlockTreeManager maintains the DAG of headers/blocks for a single chain:
// insertion, reorg, height queries and ancestry queries.
type BlockTreeManager interface {
	Add(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock, parent *externalapi.DomainHash, weight externalapi.Weight) error
	Contains(blockHash *externalapi.DomainHash) (bool, error)
	Block(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error)
	Height(blockHash *externalapi.DomainHash) (uint64, error)
	Weight(blockHash *externalapi.DomainHash) (externalapi.Weight, error)
	ChainWeight(blockHash *externalapi.DomainHash) (externalapi.Weight, error)
	Timestamp(blockHash *externalapi.DomainHash) (externalapi.DomainTimestamp, error)
	IsTip(blockHash *externalapi.DomainHash) (bool, error)
	AllTips() ([]*externalapi.DomainHash, error)
	BestTipUnsafe() (*externalapi.DomainHash, error)
	ChainBack(blockHash *externalapi.DomainHash, heightUntil uint64) ([]*externalapi.DomainHash, error)
	BlockHashSlice(blockHash *externalapi.DomainHash) ([]*externalapi.DomainHash, error)
	HashesAfter(blockHash *externalapi.DomainHash) ([]*externalapi.DomainHash, error)
	BlockHashesBetween(newer, older *externalapi.DomainHash) ([]*externalapi.DomainHash, error)
	CalHashDiff(newer, older *externalapi.DomainHash) (toRemove, toAdd []*externalapi.DomainHash, err error)
	IsBefore(a, b *externalapi.DomainHash) (bool, error)
	IsCanonical(blockHash *externalapi.DomainHash) (bool, error)
	GetSyncData(locators []*externalapi.DomainHash) ([]*externalapi.DomainHash, error)
}

// BlockFlowManager composes the G x G grid of chains into a single
// consistent view: it validates deps vectors against the flow rule,
// exposes copy-on-write group world-state views, and checks for
// block-flow double-spends.
type BlockFlowManager interface {
	AddAndUpdateView(block *externalapi.DomainBlock) error
	CheckFlowTxs(block *externalapi.DomainBlock) (bool, error)
	BestDeps(chain externalapi.ChainIndex) (*externalapi.BlockDeps, error)
	GetMutableGroupView(fromGroup int, deps *externalapi.BlockDeps) (WorldStateView, error)
	PrepareBlockFlowUnsafe(chain externalapi.ChainIndex, minerLockup []byte) (*externalapi.DomainBlock, error)

	// CommitBlockView finalizes the world-state effects a block's
	// transactions produced in view: it recomputes the root the view's
	// accumulated diff commits to, rejects it if that root does not match
	// declaredRoot (the block header's own DepStateHash), and otherwise
	// persists the diff under that root in a single DBTransaction so later
	// blocks on the same chain see it through GetMutableGroupView.
	CommitBlockView(view WorldStateView, declaredRoot externalapi.DomainHash) error
}

// DifficultyManager computes the next block's required target from the
// timestamps and targets of its ancestor window.
type DifficultyManager interface {
	RequiredTarget(chain externalapi.ChainIndex, parent *externalapi.DomainHash) (externalapi.DomainTarget, error)
}

// WorldStateView is a copy-on-write, mutable overlay over a WorldState
// snapshot, used while executing a block's transactions.
type WorldStateView interface {
	AssetOutput(ref externalapi.AssetOutputRef) (*externalapi.AssetOutput, bool, error)
	SpendAssetOutput(ref externalapi.AssetOutputRef) error
	AddAssetOutput(ref externalapi.AssetOutputRef, output *externalapi.AssetOutput)
	ContractState(id externalapi.ContractID) (*externalapi.ContractState, bool, error)
	SetContractState(state *externalapi.ContractState)
	RemoveContract(id externalapi.ContractID) error
	ContractOutput(ref externalapi.ContractOutputRef) (*externalapi.ContractOutput, bool, error)
	SetContractOutput(ref externalapi.ContractOutputRef, output *externalapi.ContractOutput)
	RemoveContractOutput(ref externalapi.ContractOutputRef)
	CommitRoot() externalapi.DomainHash
}

// BlockValidator runs the header/block/transaction/coinbase validation
// pipeline over a candidate block prior to it being committed.
type BlockValidator interface {
	ValidateBlock(block *externalapi.DomainBlock, chain externalapi.ChainIndex, view WorldStateView, brokerFromLow, brokerFromHigh int) error
}

// TransactionValidator checks a single non-coinbase transaction against a
// world-state view: input resolution, unlock scripts, time-locks, VM
// execution and balance.
type TransactionValidator interface {
	ValidateTransaction(tx *externalapi.DomainTransaction, chain externalapi.ChainIndex, view WorldStateView, blockTimestamp externalapi.DomainTimestamp) (gasFee uint64, err error)
}

// CoinbaseManager builds and validates the deterministic coinbase
// transaction.
type CoinbaseManager interface {
	BuildCoinbase(chain externalapi.ChainIndex, minerLockup []byte, gasFee uint64, blockTimestamp externalapi.DomainTimestamp) (*externalapi.DomainTransaction, error)
	ValidateCoinbase(tx *externalapi.DomainTransaction, chain externalapi.ChainIndex, gasFee uint64, blockTimestamp externalapi.DomainTimestamp) error
}

// VM executes a transaction's contract-invoking script against a
// world-state view, enforcing the operand/frame stack bounds, gas
// metering, and asset-approval balancing described in §4.5. A VM-internal
// failure is reported as a *ScriptExecutionError identifying which
// condition failed; an error from the world-state view is returned as it
// is.
type VM interface {
	Execute(ctx *ExecutionContext) (gasUsed uint64, err error)
}

// ExecutionContext carries everything a script needs to run: the
// transaction invoking it, the chain and view it executes against, and
// the environment values scripts can query.
type ExecutionContext struct {
	Tx              *externalapi.DomainTransaction
	Chain           externalapi.ChainIndex
	View            WorldStateView
	BlockTimestamp  externalapi.DomainTimestamp
	BlockTarget     externalapi.DomainTarget
	NetworkID       uint8
	GasLimit        uint64
	IsCalledFromTxScript bool
}

// MempoolManager provides per-chain mempool access ordered by descending
// gas price, plus maintenance operations.
type MempoolManager interface {
	Add(chain externalapi.ChainIndex, tx *externalapi.DomainTransaction, view WorldStateView) error
	Remove(chain externalapi.ChainIndex, txIDs []externalapi.DomainHash) error
	AllByGasPrice(chain externalapi.ChainIndex) []*externalapi.DomainTransaction
	Clean(chain externalapi.ChainIndex, maxAge externalapi.DomainDuration, now externalapi.DomainTimestamp) []externalapi.DomainHash
}
