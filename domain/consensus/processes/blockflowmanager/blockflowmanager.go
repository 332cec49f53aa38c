// Package blockflowmanager composes the G x G grid of per-chain block
// trees into a single consistent view, as described in section 4.2: it
// derives and validates deps vectors against the flow rule, hands out
// copy-on-write world-state views scoped to a group, detects block-flow
// double spends, and assembles mining templates.
package blockflowmanager

import (
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/database/dberrors"
	"github.com/flowchain/flowchain/domain/consensus/datastructures/flowcache"
	"github.com/flowchain/flowchain/domain/consensus/datastructures/worldstateview"
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/ruleerrors"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/flowchain/flowchain/domain/consensus/utils/merkle"
	"github.com/pkg/errors"
)

// Config carries the grid shape, mining-template limits, and the ceiling
// the difficulty retarget formula clamps a fresh chain's genesis target to.
type Config struct {
	GroupCount      int
	MaxTxsPerBlock  int
	MaxGasPerBlock  uint64
	MaxMiningTarget externalapi.DomainTarget
}

type blockFlowManager struct {
	mu sync.RWMutex

	cfg        Config
	trees      map[externalapi.ChainIndex]model.BlockTreeManager
	difficulty map[externalapi.ChainIndex]model.DifficultyManager

	worldState model.WorldStateStore
	db         model.DBManager

	mempool  model.MempoolStore
	coinbase model.CoinbaseManager
	txVal    model.TransactionValidator
	cache    *flowcache.Cache
}

// New constructs a BlockFlowManager over one BlockTreeManager and one
// DifficultyManager per chain in the G x G grid. db is used both to read
// through to the world-state store and to open the transaction
// CommitBlockView persists a block's effects in.
func New(cfg Config, trees map[externalapi.ChainIndex]model.BlockTreeManager, difficulty map[externalapi.ChainIndex]model.DifficultyManager,
	worldState model.WorldStateStore, db model.DBManager, mempool model.MempoolStore, coinbase model.CoinbaseManager,
	txVal model.TransactionValidator, cache *flowcache.Cache) model.BlockFlowManager {

	return &blockFlowManager{
		cfg:        cfg,
		trees:      trees,
		difficulty: difficulty,
		worldState: worldState,
		db:         db,
		mempool:    mempool,
		coinbase:   coinbase,
		txVal:      txVal,
		cache:      cache,
	}
}

func (m *blockFlowManager) tree(chain externalapi.ChainIndex) (model.BlockTreeManager, error) {
	t, ok := m.trees[chain]
	if !ok {
		return nil, errors.Errorf("no block tree registered for chain %s", chain)
	}
	return t, nil
}

// requiredTarget returns the target a new block on chain must satisfy,
// extending selfParent (chain's own current tip). A nil or zero selfParent
// means chain has no blocks yet, so the configured ceiling applies as-is.
func (m *blockFlowManager) requiredTarget(chain externalapi.ChainIndex, selfParent *externalapi.DomainHash) (externalapi.DomainTarget, error) {
	if selfParent == nil || selfParent.IsZero() {
		return m.cfg.MaxMiningTarget, nil
	}
	diff, ok := m.difficulty[chain]
	if !ok {
		return externalapi.DomainTarget{}, errors.Errorf("no difficulty manager registered for chain %s", chain)
	}
	return diff.RequiredTarget(chain, selfParent)
}

// inDepOffset mirrors externalapi.BlockDeps' own (unexported) offset
// arithmetic: the position within a deps-vector's leading G-1 in-deps
// that tracks the chain otherGroup -> ownGroup.
func inDepOffset(ownGroup, otherGroup int) int {
	if otherGroup < ownGroup {
		return otherGroup
	}
	return otherGroup - 1
}

// BestDeps derives the deps vector a new block on chain would declare
// right now: for every other group, the current best tip of the chain
// running into chain.FromGroup, and for every group, the current best tip
// of the chain running out of it.
func (m *blockFlowManager) BestDeps(chain externalapi.ChainIndex) (*externalapi.BlockDeps, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	own := chain.FromGroup
	hashes := make([]*externalapi.DomainHash, externalapi.DepsLength(m.cfg.GroupCount))
	for other := 0; other < m.cfg.GroupCount; other++ {
		if other == own {
			continue
		}
		tree, err := m.tree(externalapi.ChainIndex{FromGroup: other, ToGroup: own})
		if err != nil {
			return nil, err
		}
		tip, err := tree.BestTipUnsafe()
		if err != nil {
			return nil, err
		}
		hashes[inDepOffset(own, other)] = tip
	}
	for to := 0; to < m.cfg.GroupCount; to++ {
		tree, err := m.tree(externalapi.ChainIndex{FromGroup: own, ToGroup: to})
		if err != nil {
			return nil, err
		}
		tip, err := tree.BestTipUnsafe()
		if err != nil {
			return nil, err
		}
		hashes[m.cfg.GroupCount-1+to] = tip
	}
	return externalapi.NewBlockDeps(m.cfg.GroupCount, hashes)
}

// checkDepsConsistency implements flow rule (b): for any two chains
// (ownGroup, a) and (ownGroup, b) that deps declares tips for, each tip
// must already be reachable from what the other tip's own deps vector
// declared for that same chain. Two out-deps chosen without regard to each
// other's view of the DAG would fail this, even though each is
// individually a real, known block.
func (m *blockFlowManager) checkDepsConsistency(ownGroup int, deps *externalapi.BlockDeps) (bool, error) {
	out := deps.OutDeps()
	for a := 0; a < len(out); a++ {
		tipA := out[a]
		if tipA == nil {
			continue
		}
		for b := a + 1; b < len(out); b++ {
			tipB := out[b]
			if tipB == nil {
				continue
			}
			ok, err := m.pairConsistent(ownGroup, a, tipA, b, tipB)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// pairConsistent checks the two directions of flow rule (b) for a single
// pair of out-deps: tipB must be reachable from what tipA's own deps
// declared for chain (ownGroup, chainB), and symmetrically for tipA.
func (m *blockFlowManager) pairConsistent(ownGroup, chainA int, tipA *externalapi.DomainHash, chainB int, tipB *externalapi.DomainHash) (bool, error) {
	treeA, err := m.tree(externalapi.ChainIndex{FromGroup: ownGroup, ToGroup: chainA})
	if err != nil {
		return true, nil
	}
	treeB, err := m.tree(externalapi.ChainIndex{FromGroup: ownGroup, ToGroup: chainB})
	if err != nil {
		return true, nil
	}

	blockA, err := treeA.Block(tipA)
	if err != nil {
		return false, err
	}
	blockB, err := treeB.Block(tipB)
	if err != nil {
		return false, err
	}

	var depAForB, depBForA *externalapi.DomainHash
	if blockA.Header.Deps != nil {
		depAForB = blockA.Header.Deps.DepFor(ownGroup, externalapi.ChainIndex{FromGroup: ownGroup, ToGroup: chainB})
	}
	if blockB.Header.Deps != nil {
		depBForA = blockB.Header.Deps.DepFor(ownGroup, externalapi.ChainIndex{FromGroup: ownGroup, ToGroup: chainA})
	}

	if ok, err := m.ancestorOrEqual(treeB, depAForB, tipB); err != nil || !ok {
		return ok, err
	}
	return m.ancestorOrEqual(treeA, depBForA, tipA)
}

// ancestorOrEqual reports whether ancestor is nil, equal to descendant, or a
// strict ancestor of descendant on tree.
func (m *blockFlowManager) ancestorOrEqual(tree model.BlockTreeManager, ancestor, descendant *externalapi.DomainHash) (bool, error) {
	if ancestor == nil || descendant == nil {
		return true, nil
	}
	if *ancestor == *descendant {
		return true, nil
	}
	return tree.IsBefore(ancestor, descendant)
}

// effectiveRoot returns the world-state root the group's intra-chain tip
// currently commits to: the base every new block or mempool admission for
// that group builds on. Each AddAndUpdateView call already folds a block's
// own effects (and, transitively, everything its deps carried) into the
// next block's DepStateHash, so the intra-chain tip's own DepStateHash is
// always the up-to-date effective root; nothing needs replaying here.
func (m *blockFlowManager) effectiveRoot(fromGroup int) (externalapi.DomainHash, error) {
	tree, err := m.tree(externalapi.ChainIndex{FromGroup: fromGroup, ToGroup: fromGroup})
	if err != nil {
		return externalapi.ZeroHash, err
	}
	tip, err := tree.BestTipUnsafe()
	if err != nil {
		if dberrors.IsNotFound(err) {
			return externalapi.ZeroHash, nil
		}
		return externalapi.ZeroHash, err
	}
	block, err := tree.Block(tip)
	if err != nil {
		return externalapi.ZeroHash, err
	}
	return block.Header.DepStateHash, nil
}

// GetMutableGroupView returns a fresh copy-on-write overlay rooted at
// fromGroup's current effective world state. deps is accepted to match the
// operation's signature in section 4.2 but is not otherwise consulted,
// since the effective root already reflects every dep folded in by past
// AddAndUpdateView calls.
func (m *blockFlowManager) GetMutableGroupView(fromGroup int, deps *externalapi.BlockDeps) (model.WorldStateView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	root, err := m.effectiveRoot(fromGroup)
	if err != nil {
		return nil, err
	}
	return worldstateview.New(m.worldState, m.db, root), nil
}

// CommitBlockView recomputes the root view's accumulated diff produces and,
// only if it matches declaredRoot, persists that diff to the world-state
// store in a single DBTransaction. A mismatch means the block's
// transactions, once actually executed, produced a different world state
// than its header claims, and the block must be rejected rather than
// folded into the chain.
func (m *blockFlowManager) CommitBlockView(view model.WorldStateView, declaredRoot externalapi.DomainHash) error {
	root := view.CommitRoot()
	if root != declaredRoot {
		return ruleerrors.ErrInvalidDepStateHash
	}

	dbTx, err := m.db.Begin()
	if err != nil {
		return err
	}
	if err := m.worldState.Commit(dbTx, root); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

// CheckFlowTxs verifies that block's declared deps are mutually consistent
// with each other (flow rule (b)), that no input spent by one of block's
// non-coinbase transactions is already unavailable in the group view its
// deps commit to, and that no two of block's own transactions spend the
// same input twice — the ways a block can be inconsistent with the flow
// already recorded by its declared dependencies.
func (m *blockFlowManager) CheckFlowTxs(block *externalapi.DomainBlock) (bool, error) {
	hash := hashing.HeaderHash(block.Header)
	chain := externalapi.ChainIndexFromHash(&hash, m.cfg.GroupCount)

	if !block.Header.IsGenesis() {
		ok, err := m.checkDepsConsistency(chain.FromGroup, block.Header.Deps)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	view, err := m.GetMutableGroupView(chain.FromGroup, block.Header.Deps)
	if err != nil {
		return false, err
	}

	seen := make(map[externalapi.TxOutputRef]bool)
	for _, tx := range block.NonCoinbaseTransactions() {
		for _, in := range tx.Unsigned.Inputs {
			if seen[in.OutputRef] {
				return false, nil
			}
			seen[in.OutputRef] = true
		}
	}
	for _, tx := range block.NonCoinbaseTransactions() {
		for _, in := range tx.Unsigned.Inputs {
			if in.OutputRef.Kind != externalapi.OutputRefKindAsset {
				continue
			}
			ref := externalapi.AssetOutputRef{TxOutputRef: in.OutputRef}
			_, ok, err := view.AssetOutput(ref)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// AddAndUpdateView inserts block into its chain's tree, idempotently, and
// records its world-state effects so later blocks see them as part of the
// effective root. block's header must already carry the DepStateHash its
// transactions were validated against.
func (m *blockFlowManager) AddAndUpdateView(block *externalapi.DomainBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := hashing.HeaderHash(block.Header)
	chain := externalapi.ChainIndexFromHash(&hash, m.cfg.GroupCount)
	tree, err := m.tree(chain)
	if err != nil {
		return err
	}

	if exists, err := tree.Contains(&hash); err != nil {
		return err
	} else if exists {
		return nil
	}

	var parent *externalapi.DomainHash
	if !block.Header.IsGenesis() {
		parent = block.Header.Deps.DepFor(chain.FromGroup, chain)
		if parent == nil {
			return ruleerrors.ErrInvalidFlowTxs.Wrap(errors.Errorf("block %s carries no self-chain dep", hash))
		}
	}

	weight := externalapi.NewWeightFromBig(block.Header.Target.Weight())
	if err := tree.Add(&hash, block, parent, weight); err != nil {
		return err
	}

	m.cache.PutBlock(chain, hash, block)
	return nil
}

// PrepareBlockFlowUnsafe assembles a mining template for chain: the best
// deps vector known right now, transactions pulled from the mempool by
// descending gas price up to the configured caps, and a deterministic
// coinbase covering their combined gas fee. It is "unsafe" because the
// deps and mempool contents it reads may already be stale by the time the
// caller finishes mining against them.
func (m *blockFlowManager) PrepareBlockFlowUnsafe(chain externalapi.ChainIndex, minerLockup []byte) (*externalapi.DomainBlock, error) {
	deps, err := m.BestDeps(chain)
	if err != nil {
		return nil, err
	}

	view, err := m.GetMutableGroupView(chain.FromGroup, deps)
	if err != nil {
		return nil, err
	}

	now := externalapi.Now()

	// Candidates are executed against view, not merely selected, so the
	// DepStateHash this template declares below is the actual result of
	// running them rather than a stand-in AddBlock could never reproduce.
	// A candidate that fails to validate here (e.g. its input was already
	// consumed by an earlier candidate in this same pass) is dropped from
	// the template instead of aborting assembly.
	candidates := m.mempool.AllByGasPrice(chain)
	txs := make([]*externalapi.DomainTransaction, 0, len(candidates))
	totalGas := uint64(0)
	totalGasFee := uint64(0)
	for _, tx := range candidates {
		if len(txs) >= m.cfg.MaxTxsPerBlock-1 {
			break
		}
		if totalGas+tx.Unsigned.GasAmount > m.cfg.MaxGasPerBlock {
			continue
		}
		gasFee, err := m.txVal.ValidateTransaction(tx, chain, view, now)
		if err != nil {
			log.Debugf("dropping mempool tx from template on chain %s: %s", chain, err)
			continue
		}
		totalGas += tx.Unsigned.GasAmount
		totalGasFee += gasFee
		txs = append(txs, tx)
	}

	coinbaseTx, err := m.coinbase.BuildCoinbase(chain, minerLockup, totalGasFee, now)
	if err != nil {
		return nil, err
	}
	txs = append(txs, coinbaseTx)

	// Credited into view under the same derivation ValidateBlock uses once
	// the block comes back for acceptance, so the declared DepStateHash
	// below matches what AddBlock independently recomputes.
	coinbaseTxID := hashing.TransactionID(coinbaseTx)
	for i, out := range coinbaseTx.Unsigned.FixedOutputs {
		ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{
			Kind: externalapi.OutputRefKindAsset,
			Key:  hashing.OutputKey(coinbaseTxID, i),
		}}
		view.AddAssetOutput(ref, out)
	}

	ids := make([]externalapi.DomainHash, len(txs))
	for i, tx := range txs {
		ids[i] = hashing.TransactionID(tx)
	}

	target, err := m.requiredTarget(chain, deps.DepFor(chain.FromGroup, chain))
	if err != nil {
		return nil, err
	}

	header := &externalapi.DomainBlockHeader{
		Deps:              deps,
		DepStateHash:      view.CommitRoot(),
		TransactionsHash:  merkle.CalcTransactionsRoot(ids),
		TimestampInMillis: now,
		Target:            target,
	}
	log.Debugf("assembled template for chain %s: %d transactions, target %s", chain, len(txs), &target.Int)
	return &externalapi.DomainBlock{Header: header, Transactions: txs}, nil
}
