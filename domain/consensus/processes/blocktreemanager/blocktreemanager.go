// Package blocktreemanager implements the per-chain block tree: an
// append-only DAG of headers/bodies with height queries, reorg bookkeeping
// and ancestry queries, as described in section 4.1 of the design.
//
// Mutation is serialized per chain: every exported method that writes
// takes the manager's mutex for its whole duration, matching the
// concurrency model's requirement that per-chain mutation (tree append,
// reorg) never interleaves.
package blocktreemanager

import (
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/database/dberrors"
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// maxSyncDataHashes bounds the number of successor hashes GetSyncData
// returns in a single call.
const maxSyncDataHashes = 1000

type blockTreeManager struct {
	mu    sync.RWMutex
	store model.BlockTreeStore
	db    model.DBManager

	// maxChainWeight and bestTip cache the result of the last reorg
	// decision so BestTipUnsafe and reorg comparisons are O(1).
	maxChainWeight externalapi.Weight
	bestTip        *externalapi.DomainHash
	tips           map[externalapi.DomainHash]bool
}

// New constructs an empty BlockTreeManager backed by store and db. The
// chain's genesis block is added afterwards through Add with a nil parent.
func New(store model.BlockTreeStore, db model.DBManager) model.BlockTreeManager {
	return &blockTreeManager{
		store: store,
		db:    db,
		tips:  make(map[externalapi.DomainHash]bool),
	}
}

func (m *blockTreeManager) Add(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock,
	parent *externalapi.DomainHash, weight externalapi.Weight) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if exists, err := m.store.Contains(m.db, blockHash); err != nil {
		return err
	} else if exists {
		return errors.Wrapf(dberrors.ErrInvariant, "block %s already exists", blockHash)
	}

	var parentState *externalapi.HashState
	isGenesis := block.Header.IsGenesis()
	if !isGenesis {
		if parent == nil {
			return errors.Wrapf(dberrors.ErrInvariant, "block %s is not genesis but has no parent", blockHash)
		}
		var err error
		parentState, err = m.store.HashState(m.db, parent)
		if err != nil {
			if dberrors.IsNotFound(err) {
				return errors.Wrapf(dberrors.ErrInvariant, "parent %s of block %s is not present", parent, blockHash)
			}
			return err
		}
	}

	state := &externalapi.HashState{
		Timestamp: block.Header.TimestampInMillis,
		Parent:    parent,
	}
	if isGenesis {
		state.Height = 0
		state.Weight = weight
		state.ChainWeight = weight
	} else {
		state.Height = parentState.Height + 1
		state.Weight = weight
		state.ChainWeight = parentState.ChainWeight.Add(weight)
	}

	if err := m.store.Stage(m.db, blockHash, block, state); err != nil {
		return err
	}

	if err := m.updateTipsOnAdd(blockHash, parent); err != nil {
		return err
	}

	if err := m.reorg(blockHash, state); err != nil {
		return err
	}

	dbTx, err := m.db.Begin()
	if err != nil {
		return errors.Wrap(dberrors.ErrIOFailure, err.Error())
	}
	if err := m.store.Commit(dbTx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return errors.Wrap(dberrors.ErrIOFailure, err.Error())
	}
	return nil
}

func (m *blockTreeManager) updateTipsOnAdd(blockHash, parent *externalapi.DomainHash) error {
	if parent != nil {
		delete(m.tips, *parent)
		if err := m.store.StageTip(m.db, parent, true); err != nil {
			return err
		}
	}
	m.tips[*blockHash] = true
	return m.store.StageTip(m.db, blockHash, false)
}

// reorg implements the algorithm from section 4.1: if the new block's
// chainWeight strictly exceeds maxChainWeight, walk from the new block's
// parent upward, moving each ancestor to the head of its height's hash
// list and flipping its canonical flag, stopping as soon as an ancestor is
// already canonical. A tie at equal weight keeps the current canonical
// path (first-inserted wins).
func (m *blockTreeManager) reorg(newHash *externalapi.DomainHash, newState *externalapi.HashState) error {
	if m.bestTip != nil && !newState.ChainWeight.GreaterThan(m.maxChainWeight) {
		// Not a new best: still mark this block as non-canonical
		// explicitly so readers never see a stale default.
		newState.IsCanonical = false
		return m.store.Stage(m.db, newHash, mustBlock(m, newHash), newState)
	}

	// This block becomes canonical; walk the path from it back to the
	// most recent already-canonical ancestor, promoting each to the
	// head of its height bucket.
	if m.bestTip != nil {
		log.Infof("reorg: new best tip %s at chain weight %v (was %s)", newHash, newState.ChainWeight, m.bestTip)
	}
	var toPromote []*externalapi.DomainHash
	cursor := newHash
	cursorState := newState
	for {
		toPromote = append(toPromote, cursor)
		if cursorState.IsCanonical {
			break
		}
		if cursorState.Parent == nil {
			break
		}
		parentState, err := m.store.HashState(m.db, cursorState.Parent)
		if err != nil {
			return err
		}
		cursor = cursorState.Parent
		cursorState = parentState
		if cursorState.IsCanonical {
			break
		}
	}
	forkPoint := cursor

	if oldTip := m.bestTip; oldTip != nil && !oldTip.Equal(forkPoint) {
		if err := m.demoteToFork(oldTip, forkPoint); err != nil {
			return err
		}
	}

	for _, hash := range toPromote {
		state, err := m.store.HashState(m.db, hash)
		if err != nil {
			return err
		}
		state.IsCanonical = true
		if err := m.store.Stage(m.db, hash, mustBlock(m, hash), state); err != nil {
			return err
		}
		heads, err := m.store.HashesByHeight(m.db, state.Height)
		if err != nil {
			return err
		}
		heads = moveToFront(heads, hash)
		if err := m.store.StageHeightHead(m.db, state.Height, heads); err != nil {
			return err
		}
	}

	m.maxChainWeight = newState.ChainWeight
	m.bestTip = newHash
	return nil
}

// demoteToFork walks the previously-canonical path from oldTip back to
// (excluding) forkPoint, clearing each block's canonical flag now that a
// heavier sibling fork has displaced it. Without this, a fork that shares
// only a distant ancestor with the outgoing tip would leave the outgoing
// path's canonical flags stuck, since the promotion walk above only visits
// the new tip's own ancestors.
func (m *blockTreeManager) demoteToFork(oldTip, forkPoint *externalapi.DomainHash) error {
	cursor := oldTip
	for !cursor.Equal(forkPoint) {
		state, err := m.store.HashState(m.db, cursor)
		if err != nil {
			return err
		}
		if !state.IsCanonical {
			break
		}
		state.IsCanonical = false
		if err := m.store.Stage(m.db, cursor, mustBlock(m, cursor), state); err != nil {
			return err
		}
		if state.Parent == nil {
			break
		}
		cursor = state.Parent
	}
	return nil
}

// mustBlock re-reads a block from the store for re-staging alongside an
// updated HashState; both Stage calls must be issued together because the
// store interface pairs them.
func mustBlock(m *blockTreeManager, hash *externalapi.DomainHash) *externalapi.DomainBlock {
	block, err := m.store.Block(m.db, hash)
	if err != nil {
		return nil
	}
	return block
}

func moveToFront(heads []*externalapi.DomainHash, hash *externalapi.DomainHash) []*externalapi.DomainHash {
	filtered := make([]*externalapi.DomainHash, 0, len(heads)+1)
	filtered = append(filtered, hash)
	for _, h := range heads {
		if !h.Equal(hash) {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

func (m *blockTreeManager) Contains(blockHash *externalapi.DomainHash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Contains(m.db, blockHash)
}

func (m *blockTreeManager) Block(blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Block(m.db, blockHash)
}

func (m *blockTreeManager) state(blockHash *externalapi.DomainHash) (*externalapi.HashState, error) {
	return m.store.HashState(m.db, blockHash)
}

func (m *blockTreeManager) Height(blockHash *externalapi.DomainHash) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, err := m.state(blockHash)
	if err != nil {
		return 0, err
	}
	return state.Height, nil
}

func (m *blockTreeManager) Weight(blockHash *externalapi.DomainHash) (externalapi.Weight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, err := m.state(blockHash)
	if err != nil {
		return externalapi.ZeroWeight(), err
	}
	return state.Weight, nil
}

func (m *blockTreeManager) ChainWeight(blockHash *externalapi.DomainHash) (externalapi.Weight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, err := m.state(blockHash)
	if err != nil {
		return externalapi.ZeroWeight(), err
	}
	return state.ChainWeight, nil
}

func (m *blockTreeManager) Timestamp(blockHash *externalapi.DomainHash) (externalapi.DomainTimestamp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, err := m.state(blockHash)
	if err != nil {
		return 0, err
	}
	return state.Timestamp, nil
}

func (m *blockTreeManager) IsTip(blockHash *externalapi.DomainHash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tips[*blockHash], nil
}

func (m *blockTreeManager) AllTips() ([]*externalapi.DomainHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*externalapi.DomainHash, 0, len(m.tips))
	for h := range m.tips {
		hash := h
		out = append(out, &hash)
	}
	return out, nil
}

// BestTipUnsafe returns the tip of maximum chainWeight. It is "unsafe" in
// the sense the caller must not rely on it remaining the best tip once the
// lock is released: another Add may immediately supersede it.
func (m *blockTreeManager) BestTipUnsafe() (*externalapi.DomainHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bestTip == nil {
		return nil, errors.Wrap(dberrors.ErrNotFound, "chain has no blocks")
	}
	tip := *m.bestTip
	return &tip, nil
}

// ChainBack returns the ancestors of blockHash from height heightUntil+1 up
// to and including blockHash itself, oldest first.
func (m *blockTreeManager) ChainBack(blockHash *externalapi.DomainHash, heightUntil uint64) ([]*externalapi.DomainHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var path []*externalapi.DomainHash
	cursor := blockHash
	for {
		state, err := m.state(cursor)
		if err != nil {
			return nil, err
		}
		if state.Height <= heightUntil {
			break
		}
		path = append(path, cursor)
		if state.Parent == nil {
			break
		}
		cursor = state.Parent
	}
	return reverse(path), nil
}

// BlockHashSlice returns the path from genesis to blockHash, inclusive.
func (m *blockTreeManager) BlockHashSlice(blockHash *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var path []*externalapi.DomainHash
	for cursor := blockHash; cursor != nil; {
		path = append(path, cursor)
		state, err := m.state(cursor)
		if err != nil {
			return nil, err
		}
		cursor = state.Parent
	}
	return reverse(path), nil
}

// HashesAfter returns every descendant of blockHash currently known to the
// tree, in DAG (ancestor-before-descendant) order. It is computed by
// scanning height buckets above blockHash's height and keeping those whose
// ancestry passes through blockHash.
func (m *blockTreeManager) HashesAfter(blockHash *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	startState, err := m.state(blockHash)
	if err != nil {
		return nil, err
	}

	descendants := map[externalapi.DomainHash]bool{*blockHash: true}
	var result []*externalapi.DomainHash
	maxHeight, err := m.store.MaxHeight(m.db)
	if err != nil {
		return nil, err
	}
	for h := startState.Height + 1; h <= maxHeight; h++ {
		hashes, err := m.store.HashesByHeight(m.db, h)
		if err != nil {
			return nil, err
		}
		for _, candidate := range hashes {
			state, err := m.state(candidate)
			if err != nil {
				return nil, err
			}
			if state.Parent != nil && descendants[*state.Parent] {
				descendants[*candidate] = true
				result = append(result, candidate)
			}
		}
	}
	return result, nil
}

// BlockHashesBetween returns the path from older (exclusive) to newer
// (inclusive). It fails if older is not an ancestor of newer.
func (m *blockTreeManager) BlockHashesBetween(newer, older *externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	olderState, err := m.state(older)
	if err != nil {
		return nil, err
	}
	path, err := m.chainBackLocked(newer, olderState.Height)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		if newer.Equal(older) {
			return nil, nil
		}
		return nil, errors.Errorf("%s is not an ancestor of %s", older, newer)
	}
	// path's first element's parent must be older.
	firstState, err := m.state(path[0])
	if err != nil {
		return nil, err
	}
	if firstState.Parent == nil || !firstState.Parent.Equal(older) {
		return nil, errors.Errorf("%s is not an ancestor of %s", older, newer)
	}
	return path, nil
}

func (m *blockTreeManager) chainBackLocked(blockHash *externalapi.DomainHash, heightUntil uint64) ([]*externalapi.DomainHash, error) {
	var path []*externalapi.DomainHash
	cursor := blockHash
	for {
		state, err := m.state(cursor)
		if err != nil {
			return nil, err
		}
		if state.Height <= heightUntil {
			break
		}
		path = append(path, cursor)
		if state.Parent == nil {
			break
		}
		cursor = state.Parent
	}
	return reverse(path), nil
}

// CalHashDiff computes, relative to the lowest common ancestor (LCA) of
// newer and older, the hashes to remove (older's path back to the LCA,
// exclusive, newest first) and the hashes to add (from the LCA, exclusive,
// forward to newer). Either list may be empty.
func (m *blockTreeManager) CalHashDiff(newer, older *externalapi.DomainHash) (toRemove, toAdd []*externalapi.DomainHash, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	olderPath, err := m.chainBackLocked(older, 0)
	if err != nil {
		return nil, nil, err
	}
	newerPath, err := m.chainBackLocked(newer, 0)
	if err != nil {
		return nil, nil, err
	}

	olderIndex := make(map[externalapi.DomainHash]int, len(olderPath))
	for i, h := range olderPath {
		olderIndex[*h] = i
	}

	lcaDepth := -1
	for i := len(newerPath) - 1; i >= 0; i-- {
		if _, ok := olderIndex[*newerPath[i]]; ok {
			lcaDepth = i
			break
		}
	}
	if lcaDepth == -1 {
		// The paths share no block above height 0: they meet at genesis.
		return reverse(olderPath), newerPath, nil
	}
	lca := newerPath[lcaDepth]
	lcaHeightInOlder := olderIndex[*lca]

	toRemove = reverse(olderPath[lcaHeightInOlder+1:])
	toAdd = newerPath[lcaDepth+1:]
	return toRemove, toAdd, nil
}

// IsBefore returns whether a is a proper ancestor of b.
func (m *blockTreeManager) IsBefore(a, b *externalapi.DomainHash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	aState, err := m.state(a)
	if err != nil {
		return false, err
	}
	bState, err := m.state(b)
	if err != nil {
		return false, err
	}
	if aState.Height >= bState.Height {
		return false, nil
	}
	cursor := b
	for {
		state, err := m.state(cursor)
		if err != nil {
			return false, err
		}
		if state.Parent == nil {
			return false, nil
		}
		if state.Parent.Equal(a) {
			return true, nil
		}
		if state.Height <= aState.Height {
			return false, nil
		}
		cursor = state.Parent
	}
}

// IsCanonical reports whether blockHash lies on the path from genesis to
// the current best tip. It is O(1): it reads the stored flag maintained by
// reorg.
func (m *blockTreeManager) IsCanonical(blockHash *externalapi.DomainHash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, err := m.state(blockHash)
	if err != nil {
		return false, err
	}
	return state.IsCanonical, nil
}

// GetSyncData returns up to maxSyncDataHashes canonical successor hashes
// after the most recent locator (scanned in the given, typically
// descending, order) that is found to be canonical.
func (m *blockTreeManager) GetSyncData(locators []*externalapi.DomainHash) ([]*externalapi.DomainHash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var anchor *externalapi.DomainHash
	for _, locator := range locators {
		state, err := m.state(locator)
		if err != nil {
			if dberrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if state.IsCanonical {
			anchor = locator
			break
		}
	}
	if anchor == nil {
		return nil, errors.New("no locator is canonical")
	}

	anchorState, err := m.state(anchor)
	if err != nil {
		return nil, err
	}
	tip, err := m.BestTipUnsafe()
	if err != nil {
		return nil, err
	}
	path, err := m.chainBackLocked(tip, anchorState.Height)
	if err != nil {
		return nil, err
	}
	if len(path) > maxSyncDataHashes {
		path = path[:maxSyncDataHashes]
	}
	return path, nil
}

func reverse(hashes []*externalapi.DomainHash) []*externalapi.DomainHash {
	out := make([]*externalapi.DomainHash, len(hashes))
	for i, h := range hashes {
		out[len(hashes)-1-i] = h
	}
	return out
}
