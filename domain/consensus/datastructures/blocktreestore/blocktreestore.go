// Package blocktreestore persists the per-chain block tree: headers and
// bodies, the HashState bookkeeping (height, weight, chainWeight,
// timestamp, canonical flag) of every known hash, the height index and the
// tip set. It follows the stage/commit pattern used throughout the store
// layer: mutations accumulate in memory and are written to the underlying
// DBManager in a single batched, crash-safe commit per block.
package blocktreestore

import (
	"bytes"
	"math/big"
	"sync"

	"github.com/flowchain/flowchain/domain/consensus/database/dberrors"
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
	infradb "github.com/flowchain/flowchain/infrastructure/db"
	"github.com/pkg/errors"
)

var (
	blockBucketName      = []byte("blocks")
	hashStateBucketName  = []byte("hash-state")
	heightIndexBucket    = []byte("height-index")
	tipsKeyName          = []byte("tips")
)

type stagedState struct {
	blocks       map[externalapi.DomainHash]*externalapi.DomainBlock
	hashStates   map[externalapi.DomainHash]*externalapi.HashState
	heightHeads  map[uint64][]*externalapi.DomainHash
	tips         map[externalapi.DomainHash]bool
	tipsDirty    bool
}

// blockTreeStore implements model.BlockTreeStore for a single chain,
// identified by the bucket prefix it is constructed with.
type blockTreeStore struct {
	mu     sync.Mutex
	bucket model.DBBucket
	staged *stagedState
}

// New creates a store for the chain whose column families live under
// bucket.
func New(bucket model.DBBucket) model.BlockTreeStore {
	return &blockTreeStore{bucket: bucket, staged: newStagedState()}
}

func newStagedState() *stagedState {
	return &stagedState{
		blocks:      make(map[externalapi.DomainHash]*externalapi.DomainBlock),
		hashStates:  make(map[externalapi.DomainHash]*externalapi.HashState),
		heightHeads: make(map[uint64][]*externalapi.DomainHash),
		tips:        make(map[externalapi.DomainHash]bool),
	}
}

func (s *blockTreeStore) Stage(dbContext model.DBReader, blockHash *externalapi.DomainHash,
	block *externalapi.DomainBlock, state *externalapi.HashState) error {

	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.blocks[*blockHash] = block
	s.staged.hashStates[*blockHash] = state
	return nil
}

func (s *blockTreeStore) StageTip(dbContext model.DBReader, tipHash *externalapi.DomainHash, remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.tips[*tipHash] = !remove
	s.staged.tipsDirty = true
	return nil
}

func (s *blockTreeStore) StageHeightHead(dbContext model.DBReader, height uint64, hashes []*externalapi.DomainHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.heightHeads[height] = hashes
	return nil
}

func (s *blockTreeStore) IsStaged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged.blocks) > 0 || len(s.staged.heightHeads) > 0 || s.staged.tipsDirty
}

func (s *blockTreeStore) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = newStagedState()
}

func (s *blockTreeStore) Commit(dbTx model.DBTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, block := range s.staged.blocks {
		data, err := codec.MarshalBlock(block)
		if err != nil {
			return errors.Wrapf(dberrors.ErrIOFailure, "failed encoding block %s: %s", hash, err)
		}
		if err := dbTx.Put(s.bucket.Bucket(blockBucketName).Key(hash[:]), data); err != nil {
			return errors.Wrap(dberrors.ErrIOFailure, err.Error())
		}
	}
	for hash, state := range s.staged.hashStates {
		data := marshalHashState(state)
		if err := dbTx.Put(s.bucket.Bucket(hashStateBucketName).Key(hash[:]), data); err != nil {
			return errors.Wrap(dberrors.ErrIOFailure, err.Error())
		}
	}
	for height, hashes := range s.staged.heightHeads {
		data := marshalHashes(hashes)
		key := heightKey(height)
		if err := dbTx.Put(s.bucket.Bucket(heightIndexBucket).Key(key), data); err != nil {
			return errors.Wrap(dberrors.ErrIOFailure, err.Error())
		}
	}
	if s.staged.tipsDirty {
		current, err := s.loadTipsLocked(dbTx)
		if err != nil && !dberrors.IsNotFound(err) {
			return err
		}
		for hash, add := range s.staged.tips {
			if add {
				current[hash] = true
			} else {
				delete(current, hash)
			}
		}
		data := marshalHashes(hashSetToSlice(current))
		if err := dbTx.Put(s.bucket.Key(tipsKeyName), data); err != nil {
			return errors.Wrap(dberrors.ErrIOFailure, err.Error())
		}
	}

	s.staged = newStagedState()
	return nil
}

func (s *blockTreeStore) Block(dbContext model.DBReader, blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	s.mu.Lock()
	if block, ok := s.staged.blocks[*blockHash]; ok {
		s.mu.Unlock()
		return block, nil
	}
	s.mu.Unlock()

	data, err := dbContext.Get(s.bucket.Bucket(blockBucketName).Key(blockHash[:]))
	if err != nil {
		return nil, translateGetError(err)
	}
	block, err := codec.UnmarshalBlock(data)
	if err != nil {
		return nil, errors.Wrapf(dberrors.ErrCorruption, "failed decoding block %s: %s", blockHash, err)
	}
	return block, nil
}

func (s *blockTreeStore) HashState(dbContext model.DBReader, blockHash *externalapi.DomainHash) (*externalapi.HashState, error) {
	s.mu.Lock()
	if state, ok := s.staged.hashStates[*blockHash]; ok {
		s.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()

	data, err := dbContext.Get(s.bucket.Bucket(hashStateBucketName).Key(blockHash[:]))
	if err != nil {
		return nil, translateGetError(err)
	}
	return unmarshalHashState(data)
}

func (s *blockTreeStore) Contains(dbContext model.DBReader, blockHash *externalapi.DomainHash) (bool, error) {
	_, err := s.HashState(dbContext, blockHash)
	if err != nil {
		if dberrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *blockTreeStore) HashesByHeight(dbContext model.DBReader, height uint64) ([]*externalapi.DomainHash, error) {
	s.mu.Lock()
	if hashes, ok := s.staged.heightHeads[height]; ok {
		s.mu.Unlock()
		return hashes, nil
	}
	s.mu.Unlock()

	data, err := dbContext.Get(s.bucket.Bucket(heightIndexBucket).Key(heightKey(height)))
	if err != nil {
		if dberrors.IsNotFound(translateGetError(err)) {
			return nil, nil
		}
		return nil, translateGetError(err)
	}
	return unmarshalHashes(data)
}

func (s *blockTreeStore) Tips(dbContext model.DBReader) ([]*externalapi.DomainHash, error) {
	s.mu.Lock()
	tips, err := s.loadTipsLocked(dbContext)
	s.mu.Unlock()
	if err != nil {
		if dberrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	for hash, add := range s.snapshotStagedTips() {
		if add {
			tips[hash] = true
		} else {
			delete(tips, hash)
		}
	}
	return hashSetToSlice(tips), nil
}

func (s *blockTreeStore) snapshotStagedTips() map[externalapi.DomainHash]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := make(map[externalapi.DomainHash]bool, len(s.staged.tips))
	for h, v := range s.staged.tips {
		clone[h] = v
	}
	return clone
}

func (s *blockTreeStore) loadTipsLocked(dbContext model.DBReader) (map[externalapi.DomainHash]bool, error) {
	data, err := dbContext.Get(s.bucket.Key(tipsKeyName))
	if err != nil {
		return make(map[externalapi.DomainHash]bool), translateGetError(err)
	}
	hashes, err := unmarshalHashes(data)
	if err != nil {
		return nil, err
	}
	set := make(map[externalapi.DomainHash]bool, len(hashes))
	for _, h := range hashes {
		set[*h] = true
	}
	return set, nil
}

func (s *blockTreeStore) MaxHeight(dbContext model.DBReader) (uint64, error) {
	tips, err := s.Tips(dbContext)
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, tip := range tips {
		state, err := s.HashState(dbContext, tip)
		if err != nil {
			return 0, err
		}
		if state.Height > max {
			max = state.Height
		}
	}
	return max, nil
}

func translateGetError(err error) error {
	if errors.Is(err, infradb.ErrNotFound) {
		return dberrors.ErrNotFound
	}
	return errors.Wrap(dberrors.ErrIOFailure, err.Error())
}

func heightKey(height uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(height >> (8 * i))
	}
	return buf
}

func marshalHashes(hashes []*externalapi.DomainHash) []byte {
	buf := &bytes.Buffer{}
	_ = codec.WriteVarUint(buf, uint64(len(hashes)))
	for _, h := range hashes {
		_ = codec.WriteHash(buf, h)
	}
	return buf.Bytes()
}

func unmarshalHashes(data []byte) ([]*externalapi.DomainHash, error) {
	r := bytes.NewReader(data)
	count, err := codec.ReadVarUint(r)
	if err != nil {
		return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
	}
	hashes := make([]*externalapi.DomainHash, count)
	for i := range hashes {
		h, err := codec.ReadHash(r)
		if err != nil {
			return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
		}
		hashes[i] = &h
	}
	return hashes, nil
}

func hashSetToSlice(set map[externalapi.DomainHash]bool) []*externalapi.DomainHash {
	out := make([]*externalapi.DomainHash, 0, len(set))
	for h := range set {
		hash := h
		out = append(out, &hash)
	}
	return out
}

func marshalHashState(state *externalapi.HashState) []byte {
	buf := &bytes.Buffer{}
	_ = codec.WriteUint64(buf, state.Height)
	_ = codec.WriteBytes(buf, state.Weight.Bytes())
	_ = codec.WriteBytes(buf, state.ChainWeight.Bytes())
	_ = codec.WriteUint64(buf, uint64(state.Timestamp))
	_ = codec.WriteUint8(buf, boolByte(state.IsCanonical))
	if state.Parent != nil {
		_ = codec.WriteUint8(buf, 1)
		_ = codec.WriteHash(buf, state.Parent)
	} else {
		_ = codec.WriteUint8(buf, 0)
	}
	return buf.Bytes()
}

func unmarshalHashState(data []byte) (*externalapi.HashState, error) {
	r := bytes.NewReader(data)
	state := &externalapi.HashState{}
	var err error
	if state.Height, err = codec.ReadUint64(r); err != nil {
		return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
	}
	weightBytes, err := codec.ReadBytes(r)
	if err != nil {
		return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
	}
	state.Weight = externalapi.NewWeightFromBig(bytesToBig(weightBytes))
	chainWeightBytes, err := codec.ReadBytes(r)
	if err != nil {
		return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
	}
	state.ChainWeight = externalapi.NewWeightFromBig(bytesToBig(chainWeightBytes))
	ts, err := codec.ReadUint64(r)
	if err != nil {
		return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
	}
	state.Timestamp = externalapi.DomainTimestamp(ts)
	canonical, err := codec.ReadUint8(r)
	if err != nil {
		return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
	}
	state.IsCanonical = canonical != 0
	hasParent, err := codec.ReadUint8(r)
	if err != nil {
		return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
	}
	if hasParent != 0 {
		parent, err := codec.ReadHash(r)
		if err != nil {
			return nil, errors.Wrap(dberrors.ErrCorruption, err.Error())
		}
		state.Parent = &parent
	}
	return state, nil
}

func bytesToBig(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
