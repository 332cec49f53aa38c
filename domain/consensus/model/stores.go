package model

import "github.com/flowchain/flowchain/domain/consensus/model/externalapi"

// BlockTreeStore persists, per chain, the header/body of every known block
// plus its HashState bookkeeping, the height index, and the tip set.
type BlockTreeStore interface {
	Stage(dbContext DBReader, blockHash *externalapi.DomainHash, block *externalapi.DomainBlock, state *externalapi.HashState) error
	StageTip(dbContext DBReader, tipHash *externalapi.DomainHash, remove bool) error
	StageHeightHead(dbContext DBReader, height uint64, hashes []*externalapi.DomainHash) error
	IsStaged() bool
	Discard()
	Commit(dbTx DBTransaction) error

	Block(dbContext DBReader, blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error)
	HashState(dbContext DBReader, blockHash *externalapi.DomainHash) (*externalapi.HashState, error)
	Contains(dbContext DBReader, blockHash *externalapi.DomainHash) (bool, error)
	HashesByHeight(dbContext DBReader, height uint64) ([]*externalapi.DomainHash, error)
	Tips(dbContext DBReader) ([]*externalapi.DomainHash, error)
	MaxHeight(dbContext DBReader) (uint64, error)
}

// WorldStateStore persists the authenticated UTXO and contract maps, keyed
// by the trie root committed to by depStateHash.
type WorldStateStore interface {
	StageAssetOutput(root externalapi.DomainHash, ref externalapi.AssetOutputRef, output *externalapi.AssetOutput)
	StageRemoveAssetOutput(root externalapi.DomainHash, ref externalapi.AssetOutputRef)
	StageContractState(root externalapi.DomainHash, state *externalapi.ContractState)
	StageRemoveContract(root externalapi.DomainHash, id externalapi.ContractID)
	StageContractOutput(root externalapi.DomainHash, ref externalapi.ContractOutputRef, output *externalapi.ContractOutput)
	StageRemoveContractOutput(root externalapi.DomainHash, ref externalapi.ContractOutputRef)
	// ComputeRoot returns the root that committing the currently staged
	// diff on top of parent would produce, without mutating anything.
	ComputeRoot(parent externalapi.DomainHash) externalapi.DomainHash
	// SetParent records root's predecessor root, so lookups can walk the
	// chain. Must be called before Commit for any non-genesis root.
	SetParent(root, parent externalapi.DomainHash)
	Commit(dbTx DBTransaction, newRoot externalapi.DomainHash) error
	Discard()

	AssetOutput(dbContext DBReader, root externalapi.DomainHash, ref externalapi.AssetOutputRef) (*externalapi.AssetOutput, bool, error)
	ContractState(dbContext DBReader, root externalapi.DomainHash, id externalapi.ContractID) (*externalapi.ContractState, bool, error)
	ContractOutput(dbContext DBReader, root externalapi.DomainHash, ref externalapi.ContractOutputRef) (*externalapi.ContractOutput, bool, error)
	Prune(dbTx DBTransaction, supersededRoot externalapi.DomainHash) error
}

// MempoolStore holds the per-broker shared and pending pools.
type MempoolStore interface {
	AddToShared(chain externalapi.ChainIndex, tx *externalapi.DomainTransaction) error
	AddToPending(chain externalapi.ChainIndex, tx *externalapi.DomainTransaction, missing []*externalapi.TxOutputRef) error
	Remove(chain externalapi.ChainIndex, txIDs []externalapi.DomainHash) error
	Contains(chain externalapi.ChainIndex, txID externalapi.DomainHash) bool
	AllByGasPrice(chain externalapi.ChainIndex) []*externalapi.DomainTransaction
	PromotePending(chain externalapi.ChainIndex, satisfied externalapi.TxOutputRef) []*externalapi.DomainTransaction
	EvictOlderThan(chain externalapi.ChainIndex, cutoff externalapi.DomainTimestamp) []externalapi.DomainHash
	Len(chain externalapi.ChainIndex) (shared, pending int)
}
