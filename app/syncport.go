package app

import "github.com/flowchain/flowchain/domain/consensus/model/externalapi"

// SyncPort is Domain's outbound network surface: the announce/fetch/relay
// contracts a network collaborator (the peer transport, or a test double)
// implements so that AddBlock and AddTx can push a new block or transaction
// out, and pull a missing dependency in, without Domain itself knowing
// anything about wire framing or peer selection.
type SyncPort interface {
	// AnnounceBlock tells chain's peers about a newly accepted block.
	AnnounceBlock(chain externalapi.ChainIndex, block *externalapi.DomainBlock) error

	// FetchBlocks requests hashes, all belonging to chain, from chain's
	// peers, used when AddBlock discovers a dependency it hasn't seen yet.
	FetchBlocks(chain externalapi.ChainIndex, hashes []externalapi.DomainHash) error

	// RelayTx announces txHashes, all admitted to chain's mempool, to
	// chain's peers.
	RelayTx(chain externalapi.ChainIndex, txHashes []externalapi.DomainHash) error
}
