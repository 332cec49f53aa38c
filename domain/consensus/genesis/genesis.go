// Package genesis builds the deterministic seed block for each chain in
// the G x G grid, grounded on kaspad's dagconfig genesis-params idiom: a
// fixed, hand-computed header and a coinbase transaction with no reward to
// collect, existing purely to give a chain's tree a first entry so that
// dependency vectors and difficulty retargets have a genuine ancestor to
// walk back to.
package genesis

import (
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/processes/coinbasemanager"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/flowchain/flowchain/domain/consensus/utils/merkle"
	"github.com/flowchain/flowchain/infrastructure/config"
)

// timestamp is the fixed genesis moment shared by every chain in the grid,
// so that all G^2 genesis blocks are reproducible from cfg alone.
const timestamp externalapi.DomainTimestamp = 0

// Block deterministically constructs chain's genesis block from cfg: a
// header with no deps at all (DomainBlockHeader.IsGenesis reports true for
// a nil Deps vector) and a target equal to the network's mining ceiling,
// carrying a single coinbase transaction that pays nothing to a fixed,
// unspendable lockup script. Two calls with the same chain and cfg always
// produce byte-identical blocks.
func Block(chain externalapi.ChainIndex, cfg *config.Config) *externalapi.DomainBlock {
	coinbase := coinbasemanager.New(coinbasemanager.Config{
		MinimalGas:           cfg.MinimalGas,
		MinimalGasPrice:      cfg.MinimalGasPrice,
		CoinbaseLockupPeriod: cfg.CoinbaseLockupPeriod,
		MiningReward:         0,
		MaxBlockReward:       0,
		PolwBurnPercent:      0,
	})
	// gasFee is 0 and MiningReward/MaxBlockReward are pinned to 0 above,
	// so the resulting coinbase pays a genesis lockup script nothing;
	// its only purpose is to give the block a non-empty transaction list
	// that ValidateCoinbase would still accept if this block were ever
	// re-validated on catch-up sync.
	coinbaseTx, err := coinbase.BuildCoinbase(chain, lockupScript(chain), 0, timestamp)
	if err != nil {
		// BuildCoinbase only fails on programmer error (an unencodable
		// additional-data field), never on configuration data; a
		// panic here means genesis itself is broken, not the network.
		panic(err)
	}

	txs := []*externalapi.DomainTransaction{coinbaseTx}
	ids := make([]externalapi.DomainHash, len(txs))
	for i, tx := range txs {
		ids[i] = hashing.TransactionID(tx)
	}

	header := &externalapi.DomainBlockHeader{
		Deps:              nil,
		DepStateHash:      externalapi.ZeroHash,
		TransactionsHash:  merkle.CalcTransactionsRoot(ids),
		TimestampInMillis: timestamp,
		Target:            cfg.MaxMiningTarget,
	}
	return &externalapi.DomainBlock{Header: header, Transactions: txs}
}

// lockupScript derives a fixed, chain-specific placeholder lockup script so
// that genesis coinbases across the grid don't collide on transaction id;
// it unlocks nothing since the genesis reward is zero.
func lockupScript(chain externalapi.ChainIndex) []byte {
	return []byte{byte(chain.FromGroup), byte(chain.ToGroup), 'g', 'e', 'n'}
}

// Hash returns the header hash of chain's genesis block under cfg.
func Hash(chain externalapi.ChainIndex, cfg *config.Config) externalapi.DomainHash {
	return hashing.HeaderHash(Block(chain, cfg).Header)
}
