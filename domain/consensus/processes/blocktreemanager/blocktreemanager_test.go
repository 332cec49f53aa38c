package blocktreemanager

import (
	"math/big"
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/datastructures/blocktreestore"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/infrastructure/db"
)

func newTestTree(t *testing.T) *blockTreeManager {
	t.Helper()
	dbManager, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %s", err)
	}
	t.Cleanup(func() { _ = dbManager.Close() })
	store := blocktreestore.New(db.NewBucket([]byte("headers")))
	return New(store, dbManager).(*blockTreeManager)
}

// block returns a block whose header hashes uniquely by nonce and whose
// IsGenesis() reflects whether parent is nil.
func block(nonce byte, parent *externalapi.DomainHash) *externalapi.DomainBlock {
	header := &externalapi.DomainBlockHeader{TimestampInMillis: externalapi.DomainTimestamp(nonce)}
	if parent != nil {
		header.Deps = &externalapi.BlockDeps{GroupCount: 1, Hashes: []*externalapi.DomainHash{parent}}
	}
	tx := &externalapi.DomainTransaction{Unsigned: &externalapi.UnsignedTx{GasAmount: uint64(nonce)}}
	return &externalapi.DomainBlock{Header: header, Transactions: []*externalapi.DomainTransaction{tx}}
}

func hashOf(b *externalapi.DomainBlock) externalapi.DomainHash {
	buf := append([]byte{}, byte(b.Header.TimestampInMillis))
	var h externalapi.DomainHash
	copy(h[:], buf)
	return h
}

func weightOf(n int64) externalapi.Weight {
	return externalapi.NewWeightFromBig(big.NewInt(n))
}

// TestAddGrowsSingleChain covers the single-chain-growth scenario: each
// added block extends the previous one and becomes the new best tip, with
// height and chain weight accumulating monotonically.
func TestAddGrowsSingleChain(t *testing.T) {
	tree := newTestTree(t)

	genesis := block(1, nil)
	genesisHash := hashOf(genesis)
	if err := tree.Add(&genesisHash, genesis, nil, weightOf(1)); err != nil {
		t.Fatalf("Add genesis: %s", err)
	}

	parent := genesisHash
	for i := byte(2); i <= 4; i++ {
		b := block(i, &parent)
		h := hashOf(b)
		if err := tree.Add(&h, b, &parent, weightOf(1)); err != nil {
			t.Fatalf("Add block %d: %s", i, err)
		}
		parent = h
	}

	tip, err := tree.BestTipUnsafe()
	if err != nil {
		t.Fatalf("BestTipUnsafe: %s", err)
	}
	if !tip.Equal(&parent) {
		t.Fatalf("best tip %s, want %s", tip, &parent)
	}
	height, err := tree.Height(tip)
	if err != nil {
		t.Fatalf("Height: %s", err)
	}
	if height != 3 {
		t.Errorf("height = %d, want 3", height)
	}
	chainWeight, err := tree.ChainWeight(tip)
	if err != nil {
		t.Fatalf("ChainWeight: %s", err)
	}
	if chainWeight.Cmp(weightOf(4)) != 0 {
		t.Errorf("chain weight = %s, want 4", &chainWeight.Int)
	}
}

// TestReorgSwitchesCanonicalPath covers the reorg scenario: a heavier fork
// off genesis displaces the previously-canonical tip, and the displaced
// block is no longer canonical.
func TestReorgSwitchesCanonicalPath(t *testing.T) {
	tree := newTestTree(t)

	genesis := block(1, nil)
	genesisHash := hashOf(genesis)
	if err := tree.Add(&genesisHash, genesis, nil, weightOf(1)); err != nil {
		t.Fatalf("Add genesis: %s", err)
	}

	lightBlock := block(2, &genesisHash)
	lightHash := hashOf(lightBlock)
	if err := tree.Add(&lightHash, lightBlock, &genesisHash, weightOf(1)); err != nil {
		t.Fatalf("Add light block: %s", err)
	}
	if tip, err := tree.BestTipUnsafe(); err != nil || !tip.Equal(&lightHash) {
		t.Fatalf("best tip after light block = %v, err %v, want %s", tip, err, &lightHash)
	}

	heavyBlock := block(3, &genesisHash)
	heavyHash := hashOf(heavyBlock)
	if err := tree.Add(&heavyHash, heavyBlock, &genesisHash, weightOf(5)); err != nil {
		t.Fatalf("Add heavy block: %s", err)
	}

	tip, err := tree.BestTipUnsafe()
	if err != nil {
		t.Fatalf("BestTipUnsafe: %s", err)
	}
	if !tip.Equal(&heavyHash) {
		t.Fatalf("best tip after reorg = %s, want %s", tip, &heavyHash)
	}
	lightCanonical, err := tree.IsCanonical(&lightHash)
	if err != nil {
		t.Fatalf("IsCanonical(light): %s", err)
	}
	if lightCanonical {
		t.Error("light block still canonical after a heavier fork was added")
	}
	heavyCanonical, err := tree.IsCanonical(&heavyHash)
	if err != nil {
		t.Fatalf("IsCanonical(heavy): %s", err)
	}
	if !heavyCanonical {
		t.Error("heavy block not marked canonical after reorg")
	}
}
