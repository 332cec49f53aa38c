package worldstateview

import (
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/datastructures/worldstatestore"
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/infrastructure/db"
)

func newTestStore(t *testing.T) (model.DBManager, externalapi.DomainHash) {
	t.Helper()
	dbManager, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %s", err)
	}
	t.Cleanup(func() { _ = dbManager.Close() })
	return dbManager, externalapi.ZeroHash
}

// TestAssetOutputOverlayFallsThroughToStore covers the copy-on-write
// contract: a view sees its own uncommitted writes immediately, and after
// CommitRoot persists them, a fresh view rooted at the returned root reads
// them straight from the store.
func TestAssetOutputOverlayFallsThroughToStore(t *testing.T) {
	dbManager, base := newTestStore(t)
	store := worldstatestore.New(db.NewBucket([]byte("worldstate")))

	view := New(store, dbManager, base)
	ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{1}}}
	out := &externalapi.AssetOutput{Amount: 42}
	view.AddAssetOutput(ref, out)

	got, ok, err := view.AssetOutput(ref)
	if err != nil {
		t.Fatalf("AssetOutput: %s", err)
	}
	if !ok || got.Amount != 42 {
		t.Fatalf("AssetOutput = %v, %v, want the just-added output", got, ok)
	}

	root := view.CommitRoot()
	dbTx, err := dbManager.Begin()
	if err != nil {
		t.Fatalf("Begin: %s", err)
	}
	if err := store.Commit(dbTx, root); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	if err := dbTx.Commit(); err != nil {
		t.Fatalf("dbTx.Commit: %s", err)
	}

	fresh := New(store, dbManager, root)
	got, ok, err = fresh.AssetOutput(ref)
	if err != nil {
		t.Fatalf("AssetOutput on fresh view: %s", err)
	}
	if !ok || got.Amount != 42 {
		t.Fatalf("AssetOutput on fresh view = %v, %v, want the persisted output", got, ok)
	}
}

// TestSpendAssetOutputHidesItWithoutTouchingTheStore covers spending an
// output the base already carries: the overlay hides it from this view
// without requiring a commit.
func TestSpendAssetOutputHidesItWithoutTouchingTheStore(t *testing.T) {
	dbManager, base := newTestStore(t)
	store := worldstatestore.New(db.NewBucket([]byte("worldstate")))

	seed := New(store, dbManager, base)
	ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{2}}}
	seed.AddAssetOutput(ref, &externalapi.AssetOutput{Amount: 10})
	root := seed.CommitRoot()
	dbTx, err := dbManager.Begin()
	if err != nil {
		t.Fatalf("Begin: %s", err)
	}
	if err := store.Commit(dbTx, root); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	if err := dbTx.Commit(); err != nil {
		t.Fatalf("dbTx.Commit: %s", err)
	}

	view := New(store, dbManager, root)
	if err := view.SpendAssetOutput(ref); err != nil {
		t.Fatalf("SpendAssetOutput: %s", err)
	}
	if _, ok, err := view.AssetOutput(ref); err != nil {
		t.Fatalf("AssetOutput: %s", err)
	} else if ok {
		t.Error("AssetOutput still visible in the spending view after SpendAssetOutput")
	}

	untouched := New(store, dbManager, root)
	if _, ok, err := untouched.AssetOutput(ref); err != nil {
		t.Fatalf("AssetOutput on untouched view: %s", err)
	} else if !ok {
		t.Error("spending one view's overlay leaked into the committed store")
	}
}

// TestRemoveContractClearsStateAndOutput covers a contract's self-destruct
// path from the view's side: once removed, both its state and its output
// disappear from this view, without needing to touch the underlying store.
func TestRemoveContractClearsStateAndOutput(t *testing.T) {
	dbManager, base := newTestStore(t)
	store := worldstatestore.New(db.NewBucket([]byte("worldstate")))
	view := New(store, dbManager, base)

	contractID := externalapi.ContractID{3}
	view.SetContractState(&externalapi.ContractState{ContractID: contractID})
	outRef := externalapi.ContractOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: externalapi.DomainHash(contractID)}}
	view.SetContractOutput(outRef, &externalapi.ContractOutput{Amount: 5})

	if err := view.RemoveContract(contractID); err != nil {
		t.Fatalf("RemoveContract: %s", err)
	}
	view.RemoveContractOutput(outRef)

	if _, ok, err := view.ContractState(contractID); err != nil {
		t.Fatalf("ContractState: %s", err)
	} else if ok {
		t.Error("contract state still visible after RemoveContract")
	}
	if _, ok, err := view.ContractOutput(outRef); err != nil {
		t.Fatalf("ContractOutput: %s", err)
	} else if ok {
		t.Error("contract output still visible after RemoveContractOutput")
	}
}
