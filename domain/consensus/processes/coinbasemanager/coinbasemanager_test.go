package coinbasemanager

import (
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

func testConfig() Config {
	return Config{
		MinimalGas:           100,
		MinimalGasPrice:      1,
		CoinbaseLockupPeriod: 10,
		MiningReward:         50,
		MaxBlockReward:       1000,
	}
}

func TestBuildThenValidateCoinbaseRoundTrips(t *testing.T) {
	m := New(testConfig())
	chain := externalapi.ChainIndex{FromGroup: 1, ToGroup: 2}
	lockup := []byte("miner-lockup-script-32-bytes---")
	ts := externalapi.DomainTimestamp(1000)

	tx, err := m.BuildCoinbase(chain, lockup, 25, ts)
	if err != nil {
		t.Fatalf("BuildCoinbase: %s", err)
	}
	if err := m.ValidateCoinbase(tx, chain, 25, ts); err != nil {
		t.Fatalf("ValidateCoinbase rejected a freshly built coinbase: %s", err)
	}
	if got, want := tx.Unsigned.FixedOutputs[0].Amount, uint64(75); got != want {
		t.Errorf("miner amount = %d, want %d (gasFee 25 + miningReward 50)", got, want)
	}
}

func TestBuildCoinbaseCapsRewardAtMaxBlockReward(t *testing.T) {
	m := New(testConfig())
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	ts := externalapi.DomainTimestamp(0)

	tx, err := m.BuildCoinbase(chain, make([]byte, 32), 5000, ts)
	if err != nil {
		t.Fatalf("BuildCoinbase: %s", err)
	}
	if got := tx.Unsigned.FixedOutputs[0].Amount; got != testConfig().MaxBlockReward {
		t.Errorf("miner amount = %d, want capped %d", got, testConfig().MaxBlockReward)
	}
}

// TestValidateCoinbaseRejectsWrongGroup covers the coinbase-format
// rejection scenario at the additional-data level: a coinbase built for
// one chain must not validate against another.
func TestValidateCoinbaseRejectsWrongGroup(t *testing.T) {
	m := New(testConfig())
	built := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	checked := externalapi.ChainIndex{FromGroup: 1, ToGroup: 1}
	ts := externalapi.DomainTimestamp(500)

	tx, err := m.BuildCoinbase(built, make([]byte, 32), 0, ts)
	if err != nil {
		t.Fatalf("BuildCoinbase: %s", err)
	}
	if err := m.ValidateCoinbase(tx, checked, 0, ts); err == nil {
		t.Fatal("ValidateCoinbase accepted a coinbase built for a different chain")
	}
}

// TestValidateCoinbaseRejectsNonCoinbaseShape covers the coinbase-format
// rejection scenario directly: a transaction carrying generated outputs
// (something only contract execution should produce) is never a valid
// coinbase, whatever else it looks like.
func TestValidateCoinbaseRejectsNonCoinbaseShape(t *testing.T) {
	m := New(testConfig())
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	ts := externalapi.DomainTimestamp(500)

	tx, err := m.BuildCoinbase(chain, make([]byte, 32), 0, ts)
	if err != nil {
		t.Fatalf("BuildCoinbase: %s", err)
	}
	tx.GeneratedOutputs = []*externalapi.AssetOutput{{Amount: 1}}

	if err := m.ValidateCoinbase(tx, chain, 0, ts); err == nil {
		t.Fatal("ValidateCoinbase accepted a transaction carrying generated outputs")
	}
}
