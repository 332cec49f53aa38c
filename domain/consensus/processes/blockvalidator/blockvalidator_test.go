package blockvalidator

import (
	"errors"
	"math/big"
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/processes/coinbasemanager"
	"github.com/flowchain/flowchain/domain/consensus/ruleerrors"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/flowchain/flowchain/domain/consensus/utils/merkle"
)

func testCoinbaseConfig() coinbasemanager.Config {
	return coinbasemanager.Config{
		MinimalGas:           0,
		MinimalGasPrice:      0,
		CoinbaseLockupPeriod: 10,
		MiningReward:         50,
		MaxBlockReward:       1000,
	}
}

func testValidatorConfig() Config {
	return Config{
		GroupCount:      1,
		MaxTxsPerBlock:  10,
		MaxGasPerBlock:  1_000_000,
		MaxMiningTarget: *externalapi.NewDomainTargetFromBig(big.NewInt(1 << 40)),
	}
}

// noTxValidator panics if invoked, since a block with only a coinbase never
// reaches the non-coinbase transaction validation path.
type noTxValidator struct{}

func (noTxValidator) ValidateTransaction(*externalapi.DomainTransaction, externalapi.ChainIndex, model.WorldStateView, externalapi.DomainTimestamp) (uint64, error) {
	panic("ValidateTransaction should not be called for a coinbase-only block")
}

// recordingView backs only AddAssetOutput, the sole method ValidateBlock's
// coinbase-crediting step calls once a block's coinbase passes shape
// validation.
type recordingView struct {
	model.WorldStateView

	credited []*externalapi.AssetOutput
}

func (v *recordingView) AddAssetOutput(ref externalapi.AssetOutputRef, output *externalapi.AssetOutput) {
	v.credited = append(v.credited, output)
}

func genesisShapedBlock(t *testing.T, chain externalapi.ChainIndex, coinbaseCfg coinbasemanager.Config, txs []*externalapi.DomainTransaction) *externalapi.DomainBlock {
	t.Helper()
	ts := externalapi.DomainTimestamp(1000)
	cb := coinbasemanager.New(coinbaseCfg)
	coinbaseTx, err := cb.BuildCoinbase(chain, make([]byte, 32), 0, ts)
	if err != nil {
		t.Fatalf("BuildCoinbase: %s", err)
	}
	all := append(append([]*externalapi.DomainTransaction{}, txs...), coinbaseTx)

	ids := make([]externalapi.DomainHash, len(all))
	for i, tx := range all {
		ids[i] = hashing.TransactionID(tx)
	}
	header := &externalapi.DomainBlockHeader{
		TransactionsHash:  merkle.CalcTransactionsRoot(ids),
		TimestampInMillis: ts,
		Target:            testValidatorConfig().MaxMiningTarget,
	}
	return &externalapi.DomainBlock{Header: header, Transactions: all}
}

// TestValidateBlockAcceptsValidGenesisBlock covers the single-chain-growth
// scenario at the block-validation boundary: a well-formed genesis block
// (bare coinbase, no deps) passes every check.
func TestValidateBlockAcceptsValidGenesisBlock(t *testing.T) {
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	v := New(testValidatorConfig(), noTxValidator{}, coinbasemanager.New(testCoinbaseConfig()), nil)
	block := genesisShapedBlock(t, chain, testCoinbaseConfig(), nil)
	view := &recordingView{}

	if err := v.ValidateBlock(block, chain, view, 0, 0); err != nil {
		t.Fatalf("ValidateBlock rejected a well-formed genesis block: %s", err)
	}
	if len(view.credited) != 1 {
		t.Errorf("credited %d outputs, want the coinbase's single reward output", len(view.credited))
	}
}

// TestValidateBlockRejectsMalformedCoinbase covers the coinbase-format
// rejection scenario: a coinbase carrying generated outputs (a shape only
// contract execution should produce) fails IsCoinbase, and ValidateBlock
// surfaces ErrInvalidCoinbaseFormat.
func TestValidateBlockRejectsMalformedCoinbase(t *testing.T) {
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	v := New(testValidatorConfig(), noTxValidator{}, coinbasemanager.New(testCoinbaseConfig()), nil)
	block := genesisShapedBlock(t, chain, testCoinbaseConfig(), nil)
	block.Coinbase().GeneratedOutputs = []*externalapi.AssetOutput{{Amount: 1}}
	// Generated outputs are part of the transaction id, so the header must
	// commit to the altered coinbase for the block to pass the Merkle-root
	// check and reach coinbase validation.
	ids := make([]externalapi.DomainHash, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = hashing.TransactionID(tx)
	}
	block.Header.TransactionsHash = merkle.CalcTransactionsRoot(ids)

	err := v.ValidateBlock(block, chain, nil, 0, 0)
	if err == nil {
		t.Fatal("ValidateBlock accepted a coinbase carrying generated outputs")
	}
	if !errors.Is(err, ruleerrors.ErrInvalidCoinbaseFormat) {
		t.Errorf("err = %v, want it to match ErrInvalidCoinbaseFormat", err)
	}
}

// TestValidateBlockRejectsInBlockDoubleSpend covers the in-block
// double-spend scenario: a single non-coinbase transaction whose two
// inputs point at the same output is rejected before signature or VM
// checks ever run.
func TestValidateBlockRejectsInBlockDoubleSpend(t *testing.T) {
	chain := externalapi.ChainIndex{FromGroup: 0, ToGroup: 0}
	v := New(testValidatorConfig(), noTxValidator{}, coinbasemanager.New(testCoinbaseConfig()), nil)

	ref := externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: externalapi.DomainHash{9}}
	doubleSpend := &externalapi.DomainTransaction{
		Unsigned: &externalapi.UnsignedTx{
			GasAmount: 100,
			GasPrice:  1,
			Inputs: []*externalapi.TxInput{
				{OutputRef: ref, UnlockScript: []byte("sig-a")},
				{OutputRef: ref, UnlockScript: []byte("sig-b")},
			},
			FixedOutputs: []*externalapi.AssetOutput{{Amount: 1}},
		},
	}
	block := genesisShapedBlock(t, chain, testCoinbaseConfig(), []*externalapi.DomainTransaction{doubleSpend})

	err := v.ValidateBlock(block, chain, nil, 0, 0)
	if err == nil {
		t.Fatal("ValidateBlock accepted a block whose transaction double-spends an output")
	}
	if !errors.Is(err, ruleerrors.ErrBlockDoubleSpending) {
		t.Errorf("err = %v, want it to match ErrBlockDoubleSpending", err)
	}
}
