// Package coinbasemanager builds and validates the deterministic coinbase
// transaction described in §4.4: no script, minimal gas parameters, one
// (PoW) or two (PoLW: miner + burn sink) fixed outputs, reward amount
// capped at a hard ceiling, a lock-time on the miner output, and
// additional data on the first output committing to (fromGroup, toGroup,
// blockTs).
package coinbasemanager

import (
	"bytes"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/ruleerrors"
	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
	"github.com/pkg/errors"
)

// Config carries the coinbase-shaping parameters from node configuration.
type Config struct {
	MinimalGas           uint64
	MinimalGasPrice      uint64
	CoinbaseLockupPeriod externalapi.DomainDuration
	MiningReward         uint64
	MaxBlockReward       uint64
	// PolwBurnPercent, when non-zero, splits the reward between the
	// miner and a burn sink output; see DESIGN.md's "PoLW burn ratio"
	// section.
	PolwBurnPercent uint8
	BurnSinkScript  []byte
}

type coinbaseManager struct {
	cfg Config
}

// New constructs a CoinbaseManager.
func New(cfg Config) *coinbaseManager {
	return &coinbaseManager{cfg: cfg}
}

type coinbaseAdditionalData struct {
	FromGroup int32
	ToGroup   int32
	BlockTs   int64
}

func encodeAdditionalData(d coinbaseAdditionalData) []byte {
	buf := &bytes.Buffer{}
	_ = codec.WriteUint32(buf, uint32(d.FromGroup))
	_ = codec.WriteUint32(buf, uint32(d.ToGroup))
	_ = codec.WriteUint64(buf, uint64(d.BlockTs))
	return buf.Bytes()
}

func decodeAdditionalData(data []byte) (coinbaseAdditionalData, error) {
	r := bytes.NewReader(data)
	fromGroup, err := codec.ReadUint32(r)
	if err != nil {
		return coinbaseAdditionalData{}, err
	}
	toGroup, err := codec.ReadUint32(r)
	if err != nil {
		return coinbaseAdditionalData{}, err
	}
	ts, err := codec.ReadUint64(r)
	if err != nil {
		return coinbaseAdditionalData{}, err
	}
	return coinbaseAdditionalData{FromGroup: int32(fromGroup), ToGroup: int32(toGroup), BlockTs: int64(ts)}, nil
}

// totalReward computes gasFee + miningReward capped at MaxBlockReward.
func (m *coinbaseManager) totalReward(gasFee uint64) uint64 {
	reward := gasFee + m.cfg.MiningReward
	if reward > m.cfg.MaxBlockReward {
		return m.cfg.MaxBlockReward
	}
	return reward
}

// BuildCoinbase assembles the deterministic coinbase transaction for a
// block on chain, paying minerLockup.
func (m *coinbaseManager) BuildCoinbase(chain externalapi.ChainIndex, minerLockup []byte, gasFee uint64, blockTimestamp externalapi.DomainTimestamp) (*externalapi.DomainTransaction, error) {
	reward := m.totalReward(gasFee)
	additionalData := encodeAdditionalData(coinbaseAdditionalData{
		FromGroup: int32(chain.FromGroup),
		ToGroup:   int32(chain.ToGroup),
		BlockTs:   int64(blockTimestamp),
	})

	minerAmount := reward
	var outputs []*externalapi.AssetOutput
	if m.cfg.PolwBurnPercent > 0 {
		burnAmount := reward * uint64(m.cfg.PolwBurnPercent) / 100
		minerAmount = reward - burnAmount
		outputs = []*externalapi.AssetOutput{
			{
				Amount:         minerAmount,
				LockupScript:   minerLockup,
				TimeLock:       externalapi.TimeLock{Enabled: true, UnlockAtTimestamp: blockTimestamp.Add(m.cfg.CoinbaseLockupPeriod)},
				AdditionalData: additionalData,
			},
			{
				Amount:       burnAmount,
				LockupScript: m.cfg.BurnSinkScript,
			},
		}
	} else {
		outputs = []*externalapi.AssetOutput{
			{
				Amount:         minerAmount,
				LockupScript:   minerLockup,
				TimeLock:       externalapi.TimeLock{Enabled: true, UnlockAtTimestamp: blockTimestamp.Add(m.cfg.CoinbaseLockupPeriod)},
				AdditionalData: additionalData,
			},
		}
	}

	return &externalapi.DomainTransaction{
		Unsigned: &externalapi.UnsignedTx{
			GasAmount:    m.cfg.MinimalGas,
			GasPrice:     m.cfg.MinimalGasPrice,
			FixedOutputs: outputs,
		},
	}, nil
}

// ValidateCoinbase checks tx against the fixed coinbase shape.
func (m *coinbaseManager) ValidateCoinbase(tx *externalapi.DomainTransaction, chain externalapi.ChainIndex, gasFee uint64, blockTimestamp externalapi.DomainTimestamp) error {
	u := tx.Unsigned
	if !tx.IsCoinbase() {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseFormat, "coinbase carries a script, contract input, generated output or signature")
	}
	if u.HasScript() {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseFormat, "coinbase must not carry a script")
	}
	if u.GasAmount != m.cfg.MinimalGas {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseFormat, "coinbase gasAmount must equal minimalGas")
	}
	if u.GasPrice != m.cfg.MinimalGasPrice {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseFormat, "coinbase gasPrice must equal minimalGasPrice")
	}
	if len(u.Inputs) != 0 {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseFormat, "coinbase must not spend inputs")
	}
	if len(u.FixedOutputs) != 1 && len(u.FixedOutputs) != 2 {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseFormat, "coinbase must have exactly one or two fixed outputs")
	}
	for _, out := range u.FixedOutputs {
		if len(out.Tokens) != 0 {
			return errors.Wrap(ruleerrors.ErrInvalidCoinbaseFormat, "coinbase outputs must not carry tokens")
		}
	}

	minerOutput := u.FixedOutputs[0]
	additionalData, err := decodeAdditionalData(minerOutput.AdditionalData)
	if err != nil {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseData, err.Error())
	}
	if int(additionalData.FromGroup) != chain.FromGroup || int(additionalData.ToGroup) != chain.ToGroup {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseData, "coinbase additional data group mismatch")
	}
	if additionalData.BlockTs != int64(blockTimestamp) {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseData, "coinbase additional data timestamp mismatch")
	}

	expectedUnlock := blockTimestamp.Add(m.cfg.CoinbaseLockupPeriod)
	if !minerOutput.TimeLock.Enabled || minerOutput.TimeLock.UnlockAtTimestamp != expectedUnlock {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseLockupPeriod, "coinbase miner output lockup period mismatch")
	}

	total := uint64(0)
	for _, out := range u.FixedOutputs {
		total += out.Amount
	}
	if total != m.totalReward(gasFee) {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseReward, "coinbase reward mismatch")
	}
	if len(u.FixedOutputs) == 2 {
		expectedBurn := m.totalReward(gasFee) * uint64(m.cfg.PolwBurnPercent) / 100
		if u.FixedOutputs[1].Amount != expectedBurn {
			return errors.Wrap(ruleerrors.ErrInvalidCoinbaseLockedAmount, "coinbase burn amount mismatch")
		}
	}
	if minerOutput.Amount != total-sumBurn(u.FixedOutputs) {
		return errors.Wrap(ruleerrors.ErrInvalidCoinbaseLockedAmount, "coinbase miner amount mismatch")
	}
	return nil
}

func sumBurn(outputs []*externalapi.AssetOutput) uint64 {
	if len(outputs) < 2 {
		return 0
	}
	var sum uint64
	for _, out := range outputs[1:] {
		sum += out.Amount
	}
	return sum
}
