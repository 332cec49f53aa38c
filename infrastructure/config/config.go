// Package config is the plain, constructor-built configuration value
// object every subsystem is wired against: no ambient singletons, no
// CLI-flags binding, just a struct passed into constructors per the
// "node context" pattern.
package config

import (
	"math/big"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

// maxMiningTargetBig returns 2^234 - 1, the easiest target the reference
// network's difficulty retarget will ever clamp to.
func maxMiningTargetBig() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 234)
	return max.Sub(max, big.NewInt(1))
}

// Config enumerates every field the wire, consensus and mining-template
// surfaces of a broker node need.
type Config struct {
	// Sharding.
	Groups    int
	BrokerNum int
	BrokerID  int

	// Consensus timing.
	BlockTargetTime        externalapi.DomainDuration
	PowAveragingWindow     uint64
	MaxMiningTarget        externalapi.DomainTarget
	WindowTimeSpanMin      externalapi.DomainDuration
	WindowTimeSpanMax      externalapi.DomainDuration
	ExpectedWindowTimeSpan externalapi.DomainDuration

	// Block limits.
	MaxTxsPerBlock       int
	MaxGasPerBlock       uint64
	MinimalGas           uint64
	MinimalGasPrice      uint64
	CoinbaseLockupPeriod externalapi.DomainDuration
	DustUtxoAmount       uint64

	// Coinbase reward shape (SPEC_FULL §12's Open Question resolution).
	MiningReward    uint64
	MaxBlockReward  uint64
	PolwBurnPercent uint8
	BurnSinkScript  []byte

	// VM bounds (§4.5).
	OperandStackMaxSize int
	FrameStackMaxSize   int

	// Mempool capacity and periodic age-based cleaning (§4.6).
	MempoolSharedCapacity int
	MempoolTxMaxAge       externalapi.DomainDuration
	MempoolCleanInterval  externalapi.DomainDuration

	// Cache capacities (§4.7).
	FlowCacheBlocksPerChain int
	FlowCacheHeaderCapacity int
	FlowCacheStateCapacity  int

	// Network collaborator connection limits (out of scope for this
	// module's own logic, but part of the wire layer's Hello handshake
	// and connection-accounting surface).
	MaxOutboundConnectionsPerGroup int
	MaxInboundConnectionsPerGroup  int

	// NetworkID tags which network this node's transactions and scripts
	// run against, queryable from within the VM.
	NetworkID uint8
}

// BrokerFromGroupRange returns the contiguous [low, high] range of
// from-groups this broker owns, dividing Groups evenly across BrokerNum
// brokers.
func (c *Config) BrokerFromGroupRange() (low, high int) {
	groupsPerBroker := c.Groups / c.BrokerNum
	low = c.BrokerID * groupsPerBroker
	high = low + groupsPerBroker - 1
	if c.BrokerID == c.BrokerNum-1 {
		high = c.Groups - 1
	}
	return low, high
}

// DefaultConfig returns a Config with the reference network's parameters:
// four groups served by a single broker, a ten-second block time and a
// PoW-only (no PoLW burn) reward schedule.
func DefaultConfig() *Config {
	return &Config{
		Groups:    4,
		BrokerNum: 1,
		BrokerID:  0,

		BlockTargetTime:        externalapi.DomainDuration(10_000),
		PowAveragingWindow:     17,
		MaxMiningTarget:        *externalapi.NewDomainTargetFromBig(maxMiningTargetBig()),
		WindowTimeSpanMin:      externalapi.DomainDuration(17 * 10_000 / 4),
		WindowTimeSpanMax:      externalapi.DomainDuration(17 * 10_000 * 4),
		ExpectedWindowTimeSpan: externalapi.DomainDuration(17 * 10_000),

		MaxTxsPerBlock:       1000,
		MaxGasPerBlock:       10_000_000,
		MinimalGas:           20_000,
		MinimalGasPrice:      100,
		CoinbaseLockupPeriod: externalapi.DomainDuration(500 * 24 * 60 * 60 * 1000),
		DustUtxoAmount:       1_000_000,

		MiningReward:    1_000_000_000,
		MaxBlockReward:  2_000_000_000,
		PolwBurnPercent: 0,

		OperandStackMaxSize: 512,
		FrameStackMaxSize:   64,

		MempoolSharedCapacity: 10_000,
		MempoolTxMaxAge:       externalapi.DomainDuration(2 * 60 * 60 * 1000),
		MempoolCleanInterval:  externalapi.DomainDuration(60 * 1000),

		FlowCacheBlocksPerChain: 1024,
		FlowCacheHeaderCapacity: 8192,
		FlowCacheStateCapacity:  8192,

		MaxOutboundConnectionsPerGroup: 10,
		MaxInboundConnectionsPerGroup:  100,

		NetworkID: 0,
	}
}
