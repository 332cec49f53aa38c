package main

import (
	"github.com/flowchain/flowchain/app"
	"github.com/flowchain/flowchain/domain/consensus/datastructures/blocktreestore"
	"github.com/flowchain/flowchain/domain/consensus/datastructures/flowcache"
	"github.com/flowchain/flowchain/domain/consensus/datastructures/mempoolstore"
	"github.com/flowchain/flowchain/domain/consensus/datastructures/worldstatestore"
	"github.com/flowchain/flowchain/domain/consensus/genesis"
	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/processes/blockflowmanager"
	"github.com/flowchain/flowchain/domain/consensus/processes/blocktreemanager"
	"github.com/flowchain/flowchain/domain/consensus/processes/blockvalidator"
	"github.com/flowchain/flowchain/domain/consensus/processes/coinbasemanager"
	"github.com/flowchain/flowchain/domain/consensus/processes/difficultymanager"
	"github.com/flowchain/flowchain/domain/consensus/processes/mempoolmanager"
	"github.com/flowchain/flowchain/domain/consensus/processes/transactionvalidator"
	"github.com/flowchain/flowchain/domain/consensus/processes/vm"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/flowchain/flowchain/infrastructure/config"
	"github.com/flowchain/flowchain/infrastructure/db"
	"github.com/flowchain/flowchain/infrastructure/wire"
)

// node bundles every long-lived component a running broker needs, built
// once at startup by buildNode.
type node struct {
	dbManager model.DBManager
	domain    *app.Domain
	ctx       *app.Context
}

// buildNode wires one BlockTreeManager, BlockFlowManager and
// BlockValidator per chain in the G x G grid, sharing a single
// world-state store, mempool and flow cache across the grid, then wraps
// them in an app.Context and app.Domain.
func buildNode(cfg *config.Config, dataDir string) (*node, error) {
	blocktreemanager.SetLogger(backendLog.Logger("BLKT"))
	blockflowmanager.SetLogger(backendLog.Logger("FLOW"))
	difficultymanager.SetLogger(backendLog.Logger("DIFF"))
	vm.SetLogger(backendLog.Logger("VM  "))
	mempoolmanager.SetLogger(backendLog.Logger("MPL "))
	flowcache.SetLogger(backendLog.Logger("CACH"))
	wire.SetLogger(backendLog.Logger("WIRE"))

	dbManager, err := db.Open(dataDir)
	if err != nil {
		return nil, err
	}

	headersBucket := db.NewBucket([]byte("headers"))
	worldStateBucket := db.NewBucket([]byte("worldstate"))

	worldState := worldstatestore.New(worldStateBucket)
	mempool := mempoolstore.New(cfg.MempoolSharedCapacity)
	cache := flowcache.New(cfg.FlowCacheBlocksPerChain, cfg.FlowCacheHeaderCapacity, cfg.FlowCacheStateCapacity)
	coinbase := coinbasemanager.New(coinbasemanager.Config{
		MinimalGas:           cfg.MinimalGas,
		MinimalGasPrice:      cfg.MinimalGasPrice,
		CoinbaseLockupPeriod: cfg.CoinbaseLockupPeriod,
		MiningReward:         cfg.MiningReward,
		MaxBlockReward:       cfg.MaxBlockReward,
		PolwBurnPercent:      cfg.PolwBurnPercent,
		BurnSinkScript:       cfg.BurnSinkScript,
	})
	scriptVM := vm.New(vm.Config{
		OperandStackMaxSize: cfg.OperandStackMaxSize,
		FrameStackMaxSize:   cfg.FrameStackMaxSize,
		DustUtxoAmount:      cfg.DustUtxoAmount,
	})
	txValidator := transactionvalidator.New(transactionvalidator.Config{NetworkID: cfg.NetworkID}, scriptVM)

	trees := make(map[externalapi.ChainIndex]model.BlockTreeManager)
	for from := 0; from < cfg.Groups; from++ {
		for to := 0; to < cfg.Groups; to++ {
			chain := externalapi.ChainIndex{FromGroup: from, ToGroup: to}
			bucket := headersBucket.Bucket([]byte(chain.String()))
			store := blocktreestore.New(bucket)
			trees[chain] = blocktreemanager.New(store, dbManager)
		}
	}

	difficulties := make(map[externalapi.ChainIndex]model.DifficultyManager)
	for from := 0; from < cfg.Groups; from++ {
		for to := 0; to < cfg.Groups; to++ {
			chain := externalapi.ChainIndex{FromGroup: from, ToGroup: to}
			difficulties[chain] = difficultymanager.New(difficultymanager.Config{
				PowAveragingWindow:     cfg.PowAveragingWindow,
				ExpectedWindowTimeSpan: cfg.ExpectedWindowTimeSpan,
				WindowTimeSpanMin:      cfg.WindowTimeSpanMin,
				WindowTimeSpanMax:      cfg.WindowTimeSpanMax,
				MaxMiningTarget:        cfg.MaxMiningTarget,
			}, trees[chain])
		}
	}

	// Seed every chain's tree with its genesis block before anything else
	// touches it: BestDeps, mining templates and difficulty retargets all
	// assume a chain has at least one block.
	for from := 0; from < cfg.Groups; from++ {
		for to := 0; to < cfg.Groups; to++ {
			chain := externalapi.ChainIndex{FromGroup: from, ToGroup: to}
			block := genesis.Block(chain, cfg)
			hash := hashing.HeaderHash(block.Header)
			if exists, err := trees[chain].Contains(&hash); err != nil {
				return nil, err
			} else if exists {
				continue
			}
			weight := externalapi.NewWeightFromBig(block.Header.Target.Weight())
			if err := trees[chain].Add(&hash, block, nil, weight); err != nil {
				return nil, err
			}
		}
	}

	flows := make(map[externalapi.ChainIndex]model.BlockFlowManager)
	validators := make(map[externalapi.ChainIndex]model.BlockValidator)
	blockValidatorCfg := blockvalidator.Config{
		GroupCount:      cfg.Groups,
		MaxTxsPerBlock:  cfg.MaxTxsPerBlock,
		MaxGasPerBlock:  cfg.MaxGasPerBlock,
		MaxMiningTarget: cfg.MaxMiningTarget,
	}
	flowCfg := blockflowmanager.Config{
		GroupCount:      cfg.Groups,
		MaxTxsPerBlock:  cfg.MaxTxsPerBlock,
		MaxGasPerBlock:  cfg.MaxGasPerBlock,
		MaxMiningTarget: cfg.MaxMiningTarget,
	}
	for from := 0; from < cfg.Groups; from++ {
		for to := 0; to < cfg.Groups; to++ {
			chain := externalapi.ChainIndex{FromGroup: from, ToGroup: to}
			flows[chain] = blockflowmanager.New(flowCfg, trees, difficulties, worldState, dbManager, mempool, coinbase, txValidator, cache)
			validators[chain] = blockvalidator.New(blockValidatorCfg, txValidator, coinbase, difficulties)
		}
	}

	mempoolMgr := mempoolmanager.New(mempool)
	ctx := app.NewContext(cfg, flows, validators, trees, mempoolMgr, coinbase)
	domain := app.NewDomain(ctx)

	return &node{dbManager: dbManager, domain: domain, ctx: ctx}, nil
}
