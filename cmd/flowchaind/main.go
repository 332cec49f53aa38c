package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flowchain/flowchain/app"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/flowchain/flowchain/infrastructure/config"
	"github.com/flowchain/flowchain/infrastructure/logger"
	"github.com/flowchain/flowchain/infrastructure/network/peer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	flagsCfg, err := loadCliFlags()
	if err != nil {
		return err
	}
	initLog(filepath.Join(flagsCfg.LogDir, "flowchaind.log"), filepath.Join(flagsCfg.LogDir, "flowchaind_err.log"))
	if err := backendLog.Run(); err != nil {
		return err
	}
	defer backendLog.Close()

	cfg := configFromFlags(flagsCfg)

	n, err := buildNode(cfg, flagsCfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to build node: %w", err)
	}

	lockup, err := minerLockup(flagsCfg.DataDir, flagsCfg.ImportMnemonic)
	if err != nil {
		return fmt.Errorf("failed to derive miner identity: %w", err)
	}
	log.Infof("miner lockup script: %x", lockup)

	server := peer.NewServer(cfg, n.domain, backendLog.Logger("PEER"))
	backendLog.SetLogLevels(logger.LevelInfo)
	if err := server.Listen(flagsCfg.ListenAddress); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	log.Infof("listening for peers on %s", flagsCfg.ListenAddress)
	n.ctx.Sync = server

	if flagsCfg.GenerateBlocks {
		stopMiner := runTemplateLoop(cfg, n.domain, lockup)
		defer stopMiner()
	}

	stopCleaner := runMempoolCleaner(cfg, n.ctx)
	defer stopCleaner()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Info("shutting down")
	return nil
}

// configFromFlags overlays the CLI-supplied sharding parameters onto the
// reference network's default consensus parameters.
func configFromFlags(f *cliFlags) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Groups = f.Groups
	cfg.BrokerNum = f.BrokerNum
	cfg.BrokerID = f.BrokerID
	return cfg
}

// runMempoolCleaner periodically evicts, from every chain's mempool, any
// shared-pool transaction older than cfg.MempoolTxMaxAge, per §4.6.
func runMempoolCleaner(cfg *config.Config, ctx *app.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.MempoolCleanInterval.Milliseconds()) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				now := externalapi.Now()
				for from := 0; from < cfg.Groups; from++ {
					for to := 0; to < cfg.Groups; to++ {
						chain := externalapi.ChainIndex{FromGroup: from, ToGroup: to}
						ctx.Mempool.Clean(chain, cfg.MempoolTxMaxAge, now)
					}
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// runTemplateLoop periodically assembles a mining template for every chain
// this broker's from-group range owns and logs its identity. Searching the
// template's nonce space for a valid proof of work is left to an external
// miner talking whatever surface embeds GetTemplate/AddBlock; this loop
// only exercises template assembly so a broker run with --mine produces
// visible activity without one.
func runTemplateLoop(cfg *config.Config, domain *app.Domain, lockup []byte) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.BlockTargetTime.Milliseconds()) * time.Millisecond)
		defer ticker.Stop()
		low, high := cfg.BrokerFromGroupRange()
		for {
			select {
			case <-ticker.C:
				for from := low; from <= high; from++ {
					for to := 0; to < cfg.Groups; to++ {
						chain := externalapi.ChainIndex{FromGroup: from, ToGroup: to}
						template, err := domain.GetTemplate(chain, lockup)
						if err != nil {
							log.Debugf("template for %s failed: %s", chain, err)
							continue
						}
						hash := hashing.HeaderHash(template.Header)
						log.Debugf("assembled template for %s: %s", chain, hash)
					}
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
