package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

var defaultHomeDir = filepath.Join(os.Getenv("HOME"), ".flowchaind")

// cliFlags are the arguments flowchaind accepts on its command line. They
// select a network shape and a data directory; the consensus and mining
// parameters themselves live in config.DefaultConfig and are not yet
// exposed as flags since the reference network is the only one this
// binary currently serves.
type cliFlags struct {
	DataDir        string `short:"b" long:"datadir" description:"Directory to store the block tree, world state and mempool databases"`
	LogDir         string `long:"logdir" description:"Directory to log output"`
	Groups         int    `short:"g" long:"groups" description:"Number of shard groups in the chain grid"`
	BrokerNum      int    `long:"brokernum" description:"Number of brokers sharing the grid"`
	BrokerID       int    `long:"brokerid" description:"This broker's index among brokerNum brokers"`
	ListenAddress  string `short:"l" long:"listen" description:"Address to listen for peer connections on"`
	GenerateBlocks bool   `long:"mine" description:"Continuously mine on every owned chain once synced"`
	ImportMnemonic bool   `long:"import-mnemonic" description:"Prompt for an existing miner mnemonic instead of generating one"`
}

func loadCliFlags() (*cliFlags, error) {
	cfg := &cliFlags{
		DataDir:       filepath.Join(defaultHomeDir, "data"),
		LogDir:        filepath.Join(defaultHomeDir, "logs"),
		Groups:        4,
		BrokerNum:     1,
		BrokerID:      0,
		ListenAddress: "0.0.0.0:32100",
	}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return cfg, nil
}
