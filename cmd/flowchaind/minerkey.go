package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/term"
)

// createMnemonic generates a fresh 24-word mnemonic for a new miner
// identity.
func createMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// lockupFromMnemonic derives the ed25519 public key coinbase outputs
// mined by this node will be locked to. Unlike a hierarchical wallet this
// repository has no bip32 derivation path to walk: the seed bip39 derives
// from the mnemonic is truncated directly to an ed25519 seed, since a
// single mining identity per mnemonic is all a broker needs.
func lockupFromMnemonic(mnemonic string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)
	return []byte(pub), nil
}

// readMnemonic prompts for an existing mnemonic on the controlling
// terminal without echoing it, adapted from the same no-echo prompt
// pattern kaspawallet uses for its passwords, restoring terminal state on
// interrupt.
func readMnemonic(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	initialState, err := term.GetState(fd)
	if err != nil {
		return "", err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		_ = term.Restore(fd, initialState)
		os.Exit(1)
	}()
	defer signal.Stop(sigCh)

	fmt.Print(prompt)
	line, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(line), nil
}

// minerLockup returns the lockup script for coinbase outputs this node
// mines. If importMnemonic is set it prompts for an existing mnemonic on
// the controlling terminal; otherwise it generates and persists a fresh
// one the first time it runs against dataDir and reads it back on every
// subsequent run.
func minerLockup(dataDir string, importMnemonic bool) ([]byte, error) {
	mnemonicFile := dataDir + "/miner.mnemonic.txt"

	if importMnemonic {
		mnemonic, err := readMnemonic("Enter miner mnemonic: ")
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(mnemonicFile, []byte(mnemonic), 0600); err != nil {
			return nil, err
		}
		return lockupFromMnemonic(mnemonic)
	}

	if _, err := os.Stat(mnemonicFile); os.IsNotExist(err) {
		mnemonic, err := createMnemonic()
		if err != nil {
			return nil, err
		}
		fmt.Println("No miner identity found. Generated a new mnemonic - write it down:")
		fmt.Println(mnemonic)
		if err := os.WriteFile(mnemonicFile, []byte(mnemonic), 0600); err != nil {
			return nil, err
		}
		return lockupFromMnemonic(mnemonic)
	}
	mnemonicBytes, err := os.ReadFile(mnemonicFile)
	if err != nil {
		return nil, err
	}
	return lockupFromMnemonic(string(mnemonicBytes))
}
