package main

import (
	"crypto/ed25519"
	"testing"

	"github.com/tyler-smith/go-bip39"
)

func TestCreateMnemonicIsValid(t *testing.T) {
	mnemonic, err := createMnemonic()
	if err != nil {
		t.Fatalf("createMnemonic: %s", err)
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		t.Fatalf("generated mnemonic %q is not valid", mnemonic)
	}
}

func TestLockupFromMnemonicIsDeterministic(t *testing.T) {
	mnemonic, err := createMnemonic()
	if err != nil {
		t.Fatalf("createMnemonic: %s", err)
	}
	first, err := lockupFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("lockupFromMnemonic: %s", err)
	}
	second, err := lockupFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("lockupFromMnemonic: %s", err)
	}
	if len(first) != ed25519.PublicKeySize {
		t.Fatalf("got lockup script of %d bytes, want %d", len(first), ed25519.PublicKeySize)
	}
	if string(first) != string(second) {
		t.Fatal("deriving from the same mnemonic twice produced different lockup scripts")
	}
}

func TestLockupFromMnemonicRejectsInvalidMnemonic(t *testing.T) {
	if _, err := lockupFromMnemonic("not a real mnemonic at all"); err == nil {
		t.Fatal("expected an error for an invalid mnemonic")
	}
}

func TestDifferentMnemonicsProduceDifferentLockupScripts(t *testing.T) {
	m1, err := createMnemonic()
	if err != nil {
		t.Fatalf("createMnemonic: %s", err)
	}
	m2, err := createMnemonic()
	if err != nil {
		t.Fatalf("createMnemonic: %s", err)
	}
	lockup1, err := lockupFromMnemonic(m1)
	if err != nil {
		t.Fatalf("lockupFromMnemonic: %s", err)
	}
	lockup2, err := lockupFromMnemonic(m2)
	if err != nil {
		t.Fatalf("lockupFromMnemonic: %s", err)
	}
	if string(lockup1) == string(lockup2) {
		t.Fatal("two freshly generated mnemonics produced the same lockup script")
	}
}
