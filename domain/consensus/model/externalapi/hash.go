package externalapi

import (
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
)

// DomainHashSize is the size in bytes of a DomainHash.
const DomainHashSize = 32

// DomainHash represents the 256-bit hash of a block, transaction or output.
// It is the primary identity and linkage primitive used throughout the
// block-flow engine.
type DomainHash [DomainHashSize]byte

// ZeroHash is the hash with all zero bytes, used as the parent slot of a
// genesis header.
var ZeroHash = DomainHash{}

// String returns the hex-encoded hash in byte order, index 0 first (the
// least significant byte under Less and HashToBig).
func (hash DomainHash) String() string {
	return hex.EncodeToString(hash[:])
}

// ByteSlice returns a copy of the hash as a byte slice.
func (hash *DomainHash) ByteSlice() []byte {
	newSlice := make([]byte, DomainHashSize)
	copy(newSlice, hash[:])
	return newSlice
}

// Equal returns whether hash equals other. Two nil hashes are equal; a nil
// hash is never equal to a non-nil one.
func (hash *DomainHash) Equal(other *DomainHash) bool {
	if hash == nil || other == nil {
		return hash == other
	}
	return *hash == *other
}

// Less returns whether hash is ordered before other, used to produce a
// deterministic ordering over hash slices (e.g. for canonical deps vectors).
func (hash *DomainHash) Less(other *DomainHash) bool {
	for i := DomainHashSize - 1; i >= 0; i-- {
		if hash[i] != other[i] {
			return hash[i] < other[i]
		}
	}
	return false
}

// IsZero returns whether this hash is the all-zero hash.
func (hash *DomainHash) IsZero() bool {
	return *hash == ZeroHash
}

// NewDomainHashFromByteSlice builds a DomainHash from a byte slice of exactly
// DomainHashSize bytes.
func NewDomainHashFromByteSlice(data []byte) (*DomainHash, error) {
	if len(data) != DomainHashSize {
		return nil, errors.Errorf("invalid hash length got %d, expected %d", len(data), DomainHashSize)
	}
	hash := DomainHash{}
	copy(hash[:], data)
	return &hash, nil
}

// NewDomainHashFromString parses a hex-encoded hash.
func NewDomainHashFromString(hashString string) (*DomainHash, error) {
	data, err := hex.DecodeString(hashString)
	if err != nil {
		return nil, errors.Wrapf(err, "failed decoding hash %s", hashString)
	}
	return NewDomainHashFromByteSlice(data)
}

// CloneDomainHashes deep-copies a slice of hash pointers.
func CloneDomainHashes(hashes []*DomainHash) []*DomainHash {
	if hashes == nil {
		return nil
	}
	clone := make([]*DomainHash, len(hashes))
	for i, hash := range hashes {
		hashClone := *hash
		clone[i] = &hashClone
	}
	return clone
}

// HashToBig interprets hash as a 256-bit unsigned integer for comparison
// against a DomainTarget, reversing its bytes first since Less treats the
// last byte as most significant.
func HashToBig(hash *DomainHash) *big.Int {
	reversed := *hash
	for i, j := 0, DomainHashSize-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return new(big.Int).SetBytes(reversed[:])
}

// HashesEqual returns whether two hash slices contain the same hashes in the
// same order.
func HashesEqual(a, b []*DomainHash) bool {
	if len(a) != len(b) {
		return false
	}
	for i, hash := range a {
		if !hash.Equal(b[i]) {
			return false
		}
	}
	return true
}
