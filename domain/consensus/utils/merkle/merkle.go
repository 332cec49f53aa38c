// Package merkle computes the transactions root committed to by a block
// header's TransactionsHash field.
package merkle

import (
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
)

// CalcTransactionsRoot builds a binary Merkle tree over the ids of txIDs
// and returns its root. An empty list roots to the zero hash; a single
// transaction roots to its own id.
func CalcTransactionsRoot(txIDs []externalapi.DomainHash) externalapi.DomainHash {
	if len(txIDs) == 0 {
		return externalapi.ZeroHash
	}
	level := make([]externalapi.DomainHash, len(txIDs))
	copy(level, txIDs)

	for len(level) > 1 {
		nextLevel := make([]externalapi.DomainHash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				nextLevel = append(nextLevel, hashPair(level[i], level[i]))
			} else {
				nextLevel = append(nextLevel, hashPair(level[i], level[i+1]))
			}
		}
		level = nextLevel
	}
	return level[0]
}

func hashPair(left, right externalapi.DomainHash) externalapi.DomainHash {
	w := hashing.NewWriter()
	w.WriteHash(&left)
	w.WriteHash(&right)
	return w.Finalize()
}
