// Package hashing computes the canonical hashes that headers, transactions
// and contract code commit to. All hashing goes through blake2b-256, the
// same primitive the VM exposes to scripts via its blake2b instruction, so
// that an on-chain contract can recompute a header or transaction hash
// byte-for-byte.
package hashing

import (
	"encoding/binary"
	"hash"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"golang.org/x/crypto/blake2b"
)

// Writer incrementally hashes data without concatenating it into a single
// buffer first. Writer.Write(x).Finalize() == Hash(x).
type Writer struct {
	inner hash.Hash
}

// NewWriter returns a new, empty Writer.
func NewWriter() *Writer {
	h, _ := blake2b.New256(nil)
	return &Writer{inner: h}
}

// Write implements io.Writer; it never returns an error.
func (w *Writer) Write(p []byte) (int, error) {
	return w.inner.Write(p)
}

// WriteUint64 writes v in little-endian form.
func (w *Writer) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = w.Write(buf[:])
}

// WriteHash writes a hash's raw bytes.
func (w *Writer) WriteHash(h *externalapi.DomainHash) {
	if h == nil {
		_, _ = w.Write(externalapi.ZeroHash[:])
		return
	}
	_, _ = w.Write(h[:])
}

// Finalize returns the resulting hash.
func (w *Writer) Finalize() externalapi.DomainHash {
	sum := w.inner.Sum(nil)
	var out externalapi.DomainHash
	copy(out[:], sum)
	return out
}

// Hash computes blake2b-256 over a single byte slice.
func Hash(data []byte) externalapi.DomainHash {
	sum := blake2b.Sum256(data)
	return externalapi.DomainHash(sum)
}

// HeaderHash computes the hash a block header commits to: every dep hash,
// the dep-state root, the transactions root, the timestamp, the target and
// the nonce, in that order. Nonce and timestamp participate so that mining
// (which only varies the nonce) changes the hash, and so that the hash
// written into PoW is reproducible independent of in-memory field order.
func HeaderHash(header *externalapi.DomainBlockHeader) externalapi.DomainHash {
	w := NewWriter()
	if header.Deps != nil {
		for _, dep := range header.Deps.Hashes {
			w.WriteHash(dep)
		}
	}
	w.WriteHash(&header.DepStateHash)
	w.WriteHash(&header.TransactionsHash)
	w.WriteUint64(uint64(header.TimestampInMillis))
	targetBytes := header.Target.Bytes()
	_, _ = w.Write(targetBytes)
	w.WriteUint64(header.Nonce)
	return w.Finalize()
}

// PrePowHash computes the header hash with the nonce zeroed out: the value
// miners iterate the nonce against while searching for a hash under target.
func PrePowHash(header *externalapi.DomainBlockHeader) externalapi.DomainHash {
	clone := header.Clone()
	clone.Nonce = 0
	return HeaderHash(clone)
}

// TransactionID computes a transaction's identity hash: everything except
// InputSignatures and ContractSignatures, which authorize the id rather
// than participate in it.
func TransactionID(tx *externalapi.DomainTransaction) externalapi.DomainHash {
	w := NewWriter()
	u := tx.Unsigned
	_, _ = w.Write(u.Script)
	w.WriteUint64(u.GasAmount)
	w.WriteUint64(u.GasPrice)
	for _, in := range u.Inputs {
		_, _ = w.Write(in.OutputRef.Key[:])
		_, _ = w.Write([]byte{byte(in.OutputRef.Kind)})
		_, _ = w.Write(in.UnlockScript)
	}
	for _, out := range u.FixedOutputs {
		hashAssetOutput(w, out)
	}
	for _, ci := range tx.ContractInputs {
		_, _ = w.Write(ci.Key[:])
	}
	for _, out := range tx.GeneratedOutputs {
		hashAssetOutput(w, out)
	}
	return w.Finalize()
}

// OutputKey derives the world-state key for the outputIndex'th output of
// the transaction identified by txID. A spender's input must reproduce the
// same derivation to reference the output.
func OutputKey(txID externalapi.DomainHash, outputIndex int) externalapi.DomainHash {
	return Hash(append(append([]byte{}, txID[:]...), byte(outputIndex)))
}

func hashAssetOutput(w *Writer, out *externalapi.AssetOutput) {
	w.WriteUint64(out.Amount)
	_, _ = w.Write(out.LockupScript)
	_, _ = w.Write(out.AdditionalData)
	if out.TimeLock.Enabled {
		_, _ = w.Write([]byte{1})
		w.WriteUint64(uint64(out.TimeLock.UnlockAtTimestamp))
	} else {
		_, _ = w.Write([]byte{0})
	}
}
