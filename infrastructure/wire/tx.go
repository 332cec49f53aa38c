package wire

import (
	"io"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
)

// NewTxHashes announces mempool-admitted transactions a peer may not have
// seen yet.
type NewTxHashes struct {
	baseMessage
	Hashes []externalapi.DomainHash
}

// Command implements Message.
func (m *NewTxHashes) Command() MessageCommand { return CmdNewTxHashes }

// Encode implements Message.
func (m *NewTxHashes) Encode(w io.Writer) error { return encodeHashList(w, m.Hashes) }

// Decode implements Message.
func (m *NewTxHashes) Decode(r io.Reader) error {
	hashes, err := decodeHashList(r)
	if err != nil {
		return err
	}
	m.Hashes = hashes
	return nil
}

// GetTxs requests the full transactions identified by Hashes.
type GetTxs struct {
	baseMessage
	Hashes []externalapi.DomainHash
}

// Command implements Message.
func (m *GetTxs) Command() MessageCommand { return CmdGetTxs }

// Encode implements Message.
func (m *GetTxs) Encode(w io.Writer) error { return encodeHashList(w, m.Hashes) }

// Decode implements Message.
func (m *GetTxs) Decode(r io.Reader) error {
	hashes, err := decodeHashList(r)
	if err != nil {
		return err
	}
	m.Hashes = hashes
	return nil
}

// Txs answers a GetTxs with the requested transactions, in the same order
// they were asked for; a hash the sender no longer holds (e.g. evicted
// from its mempool) is simply omitted.
type Txs struct {
	baseMessage
	Txs []*externalapi.DomainTransaction
}

// Command implements Message.
func (m *Txs) Command() MessageCommand { return CmdTxs }

// Encode implements Message.
func (m *Txs) Encode(w io.Writer) error {
	if err := codec.WriteVarUint(w, uint64(len(m.Txs))); err != nil {
		return err
	}
	for _, tx := range m.Txs {
		if err := codec.EncodeTransaction(w, tx); err != nil {
			return err
		}
	}
	return nil
}

// Decode implements Message.
func (m *Txs) Decode(r io.Reader) error {
	count, err := codec.ReadVarUint(r)
	if err != nil {
		return err
	}
	m.Txs = make([]*externalapi.DomainTransaction, count)
	for i := range m.Txs {
		if m.Txs[i], err = codec.DecodeTransaction(r); err != nil {
			return err
		}
	}
	return nil
}
