package wire

import (
	"io"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
)

// NewBlock announces a freshly mined or received block to a peer that has
// not yet indicated it already has it.
type NewBlock struct {
	baseMessage
	Block *externalapi.DomainBlock
}

// Command implements Message.
func (m *NewBlock) Command() MessageCommand { return CmdNewBlock }

// Encode implements Message.
func (m *NewBlock) Encode(w io.Writer) error { return codec.EncodeBlock(w, m.Block) }

// Decode implements Message.
func (m *NewBlock) Decode(r io.Reader) error {
	block, err := codec.DecodeBlock(r)
	if err != nil {
		return err
	}
	m.Block = block
	return nil
}

// NewBlockHash is the lightweight form of NewBlock: just enough for a peer
// to decide whether it needs to fetch the full block via GetBlocks.
type NewBlockHash struct {
	baseMessage
	Chain externalapi.ChainIndex
	Hash  externalapi.DomainHash
}

// Command implements Message.
func (m *NewBlockHash) Command() MessageCommand { return CmdNewBlockHash }

// Encode implements Message.
func (m *NewBlockHash) Encode(w io.Writer) error {
	if err := codec.WriteUint32(w, uint32(m.Chain.FromGroup)); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, uint32(m.Chain.ToGroup)); err != nil {
		return err
	}
	return codec.WriteHash(w, &m.Hash)
}

// Decode implements Message.
func (m *NewBlockHash) Decode(r io.Reader) error {
	from, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	to, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	m.Chain = externalapi.ChainIndex{FromGroup: int(from), ToGroup: int(to)}
	hash, err := codec.ReadHash(r)
	if err != nil {
		return err
	}
	m.Hash = hash
	return nil
}

// GetBlocks requests the full blocks identified by Hashes, sent in
// response to a NewBlockHash the receiver doesn't already have.
type GetBlocks struct {
	baseMessage
	Hashes []externalapi.DomainHash
}

// Command implements Message.
func (m *GetBlocks) Command() MessageCommand { return CmdGetBlocks }

// Encode implements Message.
func (m *GetBlocks) Encode(w io.Writer) error { return encodeHashList(w, m.Hashes) }

// Decode implements Message.
func (m *GetBlocks) Decode(r io.Reader) error {
	hashes, err := decodeHashList(r)
	if err != nil {
		return err
	}
	m.Hashes = hashes
	return nil
}

// Blocks answers a GetBlocks with the requested blocks, in the same order
// they were asked for; a hash the sender no longer has is simply omitted.
type Blocks struct {
	baseMessage
	Blocks []*externalapi.DomainBlock
}

// Command implements Message.
func (m *Blocks) Command() MessageCommand { return CmdBlocks }

// Encode implements Message.
func (m *Blocks) Encode(w io.Writer) error {
	if err := codec.WriteVarUint(w, uint64(len(m.Blocks))); err != nil {
		return err
	}
	for _, b := range m.Blocks {
		if err := codec.EncodeBlock(w, b); err != nil {
			return err
		}
	}
	return nil
}

// Decode implements Message.
func (m *Blocks) Decode(r io.Reader) error {
	count, err := codec.ReadVarUint(r)
	if err != nil {
		return err
	}
	m.Blocks = make([]*externalapi.DomainBlock, count)
	for i := range m.Blocks {
		if m.Blocks[i], err = codec.DecodeBlock(r); err != nil {
			return err
		}
	}
	return nil
}

func encodeHashList(w io.Writer, hashes []externalapi.DomainHash) error {
	if err := codec.WriteVarUint(w, uint64(len(hashes))); err != nil {
		return err
	}
	for i := range hashes {
		if err := codec.WriteHash(w, &hashes[i]); err != nil {
			return err
		}
	}
	return nil
}

func decodeHashList(r io.Reader) ([]externalapi.DomainHash, error) {
	count, err := codec.ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	hashes := make([]externalapi.DomainHash, count)
	for i := range hashes {
		if hashes[i], err = codec.ReadHash(r); err != nil {
			return nil, err
		}
	}
	return hashes, nil
}
