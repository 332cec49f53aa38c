package codec

import (
	"bytes"
	"io"
	"math/big"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

// EncodeBlockHeader canonically serializes a block header.
func EncodeBlockHeader(w io.Writer, h *externalapi.DomainBlockHeader) error {
	deps := h.Deps
	groupCount := 0
	if deps != nil {
		groupCount = deps.GroupCount
	}
	if err := WriteVarUint(w, uint64(groupCount)); err != nil {
		return err
	}
	if deps != nil {
		for _, dep := range deps.Hashes {
			if err := WriteHash(w, dep); err != nil {
				return err
			}
		}
	}
	if err := WriteHash(w, &h.DepStateHash); err != nil {
		return err
	}
	if err := WriteHash(w, &h.TransactionsHash); err != nil {
		return err
	}
	if err := WriteUint64(w, uint64(h.TimestampInMillis)); err != nil {
		return err
	}
	if err := WriteBytes(w, h.Target.Bytes()); err != nil {
		return err
	}
	return WriteUint64(w, h.Nonce)
}

// DecodeBlockHeader reconstructs a header from its canonical encoding.
func DecodeBlockHeader(r io.Reader) (*externalapi.DomainBlockHeader, error) {
	groupCount, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	h := &externalapi.DomainBlockHeader{}
	if groupCount > 0 {
		depsLen := externalapi.DepsLength(int(groupCount))
		hashes := make([]*externalapi.DomainHash, depsLen)
		for i := 0; i < depsLen; i++ {
			hash, err := ReadHash(r)
			if err != nil {
				return nil, err
			}
			hashes[i] = &hash
		}
		deps, err := externalapi.NewBlockDeps(int(groupCount), hashes)
		if err != nil {
			return nil, err
		}
		h.Deps = deps
	}
	if h.DepStateHash, err = ReadHash(r); err != nil {
		return nil, err
	}
	if h.TransactionsHash, err = ReadHash(r); err != nil {
		return nil, err
	}
	ts, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	h.TimestampInMillis = externalapi.DomainTimestamp(ts)
	targetBytes, err := ReadBytes(r)
	if err != nil {
		return nil, err
	}
	h.Target = *externalapi.NewDomainTargetFromBig(new(big.Int).SetBytes(targetBytes))
	if h.Nonce, err = ReadUint64(r); err != nil {
		return nil, err
	}
	return h, nil
}

// EncodeAssetOutput canonically serializes an asset output.
func EncodeAssetOutput(w io.Writer, o *externalapi.AssetOutput) error {
	if err := WriteUint64(w, o.Amount); err != nil {
		return err
	}
	if err := WriteBytes(w, o.LockupScript); err != nil {
		return err
	}
	if err := WriteVarUint(w, uint64(len(o.Tokens))); err != nil {
		return err
	}
	for id, amount := range o.Tokens {
		hash := externalapi.DomainHash(id)
		if err := WriteHash(w, &hash); err != nil {
			return err
		}
		if err := WriteUint64(w, amount); err != nil {
			return err
		}
	}
	if err := WriteUint8(w, boolByte(o.TimeLock.Enabled)); err != nil {
		return err
	}
	if err := WriteUint64(w, uint64(o.TimeLock.UnlockAtTimestamp)); err != nil {
		return err
	}
	return WriteBytes(w, o.AdditionalData)
}

// DecodeAssetOutput reconstructs an asset output from its canonical
// encoding.
func DecodeAssetOutput(r io.Reader) (*externalapi.AssetOutput, error) {
	o := &externalapi.AssetOutput{}
	var err error
	if o.Amount, err = ReadUint64(r); err != nil {
		return nil, err
	}
	if o.LockupScript, err = ReadBytes(r); err != nil {
		return nil, err
	}
	tokenCount, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	if tokenCount > 0 {
		o.Tokens = make(externalapi.TokenMap, tokenCount)
		for i := uint64(0); i < tokenCount; i++ {
			hash, err := ReadHash(r)
			if err != nil {
				return nil, err
			}
			amount, err := ReadUint64(r)
			if err != nil {
				return nil, err
			}
			o.Tokens[externalapi.TokenID(hash)] = amount
		}
	}
	enabled, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}
	o.TimeLock.Enabled = enabled != 0
	ts, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	o.TimeLock.UnlockAtTimestamp = externalapi.DomainTimestamp(ts)
	if o.AdditionalData, err = ReadBytes(r); err != nil {
		return nil, err
	}
	return o, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// EncodeTransaction canonically serializes a transaction, excluding the
// cached ID field.
func EncodeTransaction(w io.Writer, tx *externalapi.DomainTransaction) error {
	u := tx.Unsigned
	if err := WriteBytes(w, u.Script); err != nil {
		return err
	}
	if err := WriteUint64(w, u.GasAmount); err != nil {
		return err
	}
	if err := WriteUint64(w, u.GasPrice); err != nil {
		return err
	}
	if err := WriteVarUint(w, uint64(len(u.Inputs))); err != nil {
		return err
	}
	for _, in := range u.Inputs {
		if err := WriteUint8(w, uint8(in.OutputRef.Kind)); err != nil {
			return err
		}
		if err := WriteHash(w, &in.OutputRef.Key); err != nil {
			return err
		}
		if err := WriteBytes(w, in.UnlockScript); err != nil {
			return err
		}
	}
	if err := WriteVarUint(w, uint64(len(u.FixedOutputs))); err != nil {
		return err
	}
	for _, out := range u.FixedOutputs {
		if err := EncodeAssetOutput(w, out); err != nil {
			return err
		}
	}
	if err := WriteVarUint(w, uint64(len(tx.ContractInputs))); err != nil {
		return err
	}
	for _, ci := range tx.ContractInputs {
		if err := WriteHash(w, &ci.Key); err != nil {
			return err
		}
	}
	if err := WriteVarUint(w, uint64(len(tx.GeneratedOutputs))); err != nil {
		return err
	}
	for _, out := range tx.GeneratedOutputs {
		if err := EncodeAssetOutput(w, out); err != nil {
			return err
		}
	}
	if err := writeByteVectorList(w, tx.InputSignatures); err != nil {
		return err
	}
	return writeByteVectorList(w, tx.ContractSignatures)
}

func writeByteVectorList(w io.Writer, list [][]byte) error {
	if err := WriteVarUint(w, uint64(len(list))); err != nil {
		return err
	}
	for _, b := range list {
		if err := WriteBytes(w, b); err != nil {
			return err
		}
	}
	return nil
}

func readByteVectorList(r io.Reader) ([][]byte, error) {
	count, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	list := make([][]byte, count)
	for i := range list {
		if list[i], err = ReadBytes(r); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// DecodeTransaction reconstructs a transaction from its canonical
// encoding.
func DecodeTransaction(r io.Reader) (*externalapi.DomainTransaction, error) {
	u := &externalapi.UnsignedTx{}
	var err error
	if u.Script, err = ReadBytes(r); err != nil {
		return nil, err
	}
	if u.GasAmount, err = ReadUint64(r); err != nil {
		return nil, err
	}
	if u.GasPrice, err = ReadUint64(r); err != nil {
		return nil, err
	}
	inputCount, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	u.Inputs = make([]*externalapi.TxInput, inputCount)
	for i := range u.Inputs {
		kind, err := ReadUint8(r)
		if err != nil {
			return nil, err
		}
		key, err := ReadHash(r)
		if err != nil {
			return nil, err
		}
		unlock, err := ReadBytes(r)
		if err != nil {
			return nil, err
		}
		u.Inputs[i] = &externalapi.TxInput{
			OutputRef:    externalapi.TxOutputRef{Kind: externalapi.OutputRefKind(kind), Key: key},
			UnlockScript: unlock,
		}
	}
	outputCount, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	u.FixedOutputs = make([]*externalapi.AssetOutput, outputCount)
	for i := range u.FixedOutputs {
		if u.FixedOutputs[i], err = DecodeAssetOutput(r); err != nil {
			return nil, err
		}
	}

	tx := &externalapi.DomainTransaction{Unsigned: u}
	ciCount, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	tx.ContractInputs = make([]*externalapi.ContractOutputRef, ciCount)
	for i := range tx.ContractInputs {
		key, err := ReadHash(r)
		if err != nil {
			return nil, err
		}
		tx.ContractInputs[i] = &externalapi.ContractOutputRef{
			TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: key},
		}
	}
	genCount, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	tx.GeneratedOutputs = make([]*externalapi.AssetOutput, genCount)
	for i := range tx.GeneratedOutputs {
		if tx.GeneratedOutputs[i], err = DecodeAssetOutput(r); err != nil {
			return nil, err
		}
	}
	if tx.InputSignatures, err = readByteVectorList(r); err != nil {
		return nil, err
	}
	if tx.ContractSignatures, err = readByteVectorList(r); err != nil {
		return nil, err
	}
	return tx, nil
}

// EncodeBlock canonically serializes a full block.
func EncodeBlock(w io.Writer, b *externalapi.DomainBlock) error {
	if err := EncodeBlockHeader(w, b.Header); err != nil {
		return err
	}
	if err := WriteVarUint(w, uint64(len(b.Transactions))); err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		if err := EncodeTransaction(w, tx); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBlock reconstructs a block from its canonical encoding.
func DecodeBlock(r io.Reader) (*externalapi.DomainBlock, error) {
	header, err := DecodeBlockHeader(r)
	if err != nil {
		return nil, err
	}
	txCount, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	txs := make([]*externalapi.DomainTransaction, txCount)
	for i := range txs {
		if txs[i], err = DecodeTransaction(r); err != nil {
			return nil, err
		}
	}
	return &externalapi.DomainBlock{Header: header, Transactions: txs}, nil
}

// MarshalAssetOutput is a convenience wrapper returning the encoded bytes.
func MarshalAssetOutput(o *externalapi.AssetOutput) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := EncodeAssetOutput(buf, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalAssetOutput is a convenience wrapper decoding from a byte slice.
func UnmarshalAssetOutput(data []byte) (*externalapi.AssetOutput, error) {
	return DecodeAssetOutput(bytes.NewReader(data))
}

// MarshalBlock is a convenience wrapper returning the encoded bytes.
func MarshalBlock(b *externalapi.DomainBlock) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := EncodeBlock(buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBlock is a convenience wrapper decoding from a byte slice.
func UnmarshalBlock(data []byte) (*externalapi.DomainBlock, error) {
	return DecodeBlock(bytes.NewReader(data))
}

// MarshalTransaction is a convenience wrapper returning the encoded bytes.
func MarshalTransaction(tx *externalapi.DomainTransaction) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := EncodeTransaction(buf, tx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalTransaction is a convenience wrapper decoding from a byte slice.
func UnmarshalTransaction(data []byte) (*externalapi.DomainTransaction, error) {
	return DecodeTransaction(bytes.NewReader(data))
}
