package externalapi

// TokenID identifies a token other than the chain's native asset (ALF in
// the glossary's terms).
type TokenID DomainHash

// TokenMap maps a token id to the amount of that token carried by an
// output.
type TokenMap map[TokenID]uint64

// Address is a 32-byte identifier of either an asset-holding address or a
// contract, disambiguated by AddressKind.
type Address struct {
	Kind AddressKind
	Hash DomainHash
}

// AddressKind distinguishes plain asset addresses from contract addresses,
// since several VM operations (e.g. destroySelf) are only legal against one
// kind.
type AddressKind uint8

const (
	// AddressKindAsset identifies an ordinary, lockup-script-controlled
	// address.
	AddressKindAsset AddressKind = iota
	// AddressKindContract identifies a contract's address.
	AddressKindContract
)

// OutputRefKind tags whether a TxOutputRef points into the asset-output map
// or the contract-output map of the world-state.
type OutputRefKind uint8

const (
	// OutputRefKindAsset marks a reference into the UTXO set.
	OutputRefKindAsset OutputRefKind = iota
	// OutputRefKindContract marks a reference into a contract's output.
	OutputRefKindContract
)

// TxOutputRef is a tagged pointer at a previously created output, either a
// plain asset UTXO or a contract output.
type TxOutputRef struct {
	Kind OutputRefKind
	Key  DomainHash
}

// AssetOutputRef is a TxOutputRef known to point at an asset output.
type AssetOutputRef struct {
	TxOutputRef
}

// ContractOutputRef is a TxOutputRef known to point at a contract output.
type ContractOutputRef struct {
	TxOutputRef
}

// TimeLock optionally restricts an output from being spent before an
// absolute timestamp.
type TimeLock struct {
	Enabled           bool
	UnlockAtTimestamp DomainTimestamp
}

// AssetOutput is a spendable UTXO: an amount of the native asset, a token
// map, a lockup predicate, an optional time-lock, and opaque additional
// data interpreted by the owning contract or wallet.
type AssetOutput struct {
	Amount         uint64
	LockupScript   []byte
	Tokens         TokenMap
	TimeLock       TimeLock
	AdditionalData []byte
}

// Clone deep-copies the output.
func (o *AssetOutput) Clone() *AssetOutput {
	if o == nil {
		return nil
	}
	clone := *o
	clone.LockupScript = append([]byte(nil), o.LockupScript...)
	clone.AdditionalData = append([]byte(nil), o.AdditionalData...)
	if o.Tokens != nil {
		clone.Tokens = make(TokenMap, len(o.Tokens))
		for id, amount := range o.Tokens {
			clone.Tokens[id] = amount
		}
	}
	return &clone
}

// ContractOutput is the asset-holding output attached to a contract; it
// exists alongside the contract's field state and is removed when the
// contract self-destructs.
type ContractOutput struct {
	Amount       uint64
	LockupScript []byte
	Tokens       TokenMap
}

// TxInput spends a previously created output, unlocking it with the given
// script (a signature, or arguments to a custom unlock predicate).
type TxInput struct {
	OutputRef    TxOutputRef
	UnlockScript []byte
}

// UnsignedTx is the portion of a transaction whose hash is what gets
// signed: an optional contract-invoking script, gas parameters, inputs, and
// the statically-declared (non-contract-generated) outputs.
type UnsignedTx struct {
	Script       []byte
	GasAmount    uint64
	GasPrice     uint64
	Inputs       []*TxInput
	FixedOutputs []*AssetOutput
}

// HasScript returns whether this transaction invokes the VM.
func (u *UnsignedTx) HasScript() bool {
	return len(u.Script) > 0
}

// Clone deep-copies the unsigned transaction.
func (u *UnsignedTx) Clone() *UnsignedTx {
	if u == nil {
		return nil
	}
	clone := &UnsignedTx{
		Script:    append([]byte(nil), u.Script...),
		GasAmount: u.GasAmount,
		GasPrice:  u.GasPrice,
	}
	clone.Inputs = make([]*TxInput, len(u.Inputs))
	for i, in := range u.Inputs {
		inClone := *in
		inClone.UnlockScript = append([]byte(nil), in.UnlockScript...)
		clone.Inputs[i] = &inClone
	}
	clone.FixedOutputs = make([]*AssetOutput, len(u.FixedOutputs))
	for i, out := range u.FixedOutputs {
		clone.FixedOutputs[i] = out.Clone()
	}
	return clone
}

// DomainTransaction is a fully-formed transaction: the signed unsigned-tx,
// any contract inputs it consumes, outputs generated by contract execution,
// and the signatures authorizing both the inputs and the contract calls.
type DomainTransaction struct {
	Unsigned           *UnsignedTx
	ContractInputs     []*ContractOutputRef
	GeneratedOutputs   []*AssetOutput
	InputSignatures    [][]byte
	ContractSignatures [][]byte

	// ID caches the transaction's id once computed; nil until then.
	ID *DomainHash
}

// Clone deep-copies the transaction, excluding the cached ID (it is
// recomputed lazily).
func (tx *DomainTransaction) Clone() *DomainTransaction {
	if tx == nil {
		return nil
	}
	clone := &DomainTransaction{Unsigned: tx.Unsigned.Clone()}
	clone.ContractInputs = make([]*ContractOutputRef, len(tx.ContractInputs))
	for i, in := range tx.ContractInputs {
		inClone := *in
		clone.ContractInputs[i] = &inClone
	}
	clone.GeneratedOutputs = make([]*AssetOutput, len(tx.GeneratedOutputs))
	for i, out := range tx.GeneratedOutputs {
		clone.GeneratedOutputs[i] = out.Clone()
	}
	clone.InputSignatures = cloneByteSlices(tx.InputSignatures)
	clone.ContractSignatures = cloneByteSlices(tx.ContractSignatures)
	return clone
}

func cloneByteSlices(in [][]byte) [][]byte {
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// IsCoinbase reports whether this transaction matches the deterministic
// coinbase shape: no script, no contract inputs, no generated outputs, no
// signatures.
func (tx *DomainTransaction) IsCoinbase() bool {
	return !tx.Unsigned.HasScript() &&
		len(tx.ContractInputs) == 0 &&
		len(tx.GeneratedOutputs) == 0 &&
		len(tx.InputSignatures) == 0 &&
		len(tx.ContractSignatures) == 0
}
