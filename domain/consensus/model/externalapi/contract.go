package externalapi

import "github.com/flowchain/flowchain/domain/consensus/utils/bigint"

// ContractID uniquely identifies a deployed contract. It is derived from
// the hash of the creating transaction and the index of the createContract
// instruction within it, so that a single transaction may deploy several
// contracts without collision.
type ContractID DomainHash

// Val is the dynamically-typed value the VM's operand stack and contract
// fields hold. Exactly one of the typed fields is meaningful, selected by
// Kind.
type Val struct {
	Kind    ValKind
	Bool    bool
	I256    bigint.I256
	U256    bigint.U256
	ByteVec []byte
	Address Address
}

// ValKind tags the active member of a Val.
type ValKind uint8

const (
	// ValKindBool tags a boolean value.
	ValKindBool ValKind = iota
	// ValKindI256 tags a signed 256-bit integer value.
	ValKindI256
	// ValKindU256 tags an unsigned 256-bit integer value.
	ValKindU256
	// ValKindByteVec tags an opaque byte-string value.
	ValKindByteVec
	// ValKindAddress tags an address value.
	ValKindAddress
)

// ContractState is a contract's persistent storage: its mutable field
// vector, the hash of the code that governs it, and a pointer at the asset
// output it owns.
type ContractState struct {
	ContractID       ContractID
	CodeHash         DomainHash
	Fields           []Val
	AssetOutputRef   ContractOutputRef
	InitialStateHash DomainHash
}

// Clone deep-copies the contract state.
func (c *ContractState) Clone() *ContractState {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Fields = make([]Val, len(c.Fields))
	copy(clone.Fields, c.Fields)
	return &clone
}
