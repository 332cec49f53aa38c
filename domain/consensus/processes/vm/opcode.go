package vm

// OpCode identifies a single VM instruction. The families mirror §4.5:
// arithmetic, bitwise, comparison, logic, control flow, stack
// manipulation, local storage, contract-state access, asset transfer,
// environment query, hashing, signature verification, time-lock
// verification, and contract lifecycle.
type OpCode uint8

const (
	OpPushBool OpCode = iota
	OpPushU256
	OpPushI256
	OpPushByteVec
	OpPushAddress

	OpU256Add
	OpU256Sub
	OpU256Mul
	OpU256Div
	OpU256Mod
	OpU256ModAdd
	OpU256ModSub
	OpU256ModMul

	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShl
	OpShr

	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe

	OpBoolAnd
	OpBoolOr
	OpBoolNot

	OpJump
	OpJumpIfFalse
	OpReturn

	OpDup
	OpPop
	OpSwap

	OpLoadLocal
	OpStoreLocal

	OpLoadField
	OpStoreField

	OpTransferAlf
	OpTransferAlfFromSelf
	OpTransferToken
	OpApproveAlf
	OpApproveToken

	OpBlockTimestamp
	OpBlockTarget
	OpNetworkID
	OpTxID
	OpCallerAddress
	OpCallerContractID
	OpSelfAddress
	OpSelfContractID
	OpIsCalledFromTxScript

	OpBlake2b
	OpKeccak256
	OpSha256
	OpSha3

	OpVerifySecp256k1
	OpVerifyEd25519

	OpVerifyAbsoluteLockTime
	OpVerifyRelativeLockTime

	OpCreateContract
	OpCopyCreateContract
	OpDestroySelf
	OpCallExternal
	OpCallLocal

	OpAssert
)

// Instruction is one decoded step: an opcode plus its raw operand bytes.
// Uniform length-prefixed framing keeps the decode loop opcode-agnostic;
// each opcode's Execute case interprets its own operand shape.
type Instruction struct {
	Op      OpCode
	Operand []byte
}

// Method is one callable entry point of a script or contract: a flat
// instruction list plus the visibility/payability flags §4.5 requires the
// engine to enforce.
type Method struct {
	IsPublic  bool
	IsPayable bool
	NumArgs   int
	NumLocals int
	NumFields int
	Code      []Instruction
}

// Script is the parsed form of a transaction's or contract's code: its
// callable methods, method 0 being the entry point invoked directly by a
// transaction script or by createContract.
type Script struct {
	Methods []Method
}
