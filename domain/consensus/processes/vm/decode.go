package vm

import (
	"bytes"

	"github.com/flowchain/flowchain/domain/consensus/utils/codec"
)

// DecodeScript parses the canonical encoding a transaction's script or a
// contract's stored code uses: a varint method count, then per method a
// flags byte (bit0 public, bit1 payable), varint arg/local/field counts,
// a varint instruction count, and per instruction an opcode byte plus a
// length-prefixed operand.
func DecodeScript(data []byte) (*Script, error) {
	r := bytes.NewReader(data)
	methodCount, err := codec.ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	methods := make([]Method, methodCount)
	for i := range methods {
		flags, err := codec.ReadUint8(r)
		if err != nil {
			return nil, err
		}
		numArgs, err := codec.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		numLocals, err := codec.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		numFields, err := codec.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		instrCount, err := codec.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		code := make([]Instruction, instrCount)
		for j := range code {
			op, err := codec.ReadUint8(r)
			if err != nil {
				return nil, err
			}
			operand, err := codec.ReadBytes(r)
			if err != nil {
				return nil, err
			}
			code[j] = Instruction{Op: OpCode(op), Operand: operand}
		}
		methods[i] = Method{
			IsPublic:  flags&0x1 != 0,
			IsPayable: flags&0x2 != 0,
			NumArgs:   int(numArgs),
			NumLocals: int(numLocals),
			NumFields: int(numFields),
			Code:      code,
		}
	}
	return &Script{Methods: methods}, nil
}

// EncodeScript renders a Script back into the canonical byte form
// DecodeScript reads, used by test fixtures and by createContract to
// deposit newly compiled code.
func EncodeScript(s *Script) []byte {
	buf := &bytes.Buffer{}
	_ = codec.WriteVarUint(buf, uint64(len(s.Methods)))
	for _, m := range s.Methods {
		var flags uint8
		if m.IsPublic {
			flags |= 0x1
		}
		if m.IsPayable {
			flags |= 0x2
		}
		_ = codec.WriteUint8(buf, flags)
		_ = codec.WriteVarUint(buf, uint64(m.NumArgs))
		_ = codec.WriteVarUint(buf, uint64(m.NumLocals))
		_ = codec.WriteVarUint(buf, uint64(m.NumFields))
		_ = codec.WriteVarUint(buf, uint64(len(m.Code)))
		for _, instr := range m.Code {
			_ = codec.WriteUint8(buf, uint8(instr.Op))
			_ = codec.WriteBytes(buf, instr.Operand)
		}
	}
	return buf.Bytes()
}
