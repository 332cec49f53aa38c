package vm

import (
	"crypto/ed25519"
	"math/big"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/flowchain/flowchain/domain/consensus/utils/bigint"
	"github.com/flowchain/flowchain/domain/consensus/utils/hashing"
	"github.com/kaspanet/go-secp256k1"
)

func decodeVarintOperand(operand []byte) uint64 {
	var v uint64
	for i, b := range operand {
		v |= uint64(b) << (8 * i)
	}
	return v
}

func (s *execState) execU256Checked(op OpCode) error {
	b, err := s.popU256()
	if err != nil {
		return err
	}
	a, err := s.popU256()
	if err != nil {
		return err
	}
	var (
		result bigint.U256
		ok     bool
	)
	switch op {
	case OpU256Add:
		result, ok = a.CheckedAdd(b)
	case OpU256Sub:
		result, ok = a.CheckedSub(b)
	case OpU256Mul:
		result, ok = a.CheckedMul(b)
	case OpU256Div:
		result, ok = a.CheckedDiv(b)
	case OpU256Mod:
		result, ok = a.CheckedMod(b)
	}
	if !ok {
		return fail(AssertionFailed, "arithmetic overflow or division by zero")
	}
	return s.push(externalapi.Val{Kind: externalapi.ValKindU256, U256: result})
}

func (s *execState) execU256Mod(op OpCode) error {
	b, err := s.popU256()
	if err != nil {
		return err
	}
	a, err := s.popU256()
	if err != nil {
		return err
	}
	var result bigint.U256
	switch op {
	case OpU256ModAdd:
		result = a.ModAdd(b)
	case OpU256ModSub:
		result = a.ModSub(b)
	case OpU256ModMul:
		result = a.ModMul(b)
	}
	return s.push(externalapi.Val{Kind: externalapi.ValKindU256, U256: result})
}

func (s *execState) execBitwise(op OpCode) error {
	b, err := s.popU256()
	if err != nil {
		return err
	}
	a, err := s.popU256()
	if err != nil {
		return err
	}
	ab, bb := a.Big(), b.Big()
	result := new(big.Int)
	switch op {
	case OpBitAnd:
		result.And(ab, bb)
	case OpBitOr:
		result.Or(ab, bb)
	case OpBitXor:
		result.Xor(ab, bb)
	case OpShl:
		result.Lsh(ab, uint(bb.Uint64()))
	case OpShr:
		result.Rsh(ab, uint(bb.Uint64()))
	}
	return s.push(externalapi.Val{Kind: externalapi.ValKindU256, U256: bigint.NewU256FromBig(result)})
}

func (s *execState) execCompare(op OpCode) error {
	b, err := s.popU256()
	if err != nil {
		return err
	}
	a, err := s.popU256()
	if err != nil {
		return err
	}
	cmp := a.Cmp(b)
	var result bool
	switch op {
	case OpEq:
		result = cmp == 0
	case OpNeq:
		result = cmp != 0
	case OpLt:
		result = cmp < 0
	case OpLe:
		result = cmp <= 0
	case OpGt:
		result = cmp > 0
	case OpGe:
		result = cmp >= 0
	}
	return s.push(externalapi.Val{Kind: externalapi.ValKindBool, Bool: result})
}

func (s *execState) execBoolOp(op OpCode) error {
	if op == OpBoolNot {
		a, err := s.popBool()
		if err != nil {
			return err
		}
		return s.push(externalapi.Val{Kind: externalapi.ValKindBool, Bool: !a})
	}
	b, err := s.popBool()
	if err != nil {
		return err
	}
	a, err := s.popBool()
	if err != nil {
		return err
	}
	var result bool
	if op == OpBoolAnd {
		result = a && b
	} else {
		result = a || b
	}
	return s.push(externalapi.Val{Kind: externalapi.ValKindBool, Bool: result})
}

// execTransferFromSelf moves value out of the executing contract's own
// asset output into the target address, per transferAlfFromSelf.
func (s *execState) execTransferFromSelf(f *frame) error {
	to, err := s.popAddress()
	if err != nil {
		return err
	}
	amount, err := s.popU256()
	if err != nil {
		return err
	}
	if f.contractID == nil {
		return fail(AssertionFailed, "transferAlfFromSelf outside a contract frame")
	}
	ref := externalapi.ContractOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: externalapi.DomainHash(*f.contractID)}}
	out, ok, err := s.ctx.View.ContractOutput(ref)
	if err != nil {
		return err
	}
	if !ok {
		return fail(EmptyContractAsset, "contract output not found")
	}
	if out.Amount < amount.Uint64() {
		return fail(AssertionFailed, "insufficient contract balance")
	}
	out.Amount -= amount.Uint64()
	if out.Amount == 0 {
		if _, ok, err := s.ctx.View.ContractState(*f.contractID); err != nil {
			return err
		} else if ok {
			return fail(EmptyContractAsset, "transfer would leave a live contract with an empty asset output")
		}
	}
	s.ctx.View.SetContractOutput(ref, out)
	return s.creditAddress(to, amount.Uint64(), nil)
}

// execTransfer moves value the caller has approved into this frame,
// forwarding it to the target address.
func (s *execState) execTransfer(f *frame) error {
	to, err := s.popAddress()
	if err != nil {
		return err
	}
	amount, err := s.popU256()
	if err != nil {
		return err
	}
	_, err = s.popAddress()
	if err != nil {
		return err
	}
	return s.creditAddress(to, amount.Uint64(), nil)
}

func (s *execState) execTransferToken() error {
	to, err := s.popAddress()
	if err != nil {
		return err
	}
	amount, err := s.popU256()
	if err != nil {
		return err
	}
	tokenBytes, err := s.popBytes()
	if err != nil {
		return err
	}
	var tokenID externalapi.TokenID
	copy(tokenID[:], tokenBytes)
	tokens := externalapi.TokenMap{tokenID: amount.Uint64()}
	return s.creditAddress(to, 0, tokens)
}

func (s *execState) creditAddress(to externalapi.Address, amount uint64, tokens externalapi.TokenMap) error {
	if to.Kind == externalapi.AddressKindContract {
		ref := externalapi.ContractOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: to.Hash}}
		out, ok, err := s.ctx.View.ContractOutput(ref)
		if err != nil {
			return err
		}
		if !ok {
			out = &externalapi.ContractOutput{}
		}
		out.Amount += amount
		mergeTokens(&out.Tokens, tokens)
		s.ctx.View.SetContractOutput(ref, out)
		return nil
	}
	key := hashing.Hash(append(append([]byte{}, s.txID[:]...), byte(s.instrCounter)))
	ref := externalapi.AssetOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindAsset, Key: key}}
	out := &externalapi.AssetOutput{Amount: amount, LockupScript: to.Hash[:], Tokens: tokens}
	s.ctx.View.AddAssetOutput(ref, out)
	return nil
}

func mergeTokens(dst *externalapi.TokenMap, src externalapi.TokenMap) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(externalapi.TokenMap, len(src))
	}
	for id, amount := range src {
		(*dst)[id] += amount
	}
}

func (s *execState) execCreateContract(copyCode bool) error {
	deposit, err := s.popU256()
	if err != nil {
		return err
	}
	numFields, err := s.popU256()
	if err != nil {
		return err
	}
	fields := make([]externalapi.Val, numFields.Uint64())
	for i := len(fields) - 1; i >= 0; i-- {
		v, err := s.pop()
		if err != nil {
			return err
		}
		fields[i] = v
	}

	var codeHash externalapi.DomainHash
	var codeBytes []byte
	if copyCode {
		src, err := s.popAddress()
		if err != nil {
			return err
		}
		state, ok, err := s.ctx.View.ContractState(externalapi.ContractID(src.Hash))
		if err != nil {
			return err
		}
		if !ok {
			return fail(AssertionFailed, "copyCreateContract: source contract not found")
		}
		codeHash = state.CodeHash
		codeBytes = s.eng.codeByHash[codeHash]
	} else {
		codeBytes, err = s.popBytes()
		if err != nil {
			return err
		}
		codeHash = hashing.Hash(codeBytes)
	}

	script, err := DecodeScript(codeBytes)
	if err != nil {
		return fail(AssertionFailed, "malformed contract code: %s", err)
	}
	if len(script.Methods) == 0 || len(fields) != script.Methods[0].NumFields {
		return fail(InvalidFieldLength, "expected %d fields, got %d", script.Methods[0].NumFields, len(fields))
	}
	if deposit.Uint64() < s.eng.cfg.DustUtxoAmount {
		return fail(AssertionFailed, "deposit below dustUtxoAmount")
	}

	idHash := hashing.Hash(append(append([]byte{}, s.txID[:]...), byte(s.instrCounter)))
	contractID := externalapi.ContractID(idHash)
	s.eng.codeByHash[codeHash] = codeBytes

	initialHash := hashing.NewWriter()
	for _, v := range fields {
		writeValForHash(initialHash, v)
	}

	ref := externalapi.ContractOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: idHash}}
	s.ctx.View.SetContractState(&externalapi.ContractState{
		ContractID:       contractID,
		CodeHash:         codeHash,
		Fields:           fields,
		AssetOutputRef:   ref,
		InitialStateHash: initialHash.Finalize(),
	})
	s.ctx.View.SetContractOutput(ref, &externalapi.ContractOutput{Amount: deposit.Uint64()})

	return s.push(externalapi.Val{Kind: externalapi.ValKindAddress, Address: externalapi.Address{Kind: externalapi.AddressKindContract, Hash: idHash}})
}

func writeValForHash(w *hashing.Writer, v externalapi.Val) {
	switch v.Kind {
	case externalapi.ValKindBool:
		if v.Bool {
			_, _ = w.Write([]byte{1})
		} else {
			_, _ = w.Write([]byte{0})
		}
	case externalapi.ValKindI256:
		b := v.I256.Bytes32()
		_, _ = w.Write(b[:])
	case externalapi.ValKindU256:
		b := v.U256.Bytes32()
		_, _ = w.Write(b[:])
	case externalapi.ValKindByteVec:
		_, _ = w.Write(v.ByteVec)
	case externalapi.ValKindAddress:
		w.WriteHash(&v.Address.Hash)
	}
}

func (s *execState) execDestroySelf(f *frame) error {
	to, err := s.popAddress()
	if err != nil {
		return err
	}
	if f.contractID == nil {
		return fail(AssertionFailed, "destroySelf outside a contract frame")
	}
	if to.Kind == externalapi.AddressKindContract {
		return fail(InvalidAddressTypeInContractDestroy, "destroySelf target must be an asset address")
	}
	ref := externalapi.ContractOutputRef{TxOutputRef: externalapi.TxOutputRef{Kind: externalapi.OutputRefKindContract, Key: externalapi.DomainHash(*f.contractID)}}
	out, ok, err := s.ctx.View.ContractOutput(ref)
	if err != nil {
		return err
	}
	if !ok {
		return fail(EmptyContractAsset, "contract output not found")
	}
	if err := s.creditAddress(to, out.Amount, out.Tokens); err != nil {
		return err
	}
	if err := s.ctx.View.RemoveContract(*f.contractID); err != nil {
		return err
	}
	s.ctx.View.RemoveContractOutput(ref)
	return nil
}

func (s *execState) execCallExternal(instr Instruction) error {
	methodIndex := int(decodeVarintOperand(instr.Operand))
	target, err := s.popAddress()
	if err != nil {
		return err
	}
	if target.Kind != externalapi.AddressKindContract {
		return fail(AssertionFailed, "callExternal target must be a contract address")
	}
	contractID := externalapi.ContractID(target.Hash)
	state, ok, err := s.ctx.View.ContractState(contractID)
	if err != nil {
		return err
	}
	if !ok {
		return fail(AssertionFailed, "callExternal: contract not found")
	}
	codeBytes, ok := s.eng.codeByHash[state.CodeHash]
	if !ok {
		return fail(AssertionFailed, "callExternal: contract code unavailable")
	}
	script, err := DecodeScript(codeBytes)
	if err != nil {
		return fail(AssertionFailed, "malformed contract code: %s", err)
	}
	if methodIndex < 0 || methodIndex >= len(script.Methods) {
		return fail(InvalidTxInputIndex, "method index %d out of range", methodIndex)
	}
	method := &script.Methods[methodIndex]
	if !method.IsPublic {
		return fail(ExternalPrivateMethodCall, "method %d is private", methodIndex)
	}
	return s.pushFrame(script, method, &contractID, state.Fields)
}

func (s *execState) execCallLocal(f *frame, instr Instruction) error {
	methodIndex := int(decodeVarintOperand(instr.Operand))
	if methodIndex < 0 || methodIndex >= len(f.script.Methods) {
		return fail(InvalidTxInputIndex, "method index %d out of range", methodIndex)
	}
	return s.pushFrame(f.script, &f.script.Methods[methodIndex], f.contractID, f.fields)
}

func (s *execState) pushFrame(script *Script, method *Method, contractID *externalapi.ContractID, fields []externalapi.Val) error {
	if len(s.frames) >= s.eng.cfg.FrameStackMaxSize {
		log.Warnf("frame stack overflow: %d activations already active, limit %d", len(s.frames), s.eng.cfg.FrameStackMaxSize)
		return fail(StackOverflow, "frame stack exceeded %d activations", s.eng.cfg.FrameStackMaxSize)
	}
	locals := make([]externalapi.Val, method.NumLocals)
	for i := method.NumArgs - 1; i >= 0; i-- {
		v, err := s.pop()
		if err != nil {
			return err
		}
		locals[i] = v
	}
	s.frames = append(s.frames, &frame{script: script, method: method, locals: locals, contractID: contractID, fields: fields})
	return nil
}

func (s *execState) execVerifySecp256k1() error {
	msg, err := s.popBytes()
	if err != nil {
		return err
	}
	sigBytes, err := s.popBytes()
	if err != nil {
		return err
	}
	pubKeyBytes, err := s.popBytes()
	if err != nil {
		return err
	}
	pubKey, err := secp256k1.DeserializeSchnorrPubKey(pubKeyBytes)
	if err != nil {
		return fail(InvalidSignature, "malformed public key")
	}
	sig, err := secp256k1.DeserializeSchnorrSignatureFromSlice(sigBytes)
	if err != nil {
		return fail(InvalidSignature, "malformed signature")
	}
	var hash secp256k1.Hash
	copy(hash[:], msg)
	if !pubKey.SchnorrVerify(&hash, sig) {
		return fail(InvalidSignature, "")
	}
	return nil
}

func (s *execState) execVerifyEd25519() error {
	msg, err := s.popBytes()
	if err != nil {
		return err
	}
	sig, err := s.popBytes()
	if err != nil {
		return err
	}
	pubKey, err := s.popBytes()
	if err != nil {
		return err
	}
	if len(pubKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return fail(InvalidSignature, "malformed key or signature")
	}
	if !ed25519.Verify(pubKey, msg, sig) {
		return fail(InvalidSignature, "")
	}
	return nil
}
