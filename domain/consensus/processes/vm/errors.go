package vm

import "fmt"

// FailureKind enumerates the VM-internal failure conditions of §7. The
// validator surfaces these wrapped as TxScriptExeFailed; the enclosing
// block is rejected regardless of which kind fired.
type FailureKind uint8

const (
	StackOverflow FailureKind = iota
	OutOfGas
	AssertionFailed
	InvalidSignature
	AbsoluteLockTimeVerificationFailed
	RelativeLockTimeVerificationFailed
	InvalidTxInputIndex
	EmptyContractAsset
	InvalidFieldLength
	InvalidAddressTypeInContractDestroy
	ExternalPrivateMethodCall
	NonPayableFrame
)

func (k FailureKind) String() string {
	switch k {
	case StackOverflow:
		return "StackOverflow"
	case OutOfGas:
		return "OutOfGas"
	case AssertionFailed:
		return "AssertionFailed"
	case InvalidSignature:
		return "InvalidSignature"
	case AbsoluteLockTimeVerificationFailed:
		return "AbsoluteLockTimeVerificationFailed"
	case RelativeLockTimeVerificationFailed:
		return "RelativeLockTimeVerificationFailed"
	case InvalidTxInputIndex:
		return "InvalidTxInputIndex"
	case EmptyContractAsset:
		return "EmptyContractAsset"
	case InvalidFieldLength:
		return "InvalidFieldLength"
	case InvalidAddressTypeInContractDestroy:
		return "InvalidAddressTypeInContractDestroy"
	case ExternalPrivateMethodCall:
		return "ExternalPrivateMethodCall"
	case NonPayableFrame:
		return "NonPayableFrame"
	default:
		return "Unknown"
	}
}

// ScriptExecutionError is TxScriptExeFailed(kind): the script's execution
// hit a VM-internal condition that fails the whole transaction.
type ScriptExecutionError struct {
	Kind    FailureKind
	Message string
}

func (e *ScriptExecutionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("TxScriptExeFailed(%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("TxScriptExeFailed(%s)", e.Kind)
}

func fail(kind FailureKind, format string, args ...interface{}) *ScriptExecutionError {
	return &ScriptExecutionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
