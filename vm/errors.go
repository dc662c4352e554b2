package vm

import "errors"

// Runtime errors, per spec.md section 7's taxonomy. Grounded on the
// teacher's own package-level sentinel errors
// (KTStephano-GVM/vm/vm.go's errSegmentationFault, errIllegalOperation,
// errUnknownInstruction, …).
var (
	errInvalidOpcode           = errors.New("invalid opcode")
	errIPOutOfBounds           = errors.New("instruction pointer out of bounds")
	errAddressOutOfBounds      = errors.New("address out of bounds")
	errUnknownAddrVariant      = errors.New("unknown addressing variant")
	errUnknownSyscall          = errors.New("unknown syscall")
	errStackOverflow           = errors.New("stack overflow")
	errStackUnderflow          = errors.New("stack underflow")
	errInvalidRegisterByte     = errors.New("invalid register byte")
	errInvalidDataSizeByte     = errors.New("invalid data-size byte")
	errExtensionSymbolNotFound = errors.New("extension symbol not found")
	errInvalidFreeAddress      = errors.New("invalid free address")
	errBitwiseFloatOperand     = errors.New("bitwise operation does not accept float operands")
	errDivideByZero            = errors.New("integer division by zero")

)
