package vm

import "nyx/ast"

// execBinOp computes one reg-reg-reg or reg-reg-imm arithmetic/bitwise
// instruction and writes the result into dst. Both operands are coerced to
// dst's natural size first, per spec.md section 3's coercion rules; the
// bitwise family is integer-only by construction (the assembler rejects
// float operands at assembly time, per spec.md section 4.2), so it always
// runs over dst's integer bit pattern.
func (m *VM) execBinOp(op Opcode, dst ast.Register, lhs, rhs ast.Immediate) error {
	size := dst.NaturalSize()
	a := lhs.CoerceTo(size)
	b := rhs.CoerceTo(size)

	var result ast.Immediate
	if size.IsFloat() {
		x, y := a.AsFloat64(), b.AsFloat64()
		var v float64
		switch op {
		case OpAddRegRegReg, OpAddRegRegImm:
			v = x + y
		case OpSubRegRegReg, OpSubRegRegImm:
			v = x - y
		case OpMulRegRegReg, OpMulRegRegImm:
			v = x * y
		case OpDivRegRegReg, OpDivRegRegImm:
			v = x / y
		default:
			return errBitwiseFloatOperand
		}
		result = ast.NewImmediateFloat(size, v)
	} else {
		x, y := a.AsUint64(), b.AsUint64()
		var v uint64
		switch op {
		case OpAddRegRegReg, OpAddRegRegImm:
			v = x + y
		case OpSubRegRegReg, OpSubRegRegImm:
			v = x - y
		case OpMulRegRegReg, OpMulRegRegImm:
			v = x * y
		case OpDivRegRegReg, OpDivRegRegImm:
			if y == 0 {
				return errDivideByZero
			}
			v = x / y
		case OpAndRegRegReg, OpAndRegRegImm:
			v = x & y
		case OpOrRegRegReg, OpOrRegRegImm:
			v = x | y
		case OpXorRegRegReg, OpXorRegRegImm:
			v = x ^ y
		case OpShlRegRegReg, OpShlRegRegImm:
			v = x << (y & 63)
		case OpShrRegRegReg, OpShrRegRegImm:
			v = x >> (y & 63)
		}
		result = ast.NewImmediateUint(size, v)
	}
	m.regs.Set(dst, result)
	return nil
}

// execUnary computes inc, dec, or neg over a single register's natural
// view.
func (m *VM) execUnary(op Opcode, v ast.Immediate) ast.Immediate {
	if v.Size.IsFloat() {
		switch op {
		case OpInc:
			return ast.NewImmediateFloat(v.Size, v.AsFloat64()+1)
		case OpDec:
			return ast.NewImmediateFloat(v.Size, v.AsFloat64()-1)
		default: // OpNeg
			return ast.NewImmediateFloat(v.Size, -v.AsFloat64())
		}
	}
	switch op {
	case OpInc:
		return ast.NewImmediateUint(v.Size, v.AsUint64()+1)
	case OpDec:
		return ast.NewImmediateUint(v.Size, v.AsUint64()-1)
	default: // OpNeg
		return ast.NewImmediateInt(v.Size, -v.AsInt64())
	}
}
