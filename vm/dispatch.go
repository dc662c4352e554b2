package vm

import (
	"nyx/ast"
	"nyx/isa"
)

// Opcode and the per-instruction constants are aliased from isa so the
// switch below reads against the shared wire contract without a package
// prefix on every case label.
type Opcode = isa.Opcode

const (
	OpNop          = isa.OpNop
	OpRet          = isa.OpRet
	OpSyscall      = isa.OpSyscall
	OpHlt          = isa.OpHlt
	OpLoadExternal = isa.OpLoadExternal
	OpMovRegReg    = isa.OpMovRegReg
	OpMovRegImm    = isa.OpMovRegImm
	OpLdr          = isa.OpLdr
	OpStr          = isa.OpStr
	OpSti          = isa.OpSti
	OpPushImm      = isa.OpPushImm
	OpPushReg      = isa.OpPushReg
	OpPushAddr     = isa.OpPushAddr
	OpPopReg       = isa.OpPopReg
	OpPopAddr      = isa.OpPopAddr

	OpAddRegRegReg = isa.OpAddRegRegReg
	OpSubRegRegReg = isa.OpSubRegRegReg
	OpMulRegRegReg = isa.OpMulRegRegReg
	OpDivRegRegReg = isa.OpDivRegRegReg
	OpAddRegRegImm = isa.OpAddRegRegImm
	OpSubRegRegImm = isa.OpSubRegRegImm
	OpMulRegRegImm = isa.OpMulRegRegImm
	OpDivRegRegImm = isa.OpDivRegRegImm

	OpAndRegRegReg = isa.OpAndRegRegReg
	OpOrRegRegReg  = isa.OpOrRegRegReg
	OpXorRegRegReg = isa.OpXorRegRegReg
	OpShlRegRegReg = isa.OpShlRegRegReg
	OpShrRegRegReg = isa.OpShrRegRegReg
	OpAndRegRegImm = isa.OpAndRegRegImm
	OpOrRegRegImm  = isa.OpOrRegRegImm
	OpXorRegRegImm = isa.OpXorRegRegImm
	OpShlRegRegImm = isa.OpShlRegRegImm
	OpShrRegRegImm = isa.OpShrRegRegImm

	OpCmpRegReg = isa.OpCmpRegReg
	OpCmpRegImm = isa.OpCmpRegImm

	OpJmpImm = isa.OpJmpImm
	OpJeqImm = isa.OpJeqImm
	OpJneImm = isa.OpJneImm
	OpJltImm = isa.OpJltImm
	OpJgtImm = isa.OpJgtImm
	OpJleImm = isa.OpJleImm
	OpJgeImm = isa.OpJgeImm
	OpJmpReg = isa.OpJmpReg
	OpJeqReg = isa.OpJeqReg
	OpJneReg = isa.OpJneReg
	OpJltReg = isa.OpJltReg
	OpJgtReg = isa.OpJgtReg
	OpJleReg = isa.OpJleReg
	OpJgeReg = isa.OpJgeReg

	OpCallImm = isa.OpCallImm
	OpCallReg = isa.OpCallReg
	OpCallEx  = isa.OpCallEx

	OpInc = isa.OpInc
	OpDec = isa.OpDec
	OpNeg = isa.OpNeg
)

// dispatch executes one already-fetched opcode. The operand bytes
// immediately follow the opcode byte in the instruction stream; each case
// fetches exactly the shape spec.md section 6 assigns that mnemonic.
func (m *VM) dispatch(op Opcode) error {
	switch op {
	case OpNop:
		return nil

	case OpRet:
		v, err := m.popValue(ast.Qword)
		if err != nil {
			return err
		}
		m.regs.SetIP(v.AsUint64())
		return nil

	case OpSyscall:
		return m.dispatchSyscall()

	case OpHlt:
		m.halted = true
		return nil

	case OpLoadExternal:
		name, err := m.fetchCString()
		if err != nil {
			return err
		}
		return m.ext.Load(name)

	case OpMovRegReg:
		dst, src, err := m.fetchRegReg()
		if err != nil {
			return err
		}
		m.regs.Set(dst, m.regs.Get(src))
		return nil

	case OpMovRegImm:
		dst, err := m.fetchRegister()
		if err != nil {
			return err
		}
		imm, err := m.fetchImm(dst.NaturalSize())
		if err != nil {
			return err
		}
		m.regs.Set(dst, imm)
		return nil

	case OpLdr:
		dst, err := m.fetchRegister()
		if err != nil {
			return err
		}
		addr, err := m.fetchAddress()
		if err != nil {
			return err
		}
		v, err := m.mmu.Read(addr, dst.NaturalSize())
		if err != nil {
			return err
		}
		m.regs.Set(dst, v)
		return nil

	case OpStr:
		src, err := m.fetchRegister()
		if err != nil {
			return err
		}
		addr, err := m.fetchAddress()
		if err != nil {
			return err
		}
		return m.mmu.Write(addr, m.regs.Get(src))

	case OpSti:
		size, err := m.fetchDataSize()
		if err != nil {
			return err
		}
		imm, err := m.fetchImm(size)
		if err != nil {
			return err
		}
		addr, err := m.fetchAddress()
		if err != nil {
			return err
		}
		return m.mmu.Write(addr, imm)

	case OpPushImm:
		size, err := m.fetchDataSize()
		if err != nil {
			return err
		}
		imm, err := m.fetchImm(size)
		if err != nil {
			return err
		}
		return m.pushValue(imm)

	case OpPushReg:
		if _, err := m.fetchDataSize(); err != nil {
			return err
		}
		reg, err := m.fetchRegister()
		if err != nil {
			return err
		}
		return m.pushValue(m.regs.Get(reg))

	case OpPushAddr:
		size, err := m.fetchDataSize()
		if err != nil {
			return err
		}
		addr, err := m.fetchAddress()
		if err != nil {
			return err
		}
		v, err := m.mmu.Read(addr, size)
		if err != nil {
			return err
		}
		return m.pushValue(v)

	case OpPopReg:
		if _, err := m.fetchDataSize(); err != nil {
			return err
		}
		reg, err := m.fetchRegister()
		if err != nil {
			return err
		}
		v, err := m.popValue(reg.NaturalSize())
		if err != nil {
			return err
		}
		m.regs.Set(reg, v)
		return nil

	case OpPopAddr:
		size, err := m.fetchDataSize()
		if err != nil {
			return err
		}
		addr, err := m.fetchAddress()
		if err != nil {
			return err
		}
		v, err := m.popValue(size)
		if err != nil {
			return err
		}
		return m.mmu.Write(addr, v)

	case OpAddRegRegReg, OpSubRegRegReg, OpMulRegRegReg, OpDivRegRegReg,
		OpAndRegRegReg, OpOrRegRegReg, OpXorRegRegReg, OpShlRegRegReg, OpShrRegRegReg:
		dst, a, b, err := m.fetchRegRegReg()
		if err != nil {
			return err
		}
		return m.execBinOp(op, dst, m.regs.Get(a), m.regs.Get(b))

	case OpAddRegRegImm, OpSubRegRegImm, OpMulRegRegImm, OpDivRegRegImm,
		OpAndRegRegImm, OpOrRegRegImm, OpXorRegRegImm, OpShlRegRegImm, OpShrRegRegImm:
		dst, a, err := m.fetchRegister2()
		if err != nil {
			return err
		}
		imm, err := m.fetchImm(dst.NaturalSize())
		if err != nil {
			return err
		}
		return m.execBinOp(op, dst, m.regs.Get(a), imm)

	case OpCmpRegReg:
		a, b, err := m.fetchRegReg()
		if err != nil {
			return err
		}
		m.compare(m.regs.Get(a), m.regs.Get(b))
		return nil

	case OpCmpRegImm:
		a, err := m.fetchRegister()
		if err != nil {
			return err
		}
		imm, err := m.fetchImm(a.NaturalSize())
		if err != nil {
			return err
		}
		m.compare(m.regs.Get(a), imm)
		return nil

	case OpJmpImm, OpJeqImm, OpJneImm, OpJltImm, OpJgtImm, OpJleImm, OpJgeImm:
		target, err := m.fetchImm(ast.Qword)
		if err != nil {
			return err
		}
		return m.maybeBranch(op, target.AsUint64())

	case OpJmpReg, OpJeqReg, OpJneReg, OpJltReg, OpJgtReg, OpJleReg, OpJgeReg:
		reg, err := m.fetchRegister()
		if err != nil {
			return err
		}
		return m.maybeBranch(op, m.regs.Get(reg).AsUint64())

	case OpCallImm:
		target, err := m.fetchImm(ast.Qword)
		if err != nil {
			return err
		}
		return m.doCall(target.AsUint64())

	case OpCallReg:
		reg, err := m.fetchRegister()
		if err != nil {
			return err
		}
		return m.doCall(m.regs.Get(reg).AsUint64())

	case OpCallEx:
		name, err := m.fetchCString()
		if err != nil {
			return err
		}
		_, err = m.ext.Call(name, m)
		return err

	case OpInc, OpDec, OpNeg:
		reg, err := m.fetchRegister()
		if err != nil {
			return err
		}
		m.regs.Set(reg, m.execUnary(op, m.regs.Get(reg)))
		return nil
	}
	return errInvalidOpcode
}

func (m *VM) fetchRegReg() (ast.Register, ast.Register, error) {
	a, err := m.fetchRegister()
	if err != nil {
		return 0, 0, err
	}
	b, err := m.fetchRegister()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func (m *VM) fetchRegister2() (ast.Register, ast.Register, error) {
	return m.fetchRegReg()
}

func (m *VM) fetchRegRegReg() (ast.Register, ast.Register, ast.Register, error) {
	dst, a, err := m.fetchRegReg()
	if err != nil {
		return 0, 0, 0, err
	}
	b, err := m.fetchRegister()
	if err != nil {
		return 0, 0, 0, err
	}
	return dst, a, b, nil
}

// doCall pushes the return address (the already-advanced ip, pointing past
// the full call instruction) and jumps to target.
func (m *VM) doCall(target uint64) error {
	if err := m.pushValue(ast.NewImmediateUint(ast.Qword, m.regs.IP())); err != nil {
		return err
	}
	m.regs.SetIP(target)
	return nil
}

func (m *VM) maybeBranch(op Opcode, target uint64) error {
	if m.branchTaken(op) {
		m.regs.SetIP(target)
	}
	return nil
}

func (m *VM) branchTaken(op Opcode) bool {
	switch op {
	case OpJmpImm, OpJmpReg:
		return true
	case OpJeqImm, OpJeqReg:
		return m.eq
	case OpJneImm, OpJneReg:
		return !m.eq
	case OpJltImm, OpJltReg:
		return m.lt
	case OpJgtImm, OpJgtReg:
		return !m.lt
	case OpJleImm, OpJleReg:
		return m.lt || m.eq
	case OpJgeImm, OpJgeReg:
		return !m.lt || m.eq
	}
	return false
}
