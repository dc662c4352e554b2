// Package vm implements the virtual machine core of spec.md section 4.6:
// the register file, the memory management unit, and the fetch-decode-
// execute loop, plus the syscall table and extension loader that round out
// a runnable VM. One of the three core subsystems.
package vm

import (
	"encoding/binary"
	"fmt"

	"nyx/ast"
	"nyx/isa"
)

// VM is a single-threaded interpreter instance: one register file, one
// MMU, two flag bits, and the syscall/extension collaborators spec.md
// section 4.6 names as part of construction.
type VM struct {
	regs  RegisterFile
	mmu   *MMU
	eq    bool
	lt    bool
	halted bool

	openFiles *fileTable
	ext       *ExtensionLoader
}

// New constructs a VM from a bytecode image, per spec.md section 4.6: the
// first 8 bytes are a little-endian entry offset, the remainder is program
// bytes copied to address 0. memSize is the total flat address space; the
// difference between memSize and the program's length becomes the
// `Memory` block.
func New(image []byte, memSize int) (*VM, error) {
	if len(image) < 8 {
		return nil, fmt.Errorf("image shorter than the 8-byte entry header")
	}
	entry := binary.LittleEndian.Uint64(image[:8])
	program := image[8:]
	if memSize < len(program) {
		return nil, fmt.Errorf("mem size %d is smaller than the program (%d bytes)", memSize, len(program))
	}

	m := &VM{
		mmu:       NewMMU(),
		openFiles: newFileTable(),
		ext:       NewExtensionLoader(),
	}
	base := m.mmu.AddBlock("Program", len(program))
	if err := m.mmu.WriteSlice(base, program); err != nil {
		return nil, err
	}
	m.mmu.AddBlock("Memory", memSize-len(program))

	m.regs.SetIP(entry)
	m.regs.SetSP(uint64(memSize))
	m.regs.SetBP(0)
	return m, nil
}

// Halted reports whether hlt has executed.
func (m *VM) Halted() bool { return m.halted }

// LoadExtension opens path for later call_ex use.
func (m *VM) LoadExtension(path string) error {
	return m.ext.Load(path)
}

// Run executes instructions until hlt, a fatal error, or a process exit via
// the exit syscall. Grounded on the teacher's own RunProgram
// (KTStephano-GVM/vm/run.go): a single recover converts any panic (such
// as an out-of-range index) into a returned error instead of
// crashing the host process, the same role the teacher's
// getDefaultRecoverFuncForVM plays around execInstructions.
func (m *VM) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runtime panic: %v", r)
		}
	}()
	for !m.halted {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step fetches, decodes, and executes exactly one instruction.
func (m *VM) Step() error {
	opByte, err := m.fetchByte()
	if err != nil {
		return err
	}
	op := isa.Opcode(opByte)
	if !op.Valid() {
		return errInvalidOpcode
	}
	return m.dispatch(op)
}

func (m *VM) fetchByte() (byte, error) {
	v, err := m.mmu.Read(int(m.regs.IP()), ast.Byte)
	if err != nil {
		return 0, errIPOutOfBounds
	}
	m.regs.SetIP(m.regs.IP() + 1)
	return byte(v.AsUint64()), nil
}

func (m *VM) fetchN(n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := m.fetchByte()
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

func (m *VM) fetchImm(size ast.DataSize) (ast.Immediate, error) {
	buf, err := m.fetchN(size.Bytes())
	if err != nil {
		return ast.Immediate{}, err
	}
	return ast.ImmediateFromBytes(size, buf), nil
}

func (m *VM) fetchRegister() (ast.Register, error) {
	b, err := m.fetchByte()
	if err != nil {
		return 0, err
	}
	r, ok := ast.RegisterFromWireByte(b)
	if !ok {
		return 0, errInvalidRegisterByte
	}
	return r, nil
}

func (m *VM) fetchDataSize() (ast.DataSize, error) {
	b, err := m.fetchByte()
	if err != nil {
		return 0, err
	}
	ds, ok := ast.DataSizeFromWireByte(b)
	if !ok {
		return 0, errInvalidDataSizeByte
	}
	return ds, nil
}

func (m *VM) fetchCString() (string, error) {
	var out []byte
	for {
		b, err := m.fetchByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}

// fetchAddress decodes one of the two addressing variants of spec.md
// section 4.2 and resolves it to an absolute address.
func (m *VM) fetchAddress() (int, error) {
	variantByte, err := m.fetchByte()
	if err != nil {
		return 0, err
	}
	switch isa.AddrVariant(variantByte) {
	case isa.AddrRegisterBase:
		reg, err := m.fetchRegister()
		if err != nil {
			return 0, err
		}
		offBytes, err := m.fetchN(8)
		if err != nil {
			return 0, err
		}
		offset := int64(binary.LittleEndian.Uint64(offBytes))
		base := int64(m.regs.Get(reg).AsUint64())
		return int(base + offset), nil
	case isa.AddrImmediateBase:
		baseBytes, err := m.fetchN(8)
		if err != nil {
			return 0, err
		}
		offBytes, err := m.fetchN(8)
		if err != nil {
			return 0, err
		}
		base := int64(binary.LittleEndian.Uint64(baseBytes))
		offset := int64(binary.LittleEndian.Uint64(offBytes))
		return int(base + offset), nil
	default:
		return 0, errUnknownAddrVariant
	}
}

func (m *VM) pushValue(imm ast.Immediate) error {
	size := uint64(imm.Size.Bytes())
	if m.regs.SP() < size {
		return errStackOverflow
	}
	newSP := m.regs.SP() - size
	if err := m.mmu.Write(int(newSP), imm); err != nil {
		return err
	}
	m.regs.SetSP(newSP)
	return nil
}

func (m *VM) popValue(size ast.DataSize) (ast.Immediate, error) {
	v, err := m.mmu.Read(int(m.regs.SP()), size)
	if err != nil {
		return ast.Immediate{}, err
	}
	newSP := m.regs.SP() + uint64(size.Bytes())
	if newSP > uint64(m.mmu.Size()) {
		return ast.Immediate{}, errStackUnderflow
	}
	m.regs.SetSP(newSP)
	return v, nil
}

func (m *VM) compare(lhs, rhs ast.Immediate) {
	m.eq = lhs.Equals(rhs)
	m.lt = lhs.LessThan(rhs)
}
