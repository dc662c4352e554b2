package vm

import (
	"os"

	"nyx/ast"
)

// SyscallFunc is the native body behind one syscall table entry.
type SyscallFunc func(*VM) error

// syscallTable is the index-to-function mapping of spec.md section 4.6 and
// section 6's ABI table. Bodies are implementation-defined per spec.md
// section 1 ("out of scope: ... the specific syscall bodies beyond their
// register-passed ABI"); these are real OS-backed bodies so the pipeline
// runs end to end, grounded on the teacher's own console-IO device
// (KTStephano-GVM/vm/devices.go's consoleIO, adapted from a port/command
// model to the flat index-in-q15 ABI) and os.OpenFile/Read/Write/Close for
// everything file-shaped.
var syscallTable = map[uint64]SyscallFunc{
	0x00: sysOpen,
	0x01: sysClose,
	0x02: sysRead,
	0x03: sysWrite,
	0x04: sysMalloc,
	0x05: sysFree,
	0xFF: sysExit,
}

func (m *VM) dispatchSyscall() error {
	idx := m.regs.Get(ast.MakeRegister(15, ast.ViewQ)).AsUint64()
	fn, ok := syscallTable[idx]
	if !ok {
		return errUnknownSyscall
	}
	return fn(m)
}

// readCString reads bytes from addr until a terminating 0x00.
func (m *VM) readCString(addr int) (string, error) {
	var out []byte
	for {
		b, err := m.mmu.Read(addr, ast.Byte)
		if err != nil {
			return "", err
		}
		v := byte(b.AsUint64())
		if v == 0 {
			return string(out), nil
		}
		out = append(out, v)
		addr++
	}
}

// sysOpen: q0=path pointer, d1=flags, w2=mode -> q0=fd.
func sysOpen(m *VM) error {
	pathAddr := int(m.regs.Get(ast.MakeRegister(0, ast.ViewQ)).AsUint64())
	flags := int(m.regs.Get(ast.MakeRegister(1, ast.ViewD)).AsUint64())
	mode := os.FileMode(m.regs.Get(ast.MakeRegister(2, ast.ViewW)).AsUint64())
	path, err := m.readCString(pathAddr)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		m.regs.Set(ast.MakeRegister(0, ast.ViewQ), ast.NewImmediateInt(ast.Qword, -1))
		return nil
	}
	fd := m.openFiles.put(f)
	m.regs.Set(ast.MakeRegister(0, ast.ViewQ), ast.NewImmediateUint(ast.Qword, uint64(fd)))
	return nil
}

// sysClose: d0=fd.
func sysClose(m *VM) error {
	fd := int(m.regs.Get(ast.MakeRegister(0, ast.ViewD)).AsUint64())
	return m.openFiles.close(fd)
}

// sysRead: d0=fd, q1=buffer addr, q2=count -> q0=bytes read.
func sysRead(m *VM) error {
	fd := int(m.regs.Get(ast.MakeRegister(0, ast.ViewD)).AsUint64())
	bufAddr := int(m.regs.Get(ast.MakeRegister(1, ast.ViewQ)).AsUint64())
	count := int(m.regs.Get(ast.MakeRegister(2, ast.ViewQ)).AsUint64())
	f, err := m.openFiles.get(fd)
	if err != nil {
		return err
	}
	buf := make([]byte, count)
	n, _ := f.Read(buf)
	if n > 0 {
		if err := m.mmu.WriteSlice(bufAddr, buf[:n]); err != nil {
			return err
		}
	}
	m.regs.Set(ast.MakeRegister(0, ast.ViewQ), ast.NewImmediateUint(ast.Qword, uint64(n)))
	return nil
}

// sysWrite: d0=fd, q1=buffer addr, q2=count -> q0=bytes written.
func sysWrite(m *VM) error {
	fd := int(m.regs.Get(ast.MakeRegister(0, ast.ViewD)).AsUint64())
	bufAddr := int(m.regs.Get(ast.MakeRegister(1, ast.ViewQ)).AsUint64())
	count := int(m.regs.Get(ast.MakeRegister(2, ast.ViewQ)).AsUint64())
	f, err := m.openFiles.get(fd)
	if err != nil {
		return err
	}
	data, err := m.mmu.ReadSlice(bufAddr, count)
	if err != nil {
		return err
	}
	n, _ := f.Write(data)
	m.regs.Set(ast.MakeRegister(0, ast.ViewQ), ast.NewImmediateUint(ast.Qword, uint64(n)))
	return nil
}

// sysMalloc: q0=size -> q0=address.
func sysMalloc(m *VM) error {
	size := int(m.regs.Get(ast.MakeRegister(0, ast.ViewQ)).AsUint64())
	base := m.mmu.AddBlock("heap", size)
	m.regs.Set(ast.MakeRegister(0, ast.ViewQ), ast.NewImmediateUint(ast.Qword, uint64(base)))
	return nil
}

// sysFree: q0=address.
func sysFree(m *VM) error {
	addr := int(m.regs.Get(ast.MakeRegister(0, ast.ViewQ)).AsUint64())
	if !m.mmu.RemoveBlock(addr) {
		return errInvalidFreeAddress
	}
	return nil
}

// sysExit: b0=status. Terminates the host process, per spec.md section 5
// ("the VM halts only on hlt, a sys_exit syscall that terminates the host
// process, or a fatal runtime error").
func sysExit(m *VM) error {
	status := int(m.regs.Get(ast.MakeRegister(0, ast.ViewB)).AsUint64())
	os.Exit(status)
	return nil
}
