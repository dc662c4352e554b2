package vm

import (
	"nyx/ast"
)

// bus is the uniform interface every memory block exposes (spec.md section
// 4.5's "ordered list of buses"). A plain byte-slice block is the only
// backing kind Nyx needs, so unlike the teacher's boxed HardwareDevice
// interface (KTStephano-GVM/vm/devices.go) a single concrete type
// implements it directly; SPEC_FULL.md's design notes keep the interface
// seam anyway so a future backing kind (e.g. a memory-mapped device) could
// be added without touching the MMU's dispatch loop.
type bus interface {
	Name() string
	Size() int
	Read(addr int, size ast.DataSize) (ast.Immediate, error)
	ReadSlice(start, end int) ([]byte, error)
	Write(addr int, value ast.Immediate) error
	WriteSlice(start int, data []byte) error
}

// block is a named, fixed-length, zero-initialized byte buffer - the only
// bus kind Nyx's MMU needs (spec.md section 3's "Memory block").
type block struct {
	name    string
	storage []byte
}

func newBlock(name string, size int) *block {
	return &block{name: name, storage: make([]byte, size)}
}

func (b *block) Name() string { return b.name }
func (b *block) Size() int    { return len(b.storage) }

// Read decodes size.Bytes() bytes at addr as the bit pattern of size
// directly (no numeric conversion): integer sizes read a little-endian
// integer, float sizes read the IEEE-754 bit pattern, per spec.md section
// 4.5's "Float widths are stored as the IEEE 754 bit pattern of the native
// type of that width."
func (b *block) Read(addr int, size ast.DataSize) (ast.Immediate, error) {
	width := size.Bytes()
	if addr < 0 || addr+width > len(b.storage) {
		return ast.Immediate{}, errAddressOutOfBounds
	}
	return ast.ImmediateFromBytes(size, b.storage[addr:addr+width]), nil
}

func (b *block) ReadSlice(start, end int) ([]byte, error) {
	if start < 0 || end > len(b.storage) || start > end {
		return nil, errAddressOutOfBounds
	}
	return b.storage[start:end], nil
}

func (b *block) Write(addr int, value ast.Immediate) error {
	bs := value.Bytes()
	if addr < 0 || addr+len(bs) > len(b.storage) {
		return errAddressOutOfBounds
	}
	copy(b.storage[addr:], bs)
	return nil
}

func (b *block) WriteSlice(start int, data []byte) error {
	if start < 0 || start+len(data) > len(b.storage) {
		return errAddressOutOfBounds
	}
	copy(b.storage[start:], data)
	return nil
}

// MMU routes addresses across an ordered list of buses, per spec.md
// section 4.5.
type MMU struct {
	buses []bus
}

// NewMMU returns an empty MMU.
func NewMMU() *MMU {
	return &MMU{}
}

// Size returns the sum of every bus's size, the total flat address space.
func (m *MMU) Size() int {
	total := 0
	for _, b := range m.buses {
		total += b.Size()
	}
	return total
}

// AddBlock allocates a fresh zero-initialized block, appends it, and
// returns the absolute base address of the new block.
func (m *MMU) AddBlock(name string, size int) int {
	base := m.Size()
	m.buses = append(m.buses, newBlock(name, size))
	return base
}

// RemoveBlock removes the block whose base address equals addr, per
// spec.md section 5's free semantics ("matching its absolute base address
// against the running sum of block sizes"). Returns false if no block
// starts at addr.
func (m *MMU) RemoveBlock(addr int) bool {
	base := 0
	for i, b := range m.buses {
		if base == addr {
			m.buses = append(m.buses[:i], m.buses[i+1:]...)
			return true
		}
		base += b.Size()
	}
	return false
}

// locate finds the bus containing addr along with the address translated
// to that bus's local coordinate space.
func (m *MMU) locate(addr int) (bus, int, bool) {
	base := 0
	for _, b := range m.buses {
		if addr >= base && addr < base+b.Size() {
			return b, addr - base, true
		}
		base += b.Size()
	}
	return nil, 0, false
}

// Read reads size.Bytes() bytes at addr and decodes them as size.
func (m *MMU) Read(addr int, size ast.DataSize) (ast.Immediate, error) {
	b, local, ok := m.locate(addr)
	if !ok {
		return ast.Immediate{}, errAddressOutOfBounds
	}
	width := size.Bytes()
	if local+width > b.Size() {
		return ast.Immediate{}, errAddressOutOfBounds
	}
	return b.Read(local, size)
}

// Write encodes value at its tagged size and writes it at addr.
func (m *MMU) Write(addr int, value ast.Immediate) error {
	b, local, ok := m.locate(addr)
	if !ok {
		return errAddressOutOfBounds
	}
	if local+value.Size.Bytes() > b.Size() {
		return errAddressOutOfBounds
	}
	return b.Write(local, value)
}

// ReadSlice reads length bytes starting at addr, continuing across
// consecutive buses if the read straddles a boundary (spec.md section
// 4.5).
func (m *MMU) ReadSlice(addr, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		b, local, ok := m.locate(addr + len(out))
		if !ok {
			return nil, errAddressOutOfBounds
		}
		take := min(length-len(out), b.Size()-local)
		chunk, err := b.ReadSlice(local, local+take)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// WriteSlice writes data starting at addr, continuing across consecutive
// buses if the write straddles a boundary.
func (m *MMU) WriteSlice(addr int, data []byte) error {
	written := 0
	for written < len(data) {
		b, local, ok := m.locate(addr + written)
		if !ok {
			return errAddressOutOfBounds
		}
		take := min(len(data)-written, b.Size()-local)
		if err := b.WriteSlice(local, data[written:written+take]); err != nil {
			return err
		}
		written += take
	}
	return nil
}

