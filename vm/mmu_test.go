package vm

import (
	"testing"

	"nyx/ast"
)

func TestMMUSizeIsSumOfBlocks(t *testing.T) {
	m := NewMMU()
	m.AddBlock("a", 10)
	m.AddBlock("b", 20)
	assert(t, m.Size() == 30, "expected size 30, got %d", m.Size())
}

func TestMMUReadWriteRoundTrip(t *testing.T) {
	m := NewMMU()
	m.AddBlock("a", 16)
	assert(t, m.Write(0, ast.NewImmediateUint(ast.Qword, 0xDEADBEEF)) == nil, "unexpected write error")
	v, err := m.Read(0, ast.Qword)
	assert(t, err == nil, "unexpected read error: %v", err)
	assert(t, v.AsUint64() == 0xDEADBEEF, "expected round-tripped value, got %x", v.AsUint64())
}

// Boundary behavior of spec.md section 8: "Accessing address mmu.size()-1
// with size byte succeeds; size word fails."
func TestMMULastByteBoundary(t *testing.T) {
	m := NewMMU()
	m.AddBlock("a", 16)
	_, err := m.Read(m.Size()-1, ast.Byte)
	assert(t, err == nil, "byte read of the last address should succeed: %v", err)
	_, err = m.Read(m.Size()-1, ast.Word)
	assert(t, err != nil, "word read starting at the last address should fail (out of bounds)")
}

func TestMMUReadSliceStraddlesBusBoundary(t *testing.T) {
	m := NewMMU()
	base1 := m.AddBlock("a", 4)
	base2 := m.AddBlock("b", 4)
	assert(t, base2 == 4, "second block should start at 4, got %d", base2)
	assert(t, m.WriteSlice(base1, []byte{1, 2, 3, 4}) == nil, "unexpected write error")
	assert(t, m.WriteSlice(base2, []byte{5, 6, 7, 8}) == nil, "unexpected write error")

	got, err := m.ReadSlice(2, 4)
	assert(t, err == nil, "unexpected straddling read error: %v", err)
	want := []byte{3, 4, 5, 6}
	for i := range want {
		assert(t, got[i] == want[i], "byte %d: got %d, want %d", i, got[i], want[i])
	}
}

func TestMMUOutOfBoundsGapIsAnError(t *testing.T) {
	m := NewMMU()
	m.AddBlock("a", 4)
	_, err := m.ReadSlice(0, 8)
	assert(t, err != nil, "expected an out-of-bounds error reading past the last block")
}

func TestMMUFloatBitPatternRoundTripsWithoutNumericConversion(t *testing.T) {
	m := NewMMU()
	m.AddBlock("a", 16)
	v := ast.NewImmediateFloat(ast.Double, 3.5)
	assert(t, m.Write(0, v) == nil, "unexpected write error")
	got, err := m.Read(0, ast.Double)
	assert(t, err == nil, "unexpected read error: %v", err)
	assert(t, got.AsFloat64() == 3.5, "expected the double's value to survive the round trip, got %v", got.AsFloat64())
}

func TestMMUAddBlockThenRemoveBlock(t *testing.T) {
	m := NewMMU()
	m.AddBlock("Program", 8)
	m.AddBlock("Memory", 8)
	heapBase := m.AddBlock("heap", 16)
	assert(t, heapBase == 16, "heap block should start after Program+Memory, got %d", heapBase)
	assert(t, m.RemoveBlock(heapBase), "expected removal of a real block base to succeed")
	assert(t, m.Size() == 16, "size should shrink back down after free, got %d", m.Size())
	assert(t, !m.RemoveBlock(999), "removal of a non-block-base address should fail")
}
