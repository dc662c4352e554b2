// Package asm implements the bytecode builder and the two-pass assembler
// of spec.md sections 4.2 and 4.3 — one of the three core subsystems.
package asm

import "encoding/binary"

// Section is one of the assembler's two independent append buffers.
type Section int

const (
	Text Section = iota
	Data
)

func (s Section) String() string {
	if s == Text {
		return "text"
	}
	return "data"
}

// Builder is the bytecode builder of spec.md section 4.3: two append-only
// byte sequences plus in-place patch operations, grounded on the teacher's
// own flat instruction-stream construction (KTStephano-GVM/vm/compile.go
// builds a single []Instruction slice by appending; Nyx needs two
// independently-addressed byte sections instead of one fixed-width
// instruction slice, since operand widths vary per spec.md's addressing and
// data-size rules).
type Builder struct {
	text    []byte
	data    []byte
	section Section
}

// NewBuilder returns a builder starting in the text section, matching
// spec.md section 4.2 ("current section ... initially text").
func NewBuilder() *Builder {
	return &Builder{section: Text}
}

// SetSection switches the builder's current section.
func (b *Builder) SetSection(s Section) {
	b.section = s
}

// CurrentSection returns the builder's current section.
func (b *Builder) CurrentSection() Section {
	return b.section
}

func (b *Builder) bufFor(s Section) *[]byte {
	if s == Text {
		return &b.text
	}
	return &b.data
}

// PushByte appends one byte to the current section.
func (b *Builder) PushByte(v byte) {
	buf := b.bufFor(b.section)
	*buf = append(*buf, v)
}

// Extend appends bytes to the current section.
func (b *Builder) Extend(bytes []byte) {
	buf := b.bufFor(b.section)
	*buf = append(*buf, bytes...)
}

// Grow appends n zero bytes to the current section.
func (b *Builder) Grow(n int) {
	buf := b.bufFor(b.section)
	*buf = append(*buf, make([]byte, n)...)
}

// Len returns the current length of the named section.
func (b *Builder) Len(s Section) int {
	return len(*b.bufFor(s))
}

// WriteU8At patches a single byte at offset in section s.
func (b *Builder) WriteU8At(s Section, offset int, v byte) {
	(*b.bufFor(s))[offset] = v
}

// WriteU16At patches a little-endian word at offset in section s.
func (b *Builder) WriteU16At(s Section, offset int, v uint16) {
	binary.LittleEndian.PutUint16((*b.bufFor(s))[offset:], v)
}

// WriteU32At patches a little-endian dword at offset in section s.
func (b *Builder) WriteU32At(s Section, offset int, v uint32) {
	binary.LittleEndian.PutUint32((*b.bufFor(s))[offset:], v)
}

// WriteU64At patches a little-endian qword at offset in section s.
func (b *Builder) WriteU64At(s Section, offset int, v uint64) {
	binary.LittleEndian.PutUint64((*b.bufFor(s))[offset:], v)
}

// WriteAt patches width bytes (1, 2, 4, or 8) little-endian at offset in
// section s. width values outside that set are a programmer error, per
// spec.md section 4.2's "widths {byte, word, dword, qword} only; others
// are a programmer error".
func (b *Builder) WriteAt(s Section, offset int, width int, v uint64) {
	switch width {
	case 1:
		b.WriteU8At(s, offset, byte(v))
	case 2:
		b.WriteU16At(s, offset, uint16(v))
	case 4:
		b.WriteU32At(s, offset, uint32(v))
	case 8:
		b.WriteU64At(s, offset, v)
	default:
		panic("asm: invalid fixup width")
	}
}

// Finalize concatenates text and data (spec.md section 4.3).
func (b *Builder) Finalize() []byte {
	out := make([]byte, 0, len(b.text)+len(b.data))
	out = append(out, b.text...)
	out = append(out, b.data...)
	return out
}

// TextLen is a convenience accessor used when biasing data-section label
// addresses by len(text) (spec.md section 3).
func (b *Builder) TextLen() int {
	return len(b.text)
}
