package asm

import "nyx/ast"

// Label is {section, offset}, section-relative until Finalize rewrites it
// to an absolute offset within text||data (spec.md section 3).
type Label struct {
	Section Section
	Offset  int
}

// Fixup records a byte range that must be patched once its label resolves
// (spec.md section 3). Sizes are always one of {byte, word, dword, qword}
// regardless of the operand that produced them.
type Fixup struct {
	PatchSection Section
	PatchOffset  int
	Size         int
	LabelID      int
	Span         ast.Span
}

func (a *Assembler) addFixup(size int, labelID int, span ast.Span) {
	a.fixups = append(a.fixups, Fixup{
		PatchSection: a.builder.CurrentSection(),
		PatchOffset:  a.builder.Len(a.builder.CurrentSection()),
		Size:         size,
		LabelID:      labelID,
		Span:         span,
	})
}

// absoluteAddress converts a section-relative label to its final offset
// within text||data: data labels are biased by len(text) (spec.md
// section 3 and section 4.2's Finalize step 1).
func (a *Assembler) absoluteAddress(l Label) uint64 {
	if l.Section == Text {
		return uint64(l.Offset)
	}
	return uint64(a.builder.TextLen() + l.Offset)
}
