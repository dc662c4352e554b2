package vm

import (
	"math"

	"nyx/ast"
)

// RegisterFile is the backing storage of spec.md section 4.4: sixteen
// 64-bit general slots, sixteen float slots each holding the bit pattern
// of a double, and three special slots for ip/sp/bp.
type RegisterFile struct {
	gpr     [16]uint64
	fpr     [16]uint64
	special [3]uint64
}

const (
	specialIP = 0
	specialSP = 1
	specialBP = 2
)

func specialIndex(reg ast.Register) int {
	switch reg {
	case ast.IP:
		return specialIP
	case ast.SP:
		return specialSP
	default:
		return specialBP
	}
}

// Get returns the tagged value held by reg at its natural data size
// (spec.md section 4.4).
func (rf *RegisterFile) Get(reg ast.Register) ast.Immediate {
	if reg.IsSpecial() {
		return ast.NewImmediateUint(ast.Qword, rf.special[specialIndex(reg)])
	}
	switch reg.View() {
	case ast.ViewFF:
		low32 := uint32(rf.fpr[reg.Bank()])
		return ast.NewImmediateFloat(ast.Float, float64(math.Float32frombits(low32)))
	case ast.ViewDD:
		return ast.NewImmediateFloat(ast.Double, math.Float64frombits(rf.fpr[reg.Bank()]))
	default:
		return ast.NewImmediateUint(reg.NaturalSize(), rf.gpr[reg.Bank()])
	}
}

// Set coerces imm to reg's natural view and writes it with the
// bit-preservation policy of spec.md section 3: byte writes keep the upper
// 56 bits, word writes keep the upper 48, dword writes zero the upper 32,
// qword writes replace the whole slot. ff writes store the float32 bit
// pattern zero-extended to 64 bits (the 4-byte float view parallels the
// 4-byte dword view); dd writes replace the whole slot with the double bit
// pattern. Both float views share one fpr slot per bank exactly as the
// four integer views share one gpr slot, and spec.md section 8's
// write-then-read invariant holds for both: ff reads back the same bit
// pattern it wrote, by bitcast, with no numeric conversion drift.
func (rf *RegisterFile) Set(reg ast.Register, imm ast.Immediate) {
	if reg.IsSpecial() {
		rf.special[specialIndex(reg)] = imm.CoerceTo(ast.Qword).AsUint64()
		return
	}
	switch reg.View() {
	case ast.ViewFF:
		v := float32(imm.CoerceTo(ast.Float).AsFloat64())
		rf.fpr[reg.Bank()] = uint64(math.Float32bits(v))
	case ast.ViewDD:
		v := imm.CoerceTo(ast.Double).AsFloat64()
		rf.fpr[reg.Bank()] = math.Float64bits(v)
	default:
		coerced := imm.CoerceTo(reg.NaturalSize())
		bank := reg.Bank()
		switch reg.View() {
		case ast.ViewB:
			rf.gpr[bank] = (rf.gpr[bank] &^ 0xFF) | coerced.AsUint64()
		case ast.ViewW:
			rf.gpr[bank] = (rf.gpr[bank] &^ 0xFFFF) | coerced.AsUint64()
		case ast.ViewD:
			rf.gpr[bank] = coerced.AsUint64()
		case ast.ViewQ:
			rf.gpr[bank] = coerced.AsUint64()
		}
	}
}

// IP, SP, and BP are the convenience accessors of spec.md section 4.4.
func (rf *RegisterFile) IP() uint64     { return rf.special[specialIP] }
func (rf *RegisterFile) SetIP(v uint64) { rf.special[specialIP] = v }
func (rf *RegisterFile) SP() uint64     { return rf.special[specialSP] }
func (rf *RegisterFile) SetSP(v uint64) { rf.special[specialSP] = v }
func (rf *RegisterFile) BP() uint64     { return rf.special[specialBP] }
func (rf *RegisterFile) SetBP(v uint64) { rf.special[specialBP] = v }
