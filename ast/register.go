package ast

import "fmt"

// Register is the 99-member enumeration fixed by spec.md section 3 and
// section 6: for each of 16 banks, six views {b,w,d,q,ff,dd}, followed by
// the three special registers {ip, sp, bp}. Declaration order is the wire
// ordinal, matching the excerpt in spec.md section 6
// ("b0=0, w0=1, d0=2, q0=3, ff0=4, dd0=5, b1=6, ...").
type Register byte

const viewsPerBank = 6
const numBanks = 16

const (
	numGeneralRegisters = numBanks * viewsPerBank // 96
	IP                  = Register(numGeneralRegisters + 0)
	SP                  = Register(numGeneralRegisters + 1)
	BP                  = Register(numGeneralRegisters + 2)
	NumRegisters         = numGeneralRegisters + 3 // 99
)

// View identifies one of the six per-bank aliases.
type View byte

const (
	ViewB View = iota
	ViewW
	ViewD
	ViewQ
	ViewFF
	ViewDD
)

var viewNames = [...]string{"b", "w", "d", "q", "ff", "dd"}

// MakeRegister builds the register id for a given bank (0..15) and view.
func MakeRegister(bank int, view View) Register {
	return Register(bank*viewsPerBank + int(view))
}

// IsSpecial reports whether r is ip, sp, or bp.
func (r Register) IsSpecial() bool {
	return r >= Register(numGeneralRegisters)
}

// Bank returns the general-purpose bank index (0..15). Only valid for
// non-special registers; callers must check IsSpecial first.
func (r Register) Bank() int {
	return int(r) / viewsPerBank
}

// View returns the view alias of a non-special register.
func (r Register) View() View {
	return View(int(r) % viewsPerBank)
}

// NaturalSize maps a register to the data size of its natural view, per
// spec.md section 3 ("A function maps a concrete register to its natural
// data size"). The special registers (ip/sp/bp) back a usize slot, which
// this VM always models as a qword.
func (r Register) NaturalSize() DataSize {
	if r.IsSpecial() {
		return Qword
	}
	switch r.View() {
	case ViewB:
		return Byte
	case ViewW:
		return Word
	case ViewD:
		return Dword
	case ViewQ:
		return Qword
	case ViewFF:
		return Float
	case ViewDD:
		return Double
	}
	panic("unreachable register view")
}

func (r Register) String() string {
	switch r {
	case IP:
		return "ip"
	case SP:
		return "sp"
	case BP:
		return "bp"
	}
	if int(r) >= numGeneralRegisters {
		return fmt.Sprintf("reg(%d)", byte(r))
	}
	return fmt.Sprintf("%s%d", viewNames[r.View()], r.Bank())
}

// ParseRegisterName resolves a lowercase register mnemonic such as "q3" or
// "bp" to its Register id. Returns false for anything that isn't a
// register name.
func ParseRegisterName(s string) (Register, bool) {
	switch s {
	case "ip":
		return IP, true
	case "sp":
		return SP, true
	case "bp":
		return BP, true
	}
	for v, name := range viewNames {
		if len(s) <= len(name) || s[:len(name)] != name {
			continue
		}
		digits := s[len(name):]
		if digits == "" {
			continue
		}
		bank := 0
		for _, c := range digits {
			if c < '0' || c > '9' {
				bank = -1
				break
			}
			bank = bank*10 + int(c-'0')
		}
		if bank < 0 || bank >= numBanks {
			continue
		}
		return MakeRegister(bank, View(v)), true
	}
	return 0, false
}

// RegisterFromWireByte decodes the R operand byte of spec.md section 6.
func RegisterFromWireByte(b byte) (Register, bool) {
	if int(b) >= NumRegisters {
		return 0, false
	}
	return Register(b), true
}
