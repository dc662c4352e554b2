package isa

// AddrVariant is the one-byte addressing-mode tag of spec.md section 4.2.
type AddrVariant byte

const (
	// AddrRegisterBase: R then an 8-byte signed offset.
	AddrRegisterBase AddrVariant = 0x00
	// AddrImmediateBase: an 8-byte signed base then an 8-byte signed offset.
	AddrImmediateBase AddrVariant = 0x01
)
