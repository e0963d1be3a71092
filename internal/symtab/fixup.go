package symtab

import "github.com/xyproto/retarget/internal/ir"

// Kind tags a deferred relocation with the exact rule pass 3 must use to
// resolve it. Per spec §9 ("Fixup kinds vs a single rel32" and
// "RIP-relative vs absolute for variables") this is a proper tagged enum:
// amd64's RIP-relative displacement and i386's absolute displacement are
// distinct variants, not the same field overloaded with a sentinel, and
// AArch64's three branch forms each carry their own range.
type Kind int

const (
	// AMD64Rel32 is target - instrEnd, a signed 32-bit displacement used
	// for every amd64 JMP/Jcc/CALL and RIP-relative variable access.
	AMD64Rel32 Kind = iota
	// I386Abs32 is the target address itself, written absolute (no PC
	// relation) into a 32-bit little-endian slot.
	I386Abs32
	// ARM64B is an unconditional B: 26-bit signed word-offset, range
	// ±128 MiB.
	ARM64B
	// ARM64BL is BL: same encoding and range as ARM64B.
	ARM64BL
	// ARM64Bcond is B.cond: 19-bit signed word-offset (±1 MiB) plus a
	// 4-bit condition code carried in Fixup.Cond.
	ARM64Bcond
)

// Fixup is one deferred relocation recorded in pass 2 and resolved in
// pass 3 against the symbol table (spec §3 "Fixup record").
type Fixup struct {
	Label       string
	PatchOffset int // offset of the placeholder's first byte
	InstrEnd    int // amd64 and i386 rel32 kinds: offset of the byte after the instruction
	Line, Col   int
	Kind        Kind
	Cond        uint8 // AArch64 4-bit condition code; ARM64Bcond only
}

// Range returns the inclusive [min,max] signed displacement range legal
// for k, in the unit k is resolved in (bytes for x86, words<<2 already
// applied for AArch64).
func (k Kind) Range() (min, max int64) {
	switch k {
	case AMD64Rel32, I386Abs32:
		return -0x80000000, 0x7fffffff
	case ARM64B, ARM64BL:
		return -(1 << 27), (1 << 27) - 4
	case ARM64Bcond:
		return -(1 << 20), (1 << 20) - 4
	}
	return 0, 0
}

// Resolve walks fixups, looks each label up in syms, range-checks the
// computed displacement against kind's legal range, and invokes patch
// with the final bytes to write. backend names the caller for
// diagnostics.
func Resolve(backend string, fixups []Fixup, syms *Symbols, patch func(f Fixup, target int) error) error {
	for _, f := range fixups {
		target, ok := syms.Lookup(f.Label)
		if !ok {
			return ir.Fatalf(backend, ir.KindUndefinedSymbol, f.Line, f.Col, "undefined label or variable %q", f.Label)
		}
		if err := patch(f, target); err != nil {
			return err
		}
	}
	return nil
}
