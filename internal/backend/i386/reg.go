// Package i386 implements the x86-32 (IA-32) backend: the same
// three-pass shape as amd64, with no REX prefix, 32-bit-wide registers
// and operands, and absolute (not RIP-relative) displacements for
// variable/buffer/string access, since 32-bit mode has no RIP-relative
// addressing form (spec §4.3).
package i386

import "github.com/xyproto/retarget/internal/ir"

const backendName = "i386"

// nativeReg is the x86-32 3-bit register encoding for MVIS R0..R7 (spec
// Glossary: R0..R7 -> EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI), identical
// in numbering to the amd64 mapping minus the REX-extended range.
func nativeReg(v, line, col int) (int, error) {
	if v < 0 || v > 7 {
		return 0, ir.Fatalf(backendName, ir.KindRegisterOutOfRange, line, col,
			"register R%d out of range for i386 (only R0..R7 supported)", v)
	}
	return v, nil
}

func needsSIB(reg int) bool       { return reg == 4 } // ESP
func needsDisp8Zero(reg int) bool { return reg == 5 } // EBP
