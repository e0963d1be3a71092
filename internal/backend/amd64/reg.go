package amd64

import (
	"github.com/xyproto/retarget/internal/ir"
)

// nativeReg is the x86-64 3-bit register encoding for MVIS R0..R7. The
// mapping (spec Glossary: R0..R7 -> RAX, RCX, RDX, RBX, RSP, RBP, RSI,
// RDI) happens to equal the virtual register index directly, which is
// why every ModR/M builder below can use the MVIS index as-is instead of
// consulting a table.
func nativeReg(backend string, v int, line, col int) (int, error) {
	if v < 0 || v > 7 {
		return 0, ir.Fatalf(backend, ir.KindRegisterOutOfRange, line, col,
			"register R%d out of range for amd64 (only R0..R7 supported)", v)
	}
	return v, nil
}

// needsSIB reports whether addressing [reg] requires a SIB byte (RSP, 4).
func needsSIB(reg int) bool { return reg == 4 }

// needsDisp8Zero reports whether addressing [reg] requires mod=01 disp8=0
// instead of mod=00 (RBP, 5 — mod=00 rm=101 means RIP-relative instead).
func needsDisp8Zero(reg int) bool { return reg == 5 }

// scratchEnc is the native encoding of the internal scratch register (R11)
// used to hold an immediate operand before a register-register ALU op,
// per spec §4.2 "ADD r,imm expands to 10 bytes (MOV scratch, imm32 then
// ADD r, scratch)".
const scratchEnc = 11
