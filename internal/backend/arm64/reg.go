// Package arm64 implements the AArch64 backend: every instruction is a
// single 32-bit little-endian word, built by bit-field composition
// rather than ModR/M-style byte streams (spec §4.3).
package arm64

import "github.com/xyproto/retarget/internal/ir"

const backendName = "arm64"

// Scratch registers used to materialize variable/buffer/string
// addresses and immediate ALU operands (spec §4.3 "scratch X9, X10").
const (
	scratchAddr = 9  // X9: holds a materialized absolute address
	scratchImm  = 10 // X10: holds a materialized immediate operand
	linkReg     = 30 // X30 / LR
	zeroOrSP    = 31 // XZR in most contexts, SP for load/store base
)

// nativeReg is the AArch64 register encoding for MVIS R0..R7 (spec
// Glossary: R0..R7 -> X0..X7).
func nativeReg(v, line, col int) (int, error) {
	if v < 0 || v > 7 {
		return 0, ir.Fatalf(backendName, ir.KindRegisterOutOfRange, line, col,
			"register R%d out of range for arm64 (only R0..R7 supported)", v)
	}
	return v, nil
}
