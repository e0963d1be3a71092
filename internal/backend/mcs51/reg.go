// Package mcs51 implements the Intel 8051 backend: an
// accumulator-mediated, byte-oriented target where nearly every MVIS
// opcode expands into a short sequence routed through the accumulator A
// (spec §4.5). Unlike the other three backends, branches resolve their
// 8-bit relative displacement inline during pass 2 — the symbol table
// is already complete by then, so no Fixup/pass-3 step exists for this
// backend at all.
package mcs51

import "github.com/xyproto/retarget/internal/ir"

const backendName = "mcs51"

// nativeReg validates an MVIS register against bank-0 R0..R7 (spec
// Glossary: "8051: R0..R7 -> bank-0 R0..R7").
func nativeReg(v, line, col int) (int, error) {
	if v < 0 || v > 7 {
		return 0, ir.Fatalf(backendName, ir.KindRegisterOutOfRange, line, col,
			"register R%d out of range for mcs51 (only R0..R7 supported)", v)
	}
	return v, nil
}

// isIndirectCapable reports whether reg can serve as the pointer
// register in @Ri addressing, a hardware constraint of MOV A,@Ri /
// MOV @Ri,A (spec §4.5: "LOAD/STORE/LOADB/STOREB require the indirect
// register to be R0 or R1").
func isIndirectCapable(reg int) bool { return reg == 0 || reg == 1 }

func requireIndirect(reg, line, col int) error {
	if !isIndirectCapable(reg) {
		return ir.Fatalf(backendName, ir.KindRegisterOutOfRange, line, col,
			"mcs51 indirect addressing requires R0 or R1, got R%d", reg)
	}
	return nil
}

// checkByteImmediate validates that imm fits the single byte every
// 8051 immediate operand (MOV Rn,#data, ADD A,#data, ...) is limited to.
func checkByteImmediate(imm int64, line, col int) (byte, error) {
	if imm < -128 || imm > 255 {
		return 0, ir.Fatalf(backendName, ir.KindImmediateOutOfRange, line, col,
			"immediate %d does not fit an 8051 byte operand", imm)
	}
	return byte(imm), nil
}
