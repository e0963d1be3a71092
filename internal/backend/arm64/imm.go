package arm64

import (
	"math"

	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
)

// movSequenceSize reproduces, as a pure function, the decision pass 2
// makes about how many MOVZ/MOVK words an immediate load costs: one word
// (4 bytes) when imm fits entirely in the low 16 bits, two (8 bytes)
// otherwise (spec §4.3 "Immediate loading" — "the size computation in
// pass 1 must reproduce the pass 2 decision exactly"). Shared verbatim
// by instrSize and emitMovSequence so the two can never drift apart.
func movSequenceSize(imm int64, line, col int) (int, error) {
	if imm < math.MinInt32 || imm > math.MaxUint32 {
		return 0, ir.Fatalf(backendName, ir.KindImmediateOutOfRange, line, col,
			"immediate %d out of 32-bit range for arm64", imm)
	}
	if uint32(imm)>>16 == 0 {
		return 4, nil
	}
	return 8, nil
}

// emitMovSequence writes the MOVZ (+ MOVK, LSL #16) sequence that loads
// the 32-bit pattern of imm into register rd, sized exactly as
// movSequenceSize predicts.
func emitMovSequence(cb *codebuf.Buffer, rd int, imm int64) {
	u := uint32(imm)
	lo := uint16(u)
	hi := uint16(u >> 16)
	cb.WriteU32LE(movzWord(rd, lo, 0))
	if n, _ := movSequenceSize(imm, 0, 0); n == 8 {
		cb.WriteU32LE(movkWord(rd, hi, 1))
	}
}

// emitAddrSequence loads addr into rd via an unconditional MOVZ+MOVK
// pair (8 bytes, always both words) regardless of whether the high
// halfword happens to be zero. Variable/buffer/string addresses use
// this instead of emitMovSequence so GET/SET/LDS keep the fixed 12-byte
// size instrSize commits to (spec §6 "movSequenceSize... must reproduce
// the pass 2 decision exactly" — the fixed form sidesteps that coupling
// for addresses entirely, since an address's magnitude isn't known
// until layout and shouldn't perturb instrSize's GET/SET/LDS case).
func emitAddrSequence(cb *codebuf.Buffer, rd int, addr int64) {
	u := uint32(addr)
	cb.WriteU32LE(movzWord(rd, uint16(u), 0))
	cb.WriteU32LE(movkWord(rd, uint16(u>>16), 1))
}
