package arm64

import (
	"bytes"
	"testing"

	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/ir"
)

func generate(t *testing.T, program []ir.Instruction) []byte {
	t.Helper()
	b := New()
	cb, err := b.Generate(program, backend.Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return cb.Bytes()
}

// TestMovRetGolden reproduces spec scenario S3 byte-for-byte: LDI
// R0,#7; MOV R1,R0; RET assembles to MOVZ X0,#7 / MOV X1,X0 / RET X30.
func TestMovRetGolden(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(7)),
		ir.Insn(ir.OpMOV, 2, 1, ir.Reg(1), ir.Reg(0)),
		ir.Insn(ir.OpRET, 3, 1),
	}
	got := generate(t, program)
	want := []byte{
		0xE0, 0x00, 0x80, 0xD2, // MOVZ X0,#7
		0xE1, 0x03, 0x00, 0xAA, // MOV X1,X0
		0xC0, 0x03, 0x5F, 0xD6, // RET X30
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestLDILargeImmediateUsesMovk(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(0x12345678)),
		ir.Insn(ir.OpRET, 2, 1),
	}
	got := generate(t, program)
	if len(got) != 12 {
		t.Fatalf("len(got) = %d, want 12 (MOVZ+MOVK+RET)", len(got))
	}
}

func TestJMPForwardFixup(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpJMP, 1, 1, ir.Lbl("done")),
		ir.Insn(ir.OpNOP, 2, 1),
		ir.Label("done", 3, 1),
		ir.Insn(ir.OpRET, 4, 1),
	}
	got := generate(t, program)
	if len(got) != 12 {
		t.Fatalf("len(got) = %d, want 12", len(got))
	}
	// B target(8) - patchOffset(0) = 8 bytes = 2 words.
	want := uint32(0x14000002)
	word := uint32(got[0]) | uint32(got[1])<<8 | uint32(got[2])<<16 | uint32(got[3])<<24
	if word != want {
		t.Fatalf("B word = %08x, want %08x", word, want)
	}
}

func TestJZConditionalFixup(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpJZ, 1, 1, ir.Lbl("done")),
		ir.Insn(ir.OpNOP, 2, 1),
		ir.Label("done", 3, 1),
		ir.Insn(ir.OpRET, 4, 1),
	}
	got := generate(t, program)
	word := uint32(got[0]) | uint32(got[1])<<8 | uint32(got[2])<<16 | uint32(got[3])<<24
	// B.EQ, imm19 = 2 words, cond = 0x0
	want := uint32(0x54000000) | (2 << 5) | 0x0
	if word != want {
		t.Fatalf("B.EQ word = %08x, want %08x", word, want)
	}
}

func TestVarRoundTrip(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpVAR, 1, 1, ir.Lbl("counter"), ir.Imm(0)),
		ir.Insn(ir.OpLDI, 2, 1, ir.Reg(0), ir.Imm(7)),
		ir.Insn(ir.OpSET, 3, 1, ir.Lbl("counter"), ir.Reg(0)),
		ir.Insn(ir.OpGET, 4, 1, ir.Reg(1), ir.Lbl("counter")),
		ir.Insn(ir.OpRET, 5, 1),
	}
	got := generate(t, program)
	// LDI(4)+SET(12)+GET(12)+RET(4) = 32 bytes of code; var slot at 32,
	// 8 bytes wide, so the buffer is 40 bytes.
	if len(got) != 40 {
		t.Fatalf("len(got) = %d, want 40", len(got))
	}
}

func TestRegisterOutOfRange(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(9), ir.Imm(1)),
	}
	b := New()
	if _, err := b.Generate(program, backend.Options{}); err == nil {
		t.Fatal("expected register-out-of-range error")
	}
}

func TestSizeConsistency(t *testing.T) {
	samples := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(5)),
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(0x12345678)),
		ir.Insn(ir.OpADD, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpADD, 1, 1, ir.Reg(0), ir.Imm(100)),
		ir.Insn(ir.OpADD, 1, 1, ir.Reg(0), ir.Imm(0x10000)),
		ir.Insn(ir.OpMUL, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpDIV, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpSHL, 1, 1, ir.Reg(0), ir.Imm(3)),
		ir.Insn(ir.OpSHL, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpLOAD, 1, 1, ir.Reg(0), ir.Reg(4)),
		ir.Insn(ir.OpPUSH, 1, 1, ir.Reg(3)),
		ir.Insn(ir.OpSYS, 1, 1),
		ir.Insn(ir.OpRET, 1, 1),
	}
	for _, inst := range samples {
		want, err := instrSize(inst)
		if err != nil {
			t.Fatalf("instrSize(%s): %v", inst.Op, err)
		}
		cb := generate(t, []ir.Instruction{inst})
		if len(cb) != want {
			t.Errorf("%s: instrSize=%d, emitted=%d", inst.Op, want, len(cb))
		}
	}
}
