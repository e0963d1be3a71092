package amd64

import (
	"bytes"
	"testing"

	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/ir"
)

func generate(t *testing.T, program []ir.Instruction, opts backend.Options) []byte {
	t.Helper()
	b := New()
	cb, err := b.Generate(program, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return cb.Bytes()
}

func TestLDIAndHLT(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(42)),
		ir.Insn(ir.OpHLT, 2, 1),
	}
	got := generate(t, program, backend.Options{})
	want := []byte{0x48, 0xC7, 0xC0, 0x2A, 0x00, 0x00, 0x00, 0xC3}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestADDRegisterForm(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpADD, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpHLT, 2, 1),
	}
	got := generate(t, program, backend.Options{})
	want := []byte{0x48, 0x01, 0xC8, 0xC3}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestJMPForwardFixup(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpJMP, 1, 1, ir.Lbl("done")),
		ir.Insn(ir.OpNOP, 2, 1),
		ir.Label("done", 3, 1),
		ir.Insn(ir.OpHLT, 4, 1),
	}
	got := generate(t, program, backend.Options{})
	// E9 <rel32> 90 C3; rel32 = target(6) - instrEnd(5) = 1
	want := []byte{0xE9, 0x01, 0x00, 0x00, 0x00, 0x90, 0xC3}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestVarRoundTrip(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpVAR, 1, 1, ir.Lbl("counter"), ir.Imm(0)),
		ir.Insn(ir.OpLDI, 2, 1, ir.Reg(0), ir.Imm(7)),
		ir.Insn(ir.OpSET, 3, 1, ir.Lbl("counter"), ir.Reg(0)),
		ir.Insn(ir.OpGET, 4, 1, ir.Reg(1), ir.Lbl("counter")),
		ir.Insn(ir.OpHLT, 5, 1),
	}
	got := generate(t, program, backend.Options{})
	// VAR contributes no code; LDI(7)+SET(7)+GET(7)+HLT(1) = 22 bytes of
	// code, so the variable slot sits at absolute offset 22 and its 8
	// bytes end the buffer at 30.
	if len(got) != 30 {
		t.Fatalf("len(got) = %d, want 30", len(got))
	}
	readDisp := func(off int) int32 {
		return int32(got[off]) | int32(got[off+1])<<8 | int32(got[off+2])<<16 | int32(got[off+3])<<24
	}
	// SET is the instruction at offset 7, its disp32 field at offset 10,
	// instruction end at 14; var base is 22.
	if d := readDisp(10); d != 22-14 {
		t.Fatalf("SET displacement = %d, want %d", d, 22-14)
	}
	// GET is the instruction at offset 14, its disp32 field at offset 17,
	// instruction end at 21.
	if d := readDisp(17); d != 22-21 {
		t.Fatalf("GET displacement = %d, want %d", d, 22-21)
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
		ir.Insn(ir.OpADD, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpADD, 1, 1, ir.Reg(0), ir.Imm(100)),
		ir.Insn(ir.OpMUL, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpDIV, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpDIV, 1, 1, ir.Reg(2), ir.Reg(1)),
		ir.Insn(ir.OpSHL, 1, 1, ir.Reg(0), ir.Imm(3)),
		ir.Insn(ir.OpSHL, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpLOAD, 1, 1, ir.Reg(0), ir.Reg(4)),
		ir.Insn(ir.OpLOAD, 1, 1, ir.Reg(0), ir.Reg(5)),
		ir.Insn(ir.OpPUSH, 1, 1, ir.Reg(3)),
		ir.Insn(ir.OpHLT, 1, 1),
	}
	for _, inst := range samples {
		want, err := instrSize(inst, backend.Options{})
		if err != nil {
			t.Fatalf("instrSize(%s): %v", inst.Op, err)
		}
		cb := generate(t, []ir.Instruction{inst}, backend.Options{})
		if len(cb) != want {
			t.Errorf("%s: instrSize=%d, emitted=%d", inst.Op, want, len(cb))
		}
	}
}
