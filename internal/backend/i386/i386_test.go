package i386

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

func TestLDIAndHLT(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(42)),
		ir.Insn(ir.OpHLT, 2, 1),
	}
	got := generate(t, program)
	want := []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestADDRegisterForm(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpADD, 1, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpHLT, 2, 1),
	}
	got := generate(t, program)
	want := []byte{0x01, 0xC8, 0xC3}
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
	got := generate(t, program)
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
	got := generate(t, program)
	// VAR contributes no code; LDI(5)+SET(6)+GET(6)+HLT(1) = 18 bytes of
	// code, so the variable slot sits at absolute offset 18 (4-byte slot)
	// and the buffer is 22 bytes.
	if len(got) != 22 {
		t.Fatalf("len(got) = %d, want 22", len(got))
	}
	readAbs := func(off int) uint32 {
		return uint32(got[off]) | uint32(got[off+1])<<8 | uint32(got[off+2])<<16 | uint32(got[off+3])<<24
	}
	// SET is at offset 5, opcode+modrm consume 2 bytes, so the abs32
	// field sits at offset 7.
	if v := readAbs(7); v != 18 {
		t.Fatalf("SET absolute address = %d, want 18", v)
	}
	// GET is at offset 11, abs32 field at offset 13.
	if v := readAbs(13); v != 18 {
		t.Fatalf("GET absolute address = %d, want 18", v)
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
		ir.Insn(ir.OpSHR, 1, 1, ir.Reg(1), ir.Reg(1)),
		ir.Insn(ir.OpLOAD, 1, 1, ir.Reg(0), ir.Reg(4)),
		ir.Insn(ir.OpLOAD, 1, 1, ir.Reg(0), ir.Reg(5)),
		ir.Insn(ir.OpPUSH, 1, 1, ir.Reg(3)),
		ir.Insn(ir.OpHLT, 1, 1),
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
