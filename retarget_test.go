package retarget

import (
	"bytes"
	"testing"

	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
)

// TestS1AMD64LDIHLT reproduces spec §8 scenario S1.
func TestS1AMD64LDIHLT(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(42)),
		ir.Insn(ir.OpHLT, 2, 1),
	}
	cb, err := Generate(TargetAMD64, false, program)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []byte{0x48, 0xC7, 0xC0, 0x2A, 0x00, 0x00, 0x00, 0xC3}
	if !bytes.Equal(cb.Bytes(), want) {
		t.Fatalf("got % x, want % x", cb.Bytes(), want)
	}
}

// TestS4MCS51LDIHLT reproduces spec §8 scenario S4.
func TestS4MCS51LDIHLT(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(0x55)),
		ir.Insn(ir.OpHLT, 2, 1),
	}
	cb, err := Generate(TargetMCS51, false, program)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []byte{0x78, 0x55, 0x80, 0xFE}
	if !bytes.Equal(cb.Bytes(), want) {
		t.Fatalf("got % x, want % x", cb.Bytes(), want)
	}
}

func TestGenerateUnknownTarget(t *testing.T) {
	if _, err := Generate("riscv64", false, nil); err == nil {
		t.Fatal("expected an error for an unknown target")
	}
}

func TestGenerateWin32RejectedOffAMD64(t *testing.T) {
	if _, err := Generate(TargetARM64, true, nil); err == nil {
		t.Fatal("expected win32 to be rejected for a non-x86-64 target")
	}
}

// TestS5PENoImports reproduces spec §8 scenario S5 through the facade.
func TestS5PENoImports(t *testing.T) {
	cb := &codebuf.Buffer{}
	cb.WriteBytes(make([]byte, 16))
	out := EmitPEExe(cb)
	if len(out) != 1024 {
		t.Fatalf("file size = %d, want 1024", len(out))
	}
	if string(out[:2]) != "MZ" {
		t.Fatalf("missing MZ signature")
	}
}

// TestIdempotence is spec §8 property P7: generate twice, same bytes.
func TestIdempotence(t *testing.T) {
	program := []ir.Instruction{
		ir.Insn(ir.OpLDI, 1, 1, ir.Reg(0), ir.Imm(10)),
		ir.Insn(ir.OpLDI, 2, 1, ir.Reg(1), ir.Imm(5)),
		ir.Insn(ir.OpADD, 3, 1, ir.Reg(0), ir.Reg(1)),
		ir.Insn(ir.OpHLT, 4, 1),
	}
	a, err := Generate(TargetAMD64, false, program)
	if err != nil {
		t.Fatalf("Generate (1): %v", err)
	}
	b, err := Generate(TargetAMD64, false, program)
	if err != nil {
		t.Fatalf("Generate (2): %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("non-idempotent: % x vs % x", a.Bytes(), b.Bytes())
	}
}
