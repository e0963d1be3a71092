package pe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/xyproto/retarget/internal/codebuf"
)

func u16At(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func u32At(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

func TestNoImportsLayout(t *testing.T) {
	code := make([]byte, 16)
	for i := range code {
		code[i] = byte(i + 1)
	}
	cb := &codebuf.Buffer{}
	cb.WriteBytes(code)

	out := Emit(cb)

	if len(out) != 1024 {
		t.Fatalf("file size = %d, want 1024", len(out))
	}
	if string(out[0:2]) != "MZ" {
		t.Fatalf("missing MZ signature: % x", out[0:4])
	}
	if string(out[0x40:0x44]) != "PE\x00\x00" {
		t.Fatalf("PE signature not at 0x40: % x", out[0x40:0x44])
	}
	if got := u16At(out, 0x40+4); got != machineAMD64 {
		t.Fatalf("Machine = %#x, want %#x", got, machineAMD64)
	}
	if got := u16At(out, 0x40+6); got != 1 {
		t.Fatalf("NumberOfSections = %d, want 1", got)
	}
	if got := u32At(out, 0x58+16); got != entryPointRVA {
		t.Fatalf("AddressOfEntryPoint = %#x, want %#x", got, entryPointRVA)
	}
	if got := u32At(out, 0x58+60); got != sizeOfHeaders {
		t.Fatalf("SizeOfHeaders = %#x, want %#x", got, sizeOfHeaders)
	}
	// .text section header starts at 0x58 + optionalHeaderSizeNoDirs = 0xC8.
	const textHdr = 0xC8
	if name := string(bytes.TrimRight(out[textHdr:textHdr+8], "\x00")); name != ".text" {
		t.Fatalf("section name = %q, want .text", name)
	}
	if got := u32At(out, textHdr+36); got != scnTextNoImp {
		t.Fatalf(".text characteristics = %#x, want %#x", got, scnTextNoImp)
	}
	if !bytes.Equal(out[0x200:0x210], code) {
		t.Fatalf("code bytes at 0x200 = % x, want % x", out[0x200:0x210], code)
	}
	if !bytes.Equal(out[0x210:0x400], make([]byte, 0x400-0x210)) {
		t.Fatalf("expected zero padding after code")
	}
}

func TestWithImportsLayout(t *testing.T) {
	code := make([]byte, 64)
	cb := &codebuf.Buffer{}
	cb.WriteBytes(code)
	cb.IATOffset = 16
	cb.IATCount = 5

	out := Emit(cb)

	if got := u16At(out, 0x40+6); got != 2 {
		t.Fatalf("NumberOfSections = %d, want 2", got)
	}
	if got := u16At(out, 0x40+20); got != optionalHeaderSizeFull {
		t.Fatalf("SizeOfOptionalHeader = %d, want %d", got, optionalHeaderSizeFull)
	}

	dirBase := 0x58 + optionalHeaderSizeNoDirs
	importDirOff := dirBase + dirImport*8
	iatDirOff := dirBase + dirIAT*8

	importRVA := u32At(out, importDirOff)
	importSize := u32At(out, importDirOff+4)
	if importSize != 40 {
		t.Fatalf("import directory size = %d, want 40", importSize)
	}

	iatRVA := u32At(out, iatDirOff)
	iatSize := u32At(out, iatDirOff+4)
	if iatRVA != textRVA+16 {
		t.Fatalf("IAT RVA = %#x, want %#x", iatRVA, textRVA+16)
	}
	if iatSize != 40 {
		t.Fatalf("IAT directory size = %d, want 40", iatSize)
	}

	// .idata RVA: right after .text's section-aligned virtual size.
	idataRVA := textRVA + alignUp(len(code), sectionAlign)
	if importRVA != uint32(idataRVA) {
		t.Fatalf("import directory RVA = %#x, want %#x", importRVA, idataRVA)
	}

	textFileOff := sizeOfHeaders
	idataFileOff := textFileOff + alignUp(len(code), fileAlign)
	ilt := out[idataFileOff+40 : idataFileOff+40+32]
	iat := out[textFileOff+16 : textFileOff+16+32]
	if !bytes.Equal(ilt, iat) {
		t.Fatalf("on-disk IAT does not match ILT: ilt=% x iat=% x", ilt, iat)
	}
}

func TestNoImportsSizeOfImageAligned(t *testing.T) {
	cb := &codebuf.Buffer{}
	cb.WriteBytes(make([]byte, 5000))
	out := Emit(cb)
	sizeOfImage := u32At(out, 0x58+56)
	if sizeOfImage%sectionAlign != 0 {
		t.Fatalf("SizeOfImage %#x not aligned to %#x", sizeOfImage, sectionAlign)
	}
}
