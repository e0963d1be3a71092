package pe

import "github.com/samber/lo"

// importedFunctions is the fixed kernel32.dll surface the amd64 Win32
// trampoline dispatches through (spec §4.2/§4.6): GetStdHandle to
// resolve stdin/stdout/stderr, WriteFile/ReadFile and ExitProcess to
// back the SYS read/write and exit convention. Order here is the order
// thunks are laid out in the ILT/IAT, and must match amd64/win32.go's
// iatGetStdHandle/iatWriteFile/iatReadFile/iatExitProcess slot indices.
var importedFunctions = []string{"GetStdHandle", "WriteFile", "ReadFile", "ExitProcess"}

const dllName = "kernel32.dll"

// importData holds the assembled .idata block plus the absolute RVAs
// other tables need to cross-reference it.
type importData struct {
	bytes   []byte
	idtRVA  int
	idtSize int
	ilt     []byte // raw ILT bytes, reused verbatim to seed the on-disk IAT
}

func hintEntrySize(name string) int {
	size := 2 + len(name) + 1
	if size%2 != 0 {
		size++
	}
	return size
}

// hintOffset is a (name, .idata-local offset) pair for one Hint/Name
// entry, kept in importedFunctions order so ILT and IAT thunks line up
// positionally with the function each slot resolves.
type hintOffset struct {
	name   string
	local  int
}

func layoutHints(names []string, base int) []hintOffset {
	offset := base
	return lo.Map(names, func(name string, _ int) hintOffset {
		h := hintOffset{name: name, local: offset}
		offset += hintEntrySize(name)
		return h
	})
}

// buildImportData lays out the Import Directory Table, Import Lookup
// Table, Hint/Name entries, and DLL name as one contiguous 147-byte
// block relative to idataRVA:
//
//	[0)    IDT: kernel32 entry, null terminator     40 bytes
//	[40)   ILT: 4 named thunks + null terminator     40 bytes
//	[80)   Hint/Name entries for the 4 thunks         54 bytes
//	[134)  "kernel32.dll\0"                           13 bytes
//
// The IAT itself lives in .text at textRVA+iatOffset, not in .idata,
// so the loader can patch it without touching read-only import data.
func buildImportData(idataRVA, textRVA, iatOffset int) importData {
	const (
		idtLocal  = 0
		idtSize   = 2 * 20
		iltLocal  = idtLocal + idtSize
		iltSize   = 5 * 8
		hintLocal = iltLocal + iltSize
	)

	hints := layoutHints(importedFunctions, hintLocal)
	nameLocal := hintLocal
	for _, name := range importedFunctions {
		nameLocal += hintEntrySize(name)
	}

	iatRVA := textRVA + iatOffset
	dllNameRVA := idataRVA + nameLocal
	iltRVA := idataRVA + iltLocal

	w := newWriter(nameLocal + len(dllName) + 1)

	w.u32(uint32(iltRVA))     // OriginalFirstThunk
	w.u32(0)                  // TimeDateStamp
	w.u32(0)                  // ForwarderChain
	w.u32(uint32(dllNameRVA)) // Name
	w.u32(uint32(iatRVA))     // FirstThunk
	w.zero(20)                // null IDT terminator

	iltStart := len(w.buf)
	for _, h := range hints {
		w.u64(uint64(idataRVA + h.local))
	}
	w.u64(0) // null ILT terminator
	ilt := append([]byte(nil), w.buf[iltStart:len(w.buf)]...)

	for _, h := range hints {
		w.u16(0) // Hint, unused by the loaders this targets
		w.bytes([]byte(h.name))
		w.u8(0)
		if hintEntrySize(h.name) > 2+len(h.name)+1 {
			w.u8(0) // pad to an even total entry length
		}
	}

	w.bytes([]byte(dllName))
	w.u8(0)

	return importData{bytes: w.buf, idtRVA: idataRVA + idtLocal, idtSize: idtSize, ilt: ilt}
}
