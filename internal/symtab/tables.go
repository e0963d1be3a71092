package symtab

import "github.com/xyproto/retarget/internal/ir"

func fixupOverflow(backend string, f Fixup) error {
	return ir.Fatalf(backend, ir.KindTableOverflow, f.Line, f.Col, "fixup table overflow (limit %d)", DefaultLimit)
}

// Tables bundles the five per-run tables a backend's Generate populates
// during pass 1, reads during pass 2, and drains during pass 3 (spec §3
// "Lifecycle"). One Tables is created fresh per Generate call; nothing
// in it is shared across runs.
type Tables struct {
	Symbols *Symbols
	Vars    *Vars
	Buffers *Buffers
	Strings *Strings
	Fixups  []Fixup
}

// New builds an empty Tables with the shared 256-entry default bound on
// every table.
func New() *Tables {
	return &Tables{
		Symbols: NewSymbols(),
		Vars:    NewVars(),
		Buffers: NewBuffers(),
		Strings: NewStrings(),
	}
}

// NewWithBufferLimit is New but with a tighter buffer-name bound, used by
// the mcs51 backend (spec §5: "32 buffer names on 8051").
func NewWithBufferLimit(bufferLimit int) *Tables {
	t := New()
	t.Buffers = NewBuffersWithLimit(bufferLimit)
	return t
}

// AddFixup appends a pending relocation, fatal on overflow of the shared
// 256-fixup bound.
func (t *Tables) AddFixup(backend string, f Fixup) error {
	if len(t.Fixups) >= DefaultLimit {
		return fixupOverflow(backend, f)
	}
	t.Fixups = append(t.Fixups, f)
	return nil
}
