// Package symtab holds the shared layout primitives every backend fills
// in during pass 1 and reads during passes 2/3: the symbol table,
// variable/buffer/string tables, and fixup list (spec §3, §4.1, §9
// "Shared symbol/fixup/var/buf/str tables").
package symtab

import "github.com/xyproto/retarget/internal/ir"

// DefaultLimit is the fixed upper bound spec §5 gives for symbols,
// fixups, variables, buffers and strings ("Tables have fixed upper
// bounds... Exceeding a bound is a fatal error").
const DefaultLimit = 256

// Symbols maps a label/VAR/BUFFER name to its byte address within the
// image. Lookup is a map index; order keeps the names in definition
// order.
type Symbols struct {
	order []string
	addrs map[string]int
	limit int
}

func NewSymbols() *Symbols {
	return &Symbols{addrs: make(map[string]int), limit: DefaultLimit}
}

// Define inserts name -> addr. Returns a diagnostic if name is already
// present (spec: "Duplicate insertion fails with a diagnostic") or the
// table is full.
func (s *Symbols) Define(backend, name string, addr int, line, col int) error {
	if _, ok := s.addrs[name]; ok {
		return ir.Fatalf(backend, ir.KindDuplicateSymbol, line, col, "duplicate symbol %q", name)
	}
	if len(s.order) >= s.limit {
		return ir.Fatalf(backend, ir.KindTableOverflow, line, col, "symbol table overflow (limit %d)", s.limit)
	}
	s.order = append(s.order, name)
	s.addrs[name] = addr
	return nil
}

// Lookup returns the address for name and whether it was found.
func (s *Symbols) Lookup(name string) (int, bool) {
	a, ok := s.addrs[name]
	return a, ok
}

// Names returns symbol names in insertion order.
func (s *Symbols) Names() []string { return s.order }
