package symtab

import "github.com/xyproto/retarget/internal/ir"

// Variable is one VAR entry: a name, an optional initializer, and
// whether that initializer was present in the IR (spec §3 "Variable
// table... (name, init_value?, has_init)").
type Variable struct {
	Name    string
	Init    int64
	HasInit bool
}

// Vars is the ordered variable table. Per-entry size is target-specific
// (8 bytes on amd64/arm64, 4 on i386, 1 on mcs51) and is applied by the
// backend when it computes var_base/buffer_base, not stored here.
type Vars struct {
	entries []Variable
	limit   int
}

func NewVars() *Vars { return &Vars{limit: DefaultLimit} }

func (v *Vars) Define(backend, name string, init int64, hasInit bool, line, col int) error {
	if v.Contains(name) {
		return ir.Fatalf(backend, ir.KindDuplicateSymbol, line, col, "duplicate variable %q", name)
	}
	if len(v.entries) >= v.limit {
		return ir.Fatalf(backend, ir.KindTableOverflow, line, col, "variable table overflow (limit %d)", v.limit)
	}
	v.entries = append(v.entries, Variable{Name: name, Init: init, HasInit: hasInit})
	return nil
}

func (v *Vars) Contains(name string) bool {
	for _, e := range v.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (v *Vars) All() []Variable { return v.entries }

func (v *Vars) Len() int { return len(v.entries) }

// Index returns the 0-based position of name in declaration order, used
// by backends to compute var_base + i*var_size.
func (v *Vars) Index(name string) (int, bool) {
	for i, e := range v.entries {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}
