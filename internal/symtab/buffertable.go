package symtab

import "github.com/xyproto/retarget/internal/ir"

// Buffer is one BUFFER entry: name plus reserved size in bytes.
type Buffer struct {
	Name string
	Size int
}

// Buffers is the ordered buffer table. Buffers occupy contiguous
// zero-filled space immediately after the variable region (spec §3).
// The limit is configurable because the mcs51 backend additionally caps
// the *number of buffer names* at 32 (spec §5), tighter than the shared
// 256-entry default every other backend uses.
type Buffers struct {
	entries []Buffer
	limit   int
}

func NewBuffers() *Buffers             { return NewBuffersWithLimit(DefaultLimit) }
func NewBuffersWithLimit(n int) *Buffers { return &Buffers{limit: n} }

func (b *Buffers) Define(backend, name string, size int, line, col int) error {
	if b.Contains(name) {
		return ir.Fatalf(backend, ir.KindDuplicateSymbol, line, col, "duplicate buffer %q", name)
	}
	if len(b.entries) >= b.limit {
		return ir.Fatalf(backend, ir.KindTableOverflow, line, col, "buffer table overflow (limit %d)", b.limit)
	}
	b.entries = append(b.entries, Buffer{Name: name, Size: size})
	return nil
}

func (b *Buffers) Contains(name string) bool {
	for _, e := range b.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (b *Buffers) All() []Buffer { return b.entries }

func (b *Buffers) Len() int { return len(b.entries) }

// OffsetOf returns the byte offset of name within the buffer region
// (i.e. relative to the start of the first buffer), used by backends to
// compute the buffer's absolute address as buffer_base + OffsetOf(name).
func (b *Buffers) OffsetOf(name string) (int, bool) {
	off := 0
	for _, e := range b.entries {
		if e.Name == name {
			return off, true
		}
		off += e.Size
	}
	return 0, false
}

// TotalSize is the sum of every buffer's reserved size.
func (b *Buffers) TotalSize() int {
	total := 0
	for _, e := range b.entries {
		total += e.Size
	}
	return total
}
