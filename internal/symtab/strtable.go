package symtab

import "github.com/xyproto/retarget/internal/ir"

// StringEntry is one de-duplicated string literal: its text, byte offset
// within the string area, and length excluding the terminating zero
// byte that every string is stored with (spec §3).
type StringEntry struct {
	Text   string
	Offset int
	Length int
}

// Strings is the de-duplicated, ordered string table referenced by
// LDS Rd, "text". Two identical literals anywhere in the IR share one
// entry — grounded on the teacher's own string-literal de-duplication in
// its rodata section (xyproto-vibe67's ExecutableBuilder.RodataSection).
type Strings struct {
	order   []string
	offsets map[string]int
	next    int
	limit   int
}

func NewStrings() *Strings {
	return &Strings{offsets: make(map[string]int), limit: DefaultLimit}
}

// Intern registers text if not already present and returns its entry.
// Each string occupies len(text)+1 bytes (text plus a terminating zero).
func (s *Strings) Intern(backend, text string, line, col int) (StringEntry, error) {
	if off, ok := s.offsets[text]; ok {
		return StringEntry{Text: text, Offset: off, Length: len(text)}, nil
	}
	if len(s.order) >= s.limit {
		return StringEntry{}, ir.Fatalf(backend, ir.KindTableOverflow, line, col, "string table overflow (limit %d)", s.limit)
	}
	off := s.next
	s.offsets[text] = off
	s.order = append(s.order, text)
	s.next += len(text) + 1
	return StringEntry{Text: text, Offset: off, Length: len(text)}, nil
}

// All returns entries in insertion (first-use) order.
func (s *Strings) All() []StringEntry {
	out := make([]StringEntry, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, StringEntry{Text: t, Offset: s.offsets[t], Length: len(t)})
	}
	return out
}

// TotalSize is the byte size of the whole string area, each entry
// including its terminating zero.
func (s *Strings) TotalSize() int { return s.next }
