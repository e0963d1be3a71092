package symtab

import "testing"

func TestSymbolsDuplicateIsFatal(t *testing.T) {
	s := NewSymbols()
	if err := s.Define("test", "loop", 0, 1, 1); err != nil {
		t.Fatalf("first define: %v", err)
	}
	if err := s.Define("test", "loop", 4, 2, 1); err == nil {
		t.Fatal("expected duplicate symbol error, got nil")
	}
}

func TestSymbolsLookup(t *testing.T) {
	s := NewSymbols()
	_ = s.Define("test", "x", 42, 1, 1)
	addr, ok := s.Lookup("x")
	if !ok || addr != 42 {
		t.Fatalf("Lookup(x) = %d, %v; want 42, true", addr, ok)
	}
	if _, ok := s.Lookup("y"); ok {
		t.Fatal("Lookup(y) should not resolve")
	}
}

func TestVarsIndexAndDuplicate(t *testing.T) {
	v := NewVars()
	if err := v.Define("test", "counter", 5, true, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := v.Define("test", "flag", 0, false, 2, 1); err != nil {
		t.Fatal(err)
	}
	if idx, ok := v.Index("flag"); !ok || idx != 1 {
		t.Fatalf("Index(flag) = %d, %v; want 1, true", idx, ok)
	}
	if err := v.Define("test", "counter", 0, false, 3, 1); err == nil {
		t.Fatal("expected duplicate variable error")
	}
}

func TestBuffersOffsetOf(t *testing.T) {
	b := NewBuffers()
	_ = b.Define("test", "a", 16, 1, 1)
	_ = b.Define("test", "b", 32, 2, 1)
	off, ok := b.OffsetOf("b")
	if !ok || off != 16 {
		t.Fatalf("OffsetOf(b) = %d, %v; want 16, true", off, ok)
	}
	if b.TotalSize() != 48 {
		t.Fatalf("TotalSize() = %d; want 48", b.TotalSize())
	}
}

func TestBuffersLimit(t *testing.T) {
	b := NewBuffersWithLimit(1)
	if err := b.Define("mcs51", "a", 1, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.Define("mcs51", "b", 1, 2, 1); err == nil {
		t.Fatal("expected table overflow error")
	}
}

func TestStringsDedup(t *testing.T) {
	s := NewStrings()
	e1, err := s.Intern("test", "hello", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := s.Intern("test", "hello", 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if e1.Offset != e2.Offset {
		t.Fatalf("duplicate string literals should share offset: %d != %d", e1.Offset, e2.Offset)
	}
	e3, _ := s.Intern("test", "world", 3, 1)
	if e3.Offset == e1.Offset {
		t.Fatal("distinct strings should not share an offset")
	}
	if s.TotalSize() != len("hello")+1+len("world")+1 {
		t.Fatalf("TotalSize() = %d", s.TotalSize())
	}
}

func TestFixupResolve(t *testing.T) {
	syms := NewSymbols()
	_ = syms.Define("test", "target", 1000, 1, 1)

	fixups := []Fixup{{Label: "target", PatchOffset: 10, InstrEnd: 14, Kind: AMD64Rel32}}
	var patched int
	err := Resolve("amd64", fixups, syms, func(f Fixup, target int) error {
		patched = target - f.InstrEnd
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if patched != 1000-14 {
		t.Fatalf("patched displacement = %d; want %d", patched, 1000-14)
	}

	if err := Resolve("amd64", []Fixup{{Label: "missing", Kind: AMD64Rel32}}, syms, func(Fixup, int) error { return nil }); err == nil {
		t.Fatal("expected undefined label error")
	}
}
