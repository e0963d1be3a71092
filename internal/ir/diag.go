package ir

import "fmt"

// Kind enumerates the fatal error categories a backend can raise. A
// code-generation run aborts on the first one; see spec §7 "Propagation
// policy" — the reference C implementation calls exit(1), we return a
// structured error instead so a caller can recover.
type Kind int

const (
	KindUnsupportedOpcode Kind = iota
	KindRegisterOutOfRange
	KindImmediateOutOfRange
	KindUndefinedSymbol
	KindBranchOutOfRange
	KindDuplicateSymbol
	KindTableOverflow
	KindOrgBackwards
	KindRAMExhausted
	KindOutOfMemory
	KindIOFailure
)

// Diagnostic is a fatal code-generation error. Its Error() string is the
// exact wire format from spec §6.4:
// "<backend> Error / Line L, Column C: <message>"
type Diagnostic struct {
	Backend string
	Kind    Kind
	Line    int
	Col     int
	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s Error / Line %d, Column %d: %s", d.Backend, d.Line, d.Col, d.Message)
}

// Fatalf builds a Diagnostic for the given backend and instruction
// location, matching the printf-style convention used throughout the
// codebase for non-fatal verbose tracing.
func Fatalf(backend string, kind Kind, line, col int, format string, args ...any) error {
	return &Diagnostic{
		Backend: backend,
		Kind:    kind,
		Line:    line,
		Col:     col,
		Message: fmt.Sprintf(format, args...),
	}
}
