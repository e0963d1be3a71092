// Package backend defines the common contract every per-target code
// generator implements (spec §4.1 "generate(ir, target_flags) ->
// code_buffer | error").
package backend

import (
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
)

// Options carries the per-run flags that influence layout and emission.
// Win32 only affects the amd64 backend (spec §4.2, §9 "Global win32
// flag" — threaded as an explicit field, never process-wide state).
type Options struct {
	Win32 bool
}

// Generator is implemented once per target (amd64, i386, arm64, mcs51).
type Generator interface {
	// Name identifies the backend for diagnostics, e.g. "amd64".
	Name() string
	// Generate runs passes 1-3 plus appending over ir and returns the
	// finished code buffer, or a fatal *ir.Diagnostic.
	Generate(program []ir.Instruction, opts Options) (*codebuf.Buffer, error)
}
