// Package retarget is the public entry point for the two stages the core
// owns (spec §2): per-target code generation and, for x86-64/Windows,
// PE32+ container emission. It is a thin dispatch layer over
// internal/backend's four Generator implementations and internal/pe —
// all the engineering lives in those packages, grounded per DESIGN.md.
package retarget

import (
	"fmt"

	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/backend/amd64"
	"github.com/xyproto/retarget/internal/backend/arm64"
	"github.com/xyproto/retarget/internal/backend/i386"
	"github.com/xyproto/retarget/internal/backend/mcs51"
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/pe"
)

// Verbose gates hex tracing of every emitted byte, mirroring the
// teacher's package-level VerboseMode toggle (xyproto-vibe67 emit.go).
// It is threaded through to codebuf.Verbose rather than read by the
// backends themselves.
var Verbose bool

// SetVerbose toggles hex tracing for every subsequent Generate call.
func SetVerbose(v bool) {
	Verbose = v
	codebuf.Verbose = v
}

// Target names accepted by Generate's target parameter (spec §6.2).
const (
	TargetAMD64 = "x86-64"
	TargetI386  = "x86-32"
	TargetARM64 = "arm64"
	TargetMCS51 = "8051"
)

// TargetOS names accepted by Generate's targetOS parameter.
const (
	OSLinux = "linux"
	OSWin32 = "win32"
	OSNone  = "none"
)

func resolveBackend(target string) (backend.Generator, error) {
	switch target {
	case TargetAMD64:
		return amd64.New(), nil
	case TargetI386:
		return i386.New(), nil
	case TargetARM64:
		return arm64.New(), nil
	case TargetMCS51:
		return mcs51.New(), nil
	default:
		return nil, fmt.Errorf("retarget: unknown target %q (want one of %q, %q, %q, %q)",
			target, TargetAMD64, TargetI386, TargetARM64, TargetMCS51)
	}
}

// Generate runs the two-pass (plus appending) code generator for target
// against program, returning the finished code buffer or the first
// fatal *ir.Diagnostic encountered. win32 only affects the x86-64
// backend (spec §4.2, §9 "Global win32 flag" — threaded explicitly,
// never process-wide state); it is rejected for every other target.
func Generate(target string, win32 bool, program []ir.Instruction) (*codebuf.Buffer, error) {
	gen, err := resolveBackend(target)
	if err != nil {
		return nil, err
	}
	if win32 && target != TargetAMD64 {
		return nil, fmt.Errorf("retarget: win32 output is only defined for %q, not %q", TargetAMD64, target)
	}
	return gen.Generate(program, backend.Options{Win32: win32})
}

// EmitPEExe wraps cb in a PE32+ executable image (spec §4.6). It is only
// meaningful for a code buffer produced by Generate(TargetAMD64, true, ...);
// calling it on output from any other target produces a file the Windows
// loader will load but whose code section is not x86-64 machine code.
func EmitPEExe(cb *codebuf.Buffer) []byte {
	return pe.Emit(cb)
}
