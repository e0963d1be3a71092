// Package amd64 implements the x86-64 backend: three-pass layout,
// emission and fixup resolution over MVIS, plus the optional Win32
// runtime trampoline appended when generating a PE32+ executable (spec
// §4.2).
package amd64

import (
	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/symtab"
)

const varSize = 8 // bytes per VAR slot on amd64/arm64 (spec §3)

// Backend implements backend.Generator for x86-64.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return backendName }

// layout holds the region bases computed once pass 1 finishes.
type layout struct {
	varBase     int
	bufferBase  int
	stringBase  int
	runtimeBase int
	codeSize    int
}

func (b *Backend) Generate(program []ir.Instruction, opts backend.Options) (*codebuf.Buffer, error) {
	tables := symtab.New()

	lay, err := pass1(program, tables, opts)
	if err != nil {
		return nil, err
	}

	if opts.Win32 {
		lay.runtimeBase = lay.stringBase + tables.Strings.TotalSize()
		if err := tables.Symbols.Define(backendName, SyscallDispatcherSymbol, lay.runtimeBase+syscallDispatcherOff, 0, 0); err != nil {
			return nil, err
		}
		if err := tables.Symbols.Define(backendName, ExitDispatcherSymbol, lay.runtimeBase+exitDispatcherOff, 0, 0); err != nil {
			return nil, err
		}
	}

	cb := &codebuf.Buffer{}
	if err := pass2(program, tables, lay, opts, cb); err != nil {
		return nil, err
	}

	err = symtab.Resolve(backendName, tables.Fixups, tables.Symbols, func(f symtab.Fixup, target int) error {
		disp := int64(target) - int64(f.InstrEnd)
		min, max := f.Kind.Range()
		if disp < min || disp > max {
			return ir.Fatalf(backendName, ir.KindBranchOutOfRange, f.Line, f.Col,
				"relative reference to %q out of range (%d bytes)", f.Label, disp)
		}
		cb.PatchU32LE(f.PatchOffset, uint32(int32(disp)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, v := range tables.Vars.All() {
		cb.WriteU64LE(uint64(v.Init))
	}
	cb.WriteN(0x00, tables.Buffers.TotalSize())
	for _, entry := range tables.Strings.All() {
		cb.WriteBytes([]byte(entry.Text))
		cb.Write(0)
	}

	if opts.Win32 {
		blk := buildRuntimeBlock()
		cb.WriteBytes(blk)
		cb.IATOffset = lay.runtimeBase + runtimeIATOff
		cb.IATCount = runtimeIATCount
	}

	return cb, nil
}

// pass1 walks program once, sizing every instruction, registering every
// label/VAR/BUFFER and interning every string literal, and returns the
// derived region layout (spec §4.1 "Pass 1 — layout").
func pass1(program []ir.Instruction, tables *symtab.Tables, opts backend.Options) (*layout, error) {
	for _, s := range ir.CollectLDSStrings(program) {
		if _, err := tables.Strings.Intern(backendName, s, 0, 0); err != nil {
			return nil, err
		}
	}

	pc := 0
	for _, inst := range program {
		if inst.IsLabel {
			if err := tables.Symbols.Define(backendName, inst.LabelName, pc, inst.Line, inst.Col); err != nil {
				return nil, err
			}
			continue
		}
		switch inst.Op {
		case ir.OpVAR:
			var init int64
			hasInit := len(inst.Operands) > 1
			if hasInit {
				init = inst.Operands[1].Imm
			}
			if err := tables.Vars.Define(backendName, inst.Operands[0].Label, init, hasInit, inst.Line, inst.Col); err != nil {
				return nil, err
			}
		case ir.OpBUFFER:
			size := int(inst.Operands[1].Imm)
			if err := tables.Buffers.Define(backendName, inst.Operands[0].Label, size, inst.Line, inst.Col); err != nil {
				return nil, err
			}
		case ir.OpORG:
			target := int(inst.Operands[0].Imm)
			if target < pc {
				return nil, ir.Fatalf(backendName, ir.KindOrgBackwards, inst.Line, inst.Col,
					"ORG target %d is behind current position %d", target, pc)
			}
			pc = target
		case ir.OpLDS:
			if _, err := tables.Strings.Intern(backendName, inst.Operands[1].Str, inst.Line, inst.Col); err != nil {
				return nil, err
			}
			pc += 7
		default:
			size, err := instrSize(inst, opts)
			if err != nil {
				return nil, err
			}
			pc += size
		}
	}

	lay := &layout{codeSize: pc}
	lay.varBase = lay.codeSize
	lay.bufferBase = lay.varBase + tables.Vars.Len()*varSize
	lay.stringBase = lay.bufferBase + tables.Buffers.TotalSize()

	for i, v := range tables.Vars.All() {
		if err := tables.Symbols.Define(backendName, v.Name, lay.varBase+i*varSize, 0, 0); err != nil {
			return nil, err
		}
	}
	for _, buf := range tables.Buffers.All() {
		off, _ := tables.Buffers.OffsetOf(buf.Name)
		if err := tables.Symbols.Define(backendName, buf.Name, lay.bufferBase+off, 0, 0); err != nil {
			return nil, err
		}
	}

	return lay, nil
}

