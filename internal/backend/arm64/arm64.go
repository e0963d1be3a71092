// Package arm64 implements the AArch64 backend: three-pass layout,
// emission and fixup resolution over MVIS, targeting the A64 instruction
// set's fixed-width 32-bit word encoding (spec §4.3).
package arm64

import (
	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/symtab"
)

const varSize = 8 // bytes per VAR slot on arm64 (64-bit registers, spec §3)

// Backend implements backend.Generator for AArch64.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return backendName }

type layout struct {
	varBase    int
	bufferBase int
	stringBase int
	codeSize   int
}

func (b *Backend) Generate(program []ir.Instruction, opts backend.Options) (*codebuf.Buffer, error) {
	tables := symtab.New()

	lay, err := pass1(program, tables)
	if err != nil {
		return nil, err
	}

	cb := &codebuf.Buffer{}
	if err := pass2(program, tables, lay, cb); err != nil {
		return nil, err
	}

	err = symtab.Resolve(backendName, tables.Fixups, tables.Symbols, func(f symtab.Fixup, target int) error {
		disp := int64(target) - int64(f.PatchOffset)
		min, max := f.Kind.Range()
		if disp < min || disp > max {
			return ir.Fatalf(backendName, ir.KindBranchOutOfRange, f.Line, f.Col,
				"branch to %q out of range (%d bytes)", f.Label, disp)
		}
		if disp%4 != 0 {
			return ir.Fatalf(backendName, ir.KindBranchOutOfRange, f.Line, f.Col,
				"branch to %q is not word-aligned (%d bytes)", f.Label, disp)
		}
		words := uint32(disp>>2) & 0x3FFFFFF
		var word uint32
		switch f.Kind {
		case symtab.ARM64B:
			word = bWord() | words
		case symtab.ARM64BL:
			word = blWord() | words
		case symtab.ARM64Bcond:
			word = bcondWord() | (words&0x7FFFF)<<5 | uint32(f.Cond)
		}
		cb.PatchU32LE(f.PatchOffset, word)
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

	return cb, nil
}

// pass1 mirrors amd64/i386's layout pass, sized for arm64's 8-byte VAR
// slots and fixed 32-bit-word instruction encoding.
func pass1(program []ir.Instruction, tables *symtab.Tables) (*layout, error) {
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
			pc += 12
		default:
			size, err := instrSize(inst)
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
