package i386

import (
	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/symtab"
)

const varSize = 4 // bytes per VAR slot on i386 (spec §4.3)

// Backend implements backend.Generator for x86-32 (IA-32).
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
		min, max := f.Kind.Range()
		switch f.Kind {
		case symtab.I386Abs32:
			if int64(target) < min || int64(target) > max {
				return ir.Fatalf(backendName, ir.KindBranchOutOfRange, f.Line, f.Col,
					"absolute reference to %q out of range (%d)", f.Label, target)
			}
			cb.PatchU32LE(f.PatchOffset, uint32(target))
		default: // AMD64Rel32, shared branch/call encoding
			disp := int64(target) - int64(f.InstrEnd)
			if disp < min || disp > max {
				return ir.Fatalf(backendName, ir.KindBranchOutOfRange, f.Line, f.Col,
					"relative reference to %q out of range (%d bytes)", f.Label, disp)
			}
			cb.PatchU32LE(f.PatchOffset, uint32(int32(disp)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, v := range tables.Vars.All() {
		cb.WriteU32LE(uint32(v.Init))
	}
	cb.WriteN(0x00, tables.Buffers.TotalSize())
	for _, entry := range tables.Strings.All() {
		cb.WriteBytes([]byte(entry.Text))
		cb.Write(0)
	}

	return cb, nil
}

// pass1 mirrors amd64's layout pass, sized for i386's 4-byte VAR slots
// and lacking any Win32 runtime-trampoline concept (spec §4.3).
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
			pc += 6
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
