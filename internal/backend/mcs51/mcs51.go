package mcs51

import (
	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/symtab"
)

// codeRAMBudget bounds the image to the addresses 0..255 that an 8051
// MOV Rn,#data immediate can hold: every LDS on this backend loads a string's absolute
// program-memory address into a plain 8-bit register, so total
// code+string size must fit a single byte. A full 16-bit DPTR-based
// string pointer would lift this, but MVIS only exposes R0..R7 to this
// backend, and the spec's scenarios never approach the limit.
const codeRAMBudget = 256

// Backend implements backend.Generator for the Intel 8051 (MCS-51).
type Backend struct{}

func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return backendName }

type layout struct {
	codeSize   int
	stringBase int
}

func (b *Backend) Generate(program []ir.Instruction, opts backend.Options) (*codebuf.Buffer, error) {
	tables := symtab.NewWithBufferLimit(32)

	lay, err := pass1(program, tables)
	if err != nil {
		return nil, err
	}

	cb := &codebuf.Buffer{}
	if err := pass2(program, tables, lay, cb); err != nil {
		return nil, err
	}
	for _, entry := range tables.Strings.All() {
		cb.WriteBytes([]byte(entry.Text))
		cb.Write(0)
	}

	if cb.Len() > codeRAMBudget {
		return nil, ir.Fatalf(backendName, ir.KindOutOfMemory, 0, 0,
			"mcs51 code+string image is %d bytes, exceeds the %d-byte single-register addressing budget", cb.Len(), codeRAMBudget)
	}

	return cb, nil
}

// pass1 walks the program computing each instruction's code-space
// position and allocating direct-address RAM for every VAR/BUFFER via
// ramAllocator. Unlike the other three backends, VAR/BUFFER slots here
// never occupy bytes in the emitted buffer — they are bank-RAM
// addresses the code references, not image data (8051's Harvard split
// between code/ROM and data/RAM).
func pass1(program []ir.Instruction, tables *symtab.Tables) (*layout, error) {
	for _, s := range ir.CollectLDSStrings(program) {
		if _, err := tables.Strings.Intern(backendName, s, 0, 0); err != nil {
			return nil, err
		}
	}

	pc := 0
	ram := newRAMAllocator()
	for _, inst := range program {
		if inst.IsLabel {
			if err := tables.Symbols.Define(backendName, inst.LabelName, pc, inst.Line, inst.Col); err != nil {
				return nil, err
			}
			continue
		}
		switch inst.Op {
		case ir.OpVAR:
			name := inst.Operands[0].Label
			var init int64
			hasInit := len(inst.Operands) > 1
			if hasInit {
				init = inst.Operands[1].Imm
			}
			if err := tables.Vars.Define(backendName, name, init, hasInit, inst.Line, inst.Col); err != nil {
				return nil, err
			}
			addr, err := ram.alloc(1, inst.Line, inst.Col)
			if err != nil {
				return nil, err
			}
			if err := tables.Symbols.Define(backendName, name, addr, inst.Line, inst.Col); err != nil {
				return nil, err
			}
		case ir.OpBUFFER:
			name := inst.Operands[0].Label
			size := int(inst.Operands[1].Imm)
			if err := tables.Buffers.Define(backendName, name, size, inst.Line, inst.Col); err != nil {
				return nil, err
			}
			addr, err := ram.alloc(size, inst.Line, inst.Col)
			if err != nil {
				return nil, err
			}
			if err := tables.Symbols.Define(backendName, name, addr, inst.Line, inst.Col); err != nil {
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
			pc += 2
		default:
			size, err := instrSize(inst)
			if err != nil {
				return nil, err
			}
			pc += size
		}
	}
	return &layout{codeSize: pc, stringBase: pc}, nil
}
