package i386

import (
	"math"

	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/symtab"
)

var aluOpcodes = map[ir.Opcode]byte{
	ir.OpADD: 0x01, ir.OpSUB: 0x29, ir.OpAND: 0x21,
	ir.OpOR: 0x09, ir.OpXOR: 0x31, ir.OpCMP: 0x39,
}

// aluExt is the ModR/M reg-field extension for the group-1 "op
// r/m32,imm32" encoding (0x81), used when the second ALU operand is an
// immediate (spec §4.3: no spare register exists to stage it in, so i386
// uses x86's native immediate ALU form instead of amd64's scratch-move).
var aluExt = map[ir.Opcode]byte{
	ir.OpADD: 0, ir.OpOR: 1, ir.OpAND: 4, ir.OpSUB: 5, ir.OpXOR: 6, ir.OpCMP: 7,
}

var jccOpcodes = map[ir.Opcode]byte{
	ir.OpJZ: 0x84, ir.OpJNZ: 0x85, ir.OpJL: 0x8C, ir.OpJG: 0x8F,
}

func pass2(program []ir.Instruction, tables *symtab.Tables, lay *layout, cb *codebuf.Buffer) error {
	for _, inst := range program {
		if inst.IsLabel {
			continue
		}
		if err := emitOne(inst, tables, lay, cb); err != nil {
			return err
		}
	}
	return nil
}

func reg(inst ir.Instruction, idx int) (int, error) {
	return nativeReg(inst.Operands[idx].Reg, inst.Line, inst.Col)
}

func emitOne(inst ir.Instruction, tables *symtab.Tables, lay *layout, cb *codebuf.Buffer) error {
	switch inst.Op {
	case ir.OpLDI:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		imm := inst.Operands[1].Imm
		if imm < math.MinInt32 || imm > math.MaxUint32 {
			return ir.Fatalf(backendName, ir.KindImmediateOutOfRange, inst.Line, inst.Col,
				"immediate %d out of 32-bit range for i386 LDI", imm)
		}
		cb.Write(0xB8 + byte(rd))
		cb.WriteU32LE(uint32(int32(imm)))

	case ir.OpMOV:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		rs, err := reg(inst, 1)
		if err != nil {
			return err
		}
		cb.WriteBytes([]byte{0x89, modrmReg(rs, rd)})

	case ir.OpLOAD, ir.OpLOADB:
		return emitMemLoad(inst, cb)
	case ir.OpSTORE, ir.OpSTOREB:
		return emitMemStore(inst, cb)

	case ir.OpADD, ir.OpSUB, ir.OpAND, ir.OpOR, ir.OpXOR, ir.OpCMP:
		return emitALU(inst, cb)

	case ir.OpNOT:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.WriteBytes([]byte{0xF7, modrmReg(2, rd)})
	case ir.OpINC:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(0x40 + byte(rd))
	case ir.OpDEC:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(0x48 + byte(rd))

	case ir.OpMUL:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		rs, err := reg(inst, 1)
		if err != nil {
			return err
		}
		cb.WriteBytes([]byte{0x0F, 0xAF, modrmReg(rd, rs)})

	case ir.OpDIV:
		return emitDiv(inst, cb)
	case ir.OpSHL, ir.OpSHR:
		return emitShift(inst, cb)

	case ir.OpJMP:
		cb.Write(0xE9)
		return addBranchFixup(inst, inst.Operands[0].Label, tables, cb)
	case ir.OpJZ, ir.OpJNZ, ir.OpJL, ir.OpJG:
		cb.WriteBytes([]byte{0x0F, jccOpcodes[inst.Op]})
		return addBranchFixup(inst, inst.Operands[0].Label, tables, cb)
	case ir.OpCALL:
		cb.Write(0xE8)
		return addBranchFixup(inst, inst.Operands[0].Label, tables, cb)

	case ir.OpRET, ir.OpHLT:
		cb.Write(0xC3)

	case ir.OpPUSH:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(0x50 + byte(rd))
	case ir.OpPOP:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(0x58 + byte(rd))

	case ir.OpNOP:
		cb.Write(0x90)

	case ir.OpINT:
		cb.WriteBytes([]byte{0xCD, byte(inst.Operands[0].Imm)})
	case ir.OpSYS:
		cb.WriteBytes([]byte{0xCD, 0x80})

	case ir.OpGET:
		return emitGet(inst, tables, lay, cb)
	case ir.OpSET:
		return emitSet(inst, tables, lay, cb)
	case ir.OpLDS:
		return emitLDS(inst, tables, lay, cb)

	case ir.OpORG:
		target := int(inst.Operands[0].Imm)
		if gap := target - cb.Len(); gap > 0 {
			cb.WriteN(0x00, gap)
		}

	case ir.OpVAR, ir.OpBUFFER:
		// zero code size; registered in pass 1.

	default:
		return ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
			"unsupported opcode %s for i386", inst.Op)
	}
	return nil
}

func addBranchFixup(inst ir.Instruction, label string, tables *symtab.Tables, cb *codebuf.Buffer) error {
	off := cb.Len()
	cb.WriteN(0x00, 4)
	return tables.AddFixup(backendName, symtab.Fixup{
		Label: label, PatchOffset: off, InstrEnd: cb.Len(),
		Line: inst.Line, Col: inst.Col, Kind: symtab.AMD64Rel32,
	})
}

func emitMemLoad(inst ir.Instruction, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	opcode := byte(0x8B)
	if inst.Op == ir.OpLOADB {
		opcode = 0x8A
	}
	cb.WriteBytes([]byte{opcode, addrModRM(rd, rs)})
	writeAddrExtra(cb, rs)
	return nil
}

func emitMemStore(inst ir.Instruction, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0) // address register
	if err != nil {
		return err
	}
	rs, err := reg(inst, 1) // value register
	if err != nil {
		return err
	}
	opcode := byte(0x89)
	if inst.Op == ir.OpSTOREB {
		opcode = 0x88
	}
	cb.WriteBytes([]byte{opcode, addrModRM(rs, rd)})
	writeAddrExtra(cb, rd)
	return nil
}

func addrModRM(regField, addrReg int) byte {
	mod := byte(0x00)
	if needsDisp8Zero(addrReg) {
		mod = 0x40
	}
	rm := byte(addrReg)
	if needsSIB(addrReg) {
		rm = 4
	}
	return mod | (byte(regField&7) << 3) | rm
}

func writeAddrExtra(cb *codebuf.Buffer, addrReg int) {
	if needsSIB(addrReg) {
		cb.Write(0x24)
	}
	if needsDisp8Zero(addrReg) {
		cb.Write(0x00)
	}
}

func emitALU(inst ir.Instruction, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	if inst.Operands[1].Kind == ir.OperandImmediate {
		imm := inst.Operands[1].Imm
		if imm < math.MinInt32 || imm > math.MaxUint32 {
			return ir.Fatalf(backendName, ir.KindImmediateOutOfRange, inst.Line, inst.Col,
				"immediate %d out of 32-bit range for i386", imm)
		}
		cb.WriteBytes([]byte{0x81, modrmReg(int(aluExt[inst.Op]), rd)})
		cb.WriteU32LE(uint32(int32(imm)))
		return nil
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{aluOpcodes[inst.Op], modrmReg(rs, rd)})
	return nil
}

// emitDiv saves the divisor on the stack before clobbering eax/edx, so
// Rs aliasing eax or edx (either of which DIV's setup overwrites) still
// divides by the original value (spec §4.3 "no spare register for a
// scratch copy; use the stack instead").
func emitDiv(inst ir.Instruction, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.Write(0x52)            // push edx
	cb.Write(0x50 + byte(rs)) // push Rs
	if rd != 0 {
		cb.WriteBytes([]byte{0x89, modrmReg(rd, 0)}) // mov eax, Rd
	}
	cb.Write(0x99)                                  // cdq
	cb.WriteBytes([]byte{0xF7, 0x3C, 0x24})          // idiv dword ptr [esp]
	if rd != 0 {
		cb.WriteBytes([]byte{0x89, modrmReg(0, rd)}) // mov Rd, eax
	}
	cb.WriteBytes([]byte{0x83, 0xC4, 0x04}) // add esp, 4
	cb.Write(0x5A)                          // pop edx
	return nil
}

// emitShift always round-trips Rd's original value through the stack
// before ecx is clobbered with the shift count, so it is correct whether
// or not Rd aliases ecx (spec §4.3; no low-8 alias exists for
// esp/ebp/esi/edi in 32-bit mode, so the shift count must always be
// copied via a full 32-bit mov into ecx rather than a one-byte mov into
// cl).
func emitShift(inst ir.Instruction, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	ext := byte(4)
	if inst.Op == ir.OpSHR {
		ext = 5
	}
	if inst.Operands[1].Kind == ir.OperandImmediate {
		cb.WriteBytes([]byte{0xC1, modrmReg(int(ext), rd), byte(inst.Operands[1].Imm)})
		return nil
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.Write(0x50 + byte(rd)) // push Rd
	cb.Write(0x51)            // push ecx
	cb.WriteBytes([]byte{0x89, modrmReg(rs, 1)})         // mov ecx, Rs
	cb.WriteBytes([]byte{0xD3, 0x40 | (ext << 3) | 4, 0x24, 0x04}) // shl/shr dword ptr [esp+4], cl
	cb.Write(0x59)             // pop ecx
	cb.Write(0x58 + byte(rd))  // pop Rd
	return nil
}

func emitGet(inst ir.Instruction, tables *symtab.Tables, lay *layout, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	name := inst.Operands[1].Label
	var opcode byte
	switch {
	case tables.Vars.Contains(name):
		opcode = 0x8B
	case tables.Buffers.Contains(name):
		opcode = 0x8D
	default:
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined variable or buffer %q", name)
	}
	cb.WriteBytes([]byte{opcode, absModRM(rd)})
	off := cb.Len()
	cb.WriteN(0x00, 4)
	return tables.AddFixup(backendName, symtab.Fixup{
		Label: name, PatchOffset: off, Line: inst.Line, Col: inst.Col, Kind: symtab.I386Abs32,
	})
}

func emitSet(inst ir.Instruction, tables *symtab.Tables, lay *layout, cb *codebuf.Buffer) error {
	name := inst.Operands[0].Label
	if !tables.Vars.Contains(name) {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "SET target %q is not a variable", name)
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{0x89, absModRM(rs)})
	off := cb.Len()
	cb.WriteN(0x00, 4)
	return tables.AddFixup(backendName, symtab.Fixup{
		Label: name, PatchOffset: off, Line: inst.Line, Col: inst.Col, Kind: symtab.I386Abs32,
	})
}

func emitLDS(inst ir.Instruction, tables *symtab.Tables, lay *layout, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	text := inst.Operands[1].Str
	entry, err := tables.Strings.Intern(backendName, text, inst.Line, inst.Col)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{0x8D, absModRM(rd)})
	cb.WriteU32LE(uint32(int32(lay.stringBase + entry.Offset)))
	return nil
}
