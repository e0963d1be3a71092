package amd64

import (
	"math"

	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/symtab"
)

// aluOpcodes maps the register-register ALU opcodes (ADD r/m64,r64 form,
// spec Glossary "x86-64 ALU opcode map").
var aluOpcodes = map[ir.Opcode]byte{
	ir.OpADD: 0x01, ir.OpSUB: 0x29, ir.OpAND: 0x21,
	ir.OpOR: 0x09, ir.OpXOR: 0x31, ir.OpCMP: 0x39,
}

var jccOpcodes = map[ir.Opcode]byte{
	ir.OpJZ: 0x84, ir.OpJNZ: 0x85, ir.OpJL: 0x8C, ir.OpJG: 0x8F,
}

// pass2 walks program a second time, emitting real bytes into cb and
// recording a Fixup for every forward/absolute reference instead of
// resolving it inline (spec §4.1 "Pass 2 — emission"); the one exception
// is LDS, whose string address is final after pass 1 and is written
// directly. Because the
// symbol table is already complete after pass 1, every Fixup recorded
// here could in principle be resolved immediately; they are deferred to
// a genuine pass 3 anyway, preserving the three-pass shape spec §9
// calls out as the testable architecture (property P3).
func pass2(program []ir.Instruction, tables *symtab.Tables, lay *layout, opts backend.Options, cb *codebuf.Buffer) error {
	for _, inst := range program {
		if inst.IsLabel {
			continue
		}
		if err := emitOne(inst, tables, lay, opts, cb); err != nil {
			return err
		}
	}
	return nil
}

func reg(inst ir.Instruction, idx int) (int, error) {
	return nativeReg(backendName, inst.Operands[idx].Reg, inst.Line, inst.Col)
}

func emitOne(inst ir.Instruction, tables *symtab.Tables, lay *layout, opts backend.Options, cb *codebuf.Buffer) error {
	switch inst.Op {
	case ir.OpLDI:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		imm := inst.Operands[1].Imm
		if imm < math.MinInt32 || imm > math.MaxInt32 {
			return ir.Fatalf(backendName, ir.KindImmediateOutOfRange, inst.Line, inst.Col,
				"immediate %d out of 32-bit range for amd64 LDI", imm)
		}
		cb.WriteBytes([]byte{0x48, 0xC7, 0xC0 | byte(rd)})
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
		cb.WriteBytes([]byte{0x48, 0x89, modrmReg(rs, rd)})

	case ir.OpLOAD, ir.OpLOADB:
		return emitMemLoad(inst, cb)

	case ir.OpSTORE, ir.OpSTOREB:
		return emitMemStore(inst, cb)

	case ir.OpADD, ir.OpSUB, ir.OpAND, ir.OpOR, ir.OpXOR, ir.OpCMP:
		return emitALU(inst, cb)

	case ir.OpNOT:
		return emitUnary(inst, cb, 0xF7, 2)
	case ir.OpINC:
		return emitUnary(inst, cb, 0xFF, 0)
	case ir.OpDEC:
		return emitUnary(inst, cb, 0xFF, 1)

	case ir.OpMUL:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		rs, err := reg(inst, 1)
		if err != nil {
			return err
		}
		cb.WriteBytes([]byte{0x48, 0x0F, 0xAF, modrmReg(rd, rs)})

	case ir.OpDIV:
		return emitDiv(inst, cb)

	case ir.OpSHL, ir.OpSHR:
		return emitShift(inst, cb)

	case ir.OpJMP:
		cb.WriteBytes([]byte{0xE9})
		return addBranchFixup(inst, inst.Operands[0].Label, tables, cb)

	case ir.OpJZ, ir.OpJNZ, ir.OpJL, ir.OpJG:
		cb.WriteBytes([]byte{0x0F, jccOpcodes[inst.Op]})
		return addBranchFixup(inst, inst.Operands[0].Label, tables, cb)

	case ir.OpCALL:
		cb.WriteBytes([]byte{0xE8})
		return addBranchFixup(inst, inst.Operands[0].Label, tables, cb)

	case ir.OpRET:
		cb.WriteBytes([]byte{0xC3})

	case ir.OpPUSH:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.WriteBytes([]byte{0x50 + byte(rd)})

	case ir.OpPOP:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.WriteBytes([]byte{0x58 + byte(rd)})

	case ir.OpNOP:
		cb.WriteBytes([]byte{0x90})

	case ir.OpHLT:
		if opts.Win32 {
			cb.WriteBytes([]byte{0xE8})
			return addBranchFixup(inst, ExitDispatcherSymbol, tables, cb)
		}
		cb.WriteBytes([]byte{0xC3})

	case ir.OpINT:
		imm := inst.Operands[0].Imm
		cb.WriteBytes([]byte{0xCD, byte(imm)})

	case ir.OpSYS:
		if opts.Win32 {
			cb.WriteBytes([]byte{0xE8})
			return addBranchFixup(inst, SyscallDispatcherSymbol, tables, cb)
		}
		cb.WriteBytes([]byte{0x0F, 0x05})

	case ir.OpGET:
		return emitGet(inst, tables, cb)
	case ir.OpSET:
		return emitSet(inst, tables, cb)
	case ir.OpLDS:
		return emitLDS(inst, tables, lay, cb)

	case ir.OpORG:
		target := int(inst.Operands[0].Imm)
		if gap := target - cb.Len(); gap > 0 {
			cb.WriteN(0x00, gap)
		}

	case ir.OpCPUID:
		cb.WriteBytes([]byte{0x0F, 0xA2})
	case ir.OpRDTSC:
		cb.WriteBytes([]byte{0x0F, 0x31})
	case ir.OpBSWAP:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.WriteBytes([]byte{0x48, 0x0F, 0xC8 + byte(rd)})

	case ir.OpVAR, ir.OpBUFFER:
		// zero code size; already registered in pass 1.

	default:
		return ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
			"unsupported opcode %s for amd64", inst.Op)
	}
	return nil
}

// addBranchFixup records a 4-byte rel32 fixup for the placeholder about
// to be written (every branch/call form here takes a single label
// operand), then writes the zero placeholder.
func addBranchFixup(inst ir.Instruction, label string, tables *symtab.Tables, cb *codebuf.Buffer) error {
	off := cb.Len()
	cb.WriteN(0x00, 4)
	return addFixup(inst, label, off, cb.Len(), tables)
}

func addFixup(inst ir.Instruction, label string, patchOffset, instrEnd int, tables *symtab.Tables) error {
	f := symtab.Fixup{
		Label: label, PatchOffset: patchOffset, InstrEnd: instrEnd,
		Line: inst.Line, Col: inst.Col, Kind: symtab.AMD64Rel32,
	}
	return tables.AddFixup(backendName, f)
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
	if inst.Op == ir.OpLOADB {
		cb.WriteBytes([]byte{0x40, 0x8A, addrModRM(rd, rs)})
	} else {
		cb.WriteBytes([]byte{0x48, 0x8B, addrModRM(rd, rs)})
	}
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
	if inst.Op == ir.OpSTOREB {
		cb.WriteBytes([]byte{0x40, 0x88, addrModRM(rs, rd)})
	} else {
		cb.WriteBytes([]byte{0x48, 0x89, addrModRM(rs, rd)})
	}
	writeAddrExtra(cb, rd)
	return nil
}

// addrModRM builds the ModR/M byte for a [addrReg]-addressed form whose
// non-address operand sits in the reg field.
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
		cb.WriteBytes([]byte{0x24})
	}
	if needsDisp8Zero(addrReg) {
		cb.WriteBytes([]byte{0x00})
	}
}

func emitALU(inst ir.Instruction, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	opcode := aluOpcodes[inst.Op]
	if inst.Operands[1].Kind == ir.OperandImmediate {
		imm := inst.Operands[1].Imm
		if imm < math.MinInt32 || imm > math.MaxInt32 {
			return ir.Fatalf(backendName, ir.KindImmediateOutOfRange, inst.Line, inst.Col,
				"immediate %d out of 32-bit range for amd64", imm)
		}
		cb.WriteBytes([]byte{0x49, 0xC7, 0xC3}) // mov r11, imm32
		cb.WriteU32LE(uint32(int32(imm)))
		cb.WriteBytes([]byte{0x4C, opcode, modrmReg(scratchEnc&7, rd)})
		return nil
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{0x48, opcode, modrmReg(rs, rd)})
	return nil
}

func emitUnary(inst ir.Instruction, cb *codebuf.Buffer, opcode, ext byte) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{0x48, opcode, modrmReg(int(ext), rd)})
	return nil
}

func emitDiv(inst ir.Instruction, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{0x52})                            // push rdx
	cb.WriteBytes([]byte{0x49, 0x89, modrmReg(rs, scratchEnc&7)}) // mov r11, Rs
	if rd != 0 {
		cb.WriteBytes([]byte{0x48, 0x89, modrmReg(rd, 0)}) // mov rax, Rd
	}
	cb.WriteBytes([]byte{0x48, 0x99})                              // cqo
	cb.WriteBytes([]byte{0x49, 0xF7, modrmReg(7, scratchEnc&7)}) // idiv r11
	if rd != 0 {
		cb.WriteBytes([]byte{0x48, 0x89, modrmReg(0, rd)}) // mov Rd, rax
	}
	cb.WriteBytes([]byte{0x5A}) // pop rdx
	return nil
}

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
		cb.WriteBytes([]byte{0x48, 0xC1, modrmReg(int(ext), rd), byte(inst.Operands[1].Imm)})
		return nil
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{0x40, 0x88, modrmReg(rs, 1)}) // mov cl, Rs(low8)
	cb.WriteBytes([]byte{0x48, 0xD3, modrmReg(int(ext), rd)})
	cb.WriteN(0x90, 7)
	return nil
}

func emitGet(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	name := inst.Operands[1].Label
	var opcode byte
	switch {
	case tables.Vars.Contains(name):
		opcode = 0x8B // mov rd, [rip+disp]
	case tables.Buffers.Contains(name):
		opcode = 0x8D // lea rd, [rip+disp]
	default:
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined variable or buffer %q", name)
	}
	cb.WriteBytes([]byte{0x48, opcode, ripModRM(rd)})
	off := cb.Len()
	cb.WriteN(0x00, 4)
	return addFixup(inst, name, off, cb.Len(), tables)
}

func emitSet(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer) error {
	name := inst.Operands[0].Label
	if !tables.Vars.Contains(name) {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "SET target %q is not a variable", name)
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.WriteBytes([]byte{0x48, 0x89, ripModRM(rs)})
	off := cb.Len()
	cb.WriteN(0x00, 4)
	return addFixup(inst, name, off, cb.Len(), tables)
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
	cb.WriteBytes([]byte{0x48, 0x8D, ripModRM(rd)})
	target := lay.stringBase + entry.Offset
	instrEnd := cb.Len() + 4
	cb.WriteU32LE(uint32(int32(target - instrEnd)))
	return nil
}
