package mcs51

import (
	"github.com/xyproto/retarget/internal/codebuf"
	"github.com/xyproto/retarget/internal/ir"
	"github.com/xyproto/retarget/internal/symtab"
)

// --- raw opcode bytes ---------------------------------------------------
//
// Named after the mnemonic they encode; operand bytes are appended by
// the emit* helpers below. B (the multiply/divide SFR, direct address
// 0xF0) doubles as mcs51's scratch register — the only spare storage
// this backend has, since all eight MVIS registers already occupy
// R0..R7.
const (
	opMovADirectRn = 0xE8 // + n:       MOV A,Rn
	opMovRnA       = 0xF8 // + n:       MOV Rn,A
	opMovAImm      = 0x74 //            MOV A,#data
	opMovRnImm     = 0x78 // + n:       MOV Rn,#data
	opMovDirectDir = 0x85 //            MOV direct2,direct1 (src,dst)
	opMovAIndirect = 0xE6 // + i:       MOV A,@Ri
	opMovIndirectA = 0xF6 // + i:       MOV @Ri,A
	opMovRnDirect  = 0xA8 // + n:       MOV Rn,direct
	opMovDirectRn  = 0x88 // + n:       MOV direct,Rn
	opAddARn       = 0x28
	opAddAImm      = 0x24
	opSubbARn      = 0x98
	opSubbAImm     = 0x94
	opAnlARn       = 0x58
	opAnlAImm      = 0x54
	opOrlARn       = 0x48
	opOrlAImm      = 0x44
	opXrlARn       = 0x68
	opXrlAImm      = 0x64
	opCplA         = 0xF4
	opIncRn        = 0x08
	opDecRn        = 0x18
	opMulAB        = 0xA4
	opDivAB        = 0x84
	opClrC         = 0xC3
	opSetbC        = 0xD3
	opRlcA         = 0x33
	opRrcA         = 0x13
	opLjmp         = 0x02
	opLcall        = 0x12
	opRet          = 0x22
	opReti         = 0x32
	opPush         = 0xC0
	opPop          = 0xD0
	opNop          = 0x00
	opJz           = 0x60
	opJnz          = 0x70
	opJc           = 0x40
	opSjmp         = 0x80
	opCjneADirect  = 0xB5
	opCjneRnImm    = 0xB8
	opDjnzRn       = 0xD8

	bDirect = 0xF0 // the B register's direct address
)

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
		imm, err := checkByteImmediate(inst.Operands[1].Imm, inst.Line, inst.Col)
		if err != nil {
			return err
		}
		cb.Write(opMovRnImm + byte(rd))
		cb.Write(imm)

	case ir.OpMOV:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		rs, err := reg(inst, 1)
		if err != nil {
			return err
		}
		cb.Write(opMovADirectRn + byte(rs))
		cb.Write(opMovRnA + byte(rd))

	case ir.OpLOAD, ir.OpLOADB:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		ri, err := reg(inst, 1)
		if err != nil {
			return err
		}
		if err := requireIndirect(ri, inst.Line, inst.Col); err != nil {
			return err
		}
		cb.Write(opMovAIndirect + byte(ri))
		cb.Write(opMovRnA + byte(rd))

	case ir.OpSTORE, ir.OpSTOREB:
		ri, err := reg(inst, 0)
		if err != nil {
			return err
		}
		if err := requireIndirect(ri, inst.Line, inst.Col); err != nil {
			return err
		}
		rs, err := reg(inst, 1)
		if err != nil {
			return err
		}
		cb.Write(opMovADirectRn + byte(rs))
		cb.Write(opMovIndirectA + byte(ri))

	case ir.OpADD:
		return emitALU(inst, cb, opAddARn, opAddAImm, true)
	case ir.OpAND:
		return emitALU(inst, cb, opAnlARn, opAnlAImm, true)
	case ir.OpOR:
		return emitALU(inst, cb, opOrlARn, opOrlAImm, true)
	case ir.OpXOR:
		return emitALU(inst, cb, opXrlARn, opXrlAImm, true)
	case ir.OpSUB:
		return emitSubbCmp(inst, cb, true)
	case ir.OpCMP:
		return emitSubbCmp(inst, cb, false)

	case ir.OpNOT:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(opMovADirectRn + byte(rd))
		cb.Write(opCplA)
		cb.Write(opMovRnA + byte(rd))

	case ir.OpINC:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(opIncRn + byte(rd))
	case ir.OpDEC:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(opDecRn + byte(rd))

	case ir.OpMUL:
		return emitMulDiv(inst, cb, opMulAB)
	case ir.OpDIV:
		return emitMulDiv(inst, cb, opDivAB)

	case ir.OpSHL:
		return emitShift(inst, cb, opRlcA)
	case ir.OpSHR:
		return emitShift(inst, cb, opRrcA)

	case ir.OpJMP:
		return emitLongAbs(inst, tables, cb, opLjmp, inst.Operands[0].Label)
	case ir.OpCALL:
		return emitLongAbs(inst, tables, cb, opLcall, inst.Operands[0].Label)

	case ir.OpJZ:
		return emitRelBranchOpcode(inst, tables, cb, opJz, inst.Operands[0].Label)
	case ir.OpJNZ:
		return emitRelBranchOpcode(inst, tables, cb, opJnz, inst.Operands[0].Label)
	case ir.OpJL:
		return emitRelBranchOpcode(inst, tables, cb, opJc, inst.Operands[0].Label)
	case ir.OpJG:
		return emitJG(inst, tables, cb)

	case ir.OpRET:
		cb.Write(opRet)
	case ir.OpHLT:
		// SJMP $: a self-loop halt, the bare-metal target's closest
		// analogue of an x86 HLT — always rel=-2, no symbol lookup.
		cb.Write(opSjmp)
		cb.Write(0xFE)

	case ir.OpPUSH:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(opPush)
		cb.Write(byte(rd))
	case ir.OpPOP:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		cb.Write(opPop)
		cb.Write(byte(rd))

	case ir.OpNOP:
		cb.Write(opNop)

	case ir.OpINT:
		n := inst.Operands[0].Imm
		cb.Write(opLcall)
		return emitAbsAddr(cb, uint16(n*8+3))

	case ir.OpSYS:
		return ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
			"SYS is unsupported on mcs51 (bare-metal target, no OS syscall convention)")

	case ir.OpGET:
		return emitGet(inst, tables, cb)
	case ir.OpSET:
		return emitSet(inst, tables, cb)
	case ir.OpLDS:
		return emitLDS(inst, tables, lay, cb)

	case ir.OpORG:
		target := int(inst.Operands[0].Imm)
		if gap := target - cb.Len(); gap > 0 {
			cb.WriteN(opNop, gap)
		}

	case ir.OpVAR, ir.OpBUFFER:
		// zero code size; resolved to RAM addresses in pass 1.

	case ir.OpDJNZ:
		rd, err := reg(inst, 0)
		if err != nil {
			return err
		}
		return emitRelBranchOpcode(inst, tables, cb, opDjnzRn+byte(rd), inst.Operands[1].Label)

	case ir.OpCJNE:
		return emitCJNE(inst, tables, cb)

	case ir.OpSETB:
		cb.Write(opSetbC)
	case ir.OpCLR:
		cb.Write(opClrC)
	case ir.OpRETI:
		cb.Write(opReti)

	default:
		return ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
			"unsupported opcode %s for mcs51", inst.Op)
	}
	return nil
}

// emitALU expands a commutative accumulator op: MOV A,Rd ; OP A,src ;
// MOV Rd,A. regOp/immOp are the register- and immediate-form base
// opcodes (+rs for the register form).
func emitALU(inst ir.Instruction, cb *codebuf.Buffer, regOp, immOp byte, writeback bool) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	cb.Write(opMovADirectRn + byte(rd))
	if inst.Operands[1].Kind == ir.OperandImmediate {
		imm, err := checkByteImmediate(inst.Operands[1].Imm, inst.Line, inst.Col)
		if err != nil {
			return err
		}
		cb.Write(immOp)
		cb.Write(imm)
	} else {
		rs, err := reg(inst, 1)
		if err != nil {
			return err
		}
		cb.Write(regOp + byte(rs))
	}
	if writeback {
		cb.Write(opMovRnA + byte(rd))
	}
	return nil
}

// emitSubbCmp expands SUB/CMP: MOV A,Rd ; CLR C ; SUBB A,src [; MOV
// Rd,A]. SUBB needs the carry cleared first since it otherwise
// subtracts-with-borrow (spec §4.5 has no plain SUB opcode).
func emitSubbCmp(inst ir.Instruction, cb *codebuf.Buffer, writeback bool) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	cb.Write(opMovADirectRn + byte(rd))
	cb.Write(opClrC)
	if inst.Operands[1].Kind == ir.OperandImmediate {
		imm, err := checkByteImmediate(inst.Operands[1].Imm, inst.Line, inst.Col)
		if err != nil {
			return err
		}
		cb.Write(opSubbAImm)
		cb.Write(imm)
	} else {
		rs, err := reg(inst, 1)
		if err != nil {
			return err
		}
		cb.Write(opSubbARn + byte(rs))
	}
	if writeback {
		cb.Write(opMovRnA + byte(rd))
	}
	return nil
}

// emitMulDiv expands MUL/DIV: MOV A,Rd ; MOV B,Rs ; MUL/DIV AB ; MOV
// Rd,A. B, the dedicated multiply/divide SFR, holds Rs via a
// direct-to-direct move (Rs's own bank address doubles as a direct
// address, spec Glossary "8051: R0..R7 -> bank-0 R0..R7").
func emitMulDiv(inst ir.Instruction, cb *codebuf.Buffer, op byte) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.Write(opMovADirectRn + byte(rd))
	cb.Write(opMovDirectDir)
	cb.Write(byte(rs))
	cb.Write(bDirect)
	cb.Write(op)
	cb.Write(opMovRnA + byte(rd))
	return nil
}

// emitShift expands a fixed immediate-count shift: MOV A,Rd ; (CLR
// C;RLC/RRC A)*count ; MOV Rd,A. RLC/RRC rotate through carry rather
// than wrap-around, so clearing carry before each iteration turns the
// rotate into a true logical shift (register-count shifts are rejected
// in instrSize).
func emitShift(inst ir.Instruction, cb *codebuf.Buffer, rotateOp byte) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	count := int(inst.Operands[1].Imm)
	cb.Write(opMovADirectRn + byte(rd))
	for i := 0; i < count; i++ {
		cb.Write(opClrC)
		cb.Write(rotateOp)
	}
	cb.Write(opMovRnA + byte(rd))
	return nil
}

func emitAbsAddr(cb *codebuf.Buffer, addr uint16) error {
	cb.Write(byte(addr >> 8))
	cb.Write(byte(addr))
	return nil
}

// emitLongAbs expands LJMP/LCALL: a 3-byte opcode+absolute-address
// form with no displacement math or range limit (spec §4.5 "JMP/CALL
// use absolute addressing"; only the conditional/DJNZ/CJNE forms are
// byte-relative on this backend).
func emitLongAbs(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer, op byte, label string) error {
	target, ok := tables.Symbols.Lookup(label)
	if !ok {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined label %q", label)
	}
	cb.Write(op)
	return emitAbsAddr(cb, uint16(target))
}

// emitRelBranchOpcode resolves a conditional branch's 8-bit PC-relative
// displacement immediately against the symbol table — already complete
// after pass 1 — rather than deferring through a Fixup/pass-3 step the
// way the other three backends do.
func emitRelBranchOpcode(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer, op byte, label string) error {
	cb.Write(op)
	off := cb.Write(0)
	instrEnd := cb.Len()
	target, ok := tables.Symbols.Lookup(label)
	if !ok {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined label %q", label)
	}
	rel := target - instrEnd
	if rel < -128 || rel > 127 {
		return ir.Fatalf(backendName, ir.KindBranchOutOfRange, inst.Line, inst.Col,
			"branch to %q out of range (%d bytes)", label, rel)
	}
	cb.PatchByte(off, byte(int8(rel)))
	return nil
}

// emitJG expands the spec's literal 6-byte polyfill (§4.5, Design
// Notes): JC skip4 ; JZ skip2 ; SJMP target. The two internal skips are
// always exactly 4 and 2 regardless of addresses involved; only the
// final SJMP needs a real symbol lookup.
func emitJG(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer) error {
	cb.Write(opJc)
	cb.Write(4)
	cb.Write(opJz)
	cb.Write(2)
	cb.Write(opSjmp)
	off := cb.Write(0)
	instrEnd := cb.Len()
	target, ok := tables.Symbols.Lookup(inst.Operands[0].Label)
	if !ok {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined label %q", inst.Operands[0].Label)
	}
	rel := target - instrEnd
	if rel < -128 || rel > 127 {
		return ir.Fatalf(backendName, ir.KindBranchOutOfRange, inst.Line, inst.Col,
			"branch to %q out of range (%d bytes)", inst.Operands[0].Label, rel)
	}
	cb.PatchByte(off, byte(int8(rel)))
	return nil
}

// emitCJNE expands CJNE. The immediate form is native (CJNE Rn,#data,
// rel); the register-register form has no direct hardware encoding, so
// it is preceded by MOV A,Rn (spec §4.5 "CJNE polyfill preceded by MOV
// A,Rn") and compares through the accumulator instead.
func emitCJNE(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	label := inst.Operands[2].Label
	if inst.Operands[1].Kind == ir.OperandImmediate {
		imm, err := checkByteImmediate(inst.Operands[1].Imm, inst.Line, inst.Col)
		if err != nil {
			return err
		}
		cb.Write(opCjneRnImm + byte(rd))
		cb.Write(imm)
		off := cb.Write(0)
		return patchRel(cb, off, tables, inst, label)
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	cb.Write(opMovADirectRn + byte(rd))
	cb.Write(opCjneADirect)
	cb.Write(byte(rs))
	off := cb.Write(0)
	return patchRel(cb, off, tables, inst, label)
}

func patchRel(cb *codebuf.Buffer, off int, tables *symtab.Tables, inst ir.Instruction, label string) error {
	instrEnd := cb.Len()
	target, ok := tables.Symbols.Lookup(label)
	if !ok {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined label %q", label)
	}
	rel := target - instrEnd
	if rel < -128 || rel > 127 {
		return ir.Fatalf(backendName, ir.KindBranchOutOfRange, inst.Line, inst.Col,
			"branch to %q out of range (%d bytes)", label, rel)
	}
	cb.PatchByte(off, byte(int8(rel)))
	return nil
}

// emitGet expands GET Rd,name: a buffer's address loads as an
// immediate (MOV Rn,#addr); a variable's value loads directly (MOV
// Rn,direct) — spec §4.5 states both forms explicitly.
func emitGet(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer) error {
	rd, err := reg(inst, 0)
	if err != nil {
		return err
	}
	name := inst.Operands[1].Label
	addr, ok := tables.Symbols.Lookup(name)
	if !ok {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined variable or buffer %q", name)
	}
	if tables.Buffers.Contains(name) {
		b, err := checkByteImmediate(int64(addr), inst.Line, inst.Col)
		if err != nil {
			return err
		}
		cb.Write(opMovRnImm + byte(rd))
		cb.Write(b)
		return nil
	}
	if !tables.Vars.Contains(name) {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "undefined variable or buffer %q", name)
	}
	cb.Write(opMovRnDirect + byte(rd))
	cb.Write(byte(addr))
	return nil
}

// emitSet expands SET name,Rs: MOV direct,Rn. Only variables (not
// buffers) are assignable as a single slot, matching the other
// backends' SET restriction.
func emitSet(inst ir.Instruction, tables *symtab.Tables, cb *codebuf.Buffer) error {
	name := inst.Operands[0].Label
	if !tables.Vars.Contains(name) {
		return ir.Fatalf(backendName, ir.KindUndefinedSymbol, inst.Line, inst.Col, "SET target %q is not a variable", name)
	}
	rs, err := reg(inst, 1)
	if err != nil {
		return err
	}
	addr, _ := tables.Symbols.Lookup(name)
	cb.Write(opMovDirectRn + byte(rs))
	cb.Write(byte(addr))
	return nil
}

// emitLDS expands LDS Rd,"text": MOV Rn,#addr, where addr is the
// string's absolute position in the code/ROM image appended after the
// instruction stream (lay.stringBase + the string table's offset).
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
	addr := lay.stringBase + entry.Offset
	b, err := checkByteImmediate(int64(addr), inst.Line, inst.Col)
	if err != nil {
		return err
	}
	cb.Write(opMovRnImm + byte(rd))
	cb.Write(b)
	return nil
}
