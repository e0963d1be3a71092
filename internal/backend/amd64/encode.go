package amd64

import (
	"github.com/xyproto/retarget/internal/backend"
	"github.com/xyproto/retarget/internal/ir"
)

const backendName = "amd64"

// extraBytes is the additional bytes a [reg]-form addressing needs past
// the base REX+opcode+ModR/M triple: a SIB byte for RSP, or a forced
// disp8=0 for RBP (spec §4.2).
func extraBytes(reg int) int {
	n := 0
	if needsSIB(reg) {
		n++
	}
	if needsDisp8Zero(reg) {
		n++
	}
	return n
}

// instrSize computes the pass-1 byte count for inst. It is pure — it
// never touches the symbol table — because every size decision for this
// target depends only on operand kinds and register identities, both
// already present in the IR (spec §4.2's size table never depends on a
// resolved address).
func instrSize(inst ir.Instruction, opts backend.Options) (int, error) {
	switch inst.Op {
	case ir.OpLDI:
		return 7, nil
	case ir.OpMOV:
		return 3, nil
	case ir.OpLOAD, ir.OpSTORE:
		addrReg := inst.Operands[memOperandIndex(inst.Op)].Reg
		return 3 + extraBytes(addrReg), nil
	case ir.OpLOADB, ir.OpSTOREB:
		addrReg := inst.Operands[memOperandIndex(byteOp(inst.Op))].Reg
		return 3 + extraBytes(addrReg), nil
	case ir.OpADD, ir.OpSUB, ir.OpAND, ir.OpOR, ir.OpXOR, ir.OpCMP:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 10, nil
		}
		return 3, nil
	case ir.OpNOT, ir.OpINC, ir.OpDEC:
		return 3, nil
	case ir.OpMUL:
		return 4, nil
	case ir.OpDIV:
		if inst.Operands[0].Reg == 0 { // Rd == RAX
			return 10, nil
		}
		return 16, nil
	case ir.OpSHL, ir.OpSHR:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 4, nil
		}
		return 13, nil
	case ir.OpJMP:
		return 5, nil
	case ir.OpJZ, ir.OpJNZ, ir.OpJL, ir.OpJG:
		return 6, nil
	case ir.OpCALL:
		return 5, nil
	case ir.OpRET:
		return 1, nil
	case ir.OpPUSH, ir.OpPOP:
		return 1, nil
	case ir.OpNOP:
		return 1, nil
	case ir.OpHLT:
		if opts.Win32 {
			return 5, nil // CALL $exit_dispatcher
		}
		return 1, nil // RET
	case ir.OpINT:
		return 2, nil
	case ir.OpSYS:
		if opts.Win32 {
			return 5, nil // CALL $syscall_dispatcher
		}
		return 2, nil // SYSCALL
	case ir.OpGET, ir.OpSET, ir.OpLDS:
		return 7, nil
	case ir.OpCPUID, ir.OpRDTSC:
		return 2, nil
	case ir.OpBSWAP:
		return 3, nil
	}
	return 0, ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
		"unsupported opcode %s for amd64", inst.Op)
}

// memOperandIndex returns which operand of a LOAD/STORE carries the
// address register: LOAD Rd, [Rs] addresses operand 1; STORE [Rd], Rs
// addresses operand 0.
func memOperandIndex(op ir.Opcode) int {
	if op == ir.OpLOAD || op == ir.OpLOADB {
		return 1
	}
	return 0
}

func byteOp(op ir.Opcode) ir.Opcode {
	if op == ir.OpLOADB {
		return ir.OpLOAD
	}
	return ir.OpSTORE
}

// modrmReg builds a mod=11 ModR/M byte for a register-register form with
// reg field r1 and rm field r2 (both already masked to 3 bits).
func modrmReg(r1, r2 int) byte {
	return 0xC0 | byte((r1&7)<<3) | byte(r2&7)
}

// ripModRM builds the mod=00,rm=101 ModR/M byte used for every
// RIP-relative memory form (reg field carries the instruction's
// register operand).
func ripModRM(reg int) byte {
	return byte((reg&7)<<3) | 0x05
}
