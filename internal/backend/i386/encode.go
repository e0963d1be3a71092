package i386

import "github.com/xyproto/retarget/internal/ir"

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

// instrSize computes the pass-1 byte count for inst (spec §4.3 size
// table). Unlike amd64, HLT/SYS never grow: i386 has no Win32 form.
func instrSize(inst ir.Instruction) (int, error) {
	switch inst.Op {
	case ir.OpLDI:
		return 5, nil // B8+rd id
	case ir.OpMOV:
		return 2, nil
	case ir.OpLOAD, ir.OpSTORE, ir.OpLOADB, ir.OpSTOREB:
		addrReg := inst.Operands[memOperandIndex(inst.Op)].Reg
		return 2 + extraBytes(addrReg), nil
	case ir.OpADD, ir.OpSUB, ir.OpAND, ir.OpOR, ir.OpXOR, ir.OpCMP:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 6, nil // 81 /ext id
		}
		return 2, nil
	case ir.OpNOT:
		return 2, nil // F7 /2
	case ir.OpINC, ir.OpDEC:
		return 1, nil // 40+rd / 48+rd
	case ir.OpMUL:
		return 3, nil // 0F AF /r
	case ir.OpDIV:
		if inst.Operands[0].Reg == 0 {
			return 10, nil
		}
		return 14, nil
	case ir.OpSHL, ir.OpSHR:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 3, nil
		}
		return 10, nil
	case ir.OpJMP:
		return 5, nil
	case ir.OpJZ, ir.OpJNZ, ir.OpJL, ir.OpJG:
		return 6, nil
	case ir.OpCALL:
		return 5, nil
	case ir.OpRET, ir.OpPUSH, ir.OpPOP, ir.OpNOP, ir.OpHLT:
		return 1, nil
	case ir.OpINT, ir.OpSYS:
		return 2, nil // CD ib / CD 80
	case ir.OpGET, ir.OpSET, ir.OpLDS:
		return 6, nil // opcode + modrm + abs32, no REX
	}
	return 0, ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
		"unsupported opcode %s for i386", inst.Op)
}

func memOperandIndex(op ir.Opcode) int {
	if op == ir.OpLOAD || op == ir.OpLOADB {
		return 1
	}
	return 0
}

func modrmReg(r1, r2 int) byte { return 0xC0 | byte((r1&7)<<3) | byte(r2&7) }

func absModRM(reg int) byte { return byte((reg&7)<<3) | 0x05 }
