package mcs51

import "github.com/xyproto/retarget/internal/ir"

// instrSize computes the pass-1 byte count for inst against the 8051
// opcode expansions in emit.go. Every accumulator-mediated op (ADD,
// SUB, ...) pays for the MOV A,Rd / MOV Rd,A bracket explicitly; native
// forms (INC Rn, CJNE Rn,#imm,rel, ...) don't.
func instrSize(inst ir.Instruction) (int, error) {
	switch inst.Op {
	case ir.OpLDI:
		return 2, nil // MOV Rn,#data
	case ir.OpMOV:
		return 2, nil // MOV A,Rs ; MOV Rd,A
	case ir.OpLOAD, ir.OpSTORE, ir.OpLOADB, ir.OpSTOREB:
		return 2, nil // MOV A,@Ri/MOV @Ri,A ; MOV Rd,A or MOV A,Rs
	case ir.OpADD:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 4, nil // MOV A,Rd ; ADD A,#data ; MOV Rd,A
		}
		return 3, nil // MOV A,Rd ; ADD A,Rs ; MOV Rd,A
	case ir.OpSUB, ir.OpCMP:
		extra := 0
		if inst.Op == ir.OpSUB {
			extra = 1 // MOV Rd,A writeback; CMP has none
		}
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 4 + extra, nil // MOV A,Rd ; CLR C ; SUBB A,#data [; MOV Rd,A]
		}
		return 3 + extra, nil // MOV A,Rd ; CLR C ; SUBB A,Rs [; MOV Rd,A]
	case ir.OpAND, ir.OpOR, ir.OpXOR:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 4, nil
		}
		return 3, nil
	case ir.OpNOT:
		return 3, nil // MOV A,Rd ; CPL A ; MOV Rd,A
	case ir.OpINC, ir.OpDEC:
		return 1, nil // INC Rn / DEC Rn
	case ir.OpMUL, ir.OpDIV:
		return 6, nil // MOV A,Rd ; MOV B,direct ; MUL/DIV AB ; MOV Rd,A
	case ir.OpSHL, ir.OpSHR:
		if inst.Operands[1].Kind != ir.OperandImmediate {
			return 0, ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
				"mcs51 %s only supports an immediate shift count", inst.Op)
		}
		count := int(inst.Operands[1].Imm)
		if count < 0 || count > 7 {
			return 0, ir.Fatalf(backendName, ir.KindImmediateOutOfRange, inst.Line, inst.Col,
				"shift count %d out of range for mcs51 (0..7)", count)
		}
		return 2 + 2*count, nil // MOV A,Rd ; (CLR C;RLC/RRC A)*count ; MOV Rd,A
	case ir.OpJMP:
		return 3, nil // LJMP addr16
	case ir.OpCALL:
		return 3, nil // LCALL addr16
	case ir.OpJZ, ir.OpJNZ, ir.OpJL:
		return 2, nil // JZ/JNZ/JC rel
	case ir.OpJG:
		return 6, nil // JC skip4 ; JZ skip2 ; SJMP target
	case ir.OpRET:
		return 1, nil
	case ir.OpHLT:
		return 2, nil // SJMP $
	case ir.OpPUSH, ir.OpPOP:
		return 2, nil
	case ir.OpNOP:
		return 1, nil
	case ir.OpINT:
		return 3, nil // LCALL (n*8+3)
	case ir.OpSYS:
		return 0, ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
			"SYS is unsupported on mcs51 (bare-metal target, no OS syscall convention)")
	case ir.OpGET, ir.OpSET, ir.OpLDS:
		return 2, nil
	case ir.OpDJNZ:
		return 2, nil
	case ir.OpCJNE:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			return 3, nil // CJNE Rn,#data,rel
		}
		return 4, nil // MOV A,Rd ; CJNE A,direct,rel
	case ir.OpSETB, ir.OpCLR, ir.OpRETI:
		return 1, nil
	}
	return 0, ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
		"unsupported opcode %s for mcs51", inst.Op)
}
