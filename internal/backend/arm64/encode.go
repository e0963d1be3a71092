package arm64

import "github.com/xyproto/retarget/internal/ir"

// --- word encoders -----------------------------------------------------
//
// Each function builds one A64 instruction word by bit-field composition
// per the ARM Architecture Reference Manual encodings named in spec
// §4.3. Register fields are masked to 5 bits; callers are responsible
// for passing already-range-checked values (native R0..R7, or one of the
// fixed scratch/zero/link encodings in reg.go).

func movzWord(rd int, imm16 uint16, hw uint32) uint32 {
	return 0xD2800000 | (hw&3)<<21 | uint32(imm16)<<5 | uint32(rd&0x1F)
}

func movkWord(rd int, imm16 uint16, hw uint32) uint32 {
	return 0xF2800000 | (hw&3)<<21 | uint32(imm16)<<5 | uint32(rd&0x1F)
}

func movRegWord(rd, rm int) uint32 { // MOV Xd,Xm == ORR Xd,XZR,Xm
	return 0xAA0003E0 | uint32(rm&0x1F)<<16 | uint32(rd&0x1F)
}

func addImmWord(rd, rn int, imm12 uint32) uint32 {
	return 0x91000000 | (imm12&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func subImmWord(rd, rn int, imm12 uint32) uint32 {
	return 0xD1000000 | (imm12&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func cmpImmWord(rn int, imm12 uint32) uint32 {
	return 0xF1000000 | (imm12&0xFFF)<<10 | uint32(rn&0x1F)<<5 | zeroOrSP
}

func addRegWord(rd, rn, rm int) uint32 {
	return 0x8B000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func subRegWord(rd, rn, rm int) uint32 {
	return 0xCB000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func cmpRegWord(rn, rm int) uint32 {
	return 0xEB000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | zeroOrSP
}

func andRegWord(rd, rn, rm int) uint32 {
	return 0x8A000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func orrRegWord(rd, rn, rm int) uint32 {
	return 0xAA000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func eorRegWord(rd, rn, rm int) uint32 {
	return 0xCA000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func mvnWord(rd, rm int) uint32 { // MVN Xd,Xm == ORN Xd,XZR,Xm
	return 0xAA2003E0 | uint32(rm&0x1F)<<16 | uint32(rd&0x1F)
}

func maddWord(rd, rn, rm, ra int) uint32 {
	return 0x9B000000 | uint32(rm&0x1F)<<16 | uint32(ra&0x1F)<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func sdivWord(rd, rn, rm int) uint32 {
	return 0x9AC00C00 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func lslvWord(rd, rn, rm int) uint32 {
	return 0x9AC02000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func lsrvWord(rd, rn, rm int) uint32 {
	return 0x9AC02400 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func lslImmWord(rd, rn int, shift uint32) uint32 {
	immr := (64 - shift) & 0x3F
	imms := (63 - shift) & 0x3F
	return 0xD3400000 | immr<<16 | imms<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func lsrImmWord(rd, rn int, shift uint32) uint32 {
	return 0xD3400000 | (shift&0x3F)<<16 | 0x3F<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

func ldrWord(rt, rn int) uint32  { return 0xF9400000 | uint32(rn&0x1F)<<5 | uint32(rt&0x1F) }
func strWord(rt, rn int) uint32  { return 0xF9000000 | uint32(rn&0x1F)<<5 | uint32(rt&0x1F) }
func ldrbWord(rt, rn int) uint32 { return 0x39400000 | uint32(rn&0x1F)<<5 | uint32(rt&0x1F) }
func strbWord(rt, rn int) uint32 { return 0x39000000 | uint32(rn&0x1F)<<5 | uint32(rt&0x1F) }

func pushWord(rt int) uint32 { // STR Xt,[SP,#-16]!
	return 0xF81F0FE0 | uint32(rt&0x1F)
}

func popWord(rt int) uint32 { // LDR Xt,[SP],#16
	return 0xF84107E0 | uint32(rt&0x1F)
}

func bWord() uint32      { return 0x14000000 }
func blWord() uint32     { return 0x94000000 }
func bcondWord() uint32  { return 0x54000000 }
func svcWord(n uint16) uint32 { return 0xD4000001 | uint32(n)<<5 }
func retWord(rn int) uint32   { return 0xD65F0000 | uint32(rn&0x1F)<<5 }

const (
	nopWord = 0xD503201F
	wfiWord = 0xD503207F
	dmbWord = 0xD5033FBF
)

// condCode maps a conditional-jump opcode to its AArch64 4-bit condition
// (spec §4.3 "JZ->B.EQ, JNZ->B.NE, JL->B.LT, JG->B.GT").
var condCode = map[ir.Opcode]uint8{
	ir.OpJZ: 0x0, ir.OpJNZ: 0x1, ir.OpJL: 0xB, ir.OpJG: 0xC,
}

// instrSize computes the pass-1 word count for inst, in bytes (spec
// §4.3's size table).
func instrSize(inst ir.Instruction) (int, error) {
	switch inst.Op {
	case ir.OpLDI:
		return movSequenceSize(inst.Operands[1].Imm, inst.Line, inst.Col)
	case ir.OpMOV:
		return 4, nil
	case ir.OpLOAD, ir.OpSTORE, ir.OpLOADB, ir.OpSTOREB:
		return 4, nil
	case ir.OpADD, ir.OpSUB, ir.OpCMP:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			imm := inst.Operands[1].Imm
			if imm >= 0 && imm <= 0xFFF {
				return 4, nil
			}
			n, err := movSequenceSize(imm, inst.Line, inst.Col)
			if err != nil {
				return 0, err
			}
			return n + 4, nil
		}
		return 4, nil
	case ir.OpAND, ir.OpOR, ir.OpXOR:
		if inst.Operands[1].Kind == ir.OperandImmediate {
			n, err := movSequenceSize(inst.Operands[1].Imm, inst.Line, inst.Col)
			if err != nil {
				return 0, err
			}
			return n + 4, nil
		}
		return 4, nil
	case ir.OpNOT:
		return 4, nil
	case ir.OpINC, ir.OpDEC:
		return 4, nil
	case ir.OpMUL, ir.OpDIV:
		return 4, nil
	case ir.OpSHL, ir.OpSHR:
		return 4, nil
	case ir.OpJMP, ir.OpCALL:
		return 4, nil
	case ir.OpJZ, ir.OpJNZ, ir.OpJL, ir.OpJG:
		return 4, nil
	case ir.OpRET, ir.OpHLT:
		return 4, nil
	case ir.OpPUSH, ir.OpPOP:
		return 4, nil
	case ir.OpNOP:
		return 4, nil
	case ir.OpINT:
		return 4, nil
	case ir.OpSYS:
		return 8, nil // MOV X8,X7 ; SVC #0
	case ir.OpGET, ir.OpSET, ir.OpLDS:
		return 12, nil // MOVZ+MOVK address + access
	case ir.OpWFI, ir.OpDMB:
		return 4, nil
	}
	return 0, ir.Fatalf(backendName, ir.KindUnsupportedOpcode, inst.Line, inst.Col,
		"unsupported opcode %s for arm64", inst.Op)
}
