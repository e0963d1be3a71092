// Package asmtext is a minimal line-based loader for MVIS programs. The
// real lexer/parser is an external collaborator out of the core's scope
// (spec §1, §6.1); this package exists only so cmd/retarget has
// something to read from disk and is not a claim that it implements
// that contract. One instruction or label per line, `;` starts a
// comment, operands are comma-separated.
package asmtext

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xyproto/retarget/internal/ir"
)

var opcodeByName = map[string]ir.Opcode{
	"LDI": ir.OpLDI, "MOV": ir.OpMOV, "LOAD": ir.OpLOAD, "STORE": ir.OpSTORE,
	"ADD": ir.OpADD, "SUB": ir.OpSUB, "AND": ir.OpAND, "OR": ir.OpOR, "XOR": ir.OpXOR,
	"NOT": ir.OpNOT, "SHL": ir.OpSHL, "SHR": ir.OpSHR, "MUL": ir.OpMUL, "DIV": ir.OpDIV,
	"INC": ir.OpINC, "DEC": ir.OpDEC, "CMP": ir.OpCMP,
	"JMP": ir.OpJMP, "JZ": ir.OpJZ, "JNZ": ir.OpJNZ, "JL": ir.OpJL, "JG": ir.OpJG,
	"CALL": ir.OpCALL, "RET": ir.OpRET, "PUSH": ir.OpPUSH, "POP": ir.OpPOP,
	"NOP": ir.OpNOP, "HLT": ir.OpHLT, "INT": ir.OpINT,
	"VAR": ir.OpVAR, "SET": ir.OpSET, "GET": ir.OpGET, "BUFFER": ir.OpBUFFER,
	"LDS": ir.OpLDS, "LOADB": ir.OpLOADB, "STOREB": ir.OpSTOREB,
	"SYS": ir.OpSYS, "ORG": ir.OpORG,
	"CPUID": ir.OpCPUID, "RDTSC": ir.OpRDTSC, "BSWAP": ir.OpBSWAP,
	"WFI": ir.OpWFI, "DMB": ir.OpDMB,
	"DJNZ": ir.OpDJNZ, "CJNE": ir.OpCJNE, "SETB": ir.OpSETB, "CLR": ir.OpCLR, "RETI": ir.OpRETI,
}

// Parse reads one MVIS Instruction per non-blank, non-comment line from
// r. A line ending in ":" defines a label; otherwise the text up to the
// first space is the opcode (a tab does not separate it) and the
// remainder, split on commas, is the operand list.
func Parse(r io.Reader) ([]ir.Instruction, error) {
	var program []ir.Instruction
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if semi := strings.IndexByte(line, ';'); semi >= 0 {
			line = line[:semi]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			program = append(program, ir.Label(strings.TrimSuffix(line, ":"), lineNo, 1))
			continue
		}
		inst, err := parseInstruction(line, lineNo)
		if err != nil {
			return nil, err
		}
		program = append(program, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return program, nil
}

func parseInstruction(line string, lineNo int) (ir.Instruction, error) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic := strings.ToUpper(strings.TrimSpace(fields[0]))
	op, ok := opcodeByName[mnemonic]
	if !ok {
		return ir.Instruction{}, fmt.Errorf("asmtext: line %d: unknown opcode %q", lineNo, fields[0])
	}

	var operands []ir.Operand
	if len(fields) == 2 {
		for _, raw := range strings.Split(fields[1], ",") {
			opnd, err := parseOperand(strings.TrimSpace(raw), lineNo)
			if err != nil {
				return ir.Instruction{}, err
			}
			operands = append(operands, opnd)
		}
	}
	return ir.Insn(op, lineNo, 1, operands...), nil
}

func parseOperand(tok string, lineNo int) (ir.Operand, error) {
	switch {
	case strings.HasPrefix(tok, "R") && len(tok) > 1:
		n, err := strconv.Atoi(tok[1:])
		if err != nil {
			return ir.Operand{}, fmt.Errorf("asmtext: line %d: bad register %q: %w", lineNo, tok, err)
		}
		return ir.Reg(n), nil
	case strings.HasPrefix(tok, "#"):
		v, err := strconv.ParseInt(tok[1:], 0, 64)
		if err != nil {
			return ir.Operand{}, fmt.Errorf("asmtext: line %d: bad immediate %q: %w", lineNo, tok, err)
		}
		return ir.Imm(v), nil
	case strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2:
		return ir.Str(tok[1 : len(tok)-1]), nil
	default:
		return ir.Lbl(tok), nil
	}
}
