package asm

import (
	"strconv"

	"hackc.dev/toolchain/pkg/diag"
	"hackc.dev/toolchain/pkg/hack"
)

// ----------------------------------------------------------------------------
// Asm Lowerer

// The Lowerer takes an 'asm.Program' and produces its 'hack.Program' counterpart.
//
// This is the label-scan pass of the assembler: it walks the statement list in source
// order keeping the ROM index of the next real instruction ('len(converted)'), binds
// every label declaration to that index in the symbol table and classifies each A
// location as Raw, BuiltIn or user Label. Forward references are the whole point of
// this pass: a label may be used well before the line that declares it.
type Lowerer struct{ program Program }

// Initializes and returns to the caller a brand new 'Lowerer' struct.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// Triggers the lowering process. It iterates statement by statement and calls the
// specific helper function based on the statement type. Label declarations emit no
// instruction, so the ROM index only advances on A and C instructions.
func (l *Lowerer) Lower() (hack.Program, hack.SymbolTable, error) {
	converted, table := hack.Program{}, hack.SymbolTable{}
	declaredAt := map[string]int{} // Label name -> declaring line, for duplicate reports

	for _, statement := range l.program {
		switch tStatement := statement.(type) {
		case AInstruction: // Converts 'asm.AInstruction' to 'hack.AInstruction'
			hackInst, err := l.HandleAInst(tStatement)
			if err != nil {
				return nil, nil, err
			}
			converted = append(converted, hackInst)

		case CInstruction: // Converts 'asm.CInstruction' to 'hack.CInstruction'
			hackInst, err := l.HandleCInst(tStatement)
			if err != nil {
				return nil, nil, err
			}
			converted = append(converted, hackInst)

		case LabelDecl: // Adds 'asm.LabelDecl' to the 'hack.SymbolTable'
			label, err := l.HandleLabelDecl(tStatement)
			if err != nil {
				return nil, nil, err
			}
			if previous, duplicated := declaredAt[label]; duplicated {
				return nil, nil, diag.Sourcef(tStatement.Line, "label '%s' already declared at line %d", label, previous)
			}
			declaredAt[label] = tStatement.Line
			table[label] = uint16(len(converted))

		case Comment: // Comments emit no word and are not part of the label scan
			continue

		default: // Error case, unrecognized statement type
			return nil, nil, diag.Sourcef(0, "unrecognized statement '%T'", statement)
		}
	}

	return converted, table, nil
}

// Specialized function to convert an 'asm.AInstruction' to a 'hack.AInstruction'.
func (Lowerer) HandleAInst(inst AInstruction) (hack.Instruction, error) {
	if inst.Location == "" {
		return nil, diag.Sourcef(inst.Line, "empty location in A instruction")
	}

	// Based on one of the following cases below (the type of the location) we do
	// different things:
	// 1) If it's present in the BuiltInTable we set the 'LocType' to 'BuiltIn' accordingly
	if _, found := hack.BuiltInTable[inst.Location]; found {
		return hack.AInstruction{LocType: hack.BuiltIn, LocName: inst.Location, Line: inst.Line}, nil
	}
	// 2) If it can be parsed as a non-negative int we set the 'LocType' to 'Raw' accordingly
	// (the range check belongs to the codegen phase, where '@32768' and up are rejected)
	if _, err := strconv.ParseUint(inst.Location, 10, 64); err == nil {
		return hack.AInstruction{LocType: hack.Raw, LocName: inst.Location, Line: inst.Line}, nil
	}
	// 3) A location that looks numeric but failed to parse is malformed, not a label
	if first := inst.Location[0]; first == '-' || (first >= '0' && first <= '9') {
		return nil, diag.Sourcef(inst.Line, "malformed numeric location '@%s'", inst.Location)
	}
	// 4) Else it's a user defined label and we set 'LocType' to 'Label' accordingly
	return hack.AInstruction{LocType: hack.Label, LocName: inst.Location, Line: inst.Line}, nil
}

// Specialized function to convert an 'asm.CInstruction' to a 'hack.CInstruction'.
func (Lowerer) HandleCInst(inst CInstruction) (hack.Instruction, error) {
	if inst.Comp == "" { // Pre-check: CInstruction.Comp should always be provided
		return nil, diag.Sourcef(inst.Line, "'comp' part should always be provided")
	}

	// 'Dest' and 'Jump' are each optional and independent, the empty string selects
	// the no-op bit pattern for both during codegen.
	return hack.CInstruction{Dest: inst.Dest, Comp: inst.Comp, Jump: inst.Jump, Line: inst.Line}, nil
}

// Specialized function to validate an 'asm.LabelDecl' and extract its identifier.
func (Lowerer) HandleLabelDecl(inst LabelDecl) (string, error) {
	if inst.Name == "" {
		return "", diag.Sourcef(inst.Line, "empty label declaration")
	}
	if _, found := hack.BuiltInTable[inst.Name]; found {
		return "", diag.Sourcef(inst.Line, "label '%s' shadows a predefined symbol", inst.Name)
	}

	return inst.Name, nil
}
