package asm

import (
	"fmt"
	"strings"

	"hackc.dev/toolchain/pkg/diag"
	"hackc.dev/toolchain/pkg/hack"
)

// ----------------------------------------------------------------------------
// Code Generator

// Takes a set of 'asm.Statement' and spits out their textual counterparts.
//
// The translation can be done without any additional data structure but the program.
// The generated layout follows the usual Hack conventions: A and C instructions are
// tab-indented while label declarations and comments start at column 0, so that the
// control-flow skeleton of a translated program stays readable.
type CodeGenerator struct {
	program Program // The set of statements to convert in Asm textual format
}

// Initializes and returns to the caller a brand new 'CodeGenerator' struct.
func NewCodeGenerator(p Program) CodeGenerator {
	return CodeGenerator{program: p}
}

// Translates each statement in the 'program' field to the Asm textual format.
//
// Each statement will pass through the following steps: evaluation, validation and
// then conversion to its textual representation (one output line per statement) so
// that it can be further elaborated by the caller (e.g. dumping to a .asm file).
func (cg *CodeGenerator) Generate() ([]string, error) {
	asm := make([]string, 0, len(cg.program))

	for _, statement := range cg.program {
		var generated string
		var err error
		indented := false

		switch tStatement := statement.(type) {
		case AInstruction:
			generated, err = cg.GenerateAInst(tStatement)
			indented = true
		case CInstruction:
			generated, err = cg.GenerateCInst(tStatement)
			indented = true
		case LabelDecl:
			generated, err = cg.GenerateLabelDecl(tStatement)
		case Comment:
			generated, err = cg.GenerateComment(tStatement)
		default:
			err = diag.Sourcef(0, "unrecognized statement '%T'", statement)
		}

		if err != nil {
			return nil, err
		}
		if indented {
			generated = "\t" + generated
		}
		asm = append(asm, generated)
	}

	return asm, nil
}

// Specialized function to convert an A Instruction to the Asm format.
func (CodeGenerator) GenerateAInst(stmt AInstruction) (string, error) {
	if stmt.Location == "" {
		return "", diag.Sourcef(stmt.Line, "empty location in A instruction")
	}

	return fmt.Sprintf("@%s", stmt.Location), nil
}

// Specialized function to convert a C Instruction to the Asm format.
//
// All four presence combinations of 'dest' and 'jump' are rendered: 'dest=comp',
// 'comp;jump', 'dest=comp;jump' and the bare 'comp'.
func (cg *CodeGenerator) GenerateCInst(stmt CInstruction) (string, error) {
	if stmt.Comp == "" {
		return "", diag.Sourcef(stmt.Line, "expected 'comp' part in C instruction")
	}

	var builder strings.Builder
	if stmt.Dest != "" {
		builder.WriteString(stmt.Dest)
		builder.WriteByte('=')
	}
	builder.WriteString(stmt.Comp)
	if stmt.Jump != "" {
		builder.WriteByte(';')
		builder.WriteString(stmt.Jump)
	}

	return builder.String(), nil
}

// Specialized function to convert a Label Declaration to the Asm format.
func (cg *CodeGenerator) GenerateLabelDecl(stmt LabelDecl) (string, error) {
	if stmt.Name == "" {
		return "", diag.Sourcef(stmt.Line, "unable to produce empty label declaration")
	}
	if _, found := hack.BuiltInTable[stmt.Name]; found {
		return "", diag.Sourcef(stmt.Line, "unable to override built-in label '%s'", stmt.Name)
	}

	return fmt.Sprintf("(%s)", stmt.Name), nil
}

// Specialized function to convert a Comment statement to the Asm format.
func (cg *CodeGenerator) GenerateComment(stmt Comment) (string, error) {
	return fmt.Sprintf("// %s", stmt.Text), nil
}
