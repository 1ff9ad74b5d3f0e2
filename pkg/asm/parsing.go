package asm

import (
	"bytes"
	"io"
	"os"

	pc "github.com/prataprc/goparsec"

	"hackc.dev/toolchain/pkg/diag"
)

// ----------------------------------------------------------------------------
// Parser Combinator(s)

// This section defines the Parser Combinator for every token & instruction of the Asm language.
//
// Each parser combinator either manages an instruction (A Inst, C Inst, Label Decl) or some
// pieces of it: namely tokens and identifiers. Also we manage comments inside the codebase
// that can either present themselves at the beginning of the line or in the middle.

// Top level object, will generate the traversable AST based on the input plus the PCs below.
var ast = pc.NewAST("assembler", 0)

var (
	// Parser combinator for an entire Asm program (a sequence of comments and instructions)
	pProgram = ast.ManyUntil("program", nil, ast.OrdChoice("item", nil, pComment, pInstruction), pc.End())

	// Parser combinator for a generic Asm instruction (either C, A or Label declaration)
	pInstruction = ast.OrdChoice("instruction", nil, pAInst, pCInst, pLabelDecl)
	// Parser combinator for comments in Asm program
	pComment = ast.And("comment", nil, pc.Atom("//", "//"), pc.Token(`(?m).*$`, "COMMENT"))

	// Parser combinator for A Instructions
	pAInst = ast.And("a-inst", nil, pc.Atom("@", "@"), pLabel)
	// Parser combinator for new label declaration
	pLabelDecl = ast.And("label-decl", nil, pc.Atom("(", "("), pLabel, pc.Atom(")", ")"))
	// Parser combinator for C Instructions, both the assignment and the jump part
	// are optional: 'comp' alone is a legal (if useless) instruction body.
	pCInst = ast.And("c-inst", nil,
		ast.Maybe("maybe-assign", nil, ast.And("assign", nil, pDest, pc.Atom("=", "="))),
		pComp, // 'comp' should always be provided
		ast.Maybe("maybe-goto", nil, ast.And("goto", nil, pc.Atom(";", ";"), pJump)),
	)
)

var (
	// Generic label parser (A Instruction + Label declaration)
	// NOTE: A label can be any sequence of letters, digits, and symbols (_, ., $, :).
	// NOTE: A label cannot begin with a leading digit (a symbol is indeed allowed).
	pLabel = ast.OrdChoice("label", nil, pc.Int(), pc.Token(`[A-Za-z_.$:][0-9a-zA-Z_.$:]*`, "SYMBOL"))

	// Generic destination parser (C Instruction subsection)
	// NOTE: The longer Atoms must come first cause if not the single destination
	// section will match before in the PC (BFS Search algorithm)
	pDest = ast.OrdChoice("dest", nil,
		pc.Atom("AMD", "AMD"),
		pc.Atom("AM", "AM"), pc.Atom("AD", "AD"), pc.Atom("MD", "MD"),
		pc.Atom("D", "D"), pc.Atom("A", "A"), pc.Atom("M", "M"),
	)

	// Generic computation parser (C Instruction subsection)
	// NOTE: The order of the Atom is reversed w.r.t. the one provided in the translation
	// table cause if not the 'Constant and identifiers' part will match before the
	// longer mnemonics (BFS Search algorithm)
	pComp = ast.OrdChoice("comp", nil,
		// - Bitwise register with register operations
		pc.Atom("D&A", "D&A"), pc.Atom("D&M", "D&M"),
		pc.Atom("D|A", "D|A"), pc.Atom("D|M", "D|M"),
		// - Register with register operations
		pc.Atom("D+A", "D+A"), pc.Atom("D+M", "D+M"),
		pc.Atom("D-A", "D-A"), pc.Atom("D-M", "D-M"),
		pc.Atom("A-D", "A-D"), pc.Atom("M-D", "M-D"),
		// - Increment and decrement operations
		pc.Atom("D+1", "D+1"), pc.Atom("A+1", "A+1"), pc.Atom("M+1", "M+1"),
		pc.Atom("D-1", "D-1"), pc.Atom("A-1", "A-1"), pc.Atom("M-1", "M-1"),
		// - Binary and numerical negations
		pc.Atom("!D", "!D"), pc.Atom("!A", "!A"), pc.Atom("!M", "!M"),
		pc.Atom("-D", "-D"), pc.Atom("-A", "-A"), pc.Atom("-M", "-M"),
		// - Constants and identities
		pc.Atom("0", "0"), pc.Atom("1", "1"), pc.Atom("-1", "-1"),
		pc.Atom("D", "D"), pc.Atom("A", "A"), pc.Atom("M", "M"),
	)

	// Generic jump parser (C Instruction subsection)
	pJump = ast.OrdChoice("jump", nil,
		pc.Atom("JNE", "JNE"), pc.Atom("JEQ", "JEQ"),
		pc.Atom("JGT", "JGT"), pc.Atom("JGE", "JGE"),
		pc.Atom("JLT", "JLT"), pc.Atom("JLE", "JLE"),
		pc.Atom("JMP", "JMP"),
	)
)

// ----------------------------------------------------------------------------
// Asm Parser

// This section defines the Parser for the Hack Asm language.
//
// It uses parser combinators to obtain the AST from the source code (the latter can be
// provided in multiple ways using a generic io.Reader), the library reads up the feature
// flags (as env vars):
// - PARSEC_DEBUG: Verbose logging to inspect which of the PCs gets triggered and match
type Parser struct {
	reader io.Reader
	lines  diag.LineIndex // Maps parser byte offsets back to 1-based source lines
}

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parser entrypoint divides the 2 phases of the parsing pipeline
// Text --> AST: This step is done using PCs and returns a generic traversable AST
// AST --> IR: This step is done by traversing the AST and extracting the 'asm.Program'
func (p *Parser) Parse() (Program, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, diag.IOf(err, "cannot read from 'io.Reader'")
	}

	// A blank unit has nothing for the combinators to match on, and is a valid
	// (empty) program rather than a parse failure.
	if len(bytes.TrimSpace(content)) == 0 {
		return Program{}, nil
	}

	root, success := p.FromSource(content)
	if !success {
		return nil, diag.Sourcef(0, "failed to parse AST from input content")
	}

	return p.FromAST(root)
}

// Scans the textual input stream and returns a traversable AST (Abstract Syntax Tree)
// that can be eventually visited to extract/transform the info available.
func (p *Parser) FromSource(source []byte) (pc.Queryable, bool) {
	// Feature flag: Enable 'goparsec' library's debug logs
	if os.Getenv("PARSEC_DEBUG") != "" {
		ast.SetDebug()
	}

	p.lines = diag.NewLineIndex(source)

	// We generate the traversable Abstract Syntax Tree from the source content
	root, _ := ast.Parsewith(pProgram, pc.NewScanner(source))
	return root, root != nil
}

// This function takes the root node of the raw parsed AST and does a DFS on it parsing
// one by one each subtree and returning an 'asm.Program' that can be used as in-memory
// and type-safe AST not dependent on the parsing library used.
func (p *Parser) FromAST(root pc.Queryable) (Program, error) {
	program := Program{}

	if root.GetName() != "program" {
		return nil, diag.Sourcef(0, "expected node 'program', found '%s'", root.GetName())
	}

	for _, child := range root.GetChildren() {
		switch child.GetName() {
		case "a-inst": // A Instruction subtree, appends 'asm.AInstruction' to 'program'
			inst, err := p.HandleAInst(child)
			if err != nil {
				return nil, err
			}
			program = append(program, inst)

		case "c-inst": // C Instruction subtree, appends 'asm.CInstruction' to 'program'
			inst, err := p.HandleCInst(child)
			if err != nil {
				return nil, err
			}
			program = append(program, inst)

		case "label-decl": // Label declaration subtree, appends 'asm.LabelDecl' to 'program'
			inst, err := p.HandleLabelDecl(child)
			if err != nil {
				return nil, err
			}
			program = append(program, inst)

		case "comment": // Comment nodes in the AST are just skipped
			continue

		default: // Error case, unrecognized subtree in the AST
			return nil, diag.Sourcef(p.lines.At(child.GetPosition()), "unrecognized node '%s'", child.GetName())
		}
	}

	return program, nil
}

// Specialized function to convert an "a-inst" node to an 'asm.AInstruction'.
func (p *Parser) HandleAInst(inst pc.Queryable) (Statement, error) {
	line := p.lines.At(inst.GetPosition())

	if inst.GetName() != "a-inst" { // Prelude checks: inspects the node to verify it's an 'a-inst'
		return nil, diag.Sourcef(line, "expected node 'a-inst', found '%s'", inst.GetName())
	}

	symbol := inst.GetChildren()[1] // Prelude checks: inspects the label node type (INT | SYMBOL)
	if symbol.GetName() != "INT" && symbol.GetName() != "SYMBOL" {
		return nil, diag.Sourcef(line, "expected token 'SYMBOL' or 'INT', got '%s'", symbol.GetName())
	}

	return AInstruction{Location: symbol.GetValue(), Line: line}, nil
}

// Specialized function to convert a "c-inst" node to an 'asm.CInstruction'.
//
// Both the 'assign' and 'goto' subtrees are optional (wrapped in a Maybe combinator):
// the four presence combinations are all legal and map to the empty string defaults.
func (p *Parser) HandleCInst(inst pc.Queryable) (Statement, error) {
	line := p.lines.At(inst.GetPosition())

	if inst.GetName() != "c-inst" { // Prelude checks: inspects the node to verify it's a 'c-inst'
		return nil, diag.Sourcef(line, "expected node 'c-inst', found '%s'", inst.GetName())
	}

	assign, comp, jump := inst.GetChildren()[0], inst.GetChildren()[1], inst.GetChildren()[2]
	converted := CInstruction{Comp: comp.GetValue(), Line: line}

	if assign.GetName() == "assign" && len(assign.GetChildren()) == 2 {
		converted.Dest = assign.GetChildren()[0].GetValue()
	}
	if jump.GetName() == "goto" && len(jump.GetChildren()) == 2 {
		converted.Jump = jump.GetChildren()[1].GetValue()
	}

	return converted, nil
}

// Specialized function to extract from a "label-decl" node an 'asm.LabelDecl'.
func (p *Parser) HandleLabelDecl(decl pc.Queryable) (Statement, error) {
	line := p.lines.At(decl.GetPosition())

	if decl.GetName() != "label-decl" { // Prelude checks: inspects the node to verify it's a 'label-decl'
		return nil, diag.Sourcef(line, "expected node 'label-decl', found '%s'", decl.GetName())
	}

	symbol := decl.GetChildren()[1] // Prelude checks: inspects the label node type (SYMBOL only)
	if symbol.GetName() != "SYMBOL" {
		return nil, diag.Sourcef(line, "expected token 'SYMBOL', got '%s'", symbol.GetName())
	}

	return LabelDecl{Name: symbol.GetValue(), Line: line}, nil
}
