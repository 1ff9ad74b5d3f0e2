package vm

import (
	"bytes"
	"io"
	"os"
	"strconv"

	pc "github.com/prataprc/goparsec"

	"hackc.dev/toolchain/pkg/diag"
)

// ----------------------------------------------------------------------------
// Parser Combinator(s)

// This section defines the Parser Combinator for every token & instruction of the Vm language.
//
// Each parser combinator either manages an operation (MemoryOp, ArithmeticOp, ...) or some
// pieces of it: namely tokens and identifiers. Also we manage comments inside the codebase
// that can either present themselves at the beginning of the line or in the middle.

// Top level object, will generate the traversable AST based on the input plus the PCs below.
var ast = pc.NewAST("virtual_machine", 0)

var (
	// Parser combinator for a VM module/class, in the VM language there's a Java like
	// behavior where a program is composed of multiple '.vm' files ('.class' in Java)
	// where each contains the bytecode for the specific module/class (a separate
	// translation unit).
	pModule = ast.ManyUntil("module", nil, ast.OrdChoice("node", nil, pComment, pOperation), pc.End())

	// Parser combinator for comments in a Vm program
	pComment = ast.And("comment", nil, pc.Atom("//", "//"), pc.Token(`(?m).*$`, "COMMENT"))
	// Parser combinator for a generic VM operation (MemoryOp, ArithmeticOp, ...)
	pOperation = ast.OrdChoice("operation", nil,
		// Stack operation + label and jump operations
		pMemoryOp, pArithmeticOp, pLabelDecl, pGotoOp,
		// Function related operations and statements
		pFuncDecl, pFunCallOp, pReturnOp,
	)

	// Memory operation, compliant with the following syntax: "{push|pop} {segment} {index}"
	pMemoryOp = ast.And("memory_op", nil, pMemOpType, pSegment, pc.Int())
	// Arithmetic operation, could either be binary or unary (modifies only the Stack Pointer)
	pArithmeticOp = ast.And("arithmetic_op", nil, pArithOpType)

	// Label declaration, compliant with the following syntax: "label {symbol}"
	pLabelDecl = ast.And("label_decl", nil, pc.Atom("label", "LABEL"), pIdent)
	// Jump operation, compliant with the following syntax: "{if-goto|goto} {symbol}"
	pGotoOp = ast.And("goto_op", nil, pJumpType, pIdent)

	// Function declaration, compliant with the following syntax: "function {name} {n_locals}"
	pFuncDecl = ast.And("func_decl", nil, pc.Atom("function", "FUNC"), pIdent, pc.Int())
	// Function call operation, compliant with the following syntax: "call {name} {n_args}"
	pFunCallOp = ast.And("func_call", nil, pc.Atom("call", "CALL"), pIdent, pc.Int())
	// Return operation, compliant with the following syntax: "return"
	pReturnOp = ast.And("return_op", nil, pc.Atom("return", "RETURN"))
)

var (
	// Generic Identifier parser (for label and function declaration)
	// NOTE: An ident can be any sequence of letters, digits, and symbols (_, ., $, :).
	// NOTE: An ident cannot begin with a leading digit (a symbol is indeed allowed).
	pIdent = pc.Token(`[A-Za-z_.$:][0-9a-zA-Z_.$:]*`, "IDENT")

	// Available memory operation types (only push and pop since it's stack based)
	pMemOpType = ast.OrdChoice("mem_op_type", nil, pc.Atom("push", "PUSH"), pc.Atom("pop", "POP"))
	// Available memory segments (they act as registers and are used alongside the stack)
	pSegment = ast.OrdChoice("mem_segment", nil,
		pc.Atom("argument", "ARGUMENT"), pc.Atom("local", "LOCAL"),
		pc.Atom("static", "STATIC"), pc.Atom("constant", "CONSTANT"),
		pc.Atom("this", "THIS"), pc.Atom("that", "THAT"),
		pc.Atom("temp", "TEMP"), pc.Atom("pointer", "POINTER"),
	)

	// Available arithmetic operation types
	pArithOpType = ast.OrdChoice("operations", nil,
		// Comparison operations available on the VM bytecode
		pc.Atom("eq", "EQ"), pc.Atom("gt", "GT"), pc.Atom("lt", "LT"),
		// Arithmetic operations available on the VM bytecode
		pc.Atom("add", "ADD"), pc.Atom("sub", "SUB"), pc.Atom("neg", "NEG"),
		// Bit-a-bit operations available on the VM bytecode
		pc.Atom("not", "NOT"), pc.Atom("and", "AND"), pc.Atom("or", "OR"),
	)

	// Jump types can either be conditional (if-goto) or unconditional (goto).
	// NOTE: 'if-goto' must be tried first or the 'goto' Atom would match its suffix
	// and leave the 'if-' prefix dangling in the scanner.
	pJumpType = ast.OrdChoice("jump_type", nil, pc.Atom("if-goto", "IF-GOTO"), pc.Atom("goto", "GOTO"))
)

// ----------------------------------------------------------------------------
// Vm Parser

// This section defines the Parser for the Vm language.
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
// AST --> IR: This step is done by traversing the AST and extracting the operations
func (p *Parser) Parse() ([]Operation, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, diag.IOf(err, "cannot read from 'io.Reader'")
	}

	// A blank unit has nothing for the combinators to match on, and is a valid
	// (empty) module rather than a parse failure.
	if len(bytes.TrimSpace(content)) == 0 {
		return []Operation{}, nil
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
	root, _ := ast.Parsewith(pModule, pc.NewScanner(source))
	return root, root != nil
}

// This function takes the root node of the raw parsed AST and does a DFS on it parsing
// one by one each subtree and returning the operation list of a 'vm.Module' that can be
// used as in-memory and type-safe AST not dependent on the parsing library used.
func (p *Parser) FromAST(root pc.Queryable) ([]Operation, error) {
	operations := []Operation{}

	if root.GetName() != "module" {
		return nil, diag.Sourcef(0, "expected node 'module', found '%s'", root.GetName())
	}

	for _, child := range root.GetChildren() {
		var op Operation
		var err error

		switch child.GetName() {
		case "memory_op": // Memory operation subtree, appends 'vm.MemoryOp'
			op, err = p.HandleMemoryOp(child)
		case "arithmetic_op": // Arithmetic operation subtree, appends 'vm.ArithmeticOp'
			op, err = p.HandleArithmeticOp(child)
		case "label_decl": // Label declaration subtree, appends 'vm.LabelDecl'
			op, err = p.HandleLabelDecl(child)
		case "goto_op": // Goto operation subtree, appends 'vm.GotoOp'
			op, err = p.HandleGotoOp(child)
		case "func_decl": // Function declaration subtree, appends 'vm.FuncDecl'
			op, err = p.HandleFuncDecl(child)
		case "func_call": // Function call operation subtree, appends 'vm.FuncCallOp'
			op, err = p.HandleFuncCall(child)
		case "return_op": // Return operation subtree, appends 'vm.ReturnOp'
			op, err = p.HandleReturnOp(child)
		case "comment": // Comment nodes in the AST are just skipped
			continue
		default: // Error case, unrecognized subtree in the AST
			err = diag.Sourcef(p.lines.At(child.GetPosition()), "unrecognized node '%s'", child.GetName())
		}

		if err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}

	return operations, nil
}

// Specialized function to convert a "memory_op" node to a 'vm.MemoryOp'.
func (p *Parser) HandleMemoryOp(node pc.Queryable) (Operation, error) {
	line := p.lines.At(node.GetPosition())

	if node.GetName() != "memory_op" {
		return nil, diag.Sourcef(line, "expected node 'memory_op', got '%s'", node.GetName())
	}
	if len(node.GetChildren()) != 3 {
		return nil, diag.Sourcef(line, "expected node with 3 leaves, got %d", len(node.GetChildren()))
	}

	operation := OperationType(node.GetChildren()[0].GetValue())
	segment := SegmentType(node.GetChildren()[1].GetValue())
	offset, err := strconv.ParseUint(node.GetChildren()[2].GetValue(), 10, 16)
	if err != nil {
		return nil, diag.Sourcef(line, "malformed offset '%s' in memory operation", node.GetChildren()[2].GetValue())
	}

	return MemoryOp{Operation: operation, Segment: segment, Offset: uint16(offset), Line: line}, nil
}

// Specialized function to convert an "arithmetic_op" node to a 'vm.ArithmeticOp'.
func (p *Parser) HandleArithmeticOp(node pc.Queryable) (Operation, error) {
	line := p.lines.At(node.GetPosition())

	if node.GetName() != "arithmetic_op" {
		return nil, diag.Sourcef(line, "expected node 'arithmetic_op', got '%s'", node.GetName())
	}
	if len(node.GetChildren()) != 1 {
		return nil, diag.Sourcef(line, "expected node 'arithmetic_op' with 1 leaf, got %d", len(node.GetChildren()))
	}

	return ArithmeticOp{Operation: ArithOpType(node.GetChildren()[0].GetValue()), Line: line}, nil
}

// Specialized function to convert a "label_decl" node to a 'vm.LabelDecl'.
func (p *Parser) HandleLabelDecl(node pc.Queryable) (Operation, error) {
	line := p.lines.At(node.GetPosition())

	if node.GetName() != "label_decl" {
		return nil, diag.Sourcef(line, "expected node 'label_decl', got '%s'", node.GetName())
	}
	if len(node.GetChildren()) != 2 {
		return nil, diag.Sourcef(line, "expected node 'label_decl' with 2 leaves, got %d", len(node.GetChildren()))
	}

	return LabelDecl{Name: node.GetChildren()[1].GetValue(), Line: line}, nil
}

// Specialized function to convert a "goto_op" node to a 'vm.GotoOp'.
func (p *Parser) HandleGotoOp(node pc.Queryable) (Operation, error) {
	line := p.lines.At(node.GetPosition())

	if node.GetName() != "goto_op" {
		return nil, diag.Sourcef(line, "expected node 'goto_op', got '%s'", node.GetName())
	}
	if len(node.GetChildren()) != 2 {
		return nil, diag.Sourcef(line, "expected node 'goto_op' with 2 leaves, got %d", len(node.GetChildren()))
	}

	jump := JumpType(node.GetChildren()[0].GetValue())
	label := node.GetChildren()[1].GetValue()

	return GotoOp{Jump: jump, Label: label, Line: line}, nil
}

// Specialized function to convert a "func_decl" node to a 'vm.FuncDecl'.
func (p *Parser) HandleFuncDecl(node pc.Queryable) (Operation, error) {
	line := p.lines.At(node.GetPosition())

	if node.GetName() != "func_decl" {
		return nil, diag.Sourcef(line, "expected node 'func_decl', got '%s'", node.GetName())
	}
	if len(node.GetChildren()) != 3 {
		return nil, diag.Sourcef(line, "expected node 'func_decl' with 3 leaves, got %d", len(node.GetChildren()))
	}

	name := node.GetChildren()[1].GetValue()
	locals, err := strconv.ParseUint(node.GetChildren()[2].GetValue(), 10, 8)
	if err != nil {
		return nil, diag.Sourcef(line, "malformed locals count '%s' in function declaration", node.GetChildren()[2].GetValue())
	}

	return FuncDecl{Name: name, NLocal: uint8(locals), Line: line}, nil
}

// Specialized function to convert a "func_call" node to a 'vm.FuncCallOp'.
func (p *Parser) HandleFuncCall(node pc.Queryable) (Operation, error) {
	line := p.lines.At(node.GetPosition())

	if node.GetName() != "func_call" {
		return nil, diag.Sourcef(line, "expected node 'func_call', got '%s'", node.GetName())
	}
	if len(node.GetChildren()) != 3 {
		return nil, diag.Sourcef(line, "expected node 'func_call' with 3 leaves, got %d", len(node.GetChildren()))
	}

	name := node.GetChildren()[1].GetValue()
	args, err := strconv.ParseUint(node.GetChildren()[2].GetValue(), 10, 8)
	if err != nil {
		return nil, diag.Sourcef(line, "malformed args count '%s' in function call", node.GetChildren()[2].GetValue())
	}

	return FuncCallOp{Name: name, NArgs: uint8(args), Line: line}, nil
}

// Specialized function to convert a "return_op" node to a 'vm.ReturnOp'.
func (p *Parser) HandleReturnOp(node pc.Queryable) (Operation, error) {
	line := p.lines.At(node.GetPosition())

	if node.GetName() != "return_op" {
		return nil, diag.Sourcef(line, "expected node 'return_op', got '%s'", node.GetName())
	}

	return ReturnOp{Line: line}, nil
}
