package vm

import (
	"fmt"

	"hackc.dev/toolchain/pkg/diag"
)

// ----------------------------------------------------------------------------
// Code Generator

// Takes a 'vm.Program' and spits out its canonical source text counterpart.
//
// The translation can be done without any additional data structure but the program.
// Besides round-tripping modules back to '.vm' text, the per-operation helpers are
// what the Lowerer uses to echo each operation as a '// ...' comment right above its
// assembly fragment.
type CodeGenerator struct {
	program Program // The set of modules to convert in VM text format
}

// Initializes and returns to the caller a brand new 'CodeGenerator' struct.
func NewCodeGenerator(p Program) CodeGenerator {
	return CodeGenerator{program: p}
}

// Translates each operation in the 'program' to the VM string format, module by module.
//
// Each operation will pass through the following steps: evaluation, validation and then
// conversion to its string representation so that it can be further elaborated by the
// function caller (e.g. dumping .vm code to a file, echo comments, ...).
func (cg *CodeGenerator) Generate() (map[string][]string, error) {
	vm := map[string][]string{}

	for _, module := range cg.program {
		for _, operation := range module.Operations {
			generated, err := cg.GenerateOperation(operation)
			if err != nil {
				return nil, err
			}
			vm[module.Name] = append(vm[module.Name], generated)
		}
	}

	return vm, nil
}

// Dispatches a single operation to its specialized Generate function.
func (cg *CodeGenerator) GenerateOperation(operation Operation) (string, error) {
	switch tOperation := operation.(type) {
	case MemoryOp:
		return cg.GenerateMemoryOp(tOperation)
	case ArithmeticOp:
		return cg.GenerateArithmeticOp(tOperation)
	case LabelDecl:
		return cg.GenerateLabelDecl(tOperation)
	case GotoOp:
		return cg.GenerateGotoOp(tOperation)
	case FuncDecl:
		return cg.GenerateFuncDecl(tOperation)
	case FuncCallOp:
		return cg.GenerateFuncCallOp(tOperation)
	case ReturnOp:
		return cg.GenerateReturnOp(tOperation)
	default:
		return "", diag.Sourcef(0, "unrecognized operation '%T'", operation)
	}
}

// Specialized function to convert a 'MemoryOp' operation to the VM format.
func (cg *CodeGenerator) GenerateMemoryOp(op MemoryOp) (string, error) {
	// Bound checking on segments that do have an upperbound to the allowed offsets
	if op.Segment == Pointer && op.Offset > 1 {
		return "", diag.Sourcef(op.Line, "invalid 'pointer' offset, got %d", op.Offset)
	}
	if op.Segment == Temp && op.Offset > 7 {
		return "", diag.Sourcef(op.Line, "invalid 'temp' offset, got %d", op.Offset)
	}

	return fmt.Sprintf("%s %s %d", string(op.Operation), string(op.Segment), op.Offset), nil
}

// Specialized function to convert an 'ArithmeticOp' operation to the VM format.
func (cg *CodeGenerator) GenerateArithmeticOp(op ArithmeticOp) (string, error) {
	return string(op.Operation), nil
}

// Specialized function to convert a 'LabelDecl' operation to the VM format.
func (cg *CodeGenerator) GenerateLabelDecl(op LabelDecl) (string, error) {
	if op.Name == "" {
		return "", diag.Sourcef(op.Line, "unable to produce empty label declaration")
	}

	return fmt.Sprintf("label %s", op.Name), nil
}

// Specialized function to convert a 'GotoOp' operation to the VM format.
func (cg *CodeGenerator) GenerateGotoOp(op GotoOp) (string, error) {
	if op.Label == "" {
		return "", diag.Sourcef(op.Line, "unable to produce empty jump label")
	}

	return fmt.Sprintf("%s %s", string(op.Jump), op.Label), nil
}

// Specialized function to convert a 'FuncDecl' operation to the VM format.
func (cg *CodeGenerator) GenerateFuncDecl(op FuncDecl) (string, error) {
	if op.Name == "" {
		return "", diag.Sourcef(op.Line, "unable to produce empty function declaration")
	}

	return fmt.Sprintf("function %s %d", op.Name, op.NLocal), nil
}

// Specialized function to convert a 'FuncCallOp' operation to the VM format.
func (cg *CodeGenerator) GenerateFuncCallOp(op FuncCallOp) (string, error) {
	if op.Name == "" {
		return "", diag.Sourcef(op.Line, "unable to produce empty function call")
	}

	return fmt.Sprintf("call %s %d", op.Name, op.NArgs), nil
}

// Specialized function to convert a 'ReturnOp' operation to the VM format.
func (cg *CodeGenerator) GenerateReturnOp(op ReturnOp) (string, error) {
	return "return", nil
}
