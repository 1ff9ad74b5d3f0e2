package vm

import (
	"fmt"

	"hackc.dev/toolchain/pkg/asm"
	"hackc.dev/toolchain/pkg/diag"
)

// ----------------------------------------------------------------------------
// Assembly fragments

// This section holds the small reusable building blocks of the lowering phase.
//
// Almost every VM operation ends or starts by moving a value between the D register
// and the top of the stack, so the two fragments below show up in nearly all of the
// specialized handlers.

// pushD appends the value of the D register on top of the stack and bumps SP.
func pushD() []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

// popD removes the value on top of the stack and leaves it in the D register.
func popD() []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

// segmentBase maps the indirect segments to the predefined register holding their base.
var segmentBase = map[SegmentType]string{
	Local:    "LCL",
	Argument: "ARG",
	This:     "THIS",
	That:     "THAT",
}

// binaryComp maps the binary arithmetic/logic operations to the 'comp' mnemonic that
// combines the popped top (D) with the new top of the stack (M) in place.
var binaryComp = map[ArithOpType]string{
	Add: "D+M",
	Sub: "D-M",
	And: "D&M",
	Or:  "D|M",
}

// comparisonJump maps the comparison operations to the jump mnemonic taken on
// 'D = second - top'.
var comparisonJump = map[ArithOpType]string{
	Eq: "JEQ",
	Gt: "JGT",
	Lt: "JLT",
}

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' and produces its 'asm.Program' counterpart.
//
// This is the stateful half of the VM translator: besides the per-operation assembly
// templates it owns the mutable context that gives the generated code its names.
// The label counter is shared by every module of the program, so the minted
// 'TRUE.<id>'/'CONTINUE.<id>'/'RET.<id>' labels are unique across the whole output
// even when several translation units are concatenated. The module stem scopes static
// variables, the current function scopes user labels.
type Lowerer struct {
	program   Program
	codegen   CodeGenerator // Renders each operation back to text for the echo comments
	bootstrap bool          // Whether to prepend the SP init + Sys.init call preamble

	counter  uint   // Monotonic id for minted labels, never reset between modules
	module   string // Stem of the unit being lowered, names its statics
	function string // Current function context, scopes label/goto/if-goto
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// With 'bootstrap' enabled the generated program starts by setting SP to 256 and
// transferring control to Sys.init through a regular call frame.
func NewLowerer(p Program, bootstrap bool) *Lowerer {
	return &Lowerer{program: p, codegen: NewCodeGenerator(p), bootstrap: bootstrap}
}

// nextLabelID mints a fresh id for generated jump labels. Monotonic for the whole
// lifetime of the Lowerer: uniqueness must hold across translation units.
func (l *Lowerer) nextLabelID() uint {
	id := l.counter
	l.counter++
	return id
}

// scopedLabel qualifies a user label with the current function context. Before any
// 'function' declaration the context is the module stem itself.
func (l *Lowerer) scopedLabel(name string) string {
	return fmt.Sprintf("%s$%s", l.function, name)
}

// Triggers the lowering process. It iterates over each module (in program order) and
// over each operation within, appending first an echoing comment with the operation's
// canonical text and then the operation's assembly fragment. The whole program is
// terminated by an unconditional infinite loop so that execution never runs off the
// end of the ROM.
func (l *Lowerer) Lower() (asm.Program, error) {
	program := asm.Program{}

	if l.bootstrap {
		program = append(program, l.handleBootstrap()...)
	}

	for _, module := range l.program {
		// Each unit resets the naming context: statics belong to the unit and labels
		// outside any function are scoped by the unit stem.
		l.module, l.function = module.Name, module.Name

		for _, operation := range module.Operations {
			echo, err := l.codegen.GenerateOperation(operation)
			if err != nil {
				return nil, err
			}
			program = append(program, asm.Comment{Text: echo})

			fragment, err := l.handleOperation(operation)
			if err != nil {
				return nil, err
			}
			program = append(program, fragment...)
		}
	}

	return append(program, l.handleEpilogue()...), nil
}

// Dispatches a single operation to its specialized handler.
func (l *Lowerer) handleOperation(operation Operation) ([]asm.Statement, error) {
	switch tOperation := operation.(type) {
	case MemoryOp:
		return l.handleMemoryOp(tOperation)
	case ArithmeticOp:
		return l.handleArithmeticOp(tOperation)
	case LabelDecl:
		return l.handleLabelDecl(tOperation)
	case GotoOp:
		return l.handleGotoOp(tOperation)
	case FuncDecl:
		return l.handleFuncDecl(tOperation)
	case FuncCallOp:
		return l.handleFuncCall(tOperation)
	case ReturnOp:
		return l.handleReturn(tOperation)
	default:
		return nil, diag.Sourcef(0, "unrecognized operation '%T'", operation)
	}
}

// Specialized function to convert a "push"/"pop" operation to its assembly fragment.
//
// Indirect segments (local, argument, this, that) resolve 'base + offset' at runtime;
// for pops the resolved address is parked in R13 while the stack top is fetched.
// Direct segments (temp, pointer) address a fixed RAM window and statics become
// '<stem>.<offset>' symbols left for the assembler to allocate.
func (l *Lowerer) handleMemoryOp(op MemoryOp) ([]asm.Statement, error) {
	if op.Operation == Push {
		source, err := l.readSegment(op)
		if err != nil {
			return nil, err
		}
		return append(source, pushD()...), nil
	}

	if op.Operation == Pop {
		return l.writeSegment(op)
	}

	return nil, diag.Sourcef(op.Line, "unrecognized memory operation '%s'", op.Operation)
}

// readSegment emits the statements that leave the value of segment[offset] in D.
func (l *Lowerer) readSegment(op MemoryOp) ([]asm.Statement, error) {
	switch op.Segment {
	case Constant:
		return []asm.Statement{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, nil

	case Local, Argument, This, That:
		return []asm.Statement{
			asm.AInstruction{Location: segmentBase[op.Segment]},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "A", Comp: "D+A"},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Temp:
		if op.Offset > 7 {
			return nil, diag.Sourcef(op.Line, "invalid 'temp' offset, got %d", op.Offset)
		}
		return []asm.Statement{
			asm.AInstruction{Location: fmt.Sprint(5 + op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Pointer:
		register, err := pointerRegister(op)
		if err != nil {
			return nil, err
		}
		return []asm.Statement{
			asm.AInstruction{Location: register},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Static:
		return []asm.Statement{
			asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.module, op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil
	}

	return nil, diag.Sourcef(op.Line, "unrecognized segment '%s'", op.Segment)
}

// writeSegment emits the statements that pop the stack top into segment[offset].
func (l *Lowerer) writeSegment(op MemoryOp) ([]asm.Statement, error) {
	switch op.Segment {
	case Constant:
		return nil, diag.Sourcef(op.Line, "cannot pop into the read-only 'constant' segment")

	case Local, Argument, This, That:
		// The resolved target address is parked in R13 because both A and D are
		// needed to fetch the stack top afterwards.
		fragment := []asm.Statement{
			asm.AInstruction{Location: segmentBase[op.Segment]},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "A", Comp: "D+A"},
			asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}
		fragment = append(fragment, popD()...)
		return append(fragment,
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Temp:
		if op.Offset > 7 {
			return nil, diag.Sourcef(op.Line, "invalid 'temp' offset, got %d", op.Offset)
		}
		return append(popD(),
			asm.AInstruction{Location: fmt.Sprint(5 + op.Offset)},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Pointer:
		register, err := pointerRegister(op)
		if err != nil {
			return nil, err
		}
		return append(popD(),
			asm.AInstruction{Location: register},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Static:
		return append(popD(),
			asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.module, op.Offset)},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil
	}

	return nil, diag.Sourcef(op.Line, "unrecognized segment '%s'", op.Segment)
}

// pointerRegister resolves the two slots of the 'pointer' segment to THIS and THAT.
func pointerRegister(op MemoryOp) (string, error) {
	switch op.Offset {
	case 0:
		return "THIS", nil
	case 1:
		return "THAT", nil
	default:
		return "", diag.Sourcef(op.Line, "invalid 'pointer' offset, got %d", op.Offset)
	}
}

// Specialized function to convert an arithmetic/logic operation to its fragment.
//
// Binary operations pop the top into D, then combine it with the new top in place.
// Unary operations rewrite the top of the stack without moving SP at all.
// Comparisons subtract the top from the runner-up and branch to a freshly minted
// 'TRUE.<id>' label to materialize the canonical true (-1) / false (0) values,
// reconverging at 'CONTINUE.<id>'.
func (l *Lowerer) handleArithmeticOp(op ArithmeticOp) ([]asm.Statement, error) {
	if comp, found := binaryComp[op.Operation]; found {
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.CInstruction{Dest: "A", Comp: "A-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil
	}

	if op.Operation == Neg || op.Operation == Not {
		comp := "-M"
		if op.Operation == Not {
			comp = "!M"
		}
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil
	}

	if jump, found := comparisonJump[op.Operation]; found {
		id := l.nextLabelID()
		trueLabel := fmt.Sprintf("TRUE.%d", id)
		continueLabel := fmt.Sprintf("CONTINUE.%d", id)

		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.CInstruction{Dest: "A", Comp: "A-1"},
			asm.CInstruction{Dest: "D", Comp: "M-D"},
			asm.AInstruction{Location: trueLabel},
			asm.CInstruction{Comp: "D", Jump: jump},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "0"},
			asm.AInstruction{Location: continueLabel},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
			asm.LabelDecl{Name: trueLabel},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "-1"},
			asm.LabelDecl{Name: continueLabel},
		}, nil
	}

	return nil, diag.Sourcef(op.Line, "unrecognized arithmetic operation '%s'", op.Operation)
}

// Specialized function to convert a 'label' declaration to its fragment.
func (l *Lowerer) handleLabelDecl(op LabelDecl) ([]asm.Statement, error) {
	if op.Name == "" {
		return nil, diag.Sourcef(op.Line, "empty label declaration")
	}

	return []asm.Statement{asm.LabelDecl{Name: l.scopedLabel(op.Name)}}, nil
}

// Specialized function to convert a 'goto'/'if-goto' operation to its fragment.
func (l *Lowerer) handleGotoOp(op GotoOp) ([]asm.Statement, error) {
	if op.Label == "" {
		return nil, diag.Sourcef(op.Line, "empty jump label")
	}

	if op.Jump == Unconditional {
		return []asm.Statement{
			asm.AInstruction{Location: l.scopedLabel(op.Label)},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}, nil
	}

	// 'if-goto' pops the condition and jumps whenever it is non-zero
	return append(popD(),
		asm.AInstruction{Location: l.scopedLabel(op.Label)},
		asm.CInstruction{Comp: "D", Jump: "JNE"},
	), nil
}

// Specialized function to convert a 'function' declaration to its fragment.
//
// Declares the entry label and reserves the local segment by pushing one zero per
// declared local. Also flips the label-scoping context to the new function.
func (l *Lowerer) handleFuncDecl(op FuncDecl) ([]asm.Statement, error) {
	if op.Name == "" {
		return nil, diag.Sourcef(op.Line, "empty function declaration")
	}

	l.function = op.Name
	fragment := []asm.Statement{asm.LabelDecl{Name: op.Name}}

	for local := uint8(0); local < op.NLocal; local++ {
		fragment = append(fragment,
			asm.AInstruction{Location: "0"},
			asm.CInstruction{Dest: "D", Comp: "A"},
		)
		fragment = append(fragment, pushD()...)
	}

	return fragment, nil
}

// Specialized function to convert a 'call' operation to its fragment.
//
// Saves the caller frame (return address, LCL, ARG, THIS, THAT), repositions ARG to
// the first pushed argument ('SP - nArgs - 5'), rebases LCL and transfers control.
// The return address label is minted from the shared counter.
func (l *Lowerer) handleFuncCall(op FuncCallOp) ([]asm.Statement, error) {
	if op.Name == "" {
		return nil, diag.Sourcef(op.Line, "empty function call")
	}

	returnLabel := fmt.Sprintf("RET.%d", l.nextLabelID())

	fragment := []asm.Statement{
		asm.AInstruction{Location: returnLabel},
		asm.CInstruction{Dest: "D", Comp: "A"},
	}
	fragment = append(fragment, pushD()...)

	for _, register := range []string{"LCL", "ARG", "THIS", "THAT"} {
		fragment = append(fragment,
			asm.AInstruction{Location: register},
			asm.CInstruction{Dest: "D", Comp: "M"},
		)
		fragment = append(fragment, pushD()...)
	}

	return append(fragment,
		// ARG = SP - nArgs - 5
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(uint16(op.NArgs) + 5)},
		asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// LCL = SP
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// Transfer control and declare the landing site
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: returnLabel},
	), nil
}

// Specialized function to convert a 'return' operation to its fragment.
//
// R13 holds the frame end while it is torn down, R14 the return address: the latter
// must be saved before the return value overwrites *ARG, which may alias the slot
// holding it when the callee took no arguments.
func (l *Lowerer) handleReturn(ReturnOp) ([]asm.Statement, error) {
	fragment := []asm.Statement{
		// R13 = LCL (the end of the caller's saved frame)
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// R14 = *(R13 - 5) (the saved return address)
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	// *ARG = pop() (the return value lands where the caller expects the result)
	fragment = append(fragment, popD()...)
	fragment = append(fragment,
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// SP = ARG + 1
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)

	// Restore THAT, THIS, ARG, LCL from the saved frame, walking R13 down
	for _, register := range []string{"THAT", "THIS", "ARG", "LCL"} {
		fragment = append(fragment,
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: register},
			asm.CInstruction{Dest: "M", Comp: "D"},
		)
	}

	return append(fragment,
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	), nil
}

// handleBootstrap emits the program preamble: SP at its base location and a regular
// call frame into Sys.init (which is expected never to return).
func (l *Lowerer) handleBootstrap() []asm.Statement {
	preamble := []asm.Statement{
		asm.Comment{Text: "bootstrap"},
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	call, _ := l.handleFuncCall(FuncCallOp{Name: "Sys.init"})
	return append(preamble, call...)
}

// handleEpilogue emits the terminal infinite loop every translated program ends with.
func (l *Lowerer) handleEpilogue() []asm.Statement {
	return []asm.Statement{
		asm.LabelDecl{Name: "INFINITE_LOOP"},
		asm.AInstruction{Location: "INFINITE_LOOP"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}
}
