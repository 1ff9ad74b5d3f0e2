package vm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hackc.dev/toolchain/pkg/asm"
	"hackc.dev/toolchain/pkg/vm"
)

// translate lowers the given program (without bootstrap) and renders the result to
// its final textual form, one line per statement.
func translate(t *testing.T, program vm.Program) []string {
	t.Helper()

	lowerer := vm.NewLowerer(program, false)
	lowered, err := lowerer.Lower()
	require.NoError(t, err)

	codegen := asm.NewCodeGenerator(lowered)
	lines, err := codegen.Generate()
	require.NoError(t, err)
	return lines
}

func module(name string, operations ...vm.Operation) vm.Program {
	return vm.Program{{Name: name, Operations: operations}}
}

var epilogue = []string{"(INFINITE_LOOP)", "\t@INFINITE_LOOP", "\t0;JMP"}

func TestLowerPushConstant(t *testing.T) {
	lines := translate(t, module("Test",
		vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 7},
	))

	require.Equal(t, append([]string{
		"// push constant 7",
		"\t@7",
		"\tD=A",
		"\t@SP",
		"\tA=M",
		"\tM=D",
		"\t@SP",
		"\tM=M+1",
	}, epilogue...), lines)
}

func TestLowerIndirectSegments(t *testing.T) {
	t.Run("Push local", func(t *testing.T) {
		lines := translate(t, module("Test",
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Local, Offset: 3},
		))

		require.Equal(t, []string{
			"// push local 3",
			"\t@LCL",
			"\tD=M",
			"\t@3",
			"\tA=D+A",
			"\tD=M",
			"\t@SP",
			"\tA=M",
			"\tM=D",
			"\t@SP",
			"\tM=M+1",
		}, lines[:11])
	})

	t.Run("Pop argument", func(t *testing.T) {
		lines := translate(t, module("Test",
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Argument, Offset: 2},
		))

		// The resolved target address is parked in R13 while the stack top is fetched
		require.Equal(t, []string{
			"// pop argument 2",
			"\t@ARG",
			"\tD=M",
			"\t@2",
			"\tA=D+A",
			"\tD=A",
			"\t@R13",
			"\tM=D",
			"\t@SP",
			"\tAM=M-1",
			"\tD=M",
			"\t@R13",
			"\tA=M",
			"\tM=D",
		}, lines[:14])
	})
}

func TestLowerDirectSegments(t *testing.T) {
	t.Run("Temp addresses RAM 5-12", func(t *testing.T) {
		lines := translate(t, module("Test",
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Temp, Offset: 6},
		))
		require.Equal(t, "\t@11", lines[1])
	})

	t.Run("Pointer selects THIS and THAT", func(t *testing.T) {
		lines := translate(t, module("Test",
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 1},
		))
		require.Contains(t, lines, "\t@THIS")
		require.Contains(t, lines, "\t@THAT")
	})
}

func TestLowerStaticNaming(t *testing.T) {
	// Static references are named after the module stem, in both directions
	lines := translate(t, vm.Program{{Name: "Foo", Operations: []vm.Operation{
		vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 3},
		vm.MemoryOp{Operation: vm.Pop, Segment: vm.Static, Offset: 3},
	}}})

	references := 0
	for _, line := range lines {
		if line == "\t@Foo.3" {
			references++
		}
	}
	require.Equal(t, 2, references)
}

func TestLowerStaticPerModule(t *testing.T) {
	// Two modules referencing 'static 0' must not share a symbol
	lines := translate(t, vm.Program{
		{Name: "Foo", Operations: []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}}},
		{Name: "Bar", Operations: []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}}},
	})

	require.Contains(t, lines, "\t@Foo.0")
	require.Contains(t, lines, "\t@Bar.0")
}

func TestLowerMemoryOpErrors(t *testing.T) {
	fails := func(op vm.MemoryOp) {
		t.Helper()
		lowerer := vm.NewLowerer(module("Test", op), false)
		_, err := lowerer.Lower()
		require.Error(t, err)
	}

	fails(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Constant, Offset: 0}) // pop constant
	fails(vm.MemoryOp{Operation: vm.Push, Segment: vm.Temp, Offset: 8})    // temp out of range
	fails(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Temp, Offset: 9})
	fails(vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 2}) // pointer out of range
	fails(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 2})
}

func TestLowerBinaryOps(t *testing.T) {
	expected := map[vm.ArithOpType]string{
		vm.Add: "\tM=D+M",
		vm.Sub: "\tM=D-M",
		vm.And: "\tM=D&M",
		vm.Or:  "\tM=D|M",
	}

	for operation, combine := range expected {
		lines := translate(t, module("Test", vm.ArithmeticOp{Operation: operation}))
		require.Equal(t, append([]string{
			"// " + string(operation),
			"\t@SP",
			"\tAM=M-1",
			"\tD=M",
			"\tA=A-1",
			combine,
		}, epilogue...), lines)
	}
}

func TestLowerUnaryOps(t *testing.T) {
	// Unary operations rewrite the stack top in place, SP never moves
	lines := translate(t, module("Test", vm.ArithmeticOp{Operation: vm.Neg}))
	require.Equal(t, []string{"// neg", "\t@SP", "\tA=M-1", "\tM=-M"}, lines[:4])

	lines = translate(t, module("Test", vm.ArithmeticOp{Operation: vm.Not}))
	require.Equal(t, []string{"// not", "\t@SP", "\tA=M-1", "\tM=!M"}, lines[:4])
}

func TestLowerComparisons(t *testing.T) {
	lines := translate(t, module("Test", vm.ArithmeticOp{Operation: vm.Eq}))

	require.Equal(t, append([]string{
		"// eq",
		"\t@SP",
		"\tAM=M-1",
		"\tD=M",
		"\tA=A-1",
		"\tD=M-D",
		"\t@TRUE.0",
		"\tD;JEQ",
		"\t@SP",
		"\tA=M-1",
		"\tM=0",
		"\t@CONTINUE.0",
		"\t0;JMP",
		"(TRUE.0)",
		"\t@SP",
		"\tA=M-1",
		"\tM=-1",
		"(CONTINUE.0)",
	}, epilogue...), lines)

	// gt and lt only differ in the jump condition
	lines = translate(t, module("Test", vm.ArithmeticOp{Operation: vm.Gt}))
	require.Contains(t, lines, "\tD;JGT")
	lines = translate(t, module("Test", vm.ArithmeticOp{Operation: vm.Lt}))
	require.Contains(t, lines, "\tD;JLT")
}

func TestLowerUniqueLabels(t *testing.T) {
	// Every comparison mints a fresh label pair, unique across the whole program
	// even when the operations live in different translation units.
	lines := translate(t, vm.Program{
		{Name: "Foo", Operations: []vm.Operation{
			vm.ArithmeticOp{Operation: vm.Eq},
			vm.ArithmeticOp{Operation: vm.Gt},
		}},
		{Name: "Bar", Operations: []vm.Operation{
			vm.ArithmeticOp{Operation: vm.Lt},
		}},
	})

	declared := map[string]int{}
	for _, line := range lines {
		if strings.HasPrefix(line, "(TRUE.") || strings.HasPrefix(line, "(CONTINUE.") {
			declared[line]++
		}
	}

	require.Len(t, declared, 6) // 3 comparisons x 2 labels, all distinct
	for label, count := range declared {
		require.Equal(t, 1, count, "label '%s' declared more than once", label)
	}
}

func TestLowerBranching(t *testing.T) {
	lines := translate(t, module("Foo",
		vm.LabelDecl{Name: "LOOP"},
		vm.GotoOp{Jump: vm.Conditional, Label: "LOOP"},
		vm.GotoOp{Jump: vm.Unconditional, Label: "LOOP"},
	))

	require.Equal(t, append([]string{
		// Outside any function the label scope defaults to the module stem
		"// label LOOP",
		"(Foo$LOOP)",
		"// if-goto LOOP",
		"\t@SP",
		"\tAM=M-1",
		"\tD=M",
		"\t@Foo$LOOP",
		"\tD;JNE",
		"// goto LOOP",
		"\t@Foo$LOOP",
		"\t0;JMP",
	}, epilogue...), lines)
}

func TestLowerFunctionScopedLabels(t *testing.T) {
	lines := translate(t, module("Foo",
		vm.FuncDecl{Name: "Foo.bar", NLocal: 0},
		vm.LabelDecl{Name: "WHILE"},
		vm.GotoOp{Jump: vm.Unconditional, Label: "WHILE"},
	))

	require.Contains(t, lines, "(Foo.bar$WHILE)")
	require.Contains(t, lines, "\t@Foo.bar$WHILE")
}

func TestLowerFunctionDecl(t *testing.T) {
	lines := translate(t, module("Foo", vm.FuncDecl{Name: "Foo.bar", NLocal: 2}))

	require.Equal(t, append([]string{
		"// function Foo.bar 2",
		"(Foo.bar)",
		// Two zero-initialized locals pushed on the stack
		"\t@0",
		"\tD=A",
		"\t@SP",
		"\tA=M",
		"\tM=D",
		"\t@SP",
		"\tM=M+1",
		"\t@0",
		"\tD=A",
		"\t@SP",
		"\tA=M",
		"\tM=D",
		"\t@SP",
		"\tM=M+1",
	}, epilogue...), lines)
}

func TestLowerFunctionCall(t *testing.T) {
	lines := translate(t, module("Foo", vm.FuncCallOp{Name: "Math.max", NArgs: 2}))

	// The frame is saved, ARG repositioned below the pushed arguments and the
	// minted return label declared right after the jump.
	require.Equal(t, "// call Math.max 2", lines[0])
	require.Equal(t, "\t@RET.0", lines[1])
	require.Contains(t, lines, "\t@LCL")
	require.Contains(t, lines, "\t@7") // nArgs + 5
	require.Contains(t, lines, "\t@Math.max")
	require.Contains(t, lines, "(RET.0)")

	// The landing label must come right after the transfer of control
	jump := -1
	for i, line := range lines {
		if line == "\t@Math.max" {
			jump = i
		}
	}
	require.Equal(t, "\t0;JMP", lines[jump+1])
	require.Equal(t, "(RET.0)", lines[jump+2])
}

func TestLowerReturn(t *testing.T) {
	lines := translate(t, module("Foo", vm.ReturnOp{}))

	// Frame end parked in R13, return address in R14, pointers restored in
	// THAT, THIS, ARG, LCL order
	require.Equal(t, []string{
		"// return",
		"\t@LCL",
		"\tD=M",
		"\t@R13",
		"\tM=D",
		"\t@5",
		"\tA=D-A",
		"\tD=M",
		"\t@R14",
		"\tM=D",
	}, lines[:10])

	require.Contains(t, lines, "\t@THAT")
	require.Contains(t, lines, "\t@THIS")
	require.Equal(t, append([]string{"\t@R14", "\tA=M", "\t0;JMP"}, epilogue...), lines[len(lines)-6:])
}

func TestLowerBootstrap(t *testing.T) {
	lowerer := vm.NewLowerer(vm.Program{}, true)
	lowered, err := lowerer.Lower()
	require.NoError(t, err)

	codegen := asm.NewCodeGenerator(lowered)
	lines, err := codegen.Generate()
	require.NoError(t, err)

	// SP at its base location, then a regular call frame into Sys.init
	require.Equal(t, []string{"// bootstrap", "\t@256", "\tD=A", "\t@SP", "\tM=D", "\t@RET.0"}, lines[:6])
	require.Contains(t, lines, "\t@Sys.init")
	require.Contains(t, lines, "(RET.0)")
}

func TestLowerEmptyProgram(t *testing.T) {
	// An empty unit still gets the terminal infinite loop
	require.Equal(t, epilogue, translate(t, vm.Program{{Name: "Empty"}}))
	require.Equal(t, epilogue, translate(t, vm.Program{}))
}

func TestLowerDeterminism(t *testing.T) {
	program := vm.Program{
		{Name: "Foo", Operations: []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 1},
			vm.ArithmeticOp{Operation: vm.Eq},
			vm.FuncCallOp{Name: "Foo.bar", NArgs: 0},
		}},
		{Name: "Bar", Operations: []vm.Operation{
			vm.ArithmeticOp{Operation: vm.Lt},
		}},
	}

	// Translating the same program twice with fresh lowerers yields identical text
	first := translate(t, program)
	second := translate(t, program)
	require.Equal(t, first, second)
}
