package asm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hackc.dev/toolchain/pkg/asm"
	"hackc.dev/toolchain/pkg/hack"
)

func parse(t *testing.T, source string) asm.Program {
	t.Helper()
	parser := asm.NewParser(strings.NewReader(source))
	program, err := parser.Parse()
	require.NoError(t, err)
	return program
}

func TestParseStatements(t *testing.T) {
	source := `// This file computes 2+3
@2
D=A
@3
D=D+A
(END)
@END
0;JMP
`
	program := parse(t, source)
	require.Len(t, program, 7)

	require.Equal(t, asm.AInstruction{Location: "2", Line: 2}, program[0])
	require.Equal(t, asm.CInstruction{Dest: "D", Comp: "A", Line: 3}, program[1])
	require.Equal(t, asm.AInstruction{Location: "3", Line: 4}, program[2])
	require.Equal(t, asm.CInstruction{Dest: "D", Comp: "D+A", Line: 5}, program[3])
	require.Equal(t, asm.LabelDecl{Name: "END", Line: 6}, program[4])
	require.Equal(t, asm.AInstruction{Location: "END", Line: 7}, program[5])
	require.Equal(t, asm.CInstruction{Comp: "0", Jump: "JMP", Line: 8}, program[6])
}

func TestParseCInstructionForms(t *testing.T) {
	// All four presence combinations of dest and jump around the mandatory comp
	program := parse(t, "M=D+1\nD;JGT\nAM=M-1\nD=D-1;JNE\n")
	require.Len(t, program, 4)

	require.Equal(t, asm.CInstruction{Dest: "M", Comp: "D+1", Line: 1}, program[0])
	require.Equal(t, asm.CInstruction{Comp: "D", Jump: "JGT", Line: 2}, program[1])
	require.Equal(t, asm.CInstruction{Dest: "AM", Comp: "M-1", Line: 3}, program[2])
	require.Equal(t, asm.CInstruction{Dest: "D", Comp: "D-1", Jump: "JNE", Line: 4}, program[3])
}

func TestParseComments(t *testing.T) {
	// Comments, whether full-line or trailing, never reach the statement list
	program := parse(t, "// leading comment\n@7 // trailing comment\n// closing comment\n")
	require.Len(t, program, 1)
	require.Equal(t, "7", program[0].(asm.AInstruction).Location)
}

func TestParseEmpty(t *testing.T) {
	// An empty unit (or one made only of comments) yields an empty program
	require.Empty(t, parse(t, ""))
	require.Empty(t, parse(t, "// nothing to see here\n"))
}

func TestAssemblerPipeline(t *testing.T) {
	// End-to-end: parse -> label scan -> binary encoding
	assemble := func(t *testing.T, source string) []string {
		t.Helper()
		program := parse(t, source)

		lowerer := asm.NewLowerer(program)
		lowered, table, err := lowerer.Lower()
		require.NoError(t, err)

		codegen := hack.NewCodeGenerator(lowered, table)
		words, err := codegen.Generate()
		require.NoError(t, err)
		return words
	}

	t.Run("Add two constants", func(t *testing.T) {
		words := assemble(t, "@2\nD=A\n@3\nD=D+A\n@0\nM=D\n")
		require.Equal(t, []string{
			"0000000000000010",
			"1110110000010000",
			"0000000000000011",
			"1110000010010000",
			"0000000000000000",
			"1110001100001000",
		}, words)
	})

	t.Run("Leading label loop", func(t *testing.T) {
		words := assemble(t, "(LOOP)\n@LOOP\n0;JMP\n")
		require.Equal(t, []string{
			"0000000000000000",
			"1110101010000111",
		}, words)
	})

	t.Run("Symbols and variables", func(t *testing.T) {
		words := assemble(t, "@i\nM=1\n@sum\nM=0\n(LOOP)\n@i\nD=M\n@LOOP\n0;JMP\n")
		require.Equal(t, []string{
			"0000000000010000", // @i   -> variable slot 16
			"1110111111001000",
			"0000000000010001", // @sum -> variable slot 17
			"1110101010001000",
			"0000000000010000", // @i   -> same slot on re-reference
			"1111110000010000",
			"0000000000000100", // @LOOP -> ROM address 4
			"1110101010000111",
		}, words)
	})

	t.Run("Output line count matches real instructions", func(t *testing.T) {
		// Comments, blanks and label declarations emit nothing
		words := assemble(t, "// header\n(START)\n@1\n\n\nD=A // trailing\n(END)\n")
		require.Len(t, words, 2)
	})

	t.Run("Empty unit yields empty binary", func(t *testing.T) {
		require.Empty(t, assemble(t, ""))
	})
}
