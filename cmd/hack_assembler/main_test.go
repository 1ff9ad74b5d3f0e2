package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHandlerAssembles(t *testing.T) {
	dir := t.TempDir()

	test := func(name, source, expected string) {
		t.Helper()
		input := write(t, dir, name, source)

		status := Handler([]string{input}, map[string]string{})
		require.Equal(t, 0, status)

		output := filepath.Join(dir, name[:len(name)-len(".asm")]+".hack")
		content, err := os.ReadFile(output)
		require.NoError(t, err)
		require.Equal(t, expected, string(content))
	}

	t.Run("Add two constants", func(t *testing.T) {
		test("Add.asm",
			"@2\nD=A\n@3\nD=D+A\n@0\nM=D\n",
			"0000000000000010\n"+
				"1110110000010000\n"+
				"0000000000000011\n"+
				"1110000010010000\n"+
				"0000000000000000\n"+
				"1110001100001000\n")
	})

	t.Run("Labels emit no words", func(t *testing.T) {
		test("Loop.asm",
			"(LOOP)\n@LOOP\n0;JMP\n",
			"0000000000000000\n1110101010000111\n")
	})

	t.Run("Empty file produces empty binary", func(t *testing.T) {
		test("Empty.asm", "", "")
	})
}

func TestHandlerExplicitOutput(t *testing.T) {
	dir := t.TempDir()
	input := write(t, dir, "Prog.asm", "@42\n")
	output := filepath.Join(dir, "custom.hack")

	status := Handler([]string{input}, map[string]string{"output": output})
	require.Equal(t, 0, status)

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, "0000000000101010\n", string(content))
}

func TestHandlerExitCodes(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing argument is a usage error", func(t *testing.T) {
		require.Equal(t, 1, Handler([]string{}, map[string]string{}))
	})

	t.Run("Wrong extension is a usage error", func(t *testing.T) {
		input := write(t, dir, "Prog.hack", "@1\n")
		require.Equal(t, 1, Handler([]string{input}, map[string]string{}))
	})

	t.Run("Unreadable input is an I/O error", func(t *testing.T) {
		missing := filepath.Join(dir, "Missing.asm")
		require.Equal(t, 2, Handler([]string{missing}, map[string]string{}))
	})

	t.Run("Address overflow is a source error", func(t *testing.T) {
		input := write(t, dir, "Overflow.asm", "@32768\n")
		require.Equal(t, 3, Handler([]string{input}, map[string]string{}))
	})

	t.Run("Duplicate label is a source error", func(t *testing.T) {
		input := write(t, dir, "Duplicate.asm", "(LOOP)\n@1\n(LOOP)\n")
		require.Equal(t, 3, Handler([]string{input}, map[string]string{}))
	})
}
