package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/cli"

	"hackc.dev/toolchain/pkg/asm"
	"hackc.dev/toolchain/pkg/diag"
	"hackc.dev/toolchain/pkg/hack"
)

var Description = strings.ReplaceAll(`
The Hack Assembler takes assembly language code written in the Hack assembly language
and translates it into machine code that can be executed by the Hack computer. The process
involves parsing the assembly code, resolving symbols, and generating machine code.
`, "\n", " ")

var HackAssembler = cli.New(Description).
	WithArg(cli.NewArg("input", "The assembly (.asm) file to be assembled")).
	WithOption(cli.NewOption("output", "The assembled binary output (defaults to <input stem>.hack)").
		WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		return report(diag.Usagef("no input file provided, use --help"))
	}

	input := args[0]
	if filepath.Ext(input) != ".asm" {
		return report(diag.Usagef("input file '%s' does not have the '.asm' extension", input))
	}

	content, err := os.ReadFile(input)
	if err != nil {
		return report(diag.IOf(err, "unable to open input file"))
	}

	// Instantiate a parser for the Asm program
	parser := asm.NewParser(bytes.NewReader(content))
	// Parses the input file content and extracts a buffered 'asm.Program' from it.
	asmProgram, err := parser.Parse()
	if err != nil {
		return report(err)
	}

	// Instantiate a lowerer to convert the program from Asm to Hack
	lowerer := asm.NewLowerer(asmProgram)
	// Label-scan pass: binds every '(LABEL)' to its ROM address and classifies locations.
	hackProgram, table, err := lowerer.Lower()
	if err != nil {
		return report(err)
	}

	// Now, instantiates a code generator for the Hack (compiled) program
	codegen := hack.NewCodeGenerator(hackProgram, table)
	// Encode pass: resolves symbols (allocating variables on first reference) and
	// spits out one 16 bit binary word per instruction.
	compiled, err := codegen.Generate()
	if err != nil {
		return report(err)
	}

	destination := options["output"]
	if destination == "" {
		destination = strings.TrimSuffix(input, ".asm") + ".hack"
	}

	output, err := os.Create(destination)
	if err != nil {
		return report(diag.IOf(err, "unable to open output file"))
	}
	defer output.Close()

	for _, word := range compiled {
		if _, err := fmt.Fprintf(output, "%s\n", word); err != nil {
			return report(diag.IOf(err, "unable to write output file"))
		}
	}

	return 0
}

// report logs the failure on stderr and maps it to the process exit code.
func report(err error) int {
	logrus.Error(err)
	return diag.ExitCode(err)
}

func main() { os.Exit(HackAssembler.Run(os.Args, os.Stdout)) }
