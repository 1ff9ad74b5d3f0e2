package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/cli"

	"hackc.dev/toolchain/pkg/asm"
	"hackc.dev/toolchain/pkg/diag"
	"hackc.dev/toolchain/pkg/vm"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode'like) language tailored for use with the Hack computer arch.
`, "\n", " ")

var VmTranslator = cli.New(Description).
	WithArg(cli.NewArg("input", "The bytecode (.vm) file, or a directory of .vm files, to be translated")).
	WithOption(cli.NewOption("output", "The translated assembly output (defaults to <input stem>.asm)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("bootstrap", "Includes bootstrap code in the final .asm file").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		return report(diag.Usagef("no input provided, use --help"))
	}

	units, destination, err := resolveInput(args[0], options["output"])
	if err != nil {
		return report(err)
	}

	// Allocates a 'vm.Program' to hold every parsed translation unit (the .vm files),
	// each is parsed independently and then handed as a whole to the lowering phase
	// (that will create a monolithic assembly output).
	program := vm.Program{}

	for _, unit := range units {
		content, err := os.ReadFile(unit)
		if err != nil {
			return report(diag.IOf(err, "unable to open input file"))
		}

		// Instantiate a parser for the Vm module
		parser := vm.NewParser(bytes.NewReader(content))
		// Parses the unit content and extracts its operation list.
		operations, err := parser.Parse()
		if err != nil {
			return report(err)
		}

		// The unit stem (not the output path) names the module: it scopes the module's
		// static variables and its out-of-function labels.
		stem := strings.TrimSuffix(filepath.Base(unit), ".vm")
		program = append(program, vm.Module{Name: stem, Operations: operations})
	}

	_, bootstrap := options["bootstrap"]
	// Instantiate a lowerer to convert the program from Vm to Asm. The lowerer is
	// shared by every unit so that minted jump labels stay unique program-wide.
	lowerer := vm.NewLowerer(program, bootstrap)
	asmProgram, err := lowerer.Lower()
	if err != nil {
		return report(err)
	}

	// Now, instantiates a code generator for the Asm (translated) program
	codegen := asm.NewCodeGenerator(asmProgram)
	// Iterates over each statement and spits out the relative textual representation.
	translated, err := codegen.Generate()
	if err != nil {
		return report(err)
	}

	output, err := os.Create(destination)
	if err != nil {
		return report(diag.IOf(err, "unable to open output file"))
	}
	defer output.Close()

	for _, line := range translated {
		if _, err := fmt.Fprintf(output, "%s\n", line); err != nil {
			return report(diag.IOf(err, "unable to write output file"))
		}
	}

	return 0
}

// resolveInput expands the positional argument into the ordered list of .vm units to
// translate and the output path to write. A directory is walked (lexical order) for
// its .vm files and named after itself, a plain file must carry the .vm extension.
func resolveInput(input string, output string) ([]string, string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, "", diag.IOf(err, "unable to stat input '%s'", input)
	}

	if !info.IsDir() {
		if filepath.Ext(input) != ".vm" {
			return nil, "", diag.Usagef("input file '%s' does not have the '.vm' extension", input)
		}
		if output == "" {
			output = strings.TrimSuffix(input, ".vm") + ".asm"
		}
		return []string{input}, output, nil
	}

	units := []string{}
	err = filepath.Walk(input, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".vm" {
			return nil // We recurse on dirs and ignore other filetypes
		}

		units = append(units, path)
		return nil
	})
	if err != nil {
		return nil, "", diag.IOf(err, "unable to walk input directory '%s'", input)
	}
	if len(units) == 0 {
		return nil, "", diag.Usagef("no .vm files found under '%s'", input)
	}

	if output == "" {
		stem := filepath.Base(filepath.Clean(input))
		output = filepath.Join(input, stem+".asm")
	}
	return units, output, nil
}

// report logs the failure on stderr and maps it to the process exit code.
func report(err error) int {
	logrus.Error(err)
	return diag.ExitCode(err)
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
