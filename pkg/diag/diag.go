package diag

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about diagnostics reporting.
//
// Every failure in the toolchain belongs to one of three classes (usage, I/O, source)
// and each class maps to a distinct process exit code so that callers and scripts can
// tell a bad invocation from a broken file from a broken program. Source-level errors
// additionally carry the 1-based line in the offending translation unit.

type Class uint8 // Enumeration of the failure classes recognized by the toolchain

const (
	Usage  Class = 1 // Bad invocation: missing arguments, wrong file extension, ...
	IO     Class = 2 // Failed file operation: open, read, create or write
	Source Class = 3 // Broken input program: unknown mnemonic, overflow, malformed line
)

// ----------------------------------------------------------------------------
// Diagnostic

// A Diagnostic is an error with a failure class and, when it originates from a
// specific line of a translation unit, the 1-based line number of that line.
// Line 0 means "no specific line" (e.g. generated instructions, whole-file errors).
type Diagnostic struct {
	Class  Class // The failure class, drives the process exit code
	Line   int   // 1-based source line, 0 when not tied to a line
	Reason error // The underlying cause, kept for errors.Cause/errors.As chains
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s", d.Line, d.Reason)
	}
	return d.Reason.Error()
}

func (d *Diagnostic) Unwrap() error { return d.Reason }

// Usagef creates a usage-class Diagnostic from a format string.
func Usagef(format string, args ...any) error {
	return &Diagnostic{Class: Usage, Reason: errors.Errorf(format, args...)}
}

// IOf wraps a failed file operation into an io-class Diagnostic.
func IOf(cause error, format string, args ...any) error {
	return &Diagnostic{Class: IO, Reason: errors.Wrapf(cause, format, args...)}
}

// Sourcef creates a source-class Diagnostic bound to the given 1-based line.
func Sourcef(line int, format string, args ...any) error {
	return &Diagnostic{Class: Source, Line: line, Reason: errors.Errorf(format, args...)}
}

// ExitCode maps any error to the process exit code mandated by the CLI contract:
// 1 for usage, 2 for I/O, 3 for source-level failures. Errors that are not
// Diagnostics (or wrap one) are treated as source-level.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var diagnostic *Diagnostic
	if errors.As(err, &diagnostic) {
		return int(diagnostic.Class)
	}
	return int(Source)
}

// ----------------------------------------------------------------------------
// Line index

// The parsers report positions as byte offsets in the source buffer, while every
// user-facing diagnostic wants a line number. A LineIndex is built once per
// translation unit and converts between the two with a binary search.
type LineIndex []int // Byte offset of the first character of each line

// NewLineIndex scans 'source' and records where each line starts.
func NewLineIndex(source []byte) LineIndex {
	starts := []int{0}
	for offset, char := range source {
		if char == '\n' {
			starts = append(starts, offset+1)
		}
	}
	return starts
}

// At returns the 1-based line containing the given byte offset. Offsets past the
// end of the buffer resolve to the last line.
func (li LineIndex) At(offset int) int {
	return sort.Search(len(li), func(i int) bool { return li[i] > offset })
}
