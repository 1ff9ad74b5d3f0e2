package asm

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the Asm language.
//
// We declare a shared 'Statement' interface for A and C instructions as well as
// label declarations for specific code sections (allowing arbitrary jumps at
// runtime) and free-standing comments. Labels enable iteration and conditionals
// both here and at the upper level (the VM translator).

// Just used to put together label declarations, A inst, C inst and comments in
// the same datatype.
type Statement interface{}

// A Program is the buffered, comment-and-blank free list of classified statements
// of one translation unit, in source order.
type Program []Statement

// ----------------------------------------------------------------------------
// Label Declarations

// In memory representation of a label declaration statement for the Asm language.
//
// There's not much here to be honest, we just keep track of the user defined name
// to resolve future references to the same label (e.g. when referencing a label in
// an A Instruction). During the lowering phase this label will be mapped to the ROM
// address of the next real instruction and a symbol table will be generated from it,
// the latter will be used in the codegen phase. A label declaration emits no word.
type LabelDecl struct {
	Name string // The symbol/ident chosen by the user for the label
	Line int    // 1-based line in the source unit, 0 for generated code
}

// ----------------------------------------------------------------------------
// A Instructions

// In memory representation of an A Instruction for the Asm language.
//
// The A instruction has only one functionality in the Hack computer, it instructs
// the CPU to load a specific memory address/location from the computer memory (this
// includes both the RAM and the memory mapped I/O). The location can be referenced
// either by an alias (labels) or by specifying the raw location.
// During the lowering phase each location will be assigned its type (Raw | BuiltIn | Label).
type AInstruction struct {
	Location string // A generic "payload" (the label/builtin/raw symbol)
	Line     int    // 1-based line in the source unit, 0 for generated code
}

// ----------------------------------------------------------------------------
// C Instructions

// In memory representation of an C Instruction for the Asm language.
//
// The C instruction handles the computation side of the Hack computer, it instructs
// the CPU on what operation to execute and which register to use, also it allows to
// specify jump conditions to change the execution flow at runtime.
// 'Comp' is mandatory, 'Dest' and 'Jump' are each optional and independent: the
// empty string means the respective part was not written in the source.
type CInstruction struct {
	Comp string // The 'computation' mnemonic, defines the calculation that the CPU should perform
	Dest string // The 'destination' mnemonic, defines if/where the result should be saved
	Jump string // The 'jump' mnemonic, defines on what premise the jump to another instruction should occur
	Line int    // 1-based line in the source unit, 0 for generated code
}

// ----------------------------------------------------------------------------
// Comments

// A free-standing comment line carried through to the textual output.
//
// Comments never survive the assembler pipeline (the parser consumes them), they
// exist so that upper layers (the VM translator) can echo each bytecode operation
// above its assembly fragment for traceability.
type Comment struct {
	Text string // The comment body, without the leading '//'
}
