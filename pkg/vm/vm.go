package vm

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the VM intermediate language.
//
// We declare a shared 'Operation' interface for every macro operation available for the
// language and we define some other useful top-level structs such as Program and Module.
// Is important to note that a VM program can be composed of multiple translation units
// that can be also referenced as files or modules or also classes.

// A VM Program is an ordered set of modules, in the VM spec each class is translated
// to its own .vm file (just like Java .class files) that can be handled as its own
// translation unit. The order is the one the units were provided in and is preserved
// all the way to the generated assembly, so repeated runs emit identical output.
type Program []Module

// A VM Module is a named, linear list of VM operations/instructions. The name is the
// stem of the .vm file it was parsed from and scopes the module's static variables.
type Module struct {
	Name       string      // The translation unit stem (e.g. 'Foo' for Foo.vm)
	Operations []Operation // The operations of the unit, in source order
}

// Used to put together all operations in the VM language (Memory, Arithmetic, ... ops).
type Operation interface{}

// ----------------------------------------------------------------------------
// Memory Op

// In memory representation of a Memory operation for the VM language.
//
// In the VM intermediate language there are only two possible memory operations on the
// stack. We could either push a new value taken from the specified segment location on
// the stack's top or take the stack's top and save its value at the specified segment
// location.
type MemoryOp struct {
	Operation OperationType // The type of operation, either 'push' or 'pop'
	Segment   SegmentType   // The named memory segment to use (this, that, temp, ...)
	Offset    uint16        // The specific location/offset inside of the memory segment
	Line      int           // 1-based line in the source unit, 0 for generated code
}

type OperationType string // Enum to manage the operation allowed for a MemoryOp

const (
	Push OperationType = "push"
	Pop  OperationType = "pop"
)

type SegmentType string // Enum to manage the segment accessible for a MemoryOp

const (
	Temp     SegmentType = "temp"     // Real segment used to store intermediate computations
	Constant SegmentType = "constant" // Virtual segment used to access numeric constants

	Local    SegmentType = "local"    // Real segment used to store local function variables
	Static   SegmentType = "static"   // Real segment used to store shared/static variables
	Argument SegmentType = "argument" // Real segment used to store function's arguments

	This    SegmentType = "this"    // Virtual segment used to point to a specific memory location
	That    SegmentType = "that"    // Virtual segment used to point to a specific memory location
	Pointer SegmentType = "pointer" // Real segment w/ 2 locations used to set the 'this' and 'that' pointers
)

// ----------------------------------------------------------------------------
// Arithmetic Op

// In memory representation of an Arithmetic operation for the VM language.
//
// In the VM intermediate language there are just a handful of operations available.
// In particular each operation acts directly on the top of the stack, of course we have
// both unary and binary operations, the specific management of each op will be handled
// in the lowering phase.
type ArithmeticOp struct {
	Operation ArithOpType
	Line      int // 1-based line in the source unit, 0 for generated code
}

type ArithOpType string // Enum to manage the operation allowed for an ArithmeticOp

const (
	Eq ArithOpType = "eq" // Comparison operations
	Gt ArithOpType = "gt"
	Lt ArithOpType = "lt"

	Add ArithOpType = "add" // Arithmetic operations
	Sub ArithOpType = "sub"
	Neg ArithOpType = "neg"

	Not ArithOpType = "not" // Bitwise operations
	And ArithOpType = "and"
	Or  ArithOpType = "or"
)

// ----------------------------------------------------------------------------
// Branching Ops

// In memory representation of a label declaration for the VM language.
//
// Label declarations (and the goto operations referencing them) are scoped to the
// function currently being translated: 'label L' inside 'function f' lowers to the
// assembly label 'f$L', so the same label name can be reused across functions.
type LabelDecl struct {
	Name string // The symbol/ident chosen by the user for the label
	Line int    // 1-based line in the source unit, 0 for generated code
}

// In memory representation of a goto operation (conditional or not) for the VM language.
type GotoOp struct {
	Jump  JumpType // Whether the jump is taken unconditionally or on a popped truthy value
	Label string   // The function-scoped label to jump to
	Line  int      // 1-based line in the source unit, 0 for generated code
}

type JumpType string // Enum to manage the jump flavors available for a GotoOp

const (
	Unconditional JumpType = "goto"
	Conditional   JumpType = "if-goto"
)

// ----------------------------------------------------------------------------
// Function Ops

// In memory representation of a function declaration for the VM language.
//
// A function declaration opens a new scope for labels and reserves 'NLocal' zero
// initialized slots on the stack for the function's local segment.
type FuncDecl struct {
	Name   string // The fully qualified function name (e.g. 'Foo.bar')
	NLocal uint8  // How many local variables the function body uses
	Line   int    // 1-based line in the source unit, 0 for generated code
}

// In memory representation of a function call operation for the VM language.
//
// The caller has already pushed 'NArgs' arguments on the stack, the caller's frame
// (return address plus the LCL/ARG/THIS/THAT pointers) is saved by the lowered code.
type FuncCallOp struct {
	Name  string // The fully qualified function name to transfer control to
	NArgs uint8  // How many arguments were pushed for the callee
	Line  int    // 1-based line in the source unit, 0 for generated code
}

// In memory representation of a return operation for the VM language.
type ReturnOp struct {
	Line int // 1-based line in the source unit, 0 for generated code
}
