// Package symfile implements a parser and an in-memory index for Breakpad
// text symbol files.
//
// A symbol file describes one module: its functions with their line tables,
// public symbols, and the STACK CFI / STACK WIN programs used to unwind
// through code compiled without frame pointers. The format is documented at
// https://chromium.googlesource.com/breakpad/breakpad/+/master/docs/symbol_files.md
//
// A SymbolFile is built once by Parse and is immutable afterwards; it is safe
// for concurrent readers.
package symfile

// SymbolFile is the parsed form of a single symbol file.
type SymbolFile struct {
	// MODULE record.
	OS        string
	Arch      string
	DebugID   string
	DebugFile string

	// INFO CODE_ID record, if any.
	CodeID   string
	CodeFile string

	// FILE records keyed by file number.
	Files map[uint32]string
	// INLINE_ORIGIN records keyed by origin id.
	InlineOrigins map[uint32]string

	// Sorted by address.
	Functions []Function
	Publics   []PublicSymbol

	CFI          []CFIInfo
	WinFrameData []WinStackInfo
	WinFPO       []WinStackInfo

	// Diagnostics for records that were skipped. At most maxDiagnostics are
	// kept; SkippedRecords counts all of them.
	Diagnostics    []Diagnostic
	SkippedRecords int

	moduleSize uint64
}

// Function is a FUNC record with its line and inline records.
type Function struct {
	Address       uint64
	Size          uint64
	ParameterSize uint32
	Name          string
	// Multiple is set when the linker folded several functions into this one.
	Multiple bool

	Lines   []SourceLine
	Inlines []Inline
}

func (f *Function) contains(addr uint64) bool {
	return addr >= f.Address && addr-f.Address < f.Size
}

// SourceLine maps an address range of a function to a line of a source file.
type SourceLine struct {
	Address uint64
	Size    uint64
	Line    uint32
	File    uint32
}

// Inline is an INLINE record: a call site inlined into the enclosing
// function, covering one or more address ranges.
type Inline struct {
	Depth    uint32
	CallLine uint32
	CallFile uint32
	Origin   uint32
	Ranges   []Range
}

type Range struct {
	Address uint64
	Size    uint64
}

// PublicSymbol is a PUBLIC record: a linker symbol without size or line
// information.
type PublicSymbol struct {
	Address       uint64
	ParameterSize uint32
	Name          string
	Multiple      bool
}

// CFIRule recovers one register. Register is the name as written in the
// record (".cfa", ".ra", "$rsp", "x29", ...); Expr is a postfix program.
type CFIRule struct {
	Register string
	Expr     string
}

// CFIRules is a set of rules with at most one rule per register.
type CFIRules []CFIRule

// Get returns the rule expression for register.
func (r CFIRules) Get(register string) (string, bool) {
	for _, rule := range r {
		if rule.Register == register {
			return rule.Expr, true
		}
	}
	return "", false
}

// CFIInfo is a STACK CFI INIT record together with the STACK CFI delta
// records that follow it.
type CFIInfo struct {
	Address uint64
	Size    uint64
	Init    CFIRules
	// Sorted by address.
	Deltas []CFIDelta
}

type CFIDelta struct {
	Address uint64
	Rules   CFIRules
}

// WinStackType is the type field of a STACK WIN record.
type WinStackType uint8

const (
	WinStackFPO       WinStackType = 0
	WinStackTrap      WinStackType = 1
	WinStackTSS       WinStackType = 2
	WinStackStandard  WinStackType = 3
	WinStackFrameData WinStackType = 4
)

// WinStackInfo is a STACK WIN record.
type WinStackInfo struct {
	Type              WinStackType
	Address           uint64
	Size              uint64
	PrologSize        uint32
	EpilogSize        uint32
	ParameterSize     uint32
	SavedRegisterSize uint32
	LocalSize         uint32
	MaxStackSize      uint32

	// Exactly one of ProgramString or AllocatesBasePointer is meaningful,
	// depending on HasProgramString.
	HasProgramString     bool
	ProgramString        string
	AllocatesBasePointer bool
}

func (w *WinStackInfo) contains(addr uint64) bool {
	return addr >= w.Address && addr-w.Address < w.Size
}

// Diagnostic records a skipped record.
type Diagnostic struct {
	Line uint64
	Tag  string
}
