package symbolizer

// FrameSymbolizer receives the symbol information of a stack frame.
type FrameSymbolizer interface {
	// Instruction is the absolute address of the frame's instruction.
	Instruction() uint64
	// SetFunction sets the function containing the instruction. base is
	// the absolute address of the function's start.
	SetFunction(name string, base uint64, parameterSize uint32)
	// SetSourceFile sets the source line of the instruction. base is the
	// absolute address of the line's first instruction.
	SetSourceFile(file string, line uint32, base uint64)
}

// InlineFrameSymbolizer is a FrameSymbolizer that also records the calls
// inlined at the instruction. AddInlineFrame is called innermost first; the
// file and line are where the inlined function itself is executing.
type InlineFrameSymbolizer interface {
	FrameSymbolizer
	AddInlineFrame(name, file string, line uint32)
}

// InlineFrame is an inlined call recorded by SimpleFrame.
type InlineFrame struct {
	Function   string
	SourceFile string
	SourceLine uint32
}

// SimpleFrame is an InlineFrameSymbolizer that just holds data.
type SimpleFrame struct {
	Address uint64

	HasFunction   bool
	Function      string
	FunctionBase  uint64
	ParameterSize uint32

	HasSource      bool
	SourceFile     string
	SourceLine     uint32
	SourceLineBase uint64

	Inlines []InlineFrame
}

func NewSimpleFrame(instruction uint64) *SimpleFrame {
	return &SimpleFrame{Address: instruction}
}

func (f *SimpleFrame) Instruction() uint64 { return f.Address }

func (f *SimpleFrame) SetFunction(name string, base uint64, parameterSize uint32) {
	f.HasFunction = true
	f.Function = name
	f.FunctionBase = base
	f.ParameterSize = parameterSize
}

func (f *SimpleFrame) SetSourceFile(file string, line uint32, base uint64) {
	f.HasSource = true
	f.SourceFile = file
	f.SourceLine = line
	f.SourceLineBase = base
}

func (f *SimpleFrame) AddInlineFrame(name, file string, line uint32) {
	f.Inlines = append(f.Inlines, InlineFrame{Function: name, SourceFile: file, SourceLine: line})
}
