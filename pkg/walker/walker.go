// Package walker recovers a caller's registers from the callee's registers
// and memory by evaluating STACK CFI and STACK WIN records.
//
// It is pure logic over a FrameWalker: registers and memory are owned by the
// caller, and a failed evaluation only means that this frame cannot be
// unwound with symbol file information.
//
// Expressions use the operators Breakpad symbol files contain: + - * / % &
// | and @ (align down) are binary, ^ dereferences the top of the stack and
// = assigns to a variable. There is no bitwise xor and no duplicate
// operator, as no producer of symbol files emits either.
package walker

import (
	"strings"

	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
)

// FrameWalker gives access to the callee frame being unwound and collects
// the caller frame being built.
type FrameWalker interface {
	// Instruction is the absolute address of the callee's instruction.
	Instruction() uint64
	// GrandCalleeParameterSize is the size of the parameters the callee
	// passed to its own callee, if known.
	GrandCalleeParameterSize() uint32
	// RegisterAtAddress reads a pointer sized value from memory.
	RegisterAtAddress(addr uint64) (uint64, bool)
	// CalleeRegister returns a register of the callee frame, named without
	// any "$" prefix.
	CalleeRegister(name string) (uint64, bool)
	// SetCallerRegister records a recovered caller register. It reports
	// false if the register is not known to the walker.
	SetCallerRegister(name string, val uint64) bool
	// ClearCallerRegister marks a caller register as not recoverable.
	ClearCallerRegister(name string)
	// SetCFA records the canonical frame address, i.e. the caller's stack
	// pointer.
	SetCFA(val uint64) bool
	// SetRA records the return address, i.e. the caller's instruction.
	SetRA(val uint64) bool
}

const (
	cfaRegister = ".cfa"
	raRegister  = ".ra"
)

func registerName(name string) string {
	return strings.TrimPrefix(name, "$")
}

func calleeEnv(w FrameWalker) Env {
	return Env{
		Lookup: func(name string) (uint64, bool) {
			return w.CalleeRegister(registerName(name))
		},
		Memory: w.RegisterAtAddress,
	}
}

// WalkWithCFI unwinds one frame with the STACK CFI rules in effect at the
// callee's instruction. The CFA is computed first, then the return address,
// then every other register. It reports false if either the CFA or the
// return address cannot be recovered; other registers that fail to evaluate
// are cleared in the caller.
func WalkWithCFI(rules symfile.CFIRules, w FrameWalker) bool {
	cfaExpr, ok := rules.Get(cfaRegister)
	if !ok {
		return false
	}
	raExpr, ok := rules.Get(raRegister)
	if !ok {
		return false
	}

	env := calleeEnv(w)
	cfa, err := Evaluate(cfaExpr, env)
	if err != nil {
		return false
	}
	if !w.SetCFA(cfa) {
		return false
	}

	lookup := env.Lookup
	env.Lookup = func(name string) (uint64, bool) {
		if name == cfaRegister {
			return cfa, true
		}
		return lookup(name)
	}

	ra, err := Evaluate(raExpr, env)
	if err != nil {
		return false
	}
	if !w.SetRA(ra) {
		return false
	}

	for _, rule := range rules {
		if rule.Register == cfaRegister || rule.Register == raRegister {
			continue
		}
		name := registerName(rule.Register)
		v, err := Evaluate(rule.Expr, env)
		if err != nil {
			w.ClearCallerRegister(name)
			continue
		}
		w.SetCallerRegister(name, v)
	}
	return true
}

// x86 registers visible to STACK WIN programs.
var winRegisters = []string{"ebp", "esp", "eip", "ebx", "esi", "edi"}

// Callee saved registers that pass through a frame unless the program
// recovers them.
var winCalleeSaved = []string{"ebp", "ebx", "esi", "edi"}

const (
	winCalleeParams  = ".cbCalleeParams"
	winSavedRegs     = ".cbSavedRegs"
	winLocals        = ".cbLocals"
	winParams        = ".cbParams"
	winRASearchStart = ".raSearchStart"
	winRASearch      = ".raSearch"
)

const winPointerSize = 4

func truncate32(v uint64) uint64 {
	return v & 0xffffffff
}

// WalkWithWin unwinds one 32-bit x86 frame with a STACK WIN record. Frame
// data records run their program string; FPO records read the return
// address and saved frame pointer at fixed offsets from the callee's stack
// pointer. It reports false when the return address or the caller's stack
// pointer cannot be recovered.
func WalkWithWin(info *symfile.WinStackInfo, w FrameWalker) bool {
	esp, ok := w.CalleeRegister("esp")
	if !ok {
		return false
	}
	grandCalleeParams := uint64(w.GrandCalleeParameterSize())
	raSearchStart := truncate32(esp + grandCalleeParams + uint64(info.LocalSize) + uint64(info.SavedRegisterSize))

	mem := func(addr uint64) (uint64, bool) {
		v, ok := w.RegisterAtAddress(truncate32(addr))
		return truncate32(v), ok
	}

	if !info.HasProgramString {
		return walkFPO(info, w, mem, esp, grandCalleeParams, raSearchStart)
	}

	vars := map[string]uint64{
		winCalleeParams:  grandCalleeParams,
		winSavedRegs:     uint64(info.SavedRegisterSize),
		winLocals:        uint64(info.LocalSize),
		winParams:        uint64(info.ParameterSize),
		winRASearchStart: raSearchStart,
		winRASearch:      raSearchStart,
	}
	for _, reg := range winRegisters {
		if v, ok := w.CalleeRegister(reg); ok {
			vars["$"+reg] = truncate32(v)
		}
	}
	assigned, err := Execute(info.ProgramString, Env{
		Lookup: func(name string) (uint64, bool) {
			v, ok := vars[name]
			return v, ok
		},
		Memory: mem,
	})
	if err != nil {
		return false
	}

	eip, ok := assigned["$eip"]
	if !ok {
		return false
	}
	callerESP, ok := assigned["$esp"]
	if !ok {
		return false
	}
	if !w.SetRA(truncate32(eip)) || !w.SetCFA(truncate32(callerESP)) {
		return false
	}
	for _, reg := range winCalleeSaved {
		v, ok := assigned["$"+reg]
		if !ok {
			v, ok = vars["$"+reg]
		}
		if ok {
			w.SetCallerRegister(reg, truncate32(v))
		}
	}
	return true
}

func walkFPO(info *symfile.WinStackInfo, w FrameWalker, mem func(uint64) (uint64, bool), esp, grandCalleeParams, raSearchStart uint64) bool {
	eip, ok := mem(raSearchStart)
	if !ok {
		return false
	}
	callerESP := truncate32(raSearchStart + winPointerSize)
	if !w.SetRA(eip) || !w.SetCFA(callerESP) {
		return false
	}

	if !info.AllocatesBasePointer {
		if ebp, ok := w.CalleeRegister("ebp"); ok {
			w.SetCallerRegister("ebp", truncate32(ebp))
		}
		return true
	}
	// The function reuses ebp for its own purposes. The caller's value was
	// pushed with the other saved registers, second word from their top.
	ebp, ok := mem(esp + grandCalleeParams + uint64(info.SavedRegisterSize) - 2*winPointerSize)
	if !ok {
		w.ClearCallerRegister("ebp")
		return true
	}
	w.SetCallerRegister("ebp", ebp)
	return true
}
