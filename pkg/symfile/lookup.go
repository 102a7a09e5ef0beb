package symfile

import "sort"

// FunctionAt returns the function containing addr. Functions are searched by
// nearest start address at or below addr; an address past the end of that
// function is not matched.
func (f *SymbolFile) FunctionAt(addr uint64) (*Function, bool) {
	i := sort.Search(len(f.Functions), func(i int) bool {
		return f.Functions[i].Address > addr
	})
	if i == 0 {
		return nil, false
	}
	fn := &f.Functions[i-1]
	if !fn.contains(addr) {
		return nil, false
	}
	return fn, true
}

// LineAt returns the line record of fn covering addr together with its
// source file name. It reports false when no line covers addr or the line
// refers to an unknown file.
func (f *SymbolFile) LineAt(fn *Function, addr uint64) (SourceLine, string, bool) {
	i := sort.Search(len(fn.Lines), func(i int) bool {
		return fn.Lines[i].Address > addr
	})
	if i == 0 {
		return SourceLine{}, "", false
	}
	line := fn.Lines[i-1]
	if addr-line.Address >= line.Size {
		return SourceLine{}, "", false
	}
	file, ok := f.Files[line.File]
	if !ok {
		return SourceLine{}, "", false
	}
	return line, file, true
}

// PublicAt returns the public symbol nearest at or below addr, provided that
// no function or other public symbol starts between the two.
func (f *SymbolFile) PublicAt(addr uint64) (*PublicSymbol, bool) {
	i := sort.Search(len(f.Publics), func(i int) bool {
		return f.Publics[i].Address > addr
	})
	if i == 0 {
		return nil, false
	}
	pub := &f.Publics[i-1]
	if end, ok := f.NextSymbolStart(pub.Address); ok && addr >= end {
		return nil, false
	}
	if f.moduleSize != 0 && addr >= f.moduleSize {
		return nil, false
	}
	return pub, true
}

// NextSymbolStart returns the smallest function or public symbol start
// address strictly greater than addr. It bounds the coverage of symbols
// without a known size.
func (f *SymbolFile) NextSymbolStart(addr uint64) (uint64, bool) {
	var (
		next  uint64
		found bool
	)
	if i := sort.Search(len(f.Functions), func(i int) bool {
		return f.Functions[i].Address > addr
	}); i < len(f.Functions) {
		next, found = f.Functions[i].Address, true
	}
	if i := sort.Search(len(f.Publics), func(i int) bool {
		return f.Publics[i].Address > addr
	}); i < len(f.Publics) {
		if !found || f.Publics[i].Address < next {
			next, found = f.Publics[i].Address, true
		}
	}
	return next, found
}

// InlineFrame is an inlined call covering an address.
type InlineFrame struct {
	Depth    uint32
	Name     string
	CallFile string
	CallLine uint32
}

// InlinesAt returns the inlined calls of fn covering addr, outermost first.
// Origins or call files that are not in the file are left empty.
func (f *SymbolFile) InlinesAt(fn *Function, addr uint64) []InlineFrame {
	var frames []InlineFrame
	for _, in := range fn.Inlines {
		for _, r := range in.Ranges {
			if addr < r.Address || addr-r.Address >= r.Size {
				continue
			}
			frames = append(frames, InlineFrame{
				Depth:    in.Depth,
				Name:     f.InlineOrigins[in.Origin],
				CallFile: f.Files[in.CallFile],
				CallLine: in.CallLine,
			})
			break
		}
	}
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Depth < frames[j].Depth
	})
	return frames
}

// CFIRulesFor returns the CFI rules in effect at addr: the INIT rules of the
// record covering addr, overridden by every delta at or below addr in
// address order.
func (f *SymbolFile) CFIRulesFor(addr uint64) (CFIRules, bool) {
	i := sort.Search(len(f.CFI), func(i int) bool {
		return f.CFI[i].Address > addr
	})
	if i == 0 {
		return nil, false
	}
	info := &f.CFI[i-1]
	if addr-info.Address >= info.Size {
		return nil, false
	}

	rules := make(CFIRules, len(info.Init))
	copy(rules, info.Init)
	for _, delta := range info.Deltas {
		if delta.Address > addr {
			break
		}
		for _, rule := range delta.Rules {
			rules = rules.set(rule)
		}
	}
	return rules, true
}

func (r CFIRules) set(rule CFIRule) CFIRules {
	for i := range r {
		if r[i].Register == rule.Register {
			r[i].Expr = rule.Expr
			return r
		}
	}
	return append(r, rule)
}

// WinFrameDataFor returns the STACK WIN record covering addr. Frame data
// records are preferred over FPO records.
func (f *SymbolFile) WinFrameDataFor(addr uint64) (*WinStackInfo, bool) {
	if info, ok := findWin(f.WinFrameData, addr); ok {
		return info, true
	}
	return findWin(f.WinFPO, addr)
}

func findWin(s []WinStackInfo, addr uint64) (*WinStackInfo, bool) {
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Address > addr
	})
	if i == 0 {
		return nil, false
	}
	info := &s[i-1]
	if !info.contains(addr) {
		return nil, false
	}
	return info, true
}
