package symfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// The different record types.
const (
	recordModule       = "MODULE"
	recordInfo         = "INFO"
	recordFile         = "FILE"
	recordFunc         = "FUNC"
	recordInline       = "INLINE"
	recordInlineOrigin = "INLINE_ORIGIN"
	recordPublic       = "PUBLIC"
	recordStack        = "STACK"

	stackCFI     = "CFI"
	stackCFIInit = "INIT"
	stackWin     = "WIN"

	infoCodeID = "CODE_ID"

	// Marks a FUNC or PUBLIC record as covering several folded functions.
	multipleMarker = "m"
)

// Fields of a MODULE record.
const (
	moduleOS = iota + 1
	moduleArch
	moduleID
	moduleName
	moduleLen
)

// Fields of a FILE record.
const (
	fileNumber = iota + 1
	fileName
	fileLen
)

// Fields of a FUNC record, after the optional multiple marker is removed.
const (
	funcAddress = iota + 1
	funcSize
	funcParamSize
	funcName
	funcLen
)

// Fields of a line record. There is no record keyword.
const (
	lineAddress = iota
	lineSize
	lineLine
	lineFileNumber
	lineLen
)

// Fields of a PUBLIC record, after the optional multiple marker is removed.
const (
	publicAddress = iota + 1
	publicParamSize
	publicName
	publicLen
)

// Fields of an INLINE_ORIGIN record.
const (
	inlineOriginID = iota + 1
	inlineOriginName
	inlineOriginLen
)

// Fields of an INLINE record, followed by address/size pairs.
const (
	inlineDepth = iota + 1
	inlineCallLine
	inlineCallFile
	inlineOrigin
	inlineRanges
)

// Fields of a STACK WIN record.
const (
	winType = iota + 2
	winAddress
	winSize
	winPrologSize
	winEpilogSize
	winParamSize
	winSavedRegSize
	winLocalSize
	winMaxStackSize
	winHasProgram
	winProgramOrBP
	winLen
)

const (
	maxDiagnostics = 64
	maxLineLength  = 16 << 20
)

// Option configures Parse.
type Option func(*options)

type options struct {
	moduleSize uint64
}

// WithModuleSize discards records that fall outside of [0, size), the
// module-relative extent of the module the file belongs to. Zero disables
// the check.
func WithModuleSize(size uint64) Option {
	return func(o *options) {
		o.moduleSize = size
	}
}

type parser struct {
	opt  options
	file *SymbolFile

	line      uint64
	hasModule bool
	// Index of the FUNC record that line and INLINE records attach to, or -1.
	lastFunc int
	// Index of the STACK CFI INIT record that deltas attach to, or -1.
	lastCFI int
	// First line that could not be attributed to any record family.
	firstUnknown uint64
}

// ParseBytes parses an in-memory symbol file.
func ParseBytes(data []byte, opts ...Option) (*SymbolFile, error) {
	return Parse(bytes.NewReader(data), opts...)
}

// Parse reads a Breakpad symbol file from r.
//
// Individual malformed records are skipped and reported in
// SymbolFile.Diagnostics. A malformed MODULE record, or input that contains
// no MODULE, FUNC or PUBLIC record at all, fails with a *ParseError. Errors
// from r are returned as is.
func Parse(r io.Reader, opts ...Option) (*SymbolFile, error) {
	p := &parser{
		file: &SymbolFile{
			Files:         make(map[uint32]string),
			InlineOrigins: make(map[uint32]string),
		},
		lastFunc: -1,
		lastCFI:  -1,
	}
	for _, o := range opts {
		o(&p.opt)
	}
	p.file.moduleSize = p.opt.moduleSize

	if err := p.readLines(bufio.NewReaderSize(r, 64<<10)); err != nil {
		return nil, err
	}

	if !p.hasModule && len(p.file.Functions) == 0 && len(p.file.Publics) == 0 {
		line := p.firstUnknown
		if line == 0 {
			line = p.line
		}
		return nil, &ParseError{Tag: TagTotallyUnparsable, Line: line}
	}

	p.file.finish()
	return p.file, nil
}

// readLines feeds every line of r to parseLine. Lines longer than
// maxLineLength are skipped without being buffered in full.
func (p *parser) readLines(r *bufio.Reader) error {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if len(buf)+len(chunk) > maxLineLength {
			tooLong, buf = true, buf[:0]
		} else if !tooLong {
			buf = append(buf, chunk...)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return err
		}
		if len(chunk) > 0 || len(buf) > 0 || tooLong {
			p.line++
			if tooLong {
				p.lastFunc, p.lastCFI = -1, -1
				p.skip(TagLineTooLong)
			} else if perr := p.parseLine(strings.TrimRight(string(buf), "\r\n")); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return nil
		}
		buf, tooLong = buf[:0], false
	}
}

func (p *parser) parseLine(line string) error {
	if line == "" {
		return nil
	}
	recordType, _, _ := strings.Cut(line, " ")
	switch recordType {
	case recordModule:
		p.lastFunc, p.lastCFI = -1, -1
		return p.parseModule(line)
	case recordInfo:
		p.lastFunc, p.lastCFI = -1, -1
		p.parseInfo(line)
	case recordFile:
		p.lastFunc, p.lastCFI = -1, -1
		p.parseFile(line)
	case recordFunc:
		p.lastCFI = -1
		p.parseFunc(line)
	case recordInlineOrigin:
		p.lastFunc, p.lastCFI = -1, -1
		p.parseInlineOrigin(line)
	case recordInline:
		p.lastCFI = -1
		p.parseInline(line)
	case recordPublic:
		p.lastFunc, p.lastCFI = -1, -1
		p.parsePublic(line)
	case recordStack:
		p.lastFunc = -1
		p.parseStack(line)
	default:
		if p.lastFunc >= 0 && isHexDigit(line[0]) {
			p.parseSourceLine(line)
			return nil
		}
		// Unknown record kinds are ignored, but remembered in case the
		// whole input turns out to be garbage.
		p.lastFunc, p.lastCFI = -1, -1
		if p.firstUnknown == 0 {
			p.firstUnknown = p.line
		}
	}
	return nil
}

func (p *parser) skip(tag string) {
	p.file.SkippedRecords++
	if len(p.file.Diagnostics) < maxDiagnostics {
		p.file.Diagnostics = append(p.file.Diagnostics, Diagnostic{Line: p.line, Tag: tag})
	}
}

func (p *parser) parseModule(line string) error {
	if p.hasModule {
		p.skip(TagDuplicateModule)
		return nil
	}
	tokens := strings.SplitN(line, " ", moduleLen)
	if len(tokens) < moduleLen || tokens[moduleName] == "" {
		return &ParseError{Tag: TagBadModule, Line: p.line}
	}
	p.hasModule = true
	p.file.OS = tokens[moduleOS]
	p.file.Arch = tokens[moduleArch]
	p.file.DebugID = tokens[moduleID]
	p.file.DebugFile = tokens[moduleName]
	return nil
}

func (p *parser) parseInfo(line string) {
	tokens := strings.SplitN(line, " ", 4)
	if len(tokens) < 2 {
		p.skip(TagBadInfo)
		return
	}
	if tokens[1] != infoCodeID {
		return
	}
	if len(tokens) < 3 {
		p.skip(TagBadInfo)
		return
	}
	p.file.CodeID = tokens[2]
	if len(tokens) == 4 {
		p.file.CodeFile = tokens[3]
	}
}

func (p *parser) parseFile(line string) {
	tokens := strings.SplitN(line, " ", fileLen)
	if len(tokens) < fileLen {
		p.skip(TagBadFile)
		return
	}
	num, err := strconv.ParseUint(tokens[fileNumber], 10, 32)
	if err != nil {
		p.skip(TagBadFile)
		return
	}
	p.file.Files[uint32(num)] = tokens[fileName]
}

// splitMultiple splits a FUNC or PUBLIC record into n tokens, dropping the
// optional multiple marker.
func splitMultiple(line string, n int) ([]string, bool) {
	head, rest, _ := strings.Cut(line, " ")
	multiple := false
	if marker, after, ok := strings.Cut(rest, " "); ok && marker == multipleMarker {
		rest, multiple = after, true
	}
	return append([]string{head}, strings.SplitN(rest, " ", n-1)...), multiple
}

func (p *parser) parseFunc(line string) {
	p.lastFunc = -1
	tokens, multiple := splitMultiple(line, funcLen)
	if len(tokens) < funcLen {
		p.skip(TagBadFunc)
		return
	}
	address, err := ParseAddress(tokens[funcAddress])
	if err != nil {
		p.skip(TagBadFunc)
		return
	}
	size, err := ParseAddress(tokens[funcSize])
	if err != nil {
		p.skip(TagBadFunc)
		return
	}
	paramSize, err := parseHex32(tokens[funcParamSize])
	if err != nil {
		p.skip(TagBadFunc)
		return
	}
	if !p.checkRange(address, size) {
		return
	}
	p.file.Functions = append(p.file.Functions, Function{
		Address:       address,
		Size:          size,
		ParameterSize: paramSize,
		Name:          tokens[funcName],
		Multiple:      multiple,
	})
	p.lastFunc = len(p.file.Functions) - 1
}

func (p *parser) parseSourceLine(line string) {
	tokens := strings.Fields(line)
	if len(tokens) != lineLen {
		p.skip(TagBadLine)
		return
	}
	address, err := ParseAddress(tokens[lineAddress])
	if err != nil {
		p.skip(TagBadLine)
		return
	}
	size, err := ParseAddress(tokens[lineSize])
	if err != nil {
		p.skip(TagBadLine)
		return
	}
	lineNo, err := strconv.ParseUint(tokens[lineLine], 10, 32)
	if err != nil {
		p.skip(TagBadLine)
		return
	}
	file, err := strconv.ParseUint(tokens[lineFileNumber], 10, 32)
	if err != nil {
		p.skip(TagBadLine)
		return
	}
	if address+size < address {
		p.skip(TagAddressOverflow)
		return
	}
	f := &p.file.Functions[p.lastFunc]
	if address+size <= f.Address || address >= f.Address+f.Size {
		p.skip(TagLineOutsideFunc)
		return
	}
	f.Lines = append(f.Lines, SourceLine{
		Address: address,
		Size:    size,
		Line:    uint32(lineNo),
		File:    uint32(file),
	})
}

func (p *parser) parseInlineOrigin(line string) {
	tokens := strings.SplitN(line, " ", inlineOriginLen)
	if len(tokens) < inlineOriginLen {
		p.skip(TagBadInlineOrigin)
		return
	}
	id, err := strconv.ParseUint(tokens[inlineOriginID], 10, 32)
	if err != nil {
		p.skip(TagBadInlineOrigin)
		return
	}
	p.file.InlineOrigins[uint32(id)] = tokens[inlineOriginName]
}

func (p *parser) parseInline(line string) {
	if p.lastFunc < 0 {
		p.skip(TagBadInline)
		return
	}
	tokens := strings.Fields(line)
	if len(tokens) < inlineRanges+2 || (len(tokens)-inlineRanges)%2 != 0 {
		p.skip(TagBadInline)
		return
	}
	var fields [inlineRanges]uint32
	for i := inlineDepth; i < inlineRanges; i++ {
		v, err := strconv.ParseUint(tokens[i], 10, 32)
		if err != nil {
			p.skip(TagBadInline)
			return
		}
		fields[i] = uint32(v)
	}
	inline := Inline{
		Depth:    fields[inlineDepth],
		CallLine: fields[inlineCallLine],
		CallFile: fields[inlineCallFile],
		Origin:   fields[inlineOrigin],
	}
	for i := inlineRanges; i+1 < len(tokens); i += 2 {
		address, err := ParseAddress(tokens[i])
		if err != nil {
			p.skip(TagBadInline)
			return
		}
		size, err := ParseAddress(tokens[i+1])
		if err != nil {
			p.skip(TagBadInline)
			return
		}
		inline.Ranges = append(inline.Ranges, Range{Address: address, Size: size})
	}
	f := &p.file.Functions[p.lastFunc]
	f.Inlines = append(f.Inlines, inline)
}

func (p *parser) parsePublic(line string) {
	tokens, multiple := splitMultiple(line, publicLen)
	if len(tokens) < publicLen {
		p.skip(TagBadPublic)
		return
	}
	address, err := ParseAddress(tokens[publicAddress])
	if err != nil {
		p.skip(TagBadPublic)
		return
	}
	paramSize, err := parseHex32(tokens[publicParamSize])
	if err != nil {
		p.skip(TagBadPublic)
		return
	}
	if p.opt.moduleSize != 0 && address >= p.opt.moduleSize {
		p.skip(TagOutsideModule)
		return
	}
	p.file.Publics = append(p.file.Publics, PublicSymbol{
		Address:       address,
		ParameterSize: paramSize,
		Name:          tokens[publicName],
		Multiple:      multiple,
	})
}

func (p *parser) parseStack(line string) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		p.skip(TagBadStack)
		return
	}
	switch tokens[1] {
	case stackCFI:
		p.parseCFI(tokens)
	case stackWin:
		p.lastCFI = -1
		p.parseWin(line)
	default:
		p.lastCFI = -1
		p.skip(TagBadStack)
	}
}

func (p *parser) parseCFI(tokens []string) {
	if len(tokens) >= 3 && tokens[2] == stackCFIInit {
		p.lastCFI = -1
		// STACK CFI INIT address size rules...
		if len(tokens) < 6 {
			p.skip(TagBadCFI)
			return
		}
		address, err := ParseAddress(tokens[3])
		if err != nil {
			p.skip(TagBadCFI)
			return
		}
		size, err := ParseAddress(tokens[4])
		if err != nil {
			p.skip(TagBadCFI)
			return
		}
		rules, ok := parseCFIRules(tokens[5:])
		if !ok {
			p.skip(TagBadCFI)
			return
		}
		if !p.checkRange(address, size) {
			return
		}
		p.file.CFI = append(p.file.CFI, CFIInfo{Address: address, Size: size, Init: rules})
		p.lastCFI = len(p.file.CFI) - 1
		return
	}

	// STACK CFI address rules...
	if p.lastCFI < 0 {
		p.skip(TagOrphanCFI)
		return
	}
	if len(tokens) < 4 {
		p.skip(TagBadCFI)
		return
	}
	address, err := ParseAddress(tokens[2])
	if err != nil {
		p.skip(TagBadCFI)
		return
	}
	rules, ok := parseCFIRules(tokens[3:])
	if !ok {
		p.skip(TagBadCFI)
		return
	}
	init := &p.file.CFI[p.lastCFI]
	if address < init.Address || address-init.Address >= init.Size {
		p.skip(TagCFIOutsideInit)
		return
	}
	init.Deltas = append(init.Deltas, CFIDelta{Address: address, Rules: rules})
}

// parseCFIRules parses "REG: EXPR REG: EXPR ..." where every register token
// ends with a colon and expressions run until the next register token.
func parseCFIRules(tokens []string) (CFIRules, bool) {
	var (
		rules CFIRules
		expr  []string
	)
	flush := func() bool {
		if len(rules) == 0 {
			return len(expr) == 0
		}
		if len(expr) == 0 {
			return false
		}
		rules[len(rules)-1].Expr = strings.Join(expr, " ")
		expr = expr[:0]
		return true
	}
	for _, tok := range tokens {
		if reg, ok := strings.CutSuffix(tok, ":"); ok {
			if reg == "" || !flush() {
				return nil, false
			}
			rules = append(rules, CFIRule{Register: reg})
			continue
		}
		expr = append(expr, tok)
	}
	if !flush() || len(rules) == 0 {
		return nil, false
	}
	return rules, true
}

func (p *parser) parseWin(line string) {
	tokens := strings.SplitN(line, " ", winLen)
	if len(tokens) < winLen {
		p.skip(TagBadWin)
		return
	}
	var fields [winProgramOrBP]uint64
	for i := winType; i < winProgramOrBP; i++ {
		v, err := ParseAddress(tokens[i])
		if err != nil {
			p.skip(TagBadWin)
			return
		}
		fields[i] = v
	}
	for i := winPrologSize; i < winProgramOrBP; i++ {
		if fields[i] > 0xffffffff {
			p.skip(TagBadWin)
			return
		}
	}
	info := WinStackInfo{
		Type:              WinStackType(fields[winType]),
		Address:           fields[winAddress],
		Size:              fields[winSize],
		PrologSize:        uint32(fields[winPrologSize]),
		EpilogSize:        uint32(fields[winEpilogSize]),
		ParameterSize:     uint32(fields[winParamSize]),
		SavedRegisterSize: uint32(fields[winSavedRegSize]),
		LocalSize:         uint32(fields[winLocalSize]),
		MaxStackSize:      uint32(fields[winMaxStackSize]),
		HasProgramString:  fields[winHasProgram] != 0,
	}
	if info.HasProgramString {
		info.ProgramString = strings.TrimSpace(tokens[winProgramOrBP])
		if info.ProgramString == "" {
			p.skip(TagBadWin)
			return
		}
	} else {
		bp, err := ParseAddress(strings.TrimSpace(tokens[winProgramOrBP]))
		if err != nil {
			p.skip(TagBadWin)
			return
		}
		info.AllocatesBasePointer = bp != 0
	}
	if !p.checkRange(info.Address, info.Size) {
		return
	}
	switch info.Type {
	case WinStackFrameData:
		p.file.WinFrameData = append(p.file.WinFrameData, info)
	case WinStackFPO:
		p.file.WinFPO = append(p.file.WinFPO, info)
	default:
		p.skip(TagUnknownWinStack)
	}
}

// checkRange reports whether [address, address+size) is a usable range
// inside the module, recording a diagnostic otherwise.
func (p *parser) checkRange(address, size uint64) bool {
	if address+size < address {
		p.skip(TagAddressOverflow)
		return false
	}
	if p.opt.moduleSize != 0 && address >= p.opt.moduleSize {
		p.skip(TagOutsideModule)
		return false
	}
	return true
}

// finish sorts every address indexed table once parsing is done.
func (f *SymbolFile) finish() {
	sort.SliceStable(f.Functions, func(i, j int) bool {
		return f.Functions[i].Address < f.Functions[j].Address
	})
	for i := range f.Functions {
		lines := f.Functions[i].Lines
		sort.SliceStable(lines, func(i, j int) bool {
			return lines[i].Address < lines[j].Address
		})
	}
	sort.SliceStable(f.Publics, func(i, j int) bool {
		return f.Publics[i].Address < f.Publics[j].Address
	})
	sort.SliceStable(f.CFI, func(i, j int) bool {
		return f.CFI[i].Address < f.CFI[j].Address
	})
	for i := range f.CFI {
		deltas := f.CFI[i].Deltas
		sort.SliceStable(deltas, func(i, j int) bool {
			return deltas[i].Address < deltas[j].Address
		})
	}
	sortWin(f.WinFrameData)
	sortWin(f.WinFPO)
}

func sortWin(s []WinStackInfo) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Address < s[j].Address
	})
}

// ParseAddress converts a hex string in either 0xABC123 or just ABC123 form
// into an integer.
func ParseAddress(addr string) (uint64, error) {
	addr = strings.TrimPrefix(addr, "0x")
	return strconv.ParseUint(addr, 16, 64)
}

func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return uint32(v), nil
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
