package symfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

const testSymbols = `MODULE Linux x86 ABCD1234ABCD1234ABCDABCD12345678a foo
INFO CODE_ID B1A2C3D4E5F6 foo.so
FILE 1 foo.c
FILE 2 bar.h
INLINE_ORIGIN 0 inlined_helper
FUNC 1000 30 10 some func
1000 10 100 1
1010 20 101 1
INLINE 0 102 2 0 1018 8
FUNC m 2000 20 4 folded func
2000 20 7 9
PUBLIC 1800 0 public_symbol
PUBLIC m 3000 8 other_public
STACK CFI INIT 1000 30 .cfa: $esp 4 + .ra: .cfa 4 - ^
STACK CFI 1001 .cfa: $esp 8 + $ebp: .cfa 8 - ^
STACK CFI 1004 .cfa: $ebp 8 +
STACK WIN 4 1000 30 3 0 8 4 10 0 1 $T0 $ebp = $eip $T0 4 + ^ = $ebp $T0 ^ = $esp $T0 8 + =
STACK WIN 0 2000 20 1 0 4 4 8 0 0 1
`

func TestParse(t *testing.T) {
	sf, err := ParseBytes([]byte(testSymbols))
	require.NoError(t, err)

	require.Equal(t, "Linux", sf.OS)
	require.Equal(t, "x86", sf.Arch)
	require.Equal(t, "ABCD1234ABCD1234ABCDABCD12345678a", sf.DebugID)
	require.Equal(t, "foo", sf.DebugFile)
	require.Equal(t, "B1A2C3D4E5F6", sf.CodeID)
	require.Equal(t, "foo.so", sf.CodeFile)
	require.Equal(t, map[uint32]string{1: "foo.c", 2: "bar.h"}, sf.Files)

	require.Len(t, sf.Functions, 2)
	require.Equal(t, "some func", sf.Functions[0].Name)
	require.Equal(t, uint32(0x10), sf.Functions[0].ParameterSize)
	require.Len(t, sf.Functions[0].Lines, 2)
	require.Len(t, sf.Functions[0].Inlines, 1)
	require.True(t, sf.Functions[1].Multiple)
	require.Equal(t, "folded func", sf.Functions[1].Name)

	require.Len(t, sf.Publics, 2)
	require.False(t, sf.Publics[0].Multiple)
	require.True(t, sf.Publics[1].Multiple)
	require.Equal(t, uint32(8), sf.Publics[1].ParameterSize)

	require.Len(t, sf.CFI, 1)
	require.Len(t, sf.CFI[0].Deltas, 2)
	require.Equal(t, CFIRules{
		{Register: ".cfa", Expr: "$esp 4 +"},
		{Register: ".ra", Expr: ".cfa 4 - ^"},
	}, sf.CFI[0].Init)

	require.Len(t, sf.WinFrameData, 1)
	require.True(t, sf.WinFrameData[0].HasProgramString)
	require.Equal(t, "$T0 $ebp = $eip $T0 4 + ^ = $ebp $T0 ^ = $esp $T0 8 + =", sf.WinFrameData[0].ProgramString)
	require.Equal(t, uint32(0x10), sf.WinFrameData[0].LocalSize)
	require.Len(t, sf.WinFPO, 1)
	require.False(t, sf.WinFPO[0].HasProgramString)
	require.True(t, sf.WinFPO[0].AllocatesBasePointer)

	require.Empty(t, sf.Diagnostics)
}

func TestParseMinimal(t *testing.T) {
	sf, err := ParseBytes([]byte("MODULE Linux x86 ABCD1234ABCD1234ABCDABCD12345678a foo\r\nFILE 1 foo.c\r\nFUNC 1000 30 10 some func\r\n1000 30 100 1\r\n"))
	require.NoError(t, err)

	fn, ok := sf.FunctionAt(0x1010)
	require.True(t, ok)
	require.Equal(t, "some func", fn.Name)
	require.Equal(t, uint64(0x1000), fn.Address)

	line, file, ok := sf.LineAt(fn, 0x1010)
	require.True(t, ok)
	require.Equal(t, "foo.c", file)
	require.Equal(t, uint32(100), line.Line)
	require.Equal(t, uint64(0x1000), line.Address)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		tag   string
		line  uint64
	}{
		{
			name:  "not a symbol file",
			input: "this is not a symbol file\n",
			tag:   TagTotallyUnparsable,
			line:  1,
		},
		{
			name:  "empty",
			input: "",
			tag:   TagTotallyUnparsable,
			line:  0,
		},
		{
			name:  "only garbage and stack records",
			input: "FILE 1 foo.c\nSTACK CFI INIT 1000 30 .cfa: $esp 4 +\n\nnonsense here\n",
			tag:   TagTotallyUnparsable,
			line:  4,
		},
		{
			name:  "malformed module",
			input: "FUNC 1000 30 10 f\nMODULE Linux x86\n",
			tag:   TagBadModule,
			line:  2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.input))
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
			require.Equal(t, tt.tag, perr.Tag)
			require.Equal(t, tt.line, perr.Line)
		})
	}
}

func TestParseSkipsMalformedRecords(t *testing.T) {
	input := strings.Join([]string{
		"MODULE Linux x86 ABCD1234ABCD1234ABCDABCD12345678a foo",
		"FILE x foo.c",
		"FUNC zzzz 30 10 bad address",
		"FUNC 1000 30 10 good",
		"1000 10",
		"5000 10 1 1",
		"1010 10 3 1",
		"PUBLIC 12",
		"STACK CFI 1000 .cfa: $esp 4 +",
		"STACK CFI INIT 1000 30 .cfa:",
		"STACK WIN 4 1000",
		"STACK WIN 2 1000 30 0 0 0 0 0 0 0 0",
		"MODULE Linux x86 ABCD1234ABCD1234ABCDABCD12345678a again",
		"FUNC ffffffffffffffff 10 0 overflow",
	}, "\n")
	sf, err := ParseBytes([]byte(input))
	require.NoError(t, err)
	require.Len(t, sf.Functions, 1)
	require.Len(t, sf.Functions[0].Lines, 1)
	require.Empty(t, sf.Publics)
	require.Empty(t, sf.CFI)
	require.Empty(t, sf.WinFrameData)
	require.Equal(t, "foo", sf.DebugFile)

	require.Equal(t, []Diagnostic{
		{Line: 2, Tag: TagBadFile},
		{Line: 3, Tag: TagBadFunc},
		{Line: 5, Tag: TagBadLine},
		{Line: 6, Tag: TagLineOutsideFunc},
		{Line: 8, Tag: TagBadPublic},
		{Line: 9, Tag: TagOrphanCFI},
		{Line: 10, Tag: TagBadCFI},
		{Line: 11, Tag: TagBadWin},
		{Line: 12, Tag: TagUnknownWinStack},
		{Line: 13, Tag: TagDuplicateModule},
		{Line: 14, Tag: TagAddressOverflow},
	}, sf.Diagnostics)
	require.Equal(t, len(sf.Diagnostics), sf.SkippedRecords)
}

func TestParseSkipsOversizedRecord(t *testing.T) {
	input := "MODULE Linux x86 ABCD1234ABCD1234ABCDABCD12345678a foo\n" +
		"FUNC 1000 10 0 " + strings.Repeat("x", maxLineLength) + "\n" +
		"1000 10 1 0\n" +
		"PUBLIC 2000 0 bar\n"
	sf, err := ParseBytes([]byte(input))
	require.NoError(t, err)
	require.Empty(t, sf.Functions)
	require.Len(t, sf.Publics, 1)
	require.Equal(t, "bar", sf.Publics[0].Name)
	// The line record after the oversized FUNC has nothing to attach to.
	require.Equal(t, []Diagnostic{{Line: 2, Tag: TagLineTooLong}}, sf.Diagnostics)
	require.Equal(t, 1, sf.SkippedRecords)
}

func TestParseModuleSize(t *testing.T) {
	input := `MODULE Linux x86 ABCD1234ABCD1234ABCDABCD12345678a foo
FUNC 1000 30 0 inside
FUNC 5000 30 0 outside
PUBLIC 6000 0 outside_public
STACK CFI INIT 7000 10 .cfa: $esp 4 + .ra: .cfa 4 - ^
`
	sf, err := ParseBytes([]byte(input), WithModuleSize(0x2000))
	require.NoError(t, err)
	require.Len(t, sf.Functions, 1)
	require.Empty(t, sf.Publics)
	require.Empty(t, sf.CFI)
	require.Equal(t, 3, sf.SkippedRecords)

	sf, err = ParseBytes([]byte(input))
	require.NoError(t, err)
	require.Len(t, sf.Functions, 2)
}

func TestParseUnsortedInput(t *testing.T) {
	input := `MODULE Linux x86 ABCD1234ABCD1234ABCDABCD12345678a foo
FILE 1 a.c
FUNC 3000 10 0 third
3008 8 31 1
3000 8 30 1
FUNC 1000 10 0 first
FUNC 2000 10 0 second
PUBLIC 500 0 p2
PUBLIC 100 0 p1
`
	sf, err := ParseBytes([]byte(input))
	require.NoError(t, err)
	require.Equal(t, "first", sf.Functions[0].Name)
	require.Equal(t, "second", sf.Functions[1].Name)
	require.Equal(t, "third", sf.Functions[2].Name)
	require.Equal(t, uint64(0x3000), sf.Functions[2].Lines[0].Address)
	require.Equal(t, "p1", sf.Publics[0].Name)
}

func TestParseCompressed(t *testing.T) {
	dir := t.TempDir()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write([]byte(testSymbols))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	gzPath := filepath.Join(dir, "foo.sym.gz")
	require.NoError(t, os.WriteFile(gzPath, gz.Bytes(), 0o644))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zstPath := filepath.Join(dir, "foo.sym.zst")
	require.NoError(t, os.WriteFile(zstPath, enc.EncodeAll([]byte(testSymbols), nil), 0o644))
	require.NoError(t, enc.Close())

	plainPath := filepath.Join(dir, "foo.sym")
	require.NoError(t, os.WriteFile(plainPath, []byte(testSymbols), 0o644))

	for _, path := range []string{gzPath, zstPath, plainPath} {
		sf, err := ParseFile(path)
		require.NoError(t, err, path)
		require.Len(t, sf.Functions, 2, path)
	}

	_, err = ParseFile(filepath.Join(dir, "missing.sym"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
