package symfile

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ParseFile opens and parses the symbol file at path. Gzip and zstd
// compressed files are decompressed transparently.
func ParseFile(path string, opts ...Option) (*SymbolFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseCompressed(f, opts...)
}

// ParseCompressed is like Parse, but detects gzip or zstd compression from
// the first bytes of r.
func ParseCompressed(r io.Reader, opts ...Option) (*SymbolFile, error) {
	rc, err := Decompress(r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return Parse(rc, opts...)
}

// Decompress peeks at the beginning of r and wraps it in a decompressor
// if it starts with a gzip or zstd signature. Uncompressed input is
// returned unchanged.
func Decompress(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(4)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("peek header: %w", err)
	}

	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gr, nil
	case len(header) >= 4 && header[0] == 0x28 && header[1] == 0xb5 && header[2] == 0x2f && header[3] == 0xfd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	}
	return io.NopCloser(br), nil
}
