package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketUploadAtomic(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	b, err := NewBucket(dir)
	require.NoError(t, err)

	name := "foo.pdb/ABCD1234ABCD1234ABCDABCD12345678a/foo.sym"
	require.NoError(t, b.UploadAtomic(ctx, name, strings.NewReader("MODULE windows x86 ABCD1234ABCD1234ABCDABCD12345678a foo.pdb\n")))

	exists, err := b.Exists(ctx, name)
	require.NoError(t, err)
	require.True(t, exists)

	data, err := os.ReadFile(b.LocalPath(name))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "MODULE windows"))

	size, err := b.Size(name)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), size)

	objects, err := b.Objects(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{name}, objects)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestBucketUploadAtomicFailure(t *testing.T) {
	ctx := context.Background()
	b, err := NewBucket(t.TempDir())
	require.NoError(t, err)

	name := "bar/1/bar.sym"
	err = b.UploadAtomic(ctx, name, io.MultiReader(strings.NewReader("MODULE"), failingReader{}))
	require.Error(t, err)

	exists, err := b.Exists(ctx, name)
	require.NoError(t, err)
	require.False(t, exists)

	entries, err := os.ReadDir(filepath.Dir(b.LocalPath(name)))
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = b.Size(name)
	require.ErrorIs(t, err, os.ErrNotExist)
}
