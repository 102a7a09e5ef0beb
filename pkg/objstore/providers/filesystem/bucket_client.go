// Package filesystem provides the on-disk bucket used to cache downloaded
// symbol files. Objects are plain files under the root directory, so callers
// can hand out their local paths.
package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/grafana/dskit/runutil"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
)

type Bucket struct {
	objstore.Bucket
	rootDir string
}

// NewBucket returns a new filesystem.Bucket rooted at rootDir, creating the
// directory if needed.
func NewBucket(rootDir string, middlewares ...func(objstore.Bucket) (objstore.Bucket, error)) (*Bucket, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache directory %s", rootDir)
	}
	var (
		b   objstore.Bucket
		err error
	)
	b, err = filesystem.NewBucket(rootDir)
	if err != nil {
		return nil, err
	}
	for _, wrap := range middlewares {
		b, err = wrap(b)
		if err != nil {
			return nil, err
		}
	}
	return &Bucket{Bucket: b, rootDir: rootDir}, nil
}

// LocalPath returns the path of the object name on local disk. Object names
// always use "/" as separator.
func (b *Bucket) LocalPath(name string) string {
	return filepath.Join(b.rootDir, filepath.FromSlash(name))
}

// Size returns the size of the object name in bytes.
func (b *Bucket) Size(name string) (size int64, err error) {
	f, err := os.Open(b.LocalPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(err, "object %s", name)
		}
		return 0, err
	}
	defer runutil.CloseWithErrCapture(&err, f, "close %s", name)

	fi, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", name)
	}
	return fi.Size(), nil
}

// UploadAtomic writes r to a temporary object next to name and renames it
// into place once fully written, so that a partially downloaded file is
// never visible under its final name.
func (b *Bucket) UploadAtomic(ctx context.Context, name string, r io.Reader) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	dst := b.LocalPath(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", name)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "create temporary file for %s", name)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", name)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", name)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrapf(err, "rename %s", name)
	}
	return nil
}

// Objects lists every object below dir, recursively.
func (b *Bucket) Objects(ctx context.Context, dir string) ([]string, error) {
	if dir != "" {
		dir = strings.TrimSuffix(dir, objstore.DirDelim) + objstore.DirDelim
	}
	var names []string
	err := b.Iter(ctx, dir, func(name string) error {
		if strings.HasSuffix(name, objstore.DirDelim) {
			return nil
		}
		// Temporary files of in-flight uploads.
		if strings.HasPrefix(filepath.Base(name), ".") {
			return nil
		}
		names = append(names, name)
		return nil
	}, objstore.WithRecursiveIter())
	return names, err
}
