package fsys

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// BillyFS implements FS using go-billy.
type BillyFS struct {
	fs billy.Filesystem
}

// New creates a BillyFS over the given go-billy filesystem.
func New(fsys billy.Filesystem) *BillyFS {
	return &BillyFS{fs: fsys}
}

// NewMemory creates a new in-memory filesystem.
func NewMemory() *BillyFS {
	return &BillyFS{fs: memfs.New()}
}

// NewOS creates a filesystem rooted at the given OS path. Paths passed to
// the returned FS are relative to root.
func NewOS(root string) *BillyFS {
	return &BillyFS{fs: osfs.New(root)}
}

// Create implements FS.Create.
func (b *BillyFS) Create(name string) (File, error) {
	f, err := b.fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("fsys: create %q: %w", name, err)
	}
	return &file{file: f, fs: b}, nil
}

// Exists implements FS.Exists.
func (b *BillyFS) Exists(path string) (bool, error) {
	_, err := b.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("fsys: stat %q: %w", path, err)
	}
}

// Glob implements FS.Glob. Patterns follow path.Match syntax, matched
// per path segment.
func (b *BillyFS) Glob(pattern string) ([]string, error) {
	matches, err := util.Glob(b.fs, pattern)
	if err != nil {
		return nil, fmt.Errorf("fsys: glob %q: %w", pattern, err)
	}
	return matches, nil
}

// MkdirAll implements FS.MkdirAll.
func (b *BillyFS) MkdirAll(path string, perm os.FileMode) error {
	if err := b.fs.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("fsys: mkdirall %q: %w", path, err)
	}
	return nil
}

// Open implements FS.Open.
func (b *BillyFS) Open(name string) (File, error) {
	f, err := b.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("fsys: open %q: %w", name, err)
	}
	return &file{file: f, fs: b}, nil
}

// ReadDir implements FS.ReadDir.
func (b *BillyFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	list, err := b.fs.ReadDir(dirname)
	if err != nil {
		return nil, fmt.Errorf("fsys: readdir %q: %w", dirname, err)
	}
	return list, nil
}

// ReadFile implements FS.ReadFile.
func (b *BillyFS) ReadFile(path string) ([]byte, error) {
	bts, err := util.ReadFile(b.fs, path)
	if err != nil {
		return nil, fmt.Errorf("fsys: readfile %q: %w", path, err)
	}
	return bts, nil
}

// Remove implements FS.Remove.
func (b *BillyFS) Remove(name string) error {
	if err := b.fs.Remove(name); err != nil {
		return fmt.Errorf("fsys: remove %q: %w", name, err)
	}
	return nil
}

// Stat implements FS.Stat.
func (b *BillyFS) Stat(name string) (os.FileInfo, error) {
	info, err := b.fs.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("fsys: stat %q: %w", name, err)
	}
	return info, nil
}

// Walk implements FS.Walk.
func (b *BillyFS) Walk(root string, walkFn filepath.WalkFunc) error {
	if err := util.Walk(b.fs, root, walkFn); err != nil {
		return fmt.Errorf("fsys: walk %q: %w", root, err)
	}
	return nil
}

// WriteFile implements FS.WriteFile.
func (b *BillyFS) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if err := util.WriteFile(b.fs, filename, data, perm); err != nil {
		return fmt.Errorf("fsys: writefile %q: %w", filename, err)
	}
	return nil
}

// Raw returns the underlying go-billy filesystem.
func (b *BillyFS) Raw() billy.Filesystem {
	return b.fs
}

// file wraps a go-billy File and satisfies the File interface.
type file struct {
	file billy.File
	fs   *BillyFS
}

// Close implements File.Close.
func (f *file) Close() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("fsys: close %q: %w", f.file.Name(), err)
	}
	return nil
}

// Name implements File.Name.
func (f *file) Name() string {
	return f.file.Name()
}

// Read implements File.Read.
func (f *file) Read(p []byte) (n int, err error) {
	n, err = f.file.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, fmt.Errorf("fsys: read %q: %w", f.file.Name(), err)
	}
	return n, nil
}

// Seek implements File.Seek.
func (f *file) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.file.Seek(offset, whence)
	if err != nil {
		return pos, fmt.Errorf("fsys: seek %q: %w", f.file.Name(), err)
	}
	return pos, nil
}

// Stat implements File.Stat.
func (f *file) Stat() (fs.FileInfo, error) {
	info, err := f.fs.Stat(f.file.Name())
	if err != nil {
		return nil, fmt.Errorf("fsys: stat %q: %w", f.file.Name(), err)
	}
	return info, nil
}

// Write implements File.Write.
func (f *file) Write(p []byte) (n int, err error) {
	n, err = f.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("fsys: write %q: %w", f.file.Name(), err)
	}
	return n, nil
}
