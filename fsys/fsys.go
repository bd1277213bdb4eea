// Package fsys provides the filesystem abstraction the pipeline works
// against. Environments expose their workspace through it, the artifact
// collector globs over it, and tests substitute an in-memory filesystem.
// The single implementation is backed by go-billy.
package fsys

import (
	"io/fs"
	"os"
	"path/filepath"
)

// File represents an open file handle supporting basic I/O operations.
// Implementations behave consistently with the standard library.
type File interface {
	Close() error
	Name() string
	Read(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Stat() (fs.FileInfo, error)
	Write(p []byte) (n int, err error)
}

// FS is the filesystem surface the pipeline depends on.
type FS interface {
	Create(name string) (File, error)
	Exists(path string) (bool, error)
	Glob(pattern string) ([]string, error)
	MkdirAll(path string, perm os.FileMode) error
	Open(name string) (File, error)
	ReadDir(dirname string) ([]os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
	Walk(root string, walkFn filepath.WalkFunc) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
}
