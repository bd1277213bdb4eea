// Package artifact collects build outputs from an environment's filesystem
// into an immutable, content-addressed artifact set. Collection is
// all-or-nothing: a glob pattern that matches no files fails the whole
// collection, since a partially-produced output set is not publishable.
package artifact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/AlecRosenbaum/GearGen/fsys"
)

// File is one collected output file.
type File struct {
	// Path is the file's path relative to the environment workspace.
	Path string

	// Size is the file size in bytes at collection time.
	Size int64

	// Digest is the sha256 digest of the file contents at collection time.
	Digest digest.Digest

	// Content is the file's bytes as captured at collection time.
	// Treat as read-only; the set is the publishable snapshot, detached
	// from the environment that produced it.
	Content []byte
}

// Set maps logical artifact names (e.g. "dist", "pkg") to the files their
// glob patterns resolved to. A Set is created once after all stages
// succeed and is read-only thereafter.
type Set struct {
	artifacts map[string][]File
}

// CollectionError reports the first pattern that matched zero files.
type CollectionError struct {
	// Name is the logical artifact name whose pattern failed.
	Name string

	// Pattern is the glob pattern that matched nothing.
	Pattern string
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("artifact %q: pattern %q matched no files", e.Name, e.Pattern)
}

// Collect resolves each named glob pattern against the given filesystem.
// Patterns are resolved in sorted name order so failure reporting is
// deterministic; the first pattern with zero matches aborts collection
// with a *CollectionError naming it. Directories matched by a pattern are
// skipped; a pattern whose matches are all directories counts as empty.
func Collect(fsimpl fsys.FS, patterns map[string]string) (*Set, error) {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	set := &Set{artifacts: make(map[string][]File, len(patterns))}
	for _, name := range names {
		pattern := patterns[name]
		files, err := resolve(fsimpl, pattern)
		if err != nil {
			return nil, fmt.Errorf("resolving artifact %q: %w", name, err)
		}
		if len(files) == 0 {
			return nil, &CollectionError{Name: name, Pattern: pattern}
		}
		set.artifacts[name] = files
	}
	return set, nil
}

func resolve(fsimpl fsys.FS, pattern string) ([]File, error) {
	matches, err := fsimpl.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var files []File
	for _, path := range matches {
		info, err := fsimpl.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		data, err := fsimpl.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			Path:    path,
			Size:    info.Size(),
			Digest:  digest.FromBytes(data),
			Content: data,
		})
	}
	return files, nil
}

// Names returns the logical artifact names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns the files collected for the named artifact, or nil if the
// name is unknown. The returned slice is a copy.
func (s *Set) Files(name string) []File {
	files, ok := s.artifacts[name]
	if !ok {
		return nil
	}
	out := make([]File, len(files))
	copy(out, files)
	return out
}

// Len returns the total number of files across all artifacts.
func (s *Set) Len() int {
	n := 0
	for _, files := range s.artifacts {
		n += len(files)
	}
	return n
}

// Digest returns a stable digest identifying the whole set: the sha256 of
// the sorted (name, path, file digest) triples. Two sets with identical
// contents under identical names have equal digests.
func (s *Set) Digest() digest.Digest {
	var b strings.Builder
	_ = s.Walk(func(name string, f File) error {
		fmt.Fprintf(&b, "%s %s %s\n", name, f.Path, f.Digest)
		return nil
	})
	return digest.FromString(b.String())
}

// Walk visits every collected file in deterministic order (artifact names
// sorted, then file paths sorted within each artifact). It stops at the
// first error.
func (s *Set) Walk(fn func(name string, f File) error) error {
	for _, name := range s.Names() {
		for _, f := range s.artifacts[name] {
			if err := fn(name, f); err != nil {
				return err
			}
		}
	}
	return nil
}
