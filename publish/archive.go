package publish

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"time"

	"github.com/AlecRosenbaum/GearGen/artifact"
)

// archiveSet renders an artifact set as a deterministic tar.gz: files in
// the set's canonical walk order, fixed timestamps, 0644 modes. Equal sets
// produce byte-identical archives, which keeps pushed layer digests
// stable across re-publishes of the same build.
func archiveSet(set *artifact.Set) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := set.Walk(func(name string, f artifact.File) error {
		hdr := &tar.Header{
			Name:    f.Path,
			Mode:    0o644,
			Size:    int64(len(f.Content)),
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %q: %w", f.Path, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return fmt.Errorf("writing %q: %w", f.Path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip: %w", err)
	}
	return buf.Bytes(), nil
}
