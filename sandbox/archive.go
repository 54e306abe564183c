package sandbox

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"path/filepath"
	"time"
)

// ArchiveArtifacts bundles the given artifact files into a tar.gz
// archive. Entries are stored flat under their base names, in the
// order given, so the archive mirrors the creation order of the
// artifacts.
func ArchiveArtifacts(fs FileSystem, paths []string) ([]byte, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, path := range paths {
		data, err := fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
		}
		header := &tar.Header{
			Name:    filepath.Base(path),
			Mode:    FilePermission,
			Size:    int64(len(data)),
			ModTime: time.Now(),
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", path, err)
		}
		if _, err := tarWriter.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write tar entry for %s: %w", path, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
