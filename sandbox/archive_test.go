package sandbox

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readArchive(t *testing.T, data []byte) (names []string, contents map[string][]byte) {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	contents = make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		names = append(names, header.Name)
		contents[header.Name] = body
	}
	return names, contents
}

func TestArchiveArtifacts(t *testing.T) {
	t.Run("BundlesFilesFlatInOrder", func(t *testing.T) {
		fs := &MockFileSystem{
			readFileResults: map[string][]byte{
				"plots/plot_1700000000_1_0.png": []byte("first"),
				"plots/plot_1700000000_1_1.png": []byte("second"),
			},
		}

		data, err := ArchiveArtifacts(fs, []string{
			"plots/plot_1700000000_1_0.png",
			"plots/plot_1700000000_1_1.png",
		})
		require.NoError(t, err)
		require.NotEmpty(t, data)

		names, contents := readArchive(t, data)
		assert.Equal(t, []string{"plot_1700000000_1_0.png", "plot_1700000000_1_1.png"}, names)
		assert.Equal(t, []byte("first"), contents["plot_1700000000_1_0.png"])
		assert.Equal(t, []byte("second"), contents["plot_1700000000_1_1.png"])
	})

	t.Run("NoArtifacts", func(t *testing.T) {
		data, err := ArchiveArtifacts(&MockFileSystem{}, nil)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("ReadFailure", func(t *testing.T) {
		fs := &MockFileSystem{
			readFileErrors: map[string]error{
				"plots/missing.png": fmt.Errorf("no such file"),
			},
		}

		_, err := ArchiveArtifacts(fs, []string{"plots/missing.png"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing.png")
	})
}
