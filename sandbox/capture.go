package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File permission constants for the artifact store.
const (
	DirPermission  = 0755
	FilePermission = 0600
)

// Clock abstracts wall-clock access so tests can pin artifact names
// and elapsed times.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock with the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FileSystem defines the file operations the artifact store needs.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
}

// RealFileSystem implements FileSystem using actual file system operations.
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// boundedBuffer accumulates text up to a fixed byte cap. Writes past
// the cap are dropped and the buffer is marked truncated, so a runaway
// print loop cannot grow memory while it waits for the timeout.
// Safe for use from the worker goroutine while the host inspects the
// truncated flag.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) WriteString(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return
	}
	remaining := b.limit - len(b.buf)
	if remaining <= 0 {
		b.truncated = true
		return
	}
	if len(s) > remaining {
		b.buf = append(b.buf, s[:remaining]...)
		b.truncated = true
		return
	}
	b.buf = append(b.buf, s...)
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Capture intercepts the textual output of one execution. The print
// and console capabilities write here instead of the process streams,
// so nothing sandboxed code prints can reach the host's stdout.
type Capture struct {
	stdout *boundedBuffer
	stderr *boundedBuffer
}

// NewCapture builds a capture with the given per-stream byte cap.
func NewCapture(maxOutput int) *Capture {
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutputBytes
	}
	return &Capture{
		stdout: newBoundedBuffer(maxOutput),
		stderr: newBoundedBuffer(maxOutput),
	}
}

func (c *Capture) WriteStdoutLine(line string) { c.stdout.WriteString(line + "\n") }
func (c *Capture) WriteStderrLine(line string) { c.stderr.WriteString(line + "\n") }

func (c *Capture) Stdout() string { return c.stdout.String() }
func (c *Capture) Stderr() string { return c.stderr.String() }

// Truncated reports whether either stream hit the cap.
func (c *Capture) Truncated() bool {
	return c.stdout.Truncated() || c.stderr.Truncated()
}

// saveFigures renders every figure the script created and writes each
// one under outputDir as plot_<unixts>_<run>_<seq>.png, returning the
// paths in creation order. The run number comes from a process-wide
// counter, so executions within the same second never overwrite each
// other. Figures that fail to render are skipped with a note on stderr
// rather than failing the whole result.
func saveFigures(fs FileSystem, clock Clock, outputDir string, runID int64, figures []*Figure, c *Capture) []string {
	if len(figures) == 0 {
		return nil
	}
	if err := fs.MkdirAll(outputDir, DirPermission); err != nil {
		c.WriteStderrLine(fmt.Sprintf("failed to create output directory: %v", err))
		return nil
	}
	stamp := clock.Now().Unix()
	paths := make([]string, 0, len(figures))
	for _, fig := range figures {
		data, err := fig.render()
		if err != nil {
			c.WriteStderrLine(err.Error())
			continue
		}
		name := fmt.Sprintf("plot_%d_%d_%d.png", stamp, runID, fig.seq)
		path := filepath.Join(outputDir, name)
		if err := fs.WriteFile(path, data, FilePermission); err != nil {
			c.WriteStderrLine(fmt.Sprintf("failed to save figure %d: %v", fig.seq, err))
			continue
		}
		paths = append(paths, path)
	}
	return paths
}
