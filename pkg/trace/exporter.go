//go:build tracing

package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Enabled reports whether this binary was built with the tracing tag.
const Enabled = true

// ErrExporterClosed is returned by Export after Close.
var ErrExporterClosed = errors.New("exporter closed")

// FileExporter exports traces to a JSON Lines file with size-based rotation.
// The active file is path; rotated files are path.1 (newest) to path.N.
type FileExporter struct {
	path   string
	cfg    exporterConfig
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	closed bool
}

var _ Exporter = (*FileExporter)(nil)

// NewFileExporter creates a file-based trace exporter. An empty path yields a
// NoopExporter.
func NewFileExporter(filePath string, opts ...FileExporterOption) (Exporter, error) {
	if filePath == "" {
		return &NoopExporter{}, nil
	}

	cfg := defaultExporterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}

	fe := &FileExporter{path: filePath, cfg: cfg}
	if err := fe.open(); err != nil {
		return nil, err
	}
	return fe, nil
}

func (fe *FileExporter) open() error {
	file, err := os.OpenFile(fe.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	fe.file = file
	fe.enc = json.NewEncoder(file)
	return nil
}

// Export writes record as one JSON line, then rotates if the file has grown
// past the size limit.
func (fe *FileExporter) Export(ctx context.Context, record *TraceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fe.mu.Lock()
	defer fe.mu.Unlock()

	if fe.closed {
		return ErrExporterClosed
	}
	if err := fe.enc.Encode(record); err != nil {
		return fmt.Errorf("encode trace record: %w", err)
	}
	if err := fe.rotateIfNeeded(); err != nil {
		return fmt.Errorf("rotate trace file: %w", err)
	}
	return nil
}

// Close syncs and closes the trace file. Closing twice is a no-op.
func (fe *FileExporter) Close() error {
	fe.mu.Lock()
	defer fe.mu.Unlock()

	if fe.closed {
		return nil
	}
	fe.closed = true

	if err := fe.file.Sync(); err != nil {
		fe.file.Close()
		return fmt.Errorf("sync trace file: %w", err)
	}
	return fe.file.Close()
}

// rotateIfNeeded must be called with mu held.
func (fe *FileExporter) rotateIfNeeded() error {
	info, err := fe.file.Stat()
	if err != nil {
		return fmt.Errorf("stat trace file: %w", err)
	}
	if info.Size() < fe.cfg.maxSizeBytes {
		return nil
	}

	if err := fe.file.Close(); err != nil {
		return fmt.Errorf("close trace file for rotation: %w", err)
	}
	if err := fe.shiftRotated(); err != nil {
		return err
	}
	return fe.open()
}

// shiftRotated drops the oldest rotated file, renames path.i to path.i+1 and
// the active file to path.1. Must be called with mu held.
func (fe *FileExporter) shiftRotated() error {
	rotated := func(i int) string { return fe.path + "." + strconv.Itoa(i) }

	oldest := rotated(fe.cfg.maxRotatedFiles)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove oldest rotated file: %w", err)
	}

	for i := fe.cfg.maxRotatedFiles - 1; i >= 1; i-- {
		err := os.Rename(rotated(i), rotated(i+1))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("shift rotated file %d: %w", i, err)
		}
	}

	if err := os.Rename(fe.path, rotated(1)); err != nil {
		return fmt.Errorf("rotate current file: %w", err)
	}
	return nil
}

// RotatedFiles returns the rotated files that currently exist, newest first.
func (fe *FileExporter) RotatedFiles() ([]string, error) {
	dir := filepath.Dir(fe.path)
	prefix := filepath.Base(fe.path) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read trace directory: %w", err)
	}

	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil || n < 1 {
			continue
		}
		found = append(found, numbered{n, filepath.Join(dir, name)})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}
