// Package extract writes verified payloads to disk.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/payload"
	"tangled.org/atscan.net/martifact/internal/types"
)

// ProgressFunc is called as payload bytes are written
type ProgressFunc func(index int, written, total int64)

// Writer places payload i at <dir>/<NNNN>/<file>. Data goes to a temp file
// first and is renamed into place only once the payload verified.
type Writer struct {
	dir      string
	progress ProgressFunc
}

// NewWriter creates a writer rooted at dir. progress may be nil.
func NewWriter(dir string, progress ProgressFunc) *Writer {
	return &Writer{dir: dir, progress: progress}
}

// Path returns where payload index with inner file name ends up
func (w *Writer) Path(index int, name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("payload %04d: unusable file name %q", index, name)
	}
	return filepath.Join(w.dir, fmt.Sprintf("%04d", index), base), nil
}

// Write consumes h and returns the final path. On any failure, including a
// checksum mismatch, nothing is left behind.
func (w *Writer) Write(h *payload.Handle) (string, error) {
	dest, err := w.Path(h.Index(), h.Name())
	if err != nil {
		h.Discard()
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		h.Discard()
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		h.Discard()
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	out := io.Writer(tmp)
	if w.progress != nil {
		out = &progressWriter{w: tmp, index: h.Index(), total: h.Size(), fn: w.progress}
	}

	if _, err := io.Copy(out, h); err != nil {
		h.Discard()
		cleanup()
		return "", err
	}
	if !h.Verify() {
		cleanup()
		if err := h.Err(); err != nil {
			return "", err
		}
		return "", types.ChecksumMismatch(h.Section(), h.Index(), "", "")
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	return dest, nil
}

type progressWriter struct {
	w       io.Writer
	index   int
	written int64
	total   int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.index, p.written, p.total)
	return n, err
}

// File is one extracted payload
type File struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
}

// Summary is the outcome of Extract
type Summary struct {
	Files  []File  `json:"files"`
	Failed []error `json:"-"`
}

// Extract decodes r and writes every verified payload under dir. A payload
// that fails to verify is skipped and recorded in Summary.Failed; extraction
// continues with the next one. The returned error is the fatal decode error.
func Extract(ctx context.Context, r io.Reader, dir string, cfg *artifact.Config, progress ProgressFunc) (*Summary, error) {
	a, err := artifact.Open(ctx, r, cfg)
	if err != nil {
		return nil, err
	}

	w := NewWriter(dir, progress)
	sum := &Summary{}

	err = a.Walk(func(h *payload.Handle) error {
		path, err := w.Write(h)
		if err != nil {
			if types.KindOf(err) == types.KindChecksumMismatch {
				sum.Failed = append(sum.Failed, err)
				return nil
			}
			return err
		}
		sum.Files = append(sum.Files, File{Index: h.Index(), Type: h.Type(), Path: path, Size: h.Size()})
		return nil
	})
	if err != nil {
		return sum, err
	}
	return sum, nil
}
