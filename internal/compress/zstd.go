package compress

import (
	"io"

	"github.com/valyala/gozstd"
)

// ============================================================================
// ZSTD (valyala/gozstd)
// ============================================================================

// ZstdLevel is the level used when writing zstd sub-archives
const ZstdLevel = 3

type gozstdReader struct {
	reader *gozstd.Reader
}

func newZstdReader(r io.Reader) StreamReader {
	return &gozstdReader{reader: gozstd.NewReader(r)}
}

func (r *gozstdReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *gozstdReader) Release() {
	r.reader.Release()
}

type gozstdWriter struct {
	writer *gozstd.Writer
}

func newZstdWriter(w io.Writer) StreamWriter {
	return &gozstdWriter{writer: gozstd.NewWriterLevel(w, ZstdLevel)}
}

func (w *gozstdWriter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *gozstdWriter) Close() error {
	return w.writer.Close()
}

func (w *gozstdWriter) Release() {
	w.writer.Release()
}
