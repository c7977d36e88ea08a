package compress

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

type gzipReader struct {
	reader *gzip.Reader
}

func newGzipReader(r io.Reader) (StreamReader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &gzipReader{reader: zr}, nil
}

func (r *gzipReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *gzipReader) Release() {
	r.reader.Close()
}

type gzipWriter struct {
	writer *gzip.Writer
}

func newGzipWriter(w io.Writer) StreamWriter {
	return &gzipWriter{writer: gzip.NewWriter(w)}
}

func (w *gzipWriter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *gzipWriter) Close() error {
	return w.writer.Close()
}

func (w *gzipWriter) Release() {}
