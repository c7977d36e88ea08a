package compress

import (
	"io"

	"github.com/ulikunitz/xz"
)

type xzReader struct {
	reader *xz.Reader
}

func newXZReader(r io.Reader) (StreamReader, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &xzReader{reader: xr}, nil
}

func (r *xzReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *xzReader) Release() {}

type xzWriter struct {
	writer *xz.Writer
}

func newXZWriter(w io.Writer) (StreamWriter, error) {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &xzWriter{writer: xw}, nil
}

func (w *xzWriter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *xzWriter) Close() error {
	return w.writer.Close()
}

func (w *xzWriter) Release() {}
