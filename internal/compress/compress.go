// Package compress selects the decompressor for an artifact sub-archive from
// its file name suffix.
package compress

import (
	"errors"
	"io"
	"strings"
)

// Codec identifies a sub-archive compression by its file extension
type Codec string

const (
	Gzip Codec = "gz"
	Zstd Codec = "zst"
	XZ   Codec = "xz"
)

// ErrUnsupportedCodec is returned for an unknown codec
var ErrUnsupportedCodec = errors.New("unsupported compression")

// Codecs lists every supported codec
var Codecs = []Codec{Gzip, Zstd, XZ}

// StreamReader is a streaming decompression reader.
// Release frees decoder resources and must be called once reading is done.
type StreamReader interface {
	io.Reader
	Release()
}

// StreamWriter is a streaming compression writer.
// Close finalizes the stream; Release must be called after Close.
type StreamWriter interface {
	io.Writer
	io.Closer
	Release()
}

// Split splits "header.tar.gz" into "header.tar" and Gzip
func Split(name string) (string, Codec, bool) {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return name, "", false
	}
	codec := Codec(name[dot+1:])
	if !codec.Valid() {
		return name, "", false
	}
	return name[:dot], codec, true
}

// Valid reports whether the codec is supported
func (c Codec) Valid() bool {
	for _, known := range Codecs {
		if c == known {
			return true
		}
	}
	return false
}

// Ext returns the file extension including the dot
func (c Codec) Ext() string {
	return "." + string(c)
}

// NewReader wraps r in the decompressor for c
func NewReader(c Codec, r io.Reader) (StreamReader, error) {
	switch c {
	case Gzip:
		return newGzipReader(r)
	case Zstd:
		return newZstdReader(r), nil
	case XZ:
		return newXZReader(r)
	default:
		return nil, ErrUnsupportedCodec
	}
}

// NewWriter wraps w in the compressor for c
func NewWriter(c Codec, w io.Writer) (StreamWriter, error) {
	switch c {
	case Gzip:
		return newGzipWriter(w), nil
	case Zstd:
		return newZstdWriter(w), nil
	case XZ:
		return newXZWriter(w)
	default:
		return nil, ErrUnsupportedCodec
	}
}
