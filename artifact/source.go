package artifact

import (
	"context"
	"io"

	"tangled.org/atscan.net/martifact/internal/types"
)

// sourceReader checks the context before every read and tags byte source
// errors as IOFailure so they are never mistaken for format violations.
type sourceReader struct {
	ctx context.Context
	r   io.Reader
	n   int64
}

func (s *sourceReader) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, types.IOFailure("", err)
	}
	n, err := s.r.Read(p)
	s.n += int64(n)
	if err != nil && err != io.EOF {
		return n, types.IOFailure("", err)
	}
	return n, err
}
