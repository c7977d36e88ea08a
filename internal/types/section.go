package types

import (
	"io"
)

// ReadSection buffers r fully, failing with SectionTooLarge past limit bytes
func ReadSection(r io.Reader, section string, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, Classify(section, err)
	}
	if int64(len(data)) > limit {
		return nil, FormatViolation(section, ReasonSectionTooLarge, "exceeds %d bytes", limit)
	}
	return data, nil
}

// CapReader fails with SectionTooLarge once more than Limit bytes were read
type CapReader struct {
	R       io.Reader
	Section string
	Limit   int64
	n       int64
}

func (c *CapReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.n += int64(n)
	if c.n > c.Limit {
		return n, FormatViolation(c.Section, ReasonSectionTooLarge, "exceeds %d bytes", c.Limit)
	}
	return n, err
}
