// Package payload exposes one data/NNNN sub-archive as a forward-only byte
// stream while digesting it against the manifest.
package payload

import (
	"archive/tar"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"tangled.org/atscan.net/martifact/internal/compress"
	"tangled.org/atscan.net/martifact/internal/manifest"
	"tangled.org/atscan.net/martifact/internal/types"
)

// Scope selects which bytes a payload digest covers
type Scope int

const (
	// ScopeCompressed digests the stored data/NNNN.tar.* entry bytes
	ScopeCompressed Scope = iota
	// ScopeContent digests the decompressed payload file, listed as data/NNNN/<file>
	ScopeContent
)

func (s Scope) String() string {
	if s == ScopeContent {
		return "content"
	}
	return "compressed"
}

// ParseScope parses "compressed" or "content"
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "compressed":
		return ScopeCompressed, nil
	case "content":
		return ScopeContent, nil
	default:
		return 0, fmt.Errorf("unknown checksum scope %q (want compressed or content)", s)
	}
}

type state int

const (
	stateOpen state = iota
	stateVerified
	stateMismatch
	stateDiscarded
	stateFailed
)

// ErrDiscarded is returned by Read after Discard
var ErrDiscarded = errors.New("payload discarded")

// Options configures Open
type Options struct {
	Index    int
	Type     string
	Section  string
	Codec    compress.Codec
	Scope    Scope
	Manifest *manifest.Manifest
	Observer types.Observer
}

// Handle is one open payload. It is consumed at most once and never rewound.
type Handle struct {
	opts Options

	raw  *digestReader
	zr   compress.StreamReader
	tr   *tar.Reader
	hash hash.Hash

	name     string
	size     int64
	read     int64
	expected *manifest.Entry
	actual   string

	state    state
	err      error
	released bool
}

// Open wraps the raw outer entry of a data sub-archive. It reads up to the
// inner file header so Name and Size are known.
func Open(entry io.Reader, opts Options) (*Handle, error) {
	if opts.Observer == nil {
		opts.Observer = types.NopObserver()
	}

	h := &Handle{opts: opts}

	if opts.Scope == ScopeCompressed {
		e, ok := opts.Manifest.Get(opts.Section)
		if !ok {
			return nil, types.FormatViolation(opts.Section, types.ReasonMissingManifestEntry,
				"no manifest entry for %s", opts.Section)
		}
		h.expected = e
		h.hash = e.Algorithm.New()
		h.raw = &digestReader{r: entry, h: h.hash}
	} else {
		h.raw = &digestReader{r: entry}
	}

	zr, err := compress.NewReader(opts.Codec, h.raw)
	if err != nil {
		if errors.Is(err, compress.ErrUnsupportedCodec) {
			return nil, types.FormatViolation(opts.Section, types.ReasonUnsupportedCompression, "codec %q", opts.Codec)
		}
		return nil, types.Classify(opts.Section, err)
	}
	h.zr = zr
	h.tr = tar.NewReader(zr)

	hdr, err := h.tr.Next()
	if err == io.EOF {
		zr.Release()
		return nil, types.FormatViolation(opts.Section, types.ReasonMissingEntry, "data archive is empty")
	}
	if err != nil {
		zr.Release()
		return nil, types.Classify(opts.Section, err)
	}
	if hdr.Typeflag != tar.TypeReg {
		zr.Release()
		return nil, types.FormatViolation(opts.Section, types.ReasonUnexpectedEntry,
			"%q is not a regular file", hdr.Name)
	}
	h.name = hdr.Name
	h.size = hdr.Size

	if opts.Scope == ScopeContent {
		p := fmt.Sprintf("%s/%04d/%s", types.DATA_DIR, opts.Index, h.name)
		e, ok := opts.Manifest.Get(p)
		if !ok {
			zr.Release()
			return nil, types.FormatViolation(opts.Section, types.ReasonMissingManifestEntry, "no manifest entry for %s", p)
		}
		h.expected = e
		h.hash = e.Algorithm.New()
	}

	types.Emit(opts.Observer, types.LevelInfo, opts.Section, "payload opened",
		types.F("index", opts.Index), types.F("type", opts.Type),
		types.F("file", h.name), types.F("size", h.size))
	return h, nil
}

// Read returns decoded payload bytes. At the end of the payload file the
// digest is compared; a mismatch is recorded on the handle and Read still
// returns io.EOF.
func (h *Handle) Read(p []byte) (int, error) {
	switch h.state {
	case stateVerified, stateMismatch:
		return 0, io.EOF
	case stateDiscarded:
		return 0, ErrDiscarded
	case stateFailed:
		return 0, h.err
	}

	n, err := h.tr.Read(p)
	if n > 0 {
		h.read += int64(n)
		if h.opts.Scope == ScopeContent {
			h.hash.Write(p[:n])
		}
	}

	if err == io.EOF {
		if ferr := h.finish(); ferr != nil {
			return n, ferr
		}
		return n, io.EOF
	}
	if err != nil {
		return n, h.fail(types.Classify(h.opts.Section, err))
	}
	return n, nil
}

func (h *Handle) finish() error {
	section := h.opts.Section

	if next, err := h.tr.Next(); err == nil {
		return h.fail(types.FormatViolation(section, types.ReasonUnexpectedEntry,
			"data archive holds a second file %q", next.Name))
	} else if err != io.EOF {
		return h.fail(types.Classify(section, err))
	}

	// Drain compression trailer, then any bytes the decompressor never asked for
	if _, err := io.Copy(io.Discard, h.zr); err != nil {
		return h.fail(types.Classify(section, err))
	}
	if _, err := io.Copy(io.Discard, h.raw); err != nil {
		return h.fail(types.Classify(section, err))
	}
	h.release()

	h.actual = hex.EncodeToString(h.hash.Sum(nil))
	if h.actual == h.expected.Digest {
		h.state = stateVerified
		types.Emit(h.opts.Observer, types.LevelInfo, section, "payload verified",
			types.F("index", h.opts.Index), types.F("bytes", h.read), types.F("digest", h.actual))
		return nil
	}

	h.state = stateMismatch
	h.err = types.ChecksumMismatch(h.expected.Path, h.opts.Index, h.expected.Digest, h.actual)
	types.Emit(h.opts.Observer, types.LevelWarn, section, "checksum mismatch",
		types.F("index", h.opts.Index), types.F("expected", h.expected.Digest), types.F("actual", h.actual))
	return nil
}

func (h *Handle) fail(err error) error {
	h.state = stateFailed
	h.err = err
	h.release()
	types.Emit(h.opts.Observer, types.LevelError, h.opts.Section, "payload failed",
		types.F("index", h.opts.Index), types.F("error", err.Error()))
	return err
}

// Discard abandons the payload. The partial digest is dropped without a
// checksum mismatch. Discarding a finished payload is a no-op.
func (h *Handle) Discard() {
	if h.state != stateOpen {
		return
	}
	h.state = stateDiscarded
	h.release()
	types.Emit(h.opts.Observer, types.LevelDebug, h.opts.Section, "payload discarded",
		types.F("index", h.opts.Index), types.F("bytes", h.read))
}

func (h *Handle) release() {
	if !h.released {
		h.released = true
		h.zr.Release()
	}
}

// Close discards the payload unless it was fully read
func (h *Handle) Close() error {
	h.Discard()
	return nil
}

// Verify reports whether the payload was fully read and its digest matched
func (h *Handle) Verify() bool {
	return h.state == stateVerified
}

// Done reports whether the payload is finished, in any way
func (h *Handle) Done() bool {
	return h.state != stateOpen
}

// Err returns the checksum mismatch or fatal error, if any
func (h *Handle) Err() error {
	return h.err
}

// Failure returns the fatal error that stopped the payload, if any
func (h *Handle) Failure() error {
	if h.state == stateFailed {
		return h.err
	}
	return nil
}

func (h *Handle) Index() int      { return h.opts.Index }
func (h *Handle) Type() string    { return h.opts.Type }
func (h *Handle) Section() string { return h.opts.Section }
func (h *Handle) Name() string    { return h.name }
func (h *Handle) Size() int64     { return h.size }

// Result summarizes a finished (or abandoned) payload
type Result struct {
	Index          int    `json:"index"`
	Section        string `json:"section"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	BytesRead      int64  `json:"bytes_read"`
	CompressedSize int64  `json:"compressed_size"`
	Scope          string `json:"scope"`
	Expected       string `json:"expected"`
	Actual         string `json:"actual,omitempty"`
	Verified       bool   `json:"verified"`
	Discarded      bool   `json:"discarded,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Result returns the payload's current summary
func (h *Handle) Result() Result {
	r := Result{
		Index:          h.opts.Index,
		Section:        h.opts.Section,
		Type:           h.opts.Type,
		Name:           h.name,
		Size:           h.size,
		BytesRead:      h.read,
		CompressedSize: h.raw.n,
		Scope:          h.opts.Scope.String(),
		Expected:       h.expected.Digest,
		Actual:         h.actual,
		Verified:       h.state == stateVerified,
		Discarded:      h.state == stateDiscarded,
	}
	if h.err != nil {
		r.Error = h.err.Error()
	}
	return r
}

// digestReader counts bytes and, when h is set, feeds them to h
type digestReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.n += int64(n)
		if d.h != nil {
			d.h.Write(p[:n])
		}
	}
	return n, err
}
