// Package artifact decodes an artifact container as one sequential pass over
// its outer tar: version, manifest, optional manifest.sig, header, optional
// header-augment, then the data payloads in index order.
package artifact

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	"tangled.org/atscan.net/martifact/internal/compress"
	"tangled.org/atscan.net/martifact/internal/header"
	"tangled.org/atscan.net/martifact/internal/manifest"
	"tangled.org/atscan.net/martifact/internal/payload"
	"tangled.org/atscan.net/martifact/internal/types"
	"tangled.org/atscan.net/martifact/internal/version"
)

// ErrEndOfPayloads is returned by NextPayload after the last payload
var ErrEndOfPayloads = types.ErrEndOfPayloads

// Artifact is a decoded artifact. Version, manifest and header are parsed when
// it is opened; payloads are handed out one at a time by NextPayload.
// An Artifact is not safe for concurrent use.
type Artifact struct {
	cfg *Config
	src *sourceReader
	tr  *tar.Reader

	state State
	err   error

	version   *version.Version
	manifest  *manifest.Manifest
	signature []byte
	header    *header.Header

	current *payload.Handle
	next    int
	results []payload.Result
}

// Open reads r up to and including the header. No partial Artifact is
// returned on error. ctx stays bound to the artifact: payload reads check it too.
func Open(ctx context.Context, r io.Reader, cfg *Config) (*Artifact, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	a := &Artifact{
		cfg:   cfg.withDefaults(),
		src:   &sourceReader{ctx: ctx, r: r},
		state: StateStart,
	}
	a.tr = tar.NewReader(a.src)

	if err := a.readPreamble(); err != nil {
		return nil, err
	}
	return a, nil
}

// ====================================================================================
// PREAMBLE: VERSION, MANIFEST, SIGNATURE, HEADER
// ====================================================================================

func (a *Artifact) readPreamble() error {
	versionData, err := a.readVersion()
	if err != nil {
		return err
	}
	if err := a.readManifest(versionData); err != nil {
		return err
	}

	a.state = StateExpectManifestSignature
	name, err := a.nextEntry(types.HEADER_BASE + compress.Gzip.Ext())
	if err != nil {
		return err
	}
	if name == types.MANIFEST_SIG_FILE {
		sig, err := types.ReadSection(a.tr, name, a.cfg.MaxMetadataSize)
		if err != nil {
			return a.fail(err)
		}
		a.signature = sig
		a.emit(types.LevelDebug, name, "manifest signature present, not verified", types.F("size", len(sig)))

		if name, err = a.nextEntry(types.HEADER_BASE + compress.Gzip.Ext()); err != nil {
			return err
		}
	}

	a.state = StateExpectHeader
	if err := a.readHeader(name); err != nil {
		return err
	}

	a.state = StateExpectAugmentedHeader
	return nil
}

func (a *Artifact) readVersion() ([]byte, error) {
	a.state = StateExpectVersion

	name, err := a.nextEntry(types.VERSION_FILE)
	if err != nil {
		return nil, err
	}
	if name != types.VERSION_FILE {
		return nil, a.fail(types.FormatViolation(name, types.ReasonUnexpectedEntry,
			"expected %s, got %q", types.VERSION_FILE, name))
	}

	data, err := types.ReadSection(a.tr, name, a.cfg.MaxMetadataSize)
	if err != nil {
		return nil, a.fail(err)
	}
	v, err := version.Parse(data, a.cfg.SupportedVersions)
	if err != nil {
		return nil, a.fail(err)
	}

	a.version = v
	a.emit(types.LevelInfo, name, "version parsed", types.F("format", v.Format), types.F("version", v.Version))
	return data, nil
}

func (a *Artifact) readManifest(versionData []byte) error {
	a.state = StateExpectManifest

	name, err := a.nextEntry(types.MANIFEST_FILE)
	if err != nil {
		return err
	}
	if name != types.MANIFEST_FILE {
		return a.fail(types.FormatViolation(name, types.ReasonUnexpectedEntry,
			"expected %s, got %q", types.MANIFEST_FILE, name))
	}

	data, err := types.ReadSection(a.tr, name, a.cfg.MaxMetadataSize)
	if err != nil {
		return a.fail(err)
	}
	m, err := manifest.Parse(bytes.NewReader(data))
	if err != nil {
		return a.fail(err)
	}
	a.manifest = m
	a.emit(types.LevelDebug, name, "manifest parsed", types.F("entries", m.Len()))

	if e, ok := m.Get(types.VERSION_FILE); ok {
		if actual := e.Algorithm.Sum(versionData); actual != e.Digest {
			return a.fail(types.ChecksumMismatch(types.VERSION_FILE, -1, e.Digest, actual))
		}
	}
	return nil
}

func (a *Artifact) readHeader(name string) error {
	base, codec, ok := compress.Split(name)
	if !ok || base != types.HEADER_BASE {
		return a.fail(types.FormatViolation(name, types.ReasonUnexpectedEntry,
			"expected %s.{gz,zst,xz}, got %q", types.HEADER_BASE, name))
	}

	entry, ok := a.manifest.Get(name)
	if !ok {
		return a.fail(types.FormatViolation(name, types.ReasonMissingManifestEntry, "no manifest entry for %s", name))
	}

	hasher := entry.Algorithm.New()
	raw := io.TeeReader(&types.CapReader{R: a.tr, Section: name, Limit: a.cfg.MaxHeaderSize}, hasher)

	h, err := header.Decode(raw, header.Options{
		Section:      name,
		Codec:        codec,
		Observer:     a.cfg.Observer,
		MaxEntrySize: a.cfg.MaxMetadataSize,
	})
	if err != nil {
		return a.fail(err)
	}
	if _, err := io.Copy(io.Discard, raw); err != nil {
		return a.fail(types.Classify(name, err))
	}

	if actual := hex.EncodeToString(hasher.Sum(nil)); actual != entry.Digest {
		return a.fail(types.ChecksumMismatch(name, -1, entry.Digest, actual))
	}

	a.header = h
	a.emit(types.LevelInfo, name, "header decoded",
		types.F("payloads", len(h.SubHeaders)),
		types.F("artifact_name", h.Info.ArtifactProvides.ArtifactName))
	return nil
}

// ====================================================================================
// PAYLOADS
// ====================================================================================

// NextPayload returns the next payload, or ErrEndOfPayloads once all declared
// payloads were handed out. The previous payload must be fully read or
// discarded first; otherwise OutOfOrderPayloadAccess is returned and the
// artifact stays usable.
func (a *Artifact) NextPayload() (*payload.Handle, error) {
	switch a.state {
	case StateFailed:
		return nil, a.err
	case StateDone:
		return nil, ErrEndOfPayloads
	}

	if a.current != nil {
		if err := a.current.Failure(); err != nil {
			return nil, a.fail(err)
		}
		if !a.current.Done() {
			return nil, types.FormatViolation(a.current.Section(), types.ReasonOutOfOrderPayloadAccess,
				"payload %d has not been fully read or discarded", a.current.Index())
		}
		a.results = append(a.results, a.current.Result())
		a.current = nil
	}

	for {
		hdr, err := a.tr.Next()
		if err == io.EOF {
			return nil, a.finish()
		}
		if err != nil {
			return nil, a.fail(types.Classify(types.DATA_DIR, err))
		}
		name := cleanName(hdr.Name)

		if a.state == StateExpectAugmentedHeader {
			a.state = StateExpectPayloads
			if base, _, ok := compress.Split(name); ok && base == types.AUGMENT_BASE {
				a.emit(types.LevelDebug, name, "skipping augmented header")
				continue
			}
		}

		return a.openPayload(name)
	}
}

func (a *Artifact) openPayload(name string) (*payload.Handle, error) {
	index, codec, ok := parseDataName(name)
	if !ok {
		return nil, a.fail(types.FormatViolation(name, types.ReasonUnexpectedEntry,
			"expected %s/%04d.tar.*, got %q", types.DATA_DIR, a.next, name))
	}
	if index != a.next {
		return nil, a.fail(types.FormatViolation(name, types.ReasonOrderingViolation,
			"expected payload %04d, got %04d", a.next, index))
	}

	subs := a.header.SubHeaders
	if index >= len(subs) {
		return nil, a.fail(types.FormatViolation(name, types.ReasonCountMismatch,
			"header declares %d payloads, found more", len(subs)))
	}

	h, err := payload.Open(a.tr, payload.Options{
		Index:    index,
		Type:     subs[index].TypeInfo.Type,
		Section:  name,
		Codec:    codec,
		Scope:    a.cfg.ChecksumScope,
		Manifest: a.manifest,
		Observer: a.cfg.Observer,
	})
	if err != nil {
		return nil, a.fail(err)
	}

	a.current = h
	a.next++
	return h, nil
}

func (a *Artifact) finish() error {
	if declared := len(a.header.SubHeaders); a.next != declared {
		return a.fail(types.FormatViolation(types.DATA_DIR, types.ReasonCountMismatch,
			"header declares %d payloads, found %d", declared, a.next))
	}
	a.state = StateDone
	a.emit(types.LevelInfo, "", "artifact decoded",
		types.F("payloads", a.next), types.F("bytes", a.src.n))
	return ErrEndOfPayloads
}

// Walk visits every remaining payload in order. Payloads fn leaves unread are
// drained so they are verified. An error from fn stops the walk.
func (a *Artifact) Walk(fn func(p *payload.Handle) error) error {
	for {
		p, err := a.NextPayload()
		if err == ErrEndOfPayloads {
			return nil
		}
		if err != nil {
			return err
		}

		if fn != nil {
			if err := fn(p); err != nil {
				p.Discard()
				return err
			}
		}
		if !p.Done() {
			if _, err := io.Copy(io.Discard, p); err != nil {
				return a.fail(err)
			}
		}
	}
}

// ====================================================================================
// ACCESSORS
// ====================================================================================

func (a *Artifact) Version() *version.Version    { return a.version }
func (a *Artifact) Manifest() *manifest.Manifest { return a.manifest }
func (a *Artifact) Header() *header.Header       { return a.header }
func (a *Artifact) HeaderInfo() *header.HeaderInfo {
	return &a.header.Info
}

// SubHeaders returns the per-payload subheaders in index order
func (a *Artifact) SubHeaders() []header.SubHeader {
	return a.header.SubHeaders
}

// Signature returns the opaque manifest.sig bytes, or nil
func (a *Artifact) Signature() []byte { return a.signature }

func (a *Artifact) State() State { return a.state }

// Err returns the terminal error once the artifact has failed
func (a *Artifact) Err() error { return a.err }

// BytesRead returns the number of bytes consumed from the source
func (a *Artifact) BytesRead() int64 { return a.src.n }

// Results returns the summaries of payloads handed out so far
func (a *Artifact) Results() []payload.Result {
	out := make([]payload.Result, len(a.results), len(a.results)+1)
	copy(out, a.results)
	if a.current != nil {
		out = append(out, a.current.Result())
	}
	return out
}

// Verified reports whether decoding finished and every payload verified
func (a *Artifact) Verified() bool {
	if a.state != StateDone {
		return false
	}
	for _, r := range a.results {
		if !r.Verified {
			return false
		}
	}
	return true
}

// ====================================================================================
// HELPERS
// ====================================================================================

// nextEntry advances the outer tar; expected names the section reported when
// the archive ends early
func (a *Artifact) nextEntry(expected string) (string, error) {
	hdr, err := a.tr.Next()
	if err == io.EOF {
		return "", a.fail(types.FormatViolation(expected, types.ReasonMissingEntry,
			"archive ended before %s", expected))
	}
	if err != nil {
		return "", a.fail(types.Classify(expected, err))
	}
	return cleanName(hdr.Name), nil
}

func (a *Artifact) fail(err error) error {
	a.state = StateFailed
	a.err = err
	a.emit(types.LevelError, "", "decode failed", types.F("error", err.Error()))
	return err
}

func (a *Artifact) emit(level types.Level, section, msg string, fields ...types.Field) {
	types.Emit(a.cfg.Observer, level, section, msg, fields...)
}

// parseDataName parses "data/0001.tar.gz" into 1 and Gzip
func parseDataName(name string) (int, compress.Codec, bool) {
	rest, ok := strings.CutPrefix(name, types.DATA_DIR+"/")
	if !ok {
		return 0, "", false
	}
	base, codec, ok := compress.Split(rest)
	if !ok {
		return 0, "", false
	}
	digits, ok := strings.CutSuffix(base, ".tar")
	if !ok || digits == "" {
		return 0, "", false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, "", false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, "", false
	}
	return n, codec, true
}

func cleanName(name string) string {
	return strings.TrimPrefix(name, "./")
}
