// Package martifact decodes mender artifacts in a single streaming pass.
//
// An artifact is an uncompressed tar holding, in order, a version file, a
// manifest of digests, an optional signature, a compressed header
// sub-archive, an optional augmented header and one compressed data
// sub-archive per payload. Open reads everything up to the first payload
// and verifies it; payloads are then consumed one at a time with
// NextPayload or Walk and checked against the manifest while they stream.
package martifact

import (
	"context"
	"fmt"
	"io"
	"os"

	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/header"
	"tangled.org/atscan.net/martifact/internal/manifest"
	"tangled.org/atscan.net/martifact/internal/payload"
	"tangled.org/atscan.net/martifact/internal/report"
	"tangled.org/atscan.net/martifact/internal/types"
	"tangled.org/atscan.net/martifact/internal/version"
)

// Re-export commonly used types for convenience
type (
	Artifact = artifact.Artifact
	Config   = artifact.Config
	State    = artifact.State

	Version    = version.Version
	Manifest   = manifest.Manifest
	Header     = header.Header
	HeaderInfo = header.HeaderInfo
	SubHeader  = header.SubHeader
	TypeInfo   = header.TypeInfo
	MetaData   = header.MetaData

	Handle = payload.Handle
	Result = payload.Result
	Scope  = payload.Scope

	DecodeError = types.DecodeError
	ErrorKind   = types.ErrorKind
	Reason      = types.Reason
	Event       = types.Event
	Field       = types.Field
	Level       = types.Level
	Observer    = types.Observer
	Logger      = types.Logger

	Report = report.Report
)

// Re-export constants
const (
	FORMAT_NAME = types.FORMAT_NAME

	ScopeCompressed = payload.ScopeCompressed
	ScopeContent    = payload.ScopeContent

	KindIOFailure          = types.KindIOFailure
	KindFormatViolation    = types.KindFormatViolation
	KindUnsupportedVersion = types.KindUnsupportedVersion
	KindChecksumMismatch   = types.KindChecksumMismatch

	StateDone   = artifact.StateDone
	StateFailed = artifact.StateFailed
)

// Re-export sentinel errors for use with errors.Is
var (
	ErrIOFailure          = types.ErrIOFailure
	ErrFormatViolation    = types.ErrFormatViolation
	ErrUnsupportedVersion = types.ErrUnsupportedVersion
	ErrChecksumMismatch   = types.ErrChecksumMismatch
	ErrEndOfPayloads      = types.ErrEndOfPayloads
)

// Open decodes the artifact metadata from r. The returned artifact is
// positioned at the first payload.
func Open(ctx context.Context, r io.Reader, opts ...Option) (*Artifact, error) {
	return artifact.Open(ctx, r, buildConfig(opts))
}

// OpenFile is Open on a local file. The file stays open until the returned
// close function is called.
func OpenFile(ctx context.Context, path string, opts ...Option) (*Artifact, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	a, err := Open(ctx, f, opts...)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return a, f.Close, nil
}

// Inspect decodes r completely and returns a report. The report is never
// nil; the error is the fatal decode error, if any.
func Inspect(ctx context.Context, r io.Reader, source string, opts ...Option) (*Report, error) {
	return report.Inspect(ctx, r, source, buildConfig(opts), report.Options{})
}

// ParseScope parses "compressed" or "content"
func ParseScope(s string) (Scope, error) {
	return payload.ParseScope(s)
}

// KindOf returns the kind of a decode error
func KindOf(err error) ErrorKind {
	return types.KindOf(err)
}

// ReasonOf returns the format violation reason of a decode error
func ReasonOf(err error) Reason {
	return types.ReasonOf(err)
}
