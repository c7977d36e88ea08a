// Package report summarizes a decoded artifact for people and machines.
package report

import (
	"context"
	"errors"
	"io"
	"time"

	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/header"
	"tangled.org/atscan.net/martifact/internal/payload"
	"tangled.org/atscan.net/martifact/internal/types"
)

// Report describes one artifact: its metadata, manifest and per-payload
// verification results
type Report struct {
	Source        string                 `json:"source" yaml:"source"`
	Format        string                 `json:"format,omitempty" yaml:"format,omitempty"`
	Version       int                    `json:"version,omitempty" yaml:"version,omitempty"`
	ArtifactName  string                 `json:"artifact_name,omitempty" yaml:"artifact_name,omitempty"`
	ArtifactGroup string                 `json:"artifact_group,omitempty" yaml:"artifact_group,omitempty"`
	DeviceTypes   []string               `json:"device_types,omitempty" yaml:"device_types,omitempty"`
	Depends       map[string]interface{} `json:"depends,omitempty" yaml:"depends,omitempty"`
	Signed        bool                   `json:"signed" yaml:"signed"`
	Manifest      []ManifestLine         `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Payloads      []Payload              `json:"payloads,omitempty" yaml:"payloads,omitempty"`
	Scripts       []string               `json:"scripts,omitempty" yaml:"scripts,omitempty"`

	Valid     bool       `json:"valid" yaml:"valid"`
	State     string     `json:"state" yaml:"state"`
	Error     *ErrorInfo `json:"error,omitempty" yaml:"error,omitempty"`
	BytesRead int64      `json:"bytes_read" yaml:"bytes_read"`

	InspectedAt  time.Time `json:"inspected_at" yaml:"inspected_at"`
	DecodeTimeMS int64     `json:"decode_time_ms" yaml:"decode_time_ms"`
}

type ManifestLine struct {
	Path      string `json:"path" yaml:"path"`
	Digest    string `json:"digest" yaml:"digest"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
}

// Payload combines a subheader with the outcome of reading its data
type Payload struct {
	Index          int                    `json:"index" yaml:"index"`
	Type           string                 `json:"type" yaml:"type"`
	Provides       map[string]interface{} `json:"provides,omitempty" yaml:"provides,omitempty"`
	Depends        map[string]interface{} `json:"depends,omitempty" yaml:"depends,omitempty"`
	ClearsProvides []string               `json:"clears_provides,omitempty" yaml:"clears_provides,omitempty"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty" yaml:"meta_data,omitempty"`

	// Populated once the payload's data entry has been reached
	Section   string `json:"section,omitempty" yaml:"section,omitempty"`
	File      string `json:"file,omitempty" yaml:"file,omitempty"`
	Size      int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Stored    int64  `json:"stored,omitempty" yaml:"stored,omitempty"`
	Scope     string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Expected  string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual    string `json:"actual,omitempty" yaml:"actual,omitempty"`
	Verified  bool   `json:"verified" yaml:"verified"`
	Discarded bool   `json:"discarded,omitempty" yaml:"discarded,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ErrorInfo is the serializable form of a decode error
type ErrorInfo struct {
	Kind    string `json:"kind" yaml:"kind"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Section string `json:"section,omitempty" yaml:"section,omitempty"`
	Index   *int   `json:"index,omitempty" yaml:"index,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// NewErrorInfo describes err. Errors that are not DecodeErrors get kind "Error".
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: "Error", Message: err.Error()}

	var de *types.DecodeError
	if errors.As(err, &de) {
		info.Kind = de.Kind.String()
		info.Reason = string(de.Reason)
		info.Section = de.Section
		if de.Index >= 0 {
			idx := de.Index
			info.Index = &idx
		}
	}
	return info
}

// Build summarizes a after its payloads have been walked. decodeErr is the
// error that stopped decoding, if any.
func Build(a *artifact.Artifact, source string, decodeErr error) *Report {
	rep := &Report{
		Source:      source,
		InspectedAt: time.Now().UTC(),
		Error:       NewErrorInfo(decodeErr),
	}
	if a == nil {
		rep.State = artifact.StateFailed.String()
		return rep
	}

	rep.State = a.State().String()
	rep.BytesRead = a.BytesRead()
	rep.Signed = a.Signature() != nil

	if v := a.Version(); v != nil {
		rep.Format = v.Format
		rep.Version = v.Version
	}

	if m := a.Manifest(); m != nil {
		for _, e := range m.Entries() {
			rep.Manifest = append(rep.Manifest, ManifestLine{
				Path:      e.Path,
				Digest:    e.Digest,
				Algorithm: string(e.Algorithm),
			})
		}
	}

	if h := a.Header(); h != nil {
		info := h.Info
		rep.ArtifactName = info.ArtifactProvides.ArtifactName
		rep.ArtifactGroup = info.ArtifactProvides.ArtifactGroup
		rep.DeviceTypes = info.ArtifactDepends.DeviceType
		rep.Depends = headerDepends(info.ArtifactDepends)
		rep.Scripts = h.Scripts

		for _, sub := range h.SubHeaders {
			rep.Payloads = append(rep.Payloads, Payload{
				Index:          sub.Index,
				Type:           sub.TypeInfo.Type,
				Provides:       valueMap(sub.TypeInfo.ArtifactProvides),
				Depends:        valueMap(sub.TypeInfo.ArtifactDepends),
				ClearsProvides: sub.TypeInfo.ClearsArtifactProvides,
				MetaData:       sub.MetaData,
			})
		}
	}

	for _, r := range a.Results() {
		if r.Index < 0 || r.Index >= len(rep.Payloads) {
			continue
		}
		applyResult(&rep.Payloads[r.Index], r)
	}

	rep.Valid = decodeErr == nil && a.Verified()
	return rep
}

func applyResult(p *Payload, r payload.Result) {
	p.Section = r.Section
	p.File = r.Name
	p.Size = r.Size
	p.Stored = r.CompressedSize
	p.Scope = r.Scope
	p.Expected = r.Expected
	p.Actual = r.Actual
	p.Verified = r.Verified
	p.Discarded = r.Discarded
	p.Error = r.Error
}

func headerDepends(d header.ArtifactDepends) map[string]interface{} {
	out := map[string]interface{}{}
	if len(d.ArtifactName) > 0 {
		out["artifact_name"] = d.ArtifactName
	}
	if d.ArtifactGroup != nil {
		out["artifact_group"] = d.ArtifactGroup.Interface()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func valueMap(m map[string]header.Value) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// Options controls Inspect
type Options struct {
	// SkipPayloads discards payload data unread; payloads are then not verified
	SkipPayloads bool
}

// Inspect decodes r completely and reports on it. The returned error is the
// fatal decode error, if any; the report is returned in both cases. Checksum
// mismatches are not errors here, they show up as an invalid report.
func Inspect(ctx context.Context, r io.Reader, source string, cfg *artifact.Config, opts Options) (*Report, error) {
	start := time.Now()

	a, err := artifact.Open(ctx, r, cfg)
	if err != nil {
		rep := Build(nil, source, err)
		rep.DecodeTimeMS = time.Since(start).Milliseconds()
		return rep, err
	}

	err = a.Walk(func(p *payload.Handle) error {
		if opts.SkipPayloads {
			p.Discard()
		}
		return nil
	})

	rep := Build(a, source, err)
	rep.DecodeTimeMS = time.Since(start).Milliseconds()
	return rep, err
}

// Mismatches returns the payloads that were read to the end and did not verify
func (r *Report) Mismatches() []Payload {
	var out []Payload
	for _, p := range r.Payloads {
		if p.Expected != "" && !p.Verified && !p.Discarded {
			out = append(out, p)
		}
	}
	return out
}
