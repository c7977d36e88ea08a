// Package manifest parses and serializes the artifact manifest: one
// "<hex-digest>  <path>" line per checksummed file.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"

	"tangled.org/atscan.net/martifact/internal/types"
)

// maxLineLength bounds a single manifest line
const maxLineLength = 64 * 1024

// Entry is one checksum line
type Entry struct {
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Algorithm Algorithm `json:"algorithm"`
}

// Matches compares a raw digest against the entry
func (e *Entry) Matches(sum []byte) bool {
	return hex.EncodeToString(sum) == e.Digest
}

// Manifest maps paths to their expected digests, keeping file order
type Manifest struct {
	entries map[string]*Entry
	order   []string
}

// New returns an empty manifest
func New() *Manifest {
	return &Manifest{entries: make(map[string]*Entry)}
}

// Parse reads a manifest from r
func Parse(r io.Reader) (*Manifest, error) {
	const section = types.MANIFEST_FILE

	m := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, types.FormatViolation(section, types.ReasonManifestMalformed,
				"line %d: expected 2 fields, got %d", lineNum, len(fields))
		}

		if err := m.Add(fields[1], fields[0]); err != nil {
			var de *types.DecodeError
			if errors.As(err, &de) {
				de.Detail = fmt.Sprintf("line %d: %s", lineNum, de.Detail)
			}
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, types.FormatViolation(section, types.ReasonManifestMalformed,
				"line %d exceeds %d bytes", lineNum+1, maxLineLength)
		}
		return nil, types.Classify(section, err)
	}

	return m, nil
}

// Add inserts an entry, inferring its algorithm
func (m *Manifest) Add(p, digest string) error {
	const section = types.MANIFEST_FILE

	if !validPath(p) {
		return types.FormatViolation(section, types.ReasonManifestMalformed, "invalid path %q", p)
	}
	digest = strings.ToLower(digest)
	if !isHex(digest) {
		return types.FormatViolation(section, types.ReasonManifestMalformed, "digest for %s is not hex", p)
	}
	algo, ok := AlgorithmForDigest(digest)
	if !ok {
		return types.FormatViolation(section, types.ReasonUnknownDigestAlgorithm,
			"%d hex characters for %s", len(digest), p)
	}
	if _, exists := m.entries[p]; exists {
		return types.FormatViolation(section, types.ReasonDuplicateManifestEntry, "%s listed twice", p)
	}

	m.entries[p] = &Entry{Path: p, Digest: digest, Algorithm: algo}
	m.order = append(m.order, p)
	return nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// validPath rejects whitespace since a line holds exactly two fields
func validPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.ContainsFunc(p, unicode.IsSpace) {
		return false
	}
	if path.Clean(p) != p {
		return false
	}
	return p != ".." && !strings.HasPrefix(p, "../")
}

// Get returns the entry for a path
func (m *Manifest) Get(p string) (*Entry, bool) {
	e, ok := m.entries[p]
	return e, ok
}

// Len returns the number of entries
func (m *Manifest) Len() int {
	return len(m.order)
}

// Entries returns a copy of all entries in file order
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, *m.entries[p])
	}
	return out
}

// Equal reports whether both manifests map the same paths to the same digests
func (m *Manifest) Equal(other *Manifest) bool {
	if other == nil || m.Len() != other.Len() {
		return false
	}
	for p, e := range m.entries {
		o, ok := other.entries[p]
		if !ok || o.Digest != e.Digest {
			return false
		}
	}
	return true
}

// MarshalText serializes the manifest in file order
func (m *Manifest) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	for _, p := range m.order {
		fmt.Fprintf(&buf, "%s  %s\n", m.entries[p].Digest, p)
	}
	return buf.Bytes(), nil
}

func (m *Manifest) String() string {
	data, _ := m.MarshalText()
	return string(data)
}
