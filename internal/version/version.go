// Package version parses the leading "version" entry of an artifact, which
// gates the schema every later section is decoded with.
package version

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"tangled.org/atscan.net/martifact/internal/types"
)

// Version is the decoded format descriptor
type Version struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
}

type rawVersion struct {
	Format  *string          `json:"format"`
	Version *json.RawMessage `json:"version"`
}

// Parse decodes the version entry and checks it against supported.
// An empty supported set falls back to types.DefaultSupportedVersions.
func Parse(data []byte, supported []int) (*Version, error) {
	const section = types.VERSION_FILE

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, types.FormatViolation(section, types.ReasonMalformedJSON, "expected a JSON object")
	}

	var raw rawVersion
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, types.FormatViolationErr(section, types.ReasonMalformedJSON, err)
	}

	if raw.Format == nil {
		return nil, types.FormatViolation(section, types.ReasonMissingField, "format is missing")
	}
	if *raw.Format != types.FORMAT_NAME {
		return nil, types.FormatViolation(section, types.ReasonUnknownFormat, "unrecognized format %q", *raw.Format)
	}

	if raw.Version == nil {
		return nil, types.FormatViolation(section, types.ReasonMissingField, "version is missing")
	}
	n, err := strconv.Atoi(string(bytes.TrimSpace(*raw.Version)))
	if err != nil {
		return nil, types.FormatViolation(section, types.ReasonMalformedJSON,
			"version must be an integer, got %s", *raw.Version)
	}

	if !IsSupported(n, supported) {
		return nil, types.UnsupportedVersion(section, "version %d not in supported set %v", n, effective(supported))
	}

	return &Version{Format: *raw.Format, Version: n}, nil
}

// IsSupported reports whether v is in supported (or the default set)
func IsSupported(v int, supported []int) bool {
	for _, s := range effective(supported) {
		if s == v {
			return true
		}
	}
	return false
}

func effective(supported []int) []int {
	if len(supported) == 0 {
		return types.DefaultSupportedVersions
	}
	return supported
}

func (v *Version) String() string {
	return fmt.Sprintf("%s v%d", v.Format, v.Version)
}
