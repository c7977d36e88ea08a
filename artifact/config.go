package artifact

import (
	"tangled.org/atscan.net/martifact/internal/payload"
	"tangled.org/atscan.net/martifact/internal/types"
)

// Config controls how an artifact is decoded
type Config struct {
	// SupportedVersions lists accepted schema versions; empty means {3}
	SupportedVersions []int

	// ChecksumScope selects which payload bytes the manifest digests cover
	ChecksumScope payload.Scope

	// MaxMetadataSize caps version, manifest, manifest.sig and header JSON entries
	MaxMetadataSize int64

	// MaxHeaderSize caps the raw header sub-archive
	MaxHeaderSize int64

	Observer types.Observer
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		SupportedVersions: append([]int(nil), types.DefaultSupportedVersions...),
		ChecksumScope:     payload.ScopeCompressed,
		MaxMetadataSize:   types.DEFAULT_MAX_METADATA_SIZE,
		MaxHeaderSize:     types.DEFAULT_MAX_HEADER_SIZE,
		Observer:          types.NopObserver(),
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.MaxMetadataSize <= 0 {
		out.MaxMetadataSize = types.DEFAULT_MAX_METADATA_SIZE
	}
	if out.MaxHeaderSize <= 0 {
		out.MaxHeaderSize = types.DEFAULT_MAX_HEADER_SIZE
	}
	if out.Observer == nil {
		out.Observer = types.NopObserver()
	}
	return &out
}
