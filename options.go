package martifact

import (
	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/logging"
	"tangled.org/atscan.net/martifact/internal/types"
)

// Option configures decoding
type Option func(*artifact.Config)

func buildConfig(opts []Option) *artifact.Config {
	cfg := artifact.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithObserver receives decoder events
func WithObserver(obs Observer) Option {
	return func(c *artifact.Config) {
		c.Observer = obs
	}
}

// WithLogger prints info and higher events through a printf-style logger
func WithLogger(logger Logger) Option {
	return func(c *artifact.Config) {
		c.Observer = logging.NewPrintfObserver(logger, types.LevelInfo)
	}
}

// WithSupportedVersions sets the accepted schema versions
func WithSupportedVersions(versions ...int) Option {
	return func(c *artifact.Config) {
		c.SupportedVersions = append([]int(nil), versions...)
	}
}

// WithChecksumScope selects which payload bytes manifest digests cover
func WithChecksumScope(scope Scope) Option {
	return func(c *artifact.Config) {
		c.ChecksumScope = scope
	}
}

// WithMaxMetadataSize caps version, manifest, signature and header JSON entries
func WithMaxMetadataSize(n int64) Option {
	return func(c *artifact.Config) {
		c.MaxMetadataSize = n
	}
}

// WithMaxHeaderSize caps the raw header sub-archive
func WithMaxHeaderSize(n int64) Option {
	return func(c *artifact.Config) {
		c.MaxHeaderSize = n
	}
}
