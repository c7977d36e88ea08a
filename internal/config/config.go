// Package config loads CLI and server settings from defaults, a YAML file,
// MARTIFACT_ environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/payload"
	"tangled.org/atscan.net/martifact/internal/types"
)

const (
	ENV_PREFIX  = "MARTIFACT"
	CONFIG_NAME = "martifact"
	CONFIG_DIR  = ".martifact"

	DEFAULT_SERVER_ADDR     = ":8080"
	DEFAULT_MAX_UPLOAD_SIZE = 512 << 20
)

// Config is the merged configuration
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Decode DecodeConfig `mapstructure:"decode"`
	Server ServerConfig `mapstructure:"server"`
	S3     S3Config     `mapstructure:"s3"`

	// File is the config file that was read, if any
	File string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DecodeConfig struct {
	SupportedVersions []int  `mapstructure:"supported_versions"`
	ChecksumScope     string `mapstructure:"checksum_scope"`
	MaxMetadataSize   int64  `mapstructure:"max_metadata_size"`
	MaxHeaderSize     int64  `mapstructure:"max_header_size"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	WebSocket     bool   `mapstructure:"websocket"`
	Catalog       string `mapstructure:"catalog"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// flagKeys maps flag names to config keys. Flags absent from the set are ignored.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"scope":      "decode.checksum_scope",
	"addr":       "server.addr",
	"ws":         "server.websocket",
	"catalog":    "server.catalog",
	"max-upload": "server.max_upload_size",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("decode.supported_versions", types.DefaultSupportedVersions)
	v.SetDefault("decode.checksum_scope", payload.ScopeCompressed.String())
	v.SetDefault("decode.max_metadata_size", types.DEFAULT_MAX_METADATA_SIZE)
	v.SetDefault("decode.max_header_size", types.DEFAULT_MAX_HEADER_SIZE)

	v.SetDefault("server.addr", DEFAULT_SERVER_ADDR)
	v.SetDefault("server.websocket", false)
	v.SetDefault("server.catalog", "")
	v.SetDefault("server.max_upload_size", DEFAULT_MAX_UPLOAD_SIZE)

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
}

// Load reads configuration. cfgFile may be empty, in which case martifact.yaml
// is searched in the working directory and in $HOME/.martifact; a missing file
// is not an error. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(CONFIG_NAME)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, CONFIG_DIR))
		}
	}

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by type decoding
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log.format %q, must be 'json' or 'console'", c.Log.Format)
	}
	if _, err := payload.ParseScope(c.Decode.ChecksumScope); err != nil {
		return fmt.Errorf("invalid decode.checksum_scope: %w", err)
	}
	if len(c.Decode.SupportedVersions) == 0 {
		return fmt.Errorf("decode.supported_versions must not be empty")
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("server.max_upload_size must be positive")
	}
	return nil
}

// DecodeConfig converts the decode section into decoder settings
func (c *Config) DecodeConfig() (*artifact.Config, error) {
	scope, err := payload.ParseScope(c.Decode.ChecksumScope)
	if err != nil {
		return nil, err
	}

	dc := artifact.DefaultConfig()
	dc.SupportedVersions = append([]int(nil), c.Decode.SupportedVersions...)
	dc.ChecksumScope = scope
	if c.Decode.MaxMetadataSize > 0 {
		dc.MaxMetadataSize = c.Decode.MaxMetadataSize
	}
	if c.Decode.MaxHeaderSize > 0 {
		dc.MaxHeaderSize = c.Decode.MaxHeaderSize
	}
	return dc, nil
}
