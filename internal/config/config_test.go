package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangled.org/atscan.net/martifact/internal/config"
	"tangled.org/atscan.net/martifact/internal/payload"
	"tangled.org/atscan.net/martifact/internal/types"
)

// chdir moves into an empty directory so no stray martifact.yaml is picked up
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, types.DefaultSupportedVersions, cfg.Decode.SupportedVersions)
	assert.Equal(t, "compressed", cfg.Decode.ChecksumScope)
	assert.Equal(t, int64(types.DEFAULT_MAX_METADATA_SIZE), cfg.Decode.MaxMetadataSize)
	assert.Equal(t, config.DEFAULT_SERVER_ADDR, cfg.Server.Addr)
	assert.False(t, cfg.Server.WebSocket)
	assert.Equal(t, int64(config.DEFAULT_MAX_UPLOAD_SIZE), cfg.Server.MaxUploadSize)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Empty(t, cfg.File)
}

func TestLoadFile(t *testing.T) {
	dir := chdir(t)

	t.Run("SearchedInWorkingDirectory", func(t *testing.T) {
		writeFile(t, filepath.Join(dir, "martifact.yaml"), `
log:
  level: debug
  format: json
decode:
  checksum_scope: content
  supported_versions: [2, 3]
server:
  websocket: true
`)
		defer os.Remove(filepath.Join(dir, "martifact.yaml"))

		cfg, err := config.Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, "content", cfg.Decode.ChecksumScope)
		assert.Equal(t, []int{2, 3}, cfg.Decode.SupportedVersions)
		assert.True(t, cfg.Server.WebSocket)
		assert.Contains(t, cfg.File, "martifact.yaml")
	})

	t.Run("Explicit", func(t *testing.T) {
		path := filepath.Join(dir, "custom.yaml")
		writeFile(t, path, "server:\n  addr: 127.0.0.1:9999\n")

		cfg, err := config.Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
		assert.Equal(t, path, cfg.File)
	})

	t.Run("ExplicitMissing", func(t *testing.T) {
		_, err := config.Load(filepath.Join(dir, "nope.yaml"), nil)
		assert.Error(t, err)
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		writeFile(t, path, "log: [unterminated\n")

		_, err := config.Load(path, nil)
		assert.Error(t, err)
	})
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t)
	t.Setenv("MARTIFACT_LOG_LEVEL", "warn")
	t.Setenv("MARTIFACT_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("MARTIFACT_DECODE_MAX_HEADER_SIZE", "4096")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
	assert.Equal(t, int64(4096), cfg.Decode.MaxHeaderSize)
}

func TestLoadFlagsOverride(t *testing.T) {
	dir := chdir(t)
	writeFile(t, filepath.Join(dir, "martifact.yaml"), "log:\n  level: debug\n")
	t.Setenv("MARTIFACT_SERVER_ADDR", ":7000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("addr", ":8080", "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "error"}))

	cfg, err := config.Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level, "changed flag wins over file")
	assert.Equal(t, ":7000", cfg.Server.Addr, "unchanged flag does not shadow env")
}

func TestValidate(t *testing.T) {
	chdir(t)

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad format", map[string]string{"MARTIFACT_LOG_FORMAT": "xml"}},
		{"bad scope", map[string]string{"MARTIFACT_DECODE_CHECKSUM_SCOPE": "raw"}},
		{"bad upload size", map[string]string{"MARTIFACT_SERVER_MAX_UPLOAD_SIZE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("", nil)
			assert.Error(t, err)
		})
	}
}

func TestDecodeConfig(t *testing.T) {
	cfg := &config.Config{
		Decode: config.DecodeConfig{
			SupportedVersions: []int{3},
			ChecksumScope:     "content",
			MaxMetadataSize:   1024,
		},
	}

	dc, err := cfg.DecodeConfig()
	require.NoError(t, err)
	assert.Equal(t, []int{3}, dc.SupportedVersions)
	assert.Equal(t, payload.ScopeContent, dc.ChecksumScope)
	assert.Equal(t, int64(1024), dc.MaxMetadataSize)
	assert.Equal(t, int64(types.DEFAULT_MAX_HEADER_SIZE), dc.MaxHeaderSize)
	assert.NotNil(t, dc.Observer)

	cfg.Decode.ChecksumScope = "bogus"
	_, err = cfg.DecodeConfig()
	assert.Error(t, err)
}
