package report_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/report"
	"tangled.org/atscan.net/martifact/internal/testutil"
	"tangled.org/atscan.net/martifact/internal/types"
)

func fixture() testutil.Artifact {
	return testutil.Artifact{
		Signature: []byte("sig"),
		Scripts:   []testutil.File{{Name: "scripts/ArtifactInstall_Enter_00", Data: []byte("#!/bin/sh\n")}},
		Payloads: []testutil.Payload{
			{Data: []byte("rootfs contents")},
			{
				Type:     "single-file",
				Name:     "app.conf",
				Data:     []byte("key=value\n"),
				TypeInfo: `{"type":"single-file","artifact_provides":{"app.version":"1.2"},"artifact_depends":{"os":["a","b"]},"clears_artifact_provides":["app.*"]}`,
				MetaData: `{"dest_dir":"/etc"}`,
			},
		},
	}
}

func inspect(t *testing.T, a testutil.Artifact, opts report.Options) (*report.Report, error) {
	t.Helper()
	return report.Inspect(context.Background(), bytes.NewReader(a.Build(t)), "fixture.mender", nil, opts)
}

func TestInspectValid(t *testing.T) {
	rep, err := inspect(t, fixture(), report.Options{})
	require.NoError(t, err)

	assert.True(t, rep.Valid)
	assert.Equal(t, "Done", rep.State)
	assert.Nil(t, rep.Error)
	assert.Equal(t, "fixture.mender", rep.Source)
	assert.Equal(t, "mender", rep.Format)
	assert.Equal(t, 3, rep.Version)
	assert.Equal(t, "test-artifact", rep.ArtifactName)
	assert.Equal(t, []string{"qemux86-64"}, rep.DeviceTypes)
	assert.True(t, rep.Signed)
	assert.Equal(t, []string{"ArtifactInstall_Enter_00"}, rep.Scripts)
	assert.Len(t, rep.Manifest, 4)
	assert.Positive(t, rep.BytesRead)

	require.Len(t, rep.Payloads, 2)
	p0 := rep.Payloads[0]
	assert.Equal(t, "rootfs-image", p0.Type)
	assert.Equal(t, "rootfs.ext4", p0.File)
	assert.Equal(t, int64(len("rootfs contents")), p0.Size)
	assert.True(t, p0.Verified)
	assert.Equal(t, p0.Expected, p0.Actual)
	assert.Equal(t, "compressed", p0.Scope)

	p1 := rep.Payloads[1]
	assert.Equal(t, "1.2", p1.Provides["app.version"])
	assert.Equal(t, []string{"a", "b"}, p1.Depends["os"])
	assert.Equal(t, []string{"app.*"}, p1.ClearsProvides)
	assert.Equal(t, "/etc", p1.MetaData["dest_dir"])
	assert.True(t, p1.Verified)

	assert.Empty(t, rep.Mismatches())
}

func TestInspectMismatch(t *testing.T) {
	a := fixture()
	a.Digests = map[string]string{a.DataName(1): strings.Repeat("ab", 32)}

	rep, err := inspect(t, a, report.Options{})
	require.NoError(t, err, "checksum mismatches are not decode errors")

	assert.False(t, rep.Valid)
	assert.True(t, rep.Payloads[0].Verified)
	assert.False(t, rep.Payloads[1].Verified)
	assert.NotEmpty(t, rep.Payloads[1].Error)

	mm := rep.Mismatches()
	require.Len(t, mm, 1)
	assert.Equal(t, 1, mm[0].Index)
}

func TestInspectSkipPayloads(t *testing.T) {
	rep, err := inspect(t, fixture(), report.Options{SkipPayloads: true})
	require.NoError(t, err)

	assert.False(t, rep.Valid)
	for _, p := range rep.Payloads {
		assert.True(t, p.Discarded)
		assert.False(t, p.Verified)
	}
	assert.Empty(t, rep.Mismatches())
}

func TestInspectDecodeError(t *testing.T) {
	t.Run("Open", func(t *testing.T) {
		a := fixture()
		a.Version = `{"format":"mender","version":2}`

		rep, err := inspect(t, a, report.Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrUnsupportedVersion)

		assert.False(t, rep.Valid)
		assert.Equal(t, "Failed", rep.State)
		require.NotNil(t, rep.Error)
		assert.Equal(t, "UnsupportedVersion", rep.Error.Kind)
		assert.Equal(t, "version", rep.Error.Section)
	})

	t.Run("Payloads", func(t *testing.T) {
		a := fixture()
		entries := a.Entries(t)
		entries[len(entries)-1].Name = "data/0002.tar.gz"
		raw := testutil.Tar(t, entries...)

		rep, err := report.Inspect(context.Background(), bytes.NewReader(raw), "gap", nil, report.Options{})
		require.Error(t, err)

		assert.False(t, rep.Valid)
		assert.Equal(t, "Failed", rep.State)
		assert.Equal(t, "test-artifact", rep.ArtifactName, "header data is kept")
		require.NotNil(t, rep.Error)
		assert.Equal(t, "FormatViolation", rep.Error.Kind)
		assert.Equal(t, string(types.ReasonOrderingViolation), rep.Error.Reason)
		assert.True(t, rep.Payloads[0].Verified)
	})
}

func TestNewErrorInfo(t *testing.T) {
	assert.Nil(t, report.NewErrorInfo(nil))

	info := report.NewErrorInfo(types.ChecksumMismatch("data/0001.tar.gz", 1, "aa", "bb"))
	assert.Equal(t, "ChecksumMismatch", info.Kind)
	require.NotNil(t, info.Index)
	assert.Equal(t, 1, *info.Index)

	info = report.NewErrorInfo(types.FormatViolation("manifest", types.ReasonManifestMalformed, "bad line"))
	assert.Nil(t, info.Index)
	assert.Equal(t, "manifest", info.Section)

	info = report.NewErrorInfo(assert.AnError)
	assert.Equal(t, "Error", info.Kind)
}

// ====================================================================================
// ENCODING
// ====================================================================================

func sample(t *testing.T) *report.Report {
	t.Helper()
	rep, err := inspect(t, fixture(), report.Options{})
	require.NoError(t, err)
	return rep
}

func TestEncodeJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Encode(&buf, sample(t), report.FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "test-artifact", decoded["artifact_name"])
	assert.Equal(t, true, decoded["valid"])
	assert.Len(t, decoded["payloads"], 2)
}

func TestEncodeYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Encode(&buf, sample(t), report.FormatYAML))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "test-artifact", decoded["artifact_name"])
	assert.Contains(t, buf.String(), "device_types:")
}

func TestEncodeCBOR(t *testing.T) {
	rep := sample(t)

	var a, b bytes.Buffer
	require.NoError(t, report.Encode(&a, rep, report.FormatCBOR))
	require.NoError(t, report.Encode(&b, rep, report.FormatCBOR))
	assert.Equal(t, a.Bytes(), b.Bytes(), "deterministic encoding")

	var decoded map[string]interface{}
	require.NoError(t, cbor.Unmarshal(a.Bytes(), &decoded))
	assert.Equal(t, "test-artifact", decoded["artifact_name"])
}

func TestEncodeText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Encode(&buf, sample(t), report.FormatText))

	out := buf.String()
	assert.Contains(t, out, "Name:                test-artifact")
	assert.Contains(t, out, "0001  single-file")
	assert.Contains(t, out, "Provides:    app.version=1.2")
	assert.Contains(t, out, "✓ Artifact is valid")
}

func TestEncodeTextFailure(t *testing.T) {
	rep := report.Build(nil, "broken.mender", types.FormatViolation("version", types.ReasonMalformedJSON, "bad json"))

	var buf bytes.Buffer
	require.NoError(t, report.Encode(&buf, rep, "text"))
	assert.Contains(t, buf.String(), "✗ ")
	assert.Contains(t, buf.String(), "bad json")
}

func TestEncodeUnknownFormat(t *testing.T) {
	err := report.Encode(&bytes.Buffer{}, sample(t), "xml")
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "999 B", report.FormatBytes(999))
	assert.Equal(t, "1.5 KB", report.FormatBytes(1500))
	assert.Equal(t, "2.0 MB", report.FormatBytes(2_000_000))
}

func TestInspectWithConfig(t *testing.T) {
	cfg := artifact.DefaultConfig()
	cfg.SupportedVersions = []int{2}

	_, err := report.Inspect(context.Background(), bytes.NewReader(fixture().Build(t)), "x", cfg, report.Options{})
	assert.ErrorIs(t, err, types.ErrUnsupportedVersion)
}
