package extract_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/extract"
	"tangled.org/atscan.net/martifact/internal/testutil"
	"tangled.org/atscan.net/martifact/internal/types"
)

func fixture() testutil.Artifact {
	return testutil.Artifact{
		Payloads: []testutil.Payload{
			{Data: bytes.Repeat([]byte("rootfs"), 4096)},
			{Type: "single-file", Name: "etc/app.conf", Data: []byte("key=value\n")},
		},
	}
}

// listFiles returns every file under dir, relative to it
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	return files
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	a := fixture()

	var calls int
	var last int64
	sum, err := extract.Extract(context.Background(), bytes.NewReader(a.Build(t)), dir, nil,
		func(index int, written, total int64) {
			calls++
			if index == 0 {
				last = written
			}
		})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(sum.Files) != 2 || len(sum.Failed) != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if calls == 0 || last != int64(len(a.Payloads[0].Data)) {
		t.Errorf("progress: %d calls, last=%d", calls, last)
	}

	got, err := os.ReadFile(filepath.Join(dir, "0001", "app.conf"))
	if err != nil {
		t.Fatalf("payload 1 not written: %v", err)
	}
	if string(got) != "key=value\n" {
		t.Errorf("payload 1 content = %q", got)
	}
	if sum.Files[1].Path != filepath.Join(dir, "0001", "app.conf") || sum.Files[1].Type != "single-file" {
		t.Errorf("file record = %+v", sum.Files[1])
	}

	files := listFiles(t, dir)
	if len(files) != 2 {
		t.Errorf("files = %v", files)
	}
}

func TestExtractSkipsMismatch(t *testing.T) {
	dir := t.TempDir()
	a := fixture()
	a.Digests = map[string]string{a.DataName(0): strings.Repeat("00", 32)}

	sum, err := extract.Extract(context.Background(), bytes.NewReader(a.Build(t)), dir, nil, nil)
	if err != nil {
		t.Fatalf("mismatch must not be fatal: %v", err)
	}

	if len(sum.Failed) != 1 || !errors.Is(sum.Failed[0], types.ErrChecksumMismatch) {
		t.Fatalf("failed = %v", sum.Failed)
	}
	if len(sum.Files) != 1 || sum.Files[0].Index != 1 {
		t.Fatalf("files = %+v", sum.Files)
	}

	files := listFiles(t, dir)
	if len(files) != 1 || files[0] != "0001/app.conf" {
		t.Errorf("unverified data left behind: %v", files)
	}
}

func TestExtractDecodeError(t *testing.T) {
	dir := t.TempDir()
	a := fixture()
	a.Version = `{"format":"mender","version":1}`

	_, err := extract.Extract(context.Background(), bytes.NewReader(a.Build(t)), dir, artifact.DefaultConfig(), nil)
	if !errors.Is(err, types.ErrUnsupportedVersion) {
		t.Fatalf("expected UnsupportedVersion, got %v", err)
	}
	if files := listFiles(t, dir); len(files) != 0 {
		t.Errorf("files written: %v", files)
	}
}

func TestExtractTruncated(t *testing.T) {
	dir := t.TempDir()
	raw := fixture().Build(t)
	// Cut a few bytes into the compressed stream of the first data entry
	cut := bytes.LastIndex(raw, []byte("data/0000.tar.gz")) + 512 + 16

	_, err := extract.Extract(context.Background(), bytes.NewReader(raw[:cut]), dir, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if files := listFiles(t, dir); len(files) != 0 {
		t.Errorf("partial files left behind: %v", files)
	}
}

func TestWriterPath(t *testing.T) {
	w := extract.NewWriter("/out", nil)

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"rootfs.ext4", filepath.Join("/out", "0003", "rootfs.ext4"), false},
		{"nested/dir/file.bin", filepath.Join("/out", "0003", "file.bin"), false},
		{"../../etc/passwd", filepath.Join("/out", "0003", "passwd"), false},
		{"..", "", true},
		{"/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Path(3, tt.name)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
