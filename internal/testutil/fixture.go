// Package testutil builds artifact fixtures for tests: plain tar layers,
// compressed sub-archives and complete (or deliberately broken) artifacts.
package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"tangled.org/atscan.net/martifact/internal/compress"
	"tangled.org/atscan.net/martifact/internal/manifest"
)

// File is one tar entry. A zero Typeflag means a regular file.
type File struct {
	Name     string
	Data     []byte
	Typeflag byte
}

// Tar writes files into an uncompressed tar archive
func Tar(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{Name: f.Name, Mode: 0644, Size: int64(len(f.Data)), Typeflag: tar.TypeReg}
		if f.Typeflag != 0 {
			hdr.Typeflag = f.Typeflag
			if f.Typeflag == tar.TypeDir {
				hdr.Mode = 0755
				hdr.Size = 0
			}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", f.Name, err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write(f.Data); err != nil {
				t.Fatalf("tar write %s: %v", f.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// Compress compresses data with codec
func Compress(t testing.TB, codec compress.Codec, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := compress.NewWriter(codec, &buf)
	if err != nil {
		t.Fatalf("compress writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}
	w.Release()
	return buf.Bytes()
}

// SHA256 returns the lower-case hex sha256 of data
func SHA256(data []byte) string {
	return manifest.SHA256.Sum(data)
}

// ManifestText renders "<digest>  <path>" lines in the given order
func ManifestText(pairs ...string) []byte {
	var sb strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&sb, "%s  %s\n", pairs[i], pairs[i+1])
	}
	return []byte(sb.String())
}

// Payload describes one data/NNNN entry and its subheader
type Payload struct {
	Type     string
	Name     string
	Data     []byte
	TypeInfo string
	MetaData string
}

func (p Payload) typ() string {
	if p.Type == "" {
		return "rootfs-image"
	}
	return p.Type
}

func (p Payload) name() string {
	if p.Name == "" {
		return "rootfs.ext4"
	}
	return p.Name
}

// Artifact describes a complete artifact. Zero values produce a well-formed
// version 3 artifact with gzip sub-archives.
type Artifact struct {
	Version    string
	HeaderInfo string
	Payloads   []Payload
	Codec      compress.Codec
	Signature  []byte
	Augment    bool
	Scripts    []File
	HeadersDir bool

	// ContentScope lists data/NNNN/<file> digests instead of data/NNNN.tar.*
	ContentScope bool

	// Digests overrides manifest digests by path
	Digests map[string]string

	// Omit leaves paths out of the manifest
	Omit []string
}

func (a Artifact) codec() compress.Codec {
	if a.Codec == "" {
		return compress.Gzip
	}
	return a.Codec
}

// HeaderName is the header entry name for the artifact's codec
func (a Artifact) HeaderName() string {
	return "header.tar" + a.codec().Ext()
}

// DataName is the data entry name for payload i
func (a Artifact) DataName(i int) string {
	return fmt.Sprintf("data/%04d.tar%s", i, a.codec().Ext())
}

// HeaderEntries returns the uncompressed header tar entries
func (a Artifact) HeaderEntries(t testing.TB) []File {
	t.Helper()

	info := a.HeaderInfo
	if info == "" {
		types := make([]map[string]string, 0, len(a.Payloads))
		for _, p := range a.Payloads {
			types = append(types, map[string]string{"type": p.typ()})
		}
		raw, err := json.Marshal(map[string]interface{}{
			"payloads":          types,
			"artifact_provides": map[string]string{"artifact_name": "test-artifact"},
			"artifact_depends":  map[string][]string{"device_type": {"qemux86-64"}},
		})
		if err != nil {
			t.Fatalf("header-info: %v", err)
		}
		info = string(raw)
	}

	files := []File{{Name: "header-info", Data: []byte(info)}}
	files = append(files, a.Scripts...)

	prefix := ""
	if a.HeadersDir {
		prefix = "headers/"
	}
	for i, p := range a.Payloads {
		ti := p.TypeInfo
		if ti == "" {
			ti = fmt.Sprintf(`{"type":%q,"artifact_provides":{"rootfs-image.checksum":%q}}`, p.typ(), SHA256(p.Data))
		}
		files = append(files, File{Name: fmt.Sprintf("%s%04d/type-info", prefix, i), Data: []byte(ti)})
		if p.MetaData != "" {
			files = append(files, File{Name: fmt.Sprintf("%s%04d/meta-data", prefix, i), Data: []byte(p.MetaData)})
		}
	}
	return files
}

// Header returns the compressed header sub-archive
func (a Artifact) Header(t testing.TB) []byte {
	t.Helper()
	return Compress(t, a.codec(), Tar(t, a.HeaderEntries(t)...))
}

// Data returns the compressed data sub-archive for payload i
func (a Artifact) Data(t testing.TB, i int) []byte {
	t.Helper()
	p := a.Payloads[i]
	return Compress(t, a.codec(), Tar(t, File{Name: p.name(), Data: p.Data}))
}

// Entries returns the outer tar entries in order
func (a Artifact) Entries(t testing.TB) []File {
	t.Helper()

	ver := a.Version
	if ver == "" {
		ver = `{"format":"mender","version":3}`
	}
	header := a.Header(t)

	data := make([][]byte, len(a.Payloads))
	for i := range a.Payloads {
		data[i] = a.Data(t, i)
	}

	var pairs []string
	add := func(path string, content []byte) {
		for _, o := range a.Omit {
			if o == path {
				return
			}
		}
		digest := SHA256(content)
		if d, ok := a.Digests[path]; ok {
			digest = d
		}
		pairs = append(pairs, digest, path)
	}
	add("version", []byte(ver))
	add(a.HeaderName(), header)
	for i, p := range a.Payloads {
		if a.ContentScope {
			add(fmt.Sprintf("data/%04d/%s", i, p.name()), p.Data)
		} else {
			add(a.DataName(i), data[i])
		}
	}

	files := []File{
		{Name: "version", Data: []byte(ver)},
		{Name: "manifest", Data: ManifestText(pairs...)},
	}
	if a.Signature != nil {
		files = append(files, File{Name: "manifest.sig", Data: a.Signature})
	}
	files = append(files, File{Name: a.HeaderName(), Data: header})
	if a.Augment {
		aug := Compress(t, a.codec(), Tar(t, File{Name: "header-info", Data: []byte(`{}`)}))
		files = append(files, File{Name: "header-augment.tar" + a.codec().Ext(), Data: aug})
	}
	for i := range a.Payloads {
		files = append(files, File{Name: a.DataName(i), Data: data[i]})
	}
	return files
}

// Build returns the complete outer tar
func (a Artifact) Build(t testing.TB) []byte {
	t.Helper()
	return Tar(t, a.Entries(t)...)
}
