// Package header decodes the compressed header sub-archive of an artifact:
// header-info first, then per-payload type-info and optional meta-data.
// Install scripts are skipped.
package header

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"tangled.org/atscan.net/martifact/internal/compress"
	"tangled.org/atscan.net/martifact/internal/types"
)

const (
	typeInfoFile  = "type-info"
	metaDataFile  = "meta-data"
	scriptsDir    = "scripts"
	headersPrefix = "headers/"
)

// Options configures Decode
type Options struct {
	// Section is the outer entry name, used in errors and events
	Section string

	Codec    compress.Codec
	Observer types.Observer

	// MaxEntrySize caps each buffered JSON entry
	MaxEntrySize int64
}

type decoder struct {
	opts   Options
	header *Header
}

// Decode reads a compressed header sub-archive from r
func Decode(r io.Reader, opts Options) (*Header, error) {
	if opts.Section == "" {
		opts.Section = types.HEADER_BASE + opts.Codec.Ext()
	}
	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = types.DEFAULT_MAX_METADATA_SIZE
	}
	if opts.Observer == nil {
		opts.Observer = types.NopObserver()
	}

	zr, err := compress.NewReader(opts.Codec, r)
	if err != nil {
		if errors.Is(err, compress.ErrUnsupportedCodec) {
			return nil, types.FormatViolation(opts.Section, types.ReasonUnsupportedCompression, "codec %q", opts.Codec)
		}
		return nil, types.Classify(opts.Section, err)
	}
	defer zr.Release()

	d := &decoder{opts: opts, header: &Header{}}
	if err := d.run(tar.NewReader(zr)); err != nil {
		return nil, err
	}

	// Drain so compression trailers are validated
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, types.Classify(opts.Section, err)
	}

	return d.header, nil
}

func (d *decoder) run(tr *tar.Reader) error {
	section := d.opts.Section

	hdr, err := tr.Next()
	if err == io.EOF {
		return types.FormatViolation(section, types.ReasonMissingEntry, "%s is missing", types.HEADER_INFO_FILE)
	}
	if err != nil {
		return types.Classify(section, err)
	}
	if name := cleanName(hdr.Name); name != types.HEADER_INFO_FILE {
		return types.FormatViolation(section, types.ReasonUnexpectedEntry,
			"first entry must be %s, got %q", types.HEADER_INFO_FILE, name)
	}
	if err := d.readHeaderInfo(tr); err != nil {
		return err
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.Classify(section, err)
		}
		if err := d.handleEntry(tr, hdr); err != nil {
			return err
		}
	}

	declared := len(d.header.Info.Payloads)
	if got := len(d.header.SubHeaders); got != declared {
		return types.FormatViolation(section, types.ReasonCountMismatch,
			"header-info declares %d payloads, found %d subheaders", declared, got)
	}
	return nil
}

func (d *decoder) readHeaderInfo(tr *tar.Reader) error {
	entry := d.opts.Section + "/" + types.HEADER_INFO_FILE

	data, err := types.ReadSection(tr, entry, d.opts.MaxEntrySize)
	if err != nil {
		return err
	}

	var info HeaderInfo
	if err := unmarshalObject(data, &info); err != nil {
		return types.FormatViolationErr(entry, types.ReasonMalformedJSON, err)
	}
	for i, p := range info.Payloads {
		if p.Type == "" {
			return types.FormatViolation(entry, types.ReasonMissingField, "payloads[%d].type is empty", i)
		}
	}

	d.header.Info = info
	types.Emit(d.opts.Observer, types.LevelDebug, d.opts.Section, "header-info parsed",
		types.F("payloads", len(info.Payloads)),
		types.F("artifact_name", info.ArtifactProvides.ArtifactName))
	return nil
}

func (d *decoder) handleEntry(tr *tar.Reader, hdr *tar.Header) error {
	section := d.opts.Section
	name := cleanName(hdr.Name)

	if hdr.Typeflag == tar.TypeDir {
		return nil
	}

	if name == scriptsDir || strings.HasPrefix(name, scriptsDir+"/") {
		d.header.Scripts = append(d.header.Scripts, path.Base(name))
		types.Emit(d.opts.Observer, types.LevelDebug, section, "skipping script", types.F("name", name))
		return nil
	}

	index, leaf, ok := splitIndexed(name)
	if !ok {
		return types.FormatViolation(section, types.ReasonUnexpectedEntry, "unexpected entry %q", name)
	}

	current := len(d.header.SubHeaders) - 1
	if index < current || index > current+1 {
		return types.FormatViolation(section, types.ReasonOrderingViolation,
			"entry %q out of order after payload %d", name, current)
	}

	entry := section + "/" + name
	types.Emit(d.opts.Observer, types.LevelDebug, section, "header entry",
		types.F("name", name), types.F("index", index), types.F("size", hdr.Size))

	switch leaf {
	case typeInfoFile:
		if index == current {
			return types.FormatViolation(section, types.ReasonUnexpectedEntry, "second type-info for payload %d", index)
		}
		return d.readTypeInfo(tr, entry, index)

	case metaDataFile:
		if index != current {
			return types.FormatViolation(section, types.ReasonUnexpectedEntry,
				"meta-data for payload %d before its type-info", index)
		}
		if d.header.SubHeaders[index].HasMetaData() {
			return types.FormatViolation(section, types.ReasonUnexpectedEntry, "second meta-data for payload %d", index)
		}
		return d.readMetaData(tr, entry, index)

	default:
		return types.FormatViolation(section, types.ReasonUnexpectedEntry, "unexpected entry %q", name)
	}
}

func (d *decoder) readTypeInfo(tr *tar.Reader, entry string, index int) error {
	data, err := types.ReadSection(tr, entry, d.opts.MaxEntrySize)
	if err != nil {
		return err
	}

	var ti TypeInfo
	if err := unmarshalObject(data, &ti); err != nil {
		return types.FormatViolationErr(entry, types.ReasonMalformedJSON, err)
	}
	if ti.Type == "" {
		return types.FormatViolation(entry, types.ReasonMissingField, "type is empty")
	}
	if index < len(d.header.Info.Payloads) {
		if declared := d.header.Info.Payloads[index].Type; declared != ti.Type {
			return types.FormatViolation(entry, types.ReasonTypeMismatch,
				"header-info declares %q, type-info says %q", declared, ti.Type)
		}
	}

	d.header.SubHeaders = append(d.header.SubHeaders, SubHeader{Index: index, TypeInfo: ti})
	return nil
}

func (d *decoder) readMetaData(tr *tar.Reader, entry string, index int) error {
	data, err := types.ReadSection(tr, entry, d.opts.MaxEntrySize)
	if err != nil {
		return err
	}

	md := MetaData{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := unmarshalObject(data, &md); err != nil {
			return types.FormatViolationErr(entry, types.ReasonMalformedJSON, err)
		}
		if md == nil {
			md = MetaData{}
		}
	}

	d.header.SubHeaders[index].MetaData = md
	return nil
}

// unmarshalObject rejects anything that is not a JSON object
func unmarshalObject(data []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("expected a JSON object")
	}
	return json.Unmarshal(trimmed, v)
}

// splitIndexed parses "0000/type-info" or "headers/0000/type-info"
func splitIndexed(name string) (int, string, bool) {
	name = strings.TrimPrefix(name, headersPrefix)

	idx, leaf, found := strings.Cut(name, "/")
	if !found || idx == "" || leaf == "" || strings.Contains(leaf, "/") {
		return 0, "", false
	}
	for _, c := range idx {
		if c < '0' || c > '9' {
			return 0, "", false
		}
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return 0, "", false
	}
	return n, leaf, true
}

func cleanName(name string) string {
	name = strings.TrimPrefix(name, "./")
	return strings.TrimSuffix(name, "/")
}
