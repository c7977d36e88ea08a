package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// Formats lists the supported output formats
var Formats = []string{FormatText, FormatJSON, FormatYAML, FormatCBOR}

var cborMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: %v", err))
	}
	cborMode = mode
}

// Encode writes rep to w in the given format
func Encode(w io.Writer, rep *Report, format string) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		return writeText(w, rep)
	case FormatJSON:
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		return enc.Close()
	case FormatCBOR:
		data, err := cborMode.Marshal(rep)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}

// ====================================================================================
// TEXT
// ====================================================================================

type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, v ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, v...)
}

func (t *textWriter) section(title string) {
	t.printf("%s\n%s\n", title, strings.Repeat("─", len([]rune(title))))
}

func writeText(w io.Writer, rep *Report) error {
	t := &textWriter{w: w}

	t.section("Artifact")
	t.printf("  Source:              %s\n", rep.Source)
	if rep.Format != "" {
		t.printf("  Format:              %s v%d\n", rep.Format, rep.Version)
	}
	if rep.ArtifactName != "" {
		t.printf("  Name:                %s\n", rep.ArtifactName)
	}
	if rep.ArtifactGroup != "" {
		t.printf("  Group:               %s\n", rep.ArtifactGroup)
	}
	if len(rep.DeviceTypes) > 0 {
		t.printf("  Device types:        %s\n", strings.Join(rep.DeviceTypes, ", "))
	}
	for _, k := range sortedKeys(rep.Depends) {
		t.printf("  Depends %-12s %v\n", k+":", rep.Depends[k])
	}
	t.printf("  Signed:              %v\n", rep.Signed)
	t.printf("  Size:                %s\n", FormatBytes(rep.BytesRead))
	t.printf("\n")

	if len(rep.Manifest) > 0 {
		t.section("Manifest")
		for _, m := range rep.Manifest {
			t.printf("  %s  %s\n", shortDigest(m.Digest), m.Path)
		}
		t.printf("\n")
	}

	if len(rep.Payloads) > 0 {
		t.section("Payloads")
		for _, p := range rep.Payloads {
			t.printf("  %04d  %s\n", p.Index, p.Type)
			if p.File != "" {
				t.printf("        File:        %s (%s, stored %s)\n", p.File, FormatBytes(p.Size), FormatBytes(p.Stored))
			}
			for _, k := range sortedKeys(p.Provides) {
				t.printf("        Provides:    %s=%v\n", k, p.Provides[k])
			}
			for _, k := range sortedKeys(p.Depends) {
				t.printf("        Depends:     %s=%v\n", k, p.Depends[k])
			}
			if len(p.MetaData) > 0 {
				t.printf("        Meta-data:   %d keys\n", len(p.MetaData))
			}
			t.printf("        Checksum:    %s\n", payloadStatus(p))
		}
		t.printf("\n")
	}

	if len(rep.Scripts) > 0 {
		t.section("Scripts")
		for _, s := range rep.Scripts {
			t.printf("  %s\n", s)
		}
		t.printf("\n")
	}

	if rep.Valid {
		t.printf("✓ Artifact is valid (%d ms)\n", rep.DecodeTimeMS)
	} else if rep.Error != nil {
		t.printf("✗ %s\n", rep.Error.Message)
	} else {
		t.printf("✗ Artifact did not verify\n")
	}
	return t.err
}

func payloadStatus(p Payload) string {
	switch {
	case p.Verified:
		return fmt.Sprintf("✓ %s (%s)", shortDigest(p.Actual), p.Scope)
	case p.Discarded:
		return "not verified (skipped)"
	case p.Error != "":
		return "✗ " + p.Error
	case p.Section == "":
		return "not reached"
	default:
		return "pending"
	}
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16] + "..."
	}
	return d
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatBytes renders a byte count with decimal units
func FormatBytes(bytes int64) string {
	const unit = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
