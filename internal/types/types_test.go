package types_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"tangled.org/atscan.net/martifact/internal/types"
)

// ====================================================================================
// CONSTANT VALIDATION TESTS
// ====================================================================================

func TestConstants(t *testing.T) {
	t.Run("FormatName", func(t *testing.T) {
		if types.FORMAT_NAME != "mender" {
			t.Errorf("FORMAT_NAME = %s, want mender", types.FORMAT_NAME)
		}
	})

	t.Run("SectionLimits", func(t *testing.T) {
		if types.DEFAULT_MAX_METADATA_SIZE >= types.DEFAULT_MAX_HEADER_SIZE {
			t.Error("metadata limit should be below header limit")
		}
	})

	t.Run("DefaultSupportedVersions", func(t *testing.T) {
		if len(types.DefaultSupportedVersions) != 1 || types.DefaultSupportedVersions[0] != 3 {
			t.Errorf("DefaultSupportedVersions = %v, want [3]", types.DefaultSupportedVersions)
		}
	})
}

// ====================================================================================
// DECODE ERROR TESTS
// ====================================================================================

func TestDecodeErrorMatching(t *testing.T) {
	t.Run("KindSentinel", func(t *testing.T) {
		err := types.FormatViolation("manifest", types.ReasonManifestMalformed, "line %d", 3)

		if !errors.Is(err, types.ErrFormatViolation) {
			t.Error("format violation should match ErrFormatViolation")
		}
		if errors.Is(err, types.ErrIOFailure) {
			t.Error("format violation should not match ErrIOFailure")
		}
	})

	t.Run("ReasonSentinel", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w",
			types.FormatViolation("data/0002.tar.gz", types.ReasonOrderingViolation, "gap"))

		ordering := &types.DecodeError{Kind: types.KindFormatViolation, Reason: types.ReasonOrderingViolation}
		count := &types.DecodeError{Kind: types.KindFormatViolation, Reason: types.ReasonCountMismatch}

		if !errors.Is(err, ordering) {
			t.Error("should match same reason")
		}
		if errors.Is(err, count) {
			t.Error("should not match different reason")
		}
		if types.ReasonOf(err) != types.ReasonOrderingViolation {
			t.Errorf("ReasonOf = %s", types.ReasonOf(err))
		}
	})

	t.Run("ChecksumMessage", func(t *testing.T) {
		err := types.ChecksumMismatch("data/0000.tar.gz", 0, "aa", "bb")
		msg := err.Error()

		for _, want := range []string{"ChecksumMismatch", "data/0000.tar.gz", "payload 0", "expected aa", "got bb"} {
			if !strings.Contains(msg, want) {
				t.Errorf("message %q missing %q", msg, want)
			}
		}
		if err.Fatal() {
			t.Error("payload checksum mismatch should not be fatal")
		}
		if !types.ChecksumMismatch("header.tar.gz", -1, "aa", "bb").Fatal() {
			t.Error("header checksum mismatch should be fatal")
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("disk on fire")
		err := types.IOFailure("version", cause)

		if !errors.Is(err, cause) {
			t.Error("IOFailure should unwrap to its cause")
		}
		if types.KindOf(err) != types.KindIOFailure {
			t.Errorf("KindOf = %v", types.KindOf(err))
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   types.ErrorKind
		reason types.Reason
	}{
		{"source failure keeps kind", types.IOFailure("", errors.New("reset")), types.KindIOFailure, ""},
		{"truncated", io.ErrUnexpectedEOF, types.KindFormatViolation, types.ReasonTruncated},
		{"corrupt tar", tar.ErrHeader, types.KindFormatViolation, types.ReasonCorruptArchive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := types.Classify("header.tar.gz", tt.err)

			var de *types.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %T", err)
			}
			if de.Kind != tt.kind || de.Reason != tt.reason {
				t.Errorf("got %v/%s, want %v/%s", de.Kind, de.Reason, tt.kind, tt.reason)
			}
			if de.Section != "header.tar.gz" {
				t.Errorf("section = %q", de.Section)
			}
		})
	}

	if types.Classify("x", nil) != nil {
		t.Error("nil should stay nil")
	}
}

// ====================================================================================
// SECTION READ TESTS
// ====================================================================================

func TestReadSection(t *testing.T) {
	t.Run("WithinLimit", func(t *testing.T) {
		data, err := types.ReadSection(strings.NewReader("hello"), "version", 5)
		if err != nil {
			t.Fatalf("ReadSection failed: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("data = %q", data)
		}
	})

	t.Run("OverLimit", func(t *testing.T) {
		_, err := types.ReadSection(strings.NewReader("hello!"), "version", 5)
		if types.ReasonOf(err) != types.ReasonSectionTooLarge {
			t.Errorf("expected SectionTooLarge, got %v", err)
		}
	})

	t.Run("CapReader", func(t *testing.T) {
		r := &types.CapReader{R: bytes.NewReader(make([]byte, 100)), Section: "header.tar.gz", Limit: 10}
		_, err := io.Copy(io.Discard, r)
		if types.ReasonOf(err) != types.ReasonSectionTooLarge {
			t.Errorf("expected SectionTooLarge, got %v", err)
		}
	})
}

// ====================================================================================
// OBSERVER TESTS
// ====================================================================================

func TestObserver(t *testing.T) {
	t.Run("EmitNilObserver", func(t *testing.T) {
		// Should not panic
		types.Emit(nil, types.LevelInfo, "version", "ignored")
	})

	t.Run("ObserverFunc", func(t *testing.T) {
		var got []types.Event
		obs := types.ObserverFunc(func(e types.Event) { got = append(got, e) })

		types.Emit(obs, types.LevelWarn, "data/0000.tar.gz", "checksum mismatch",
			types.F("index", 0), types.F("expected", "aa"))

		if len(got) != 1 {
			t.Fatalf("got %d events, want 1", len(got))
		}
		if got[0].Level != types.LevelWarn || got[0].Level.String() != "warn" {
			t.Errorf("level = %v", got[0].Level)
		}
		fields := got[0].FieldMap()
		if fields["index"] != 0 || fields["expected"] != "aa" {
			t.Errorf("fields = %v", fields)
		}
	})

	t.Run("Nop", func(t *testing.T) {
		types.NopObserver().Observe(types.Event{Message: "dropped"})
	})
}

// ====================================================================================
// LOGGER INTERFACE COMPLIANCE TESTS
// ====================================================================================

func TestLoggerInterface(t *testing.T) {
	buf := &bytes.Buffer{}
	var logger types.Logger = &bufferedLogger{buf: buf}

	logger.Printf("formatted %s %d", "message", 42)
	logger.Println("plain", "message")

	if !strings.Contains(buf.String(), "formatted message 42") {
		t.Error("Printf output not captured")
	}
	if !strings.Contains(buf.String(), "plain message") {
		t.Error("Println output not captured")
	}
}

type bufferedLogger struct {
	buf *bytes.Buffer
}

func (l *bufferedLogger) Printf(format string, v ...interface{}) {
	fmt.Fprintf(l.buf, format+"\n", v...)
}

func (l *bufferedLogger) Println(v ...interface{}) {
	fmt.Fprintln(l.buf, v...)
}
