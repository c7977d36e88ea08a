package types

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrorKind is the top-level classification of a decode failure
type ErrorKind int

const (
	KindIOFailure ErrorKind = iota + 1
	KindFormatViolation
	KindUnsupportedVersion
	KindChecksumMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindIOFailure:
		return "IOFailure"
	case KindFormatViolation:
		return "FormatViolation"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindChecksumMismatch:
		return "ChecksumMismatch"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Reason refines a FormatViolation
type Reason string

const (
	ReasonMalformedJSON           Reason = "MalformedJSON"
	ReasonManifestMalformed       Reason = "ManifestMalformed"
	ReasonDuplicateManifestEntry  Reason = "DuplicateManifestEntry"
	ReasonUnknownDigestAlgorithm  Reason = "UnknownDigestAlgorithm"
	ReasonUnexpectedEntry         Reason = "UnexpectedEntry"
	ReasonMissingEntry            Reason = "MissingEntry"
	ReasonMissingField            Reason = "MissingField"
	ReasonMissingManifestEntry    Reason = "MissingManifestEntry"
	ReasonOrderingViolation       Reason = "OrderingViolation"
	ReasonCountMismatch           Reason = "CountMismatch"
	ReasonTypeMismatch            Reason = "TypeMismatch"
	ReasonOutOfOrderPayloadAccess Reason = "OutOfOrderPayloadAccess"
	ReasonUnknownFormat           Reason = "UnknownFormat"
	ReasonSectionTooLarge         Reason = "SectionTooLarge"
	ReasonCorruptArchive          Reason = "CorruptArchive"
	ReasonTruncated               Reason = "Truncated"
	ReasonUnsupportedCompression  Reason = "UnsupportedCompression"
)

// DecodeError is the single error type returned by the decoder.
//
// Section names the outer entry (or entry path inside a sub-archive) being
// decoded when the failure happened. Index is the payload index for
// ChecksumMismatch and -1 when the failure is not tied to a payload.
type DecodeError struct {
	Kind     ErrorKind
	Reason   Reason
	Section  string
	Index    int
	Detail   string
	Expected string
	Actual   string
	Err      error
}

// Sentinels for errors.Is. A sentinel with a Reason only matches that reason.
var (
	ErrIOFailure          = &DecodeError{Kind: KindIOFailure}
	ErrFormatViolation    = &DecodeError{Kind: KindFormatViolation}
	ErrUnsupportedVersion = &DecodeError{Kind: KindUnsupportedVersion}
	ErrChecksumMismatch   = &DecodeError{Kind: KindChecksumMismatch}

	// ErrEndOfPayloads is returned by NextPayload once every payload was handed out
	ErrEndOfPayloads = errors.New("end of payloads")
)

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Reason != "" {
		sb.WriteString("(" + string(e.Reason) + ")")
	}
	if e.Section != "" {
		sb.WriteString(" in " + e.Section)
	}
	if e.Kind == KindChecksumMismatch {
		if e.Index >= 0 {
			fmt.Fprintf(&sb, " [payload %d]", e.Index)
		}
		fmt.Fprintf(&sb, ": expected %s, got %s", e.Expected, e.Actual)
	}
	if e.Detail != "" {
		sb.WriteString(": " + e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind and, when the target sets one, by reason.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Fatal reports whether the error must stop the decode. Checksum mismatches
// on payloads are recorded per payload instead.
func (e *DecodeError) Fatal() bool {
	return e.Kind != KindChecksumMismatch || e.Index < 0
}

// ====================================================================================
// CONSTRUCTORS
// ====================================================================================

// IOFailure wraps an error from the underlying byte source
func IOFailure(section string, err error) *DecodeError {
	return &DecodeError{Kind: KindIOFailure, Section: section, Index: -1, Err: err}
}

// FormatViolation builds a format violation with a formatted detail message
func FormatViolation(section string, reason Reason, format string, args ...interface{}) *DecodeError {
	return &DecodeError{
		Kind:    KindFormatViolation,
		Reason:  reason,
		Section: section,
		Index:   -1,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// FormatViolationErr builds a format violation caused by err
func FormatViolationErr(section string, reason Reason, err error) *DecodeError {
	return &DecodeError{Kind: KindFormatViolation, Reason: reason, Section: section, Index: -1, Err: err}
}

// UnsupportedVersion reports a schema version outside the supported set
func UnsupportedVersion(section string, format string, args ...interface{}) *DecodeError {
	return &DecodeError{
		Kind:    KindUnsupportedVersion,
		Section: section,
		Index:   -1,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// ChecksumMismatch reports a digest that does not match the manifest.
// Pass index -1 for sections that are not payloads.
func ChecksumMismatch(section string, index int, expected, actual string) *DecodeError {
	return &DecodeError{
		Kind:     KindChecksumMismatch,
		Section:  section,
		Index:    index,
		Expected: expected,
		Actual:   actual,
	}
}

// Classify turns an error raised while reading section into a DecodeError.
// Errors already tagged by the byte source keep their kind; anything else came
// from decompression or tar parsing and is a format violation.
func Classify(section string, err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		if de.Section == "" {
			cp := *de
			cp.Section = section
			return &cp
		}
		return de
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return FormatViolationErr(section, ReasonTruncated, err)
	}
	return FormatViolationErr(section, ReasonCorruptArchive, err)
}

// KindOf returns the kind of a DecodeError in err's chain, or 0
func KindOf(err error) ErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// ReasonOf returns the reason of a DecodeError in err's chain, or ""
func ReasonOf(err error) Reason {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
