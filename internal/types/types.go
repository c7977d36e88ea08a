package types

// Logger is a simple logging interface used throughout martifact
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

const (
	// FORMAT_NAME is the only artifact format name this decoder recognizes
	FORMAT_NAME = "mender"

	// Outer container entry names, in the order they must appear
	VERSION_FILE      = "version"
	MANIFEST_FILE     = "manifest"
	MANIFEST_SIG_FILE = "manifest.sig"
	HEADER_BASE       = "header.tar"
	AUGMENT_BASE      = "header-augment.tar"
	DATA_DIR          = "data"

	// HEADER_INFO_FILE must be the first entry of the header sub-archive
	HEADER_INFO_FILE = "header-info"

	// DEFAULT_MAX_METADATA_SIZE caps every eagerly buffered JSON/text section
	DEFAULT_MAX_METADATA_SIZE = 1 << 20

	// DEFAULT_MAX_HEADER_SIZE caps the raw header sub-archive
	DEFAULT_MAX_HEADER_SIZE = 32 << 20
)

// DefaultSupportedVersions lists the schema versions accepted when none are configured
var DefaultSupportedVersions = []int{3}
