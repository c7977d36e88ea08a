package header

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// ====================================================================================
// HEADER-INFO
// ====================================================================================

// PayloadType is one declared payload in header-info
type PayloadType struct {
	Type string `json:"type"`
}

// ArtifactProvides is the global provides block of header-info
type ArtifactProvides struct {
	ArtifactName  string `json:"artifact_name"`
	ArtifactGroup string `json:"artifact_group,omitempty"`
}

// ArtifactDepends is the global depends block of header-info
type ArtifactDepends struct {
	DeviceType    []string `json:"device_type"`
	ArtifactName  []string `json:"artifact_name,omitempty"`
	ArtifactGroup *Value   `json:"artifact_group,omitempty"`
}

// HeaderInfo is the global artifact descriptor
type HeaderInfo struct {
	Payloads         []PayloadType    `json:"payloads"`
	ArtifactProvides ArtifactProvides `json:"artifact_provides"`
	ArtifactDepends  ArtifactDepends  `json:"artifact_depends"`
}

// ====================================================================================
// PER-PAYLOAD
// ====================================================================================

// TypeInfo is the per-payload descriptor. Provides and depends are open maps;
// rootfs-image.checksum is only one possible key.
type TypeInfo struct {
	Type                   string           `json:"type"`
	ArtifactProvides       map[string]Value `json:"artifact_provides,omitempty"`
	ArtifactDepends        map[string]Value `json:"artifact_depends,omitempty"`
	ClearsArtifactProvides []string         `json:"clears_artifact_provides,omitempty"`
}

// MetaData is the free-form meta-data object of a payload
type MetaData map[string]interface{}

// SubHeader is one payload's metadata, index-aligned with HeaderInfo.Payloads
type SubHeader struct {
	Index    int      `json:"index"`
	TypeInfo TypeInfo `json:"type_info"`
	MetaData MetaData `json:"meta_data,omitempty"`
}

// HasMetaData reports whether a meta-data entry was present
func (s *SubHeader) HasMetaData() bool {
	return s.MetaData != nil
}

// Header is the fully decoded header sub-archive
type Header struct {
	Info       HeaderInfo  `json:"header_info"`
	SubHeaders []SubHeader `json:"subheaders"`
	Scripts    []string    `json:"scripts,omitempty"`
}

// ====================================================================================
// STRING-OR-LIST VALUE
// ====================================================================================

// Value holds either a single string or a list of strings
type Value struct {
	str    string
	list   []string
	isList bool
}

// StringValue builds a single-string value
func StringValue(s string) Value {
	return Value{str: s}
}

// ListValue builds a list value
func ListValue(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{list: items, isList: true}
}

// IsList reports whether the value was a list
func (v Value) IsList() bool {
	return v.isList
}

// String returns the string form; lists are joined with commas
func (v Value) String() string {
	if !v.isList {
		return v.str
	}
	var buf bytes.Buffer
	for i, s := range v.list {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(s)
	}
	return buf.String()
}

// List returns the value as a list; a single string becomes one element
func (v Value) List() []string {
	if v.isList {
		return v.list
	}
	return []string{v.str}
}

// Interface returns a string or []string, for generic encoders
func (v Value) Interface() interface{} {
	if v.isList {
		return v.list
	}
	return v.str
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("list must contain only strings: %w", err)
		}
		*v = ListValue(list...)
		return nil
	default:
		return fmt.Errorf("value must be a string or a list of strings, got %s", data)
	}
}
