package artifact

// State is the position of the decoder in the outer container
type State int

const (
	StateStart State = iota
	StateExpectVersion
	StateExpectManifest
	StateExpectManifestSignature
	StateExpectHeader
	StateExpectAugmentedHeader
	StateExpectPayloads
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateStart:                   "Start",
	StateExpectVersion:           "ExpectVersion",
	StateExpectManifest:          "ExpectManifest",
	StateExpectManifestSignature: "ExpectManifestSignature",
	StateExpectHeader:            "ExpectHeader",
	StateExpectAugmentedHeader:   "ExpectAugmentedHeader",
	StateExpectPayloads:          "ExpectPayloads",
	StateDone:                    "Done",
	StateFailed:                  "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}
