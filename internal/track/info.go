package track

// Unknown is substituted for identity fields the track does not provide.
const Unknown = "unknown"

// Info is the identity record of a track reference.
type Info struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label,omitempty"`
}

// IsEmpty reports whether info is the empty record.
func (i Info) IsEmpty() bool {
	return i == Info{}
}

// Extract returns the identity of ref. An absent reference yields the empty
// record; missing fields of a present reference default to Unknown.
func Extract(ref Reference) Info {
	if !IsPresent(ref) {
		return Info{}
	}
	return Info{
		ID:    orUnknown(ref.trackID()),
		Label: orUnknown(ref.trackLabel()),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
